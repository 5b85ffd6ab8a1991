package dispatch

import (
	"testing"

	"github.com/qrfountain/qrf/internal/checksum"
	"github.com/qrfountain/qrf/internal/fountain"
	"github.com/qrfountain/qrf/internal/wire"
)

type recordingSink struct {
	recovered map[string][]byte
}

func newRecordingSink() *recordingSink {
	return &recordingSink{recovered: make(map[string][]byte)}
}

func (s *recordingSink) FileRecovered(fileID string, meta fountain.Metadata, data []byte) error {
	s.recovered[fileID] = data
	return nil
}

func buildTestFile(raw []byte, chunkSize int) (fountain.Metadata, *fountain.Encoder) {
	k := (len(raw) + chunkSize - 1) / chunkSize
	if k == 0 {
		k = 1
	}
	chunks := make([][]byte, k)
	for i := 0; i < k; i++ {
		c := make([]byte, chunkSize)
		start := i * chunkSize
		if start < len(raw) {
			end := start + chunkSize
			if end > len(raw) {
				end = len(raw)
			}
			copy(c, raw[start:end])
		}
		chunks[i] = c
	}
	sum := checksum.Hex(raw)
	meta := fountain.Metadata{
		FileName:     "x.bin",
		FileType:     "application/octet-stream",
		FileSize:     uint64(len(raw)),
		ChunksCount:  uint32(k),
		FileChecksum: sum,
		FileID:       checksum.FileID(sum),
	}
	enc, err := fountain.NewEncoder(meta.FileID, chunks, fountain.DefaultEncoderOptions())
	if err != nil {
		panic(err)
	}
	return meta, enc
}

func TestDriver_EndToEndSingleFile(t *testing.T) {
	raw := make([]byte, 2048)
	for i := range raw {
		raw[i] = byte(i)
	}
	meta, enc := buildTestFile(raw, 256)

	sink := newRecordingSink()
	d := NewDriver(sink, nil, nil)

	if err := d.HandleFrame(wire.EncodeMetadata(meta)); err != nil {
		t.Fatalf("metadata frame: %v", err)
	}
	for i := 0; i < int(enc.TargetPacketCount()); i++ {
		line := wire.EncodeData(enc.Next())
		if err := d.HandleFrame(line); err != nil {
			t.Fatalf("data frame: %v", err)
		}
	}

	got, ok := sink.recovered[meta.FileID]
	if !ok {
		t.Fatal("file was not delivered to sink")
	}
	if string(got) != string(raw) {
		t.Fatal("recovered bytes mismatch")
	}

	entry, _ := d.registry.Get(meta.FileID)
	if entry.State != StateDone {
		t.Fatalf("expected state done, got %v", entry.State)
	}
}

func TestDriver_DataBeforeMetadata(t *testing.T) {
	raw := make([]byte, 1024)
	for i := range raw {
		raw[i] = byte(i * 3)
	}
	meta, enc := buildTestFile(raw, 128)

	sink := newRecordingSink()
	d := NewDriver(sink, nil, nil)

	pkts := enc.Packets(int(enc.TargetPacketCount()))
	for _, p := range pkts {
		d.HandleFrame(wire.EncodeData(p))
	}

	entry, ok := d.registry.Get(meta.FileID)
	if !ok {
		t.Fatal("provisional decoder was not created")
	}
	if entry.Dec.HasMetadata() {
		t.Fatal("decoder should not have metadata yet")
	}

	d.HandleFrame(wire.EncodeMetadata(meta))

	got, ok := sink.recovered[meta.FileID]
	if !ok {
		t.Fatal("file should finalize once metadata attaches to a complete provisional decoder")
	}
	if string(got) != string(raw) {
		t.Fatal("recovered bytes mismatch after late metadata attach")
	}
}

func TestDriver_DuplicateMetadataIgnored(t *testing.T) {
	raw := []byte("small file contents")
	meta, _ := buildTestFile(raw, 64)

	d := NewDriver(nil, nil, nil)
	line := wire.EncodeMetadata(meta)

	if err := d.HandleFrame(line); err != nil {
		t.Fatalf("first metadata: %v", err)
	}
	if err := d.HandleFrame(line); err != nil {
		t.Fatalf("duplicate metadata: %v", err)
	}

	if d.registry.Count() != 1 {
		t.Fatalf("duplicate metadata should not create a second entry, got count=%d", d.registry.Count())
	}
}

func TestDriver_TwoFileInterleaving(t *testing.T) {
	rawA := make([]byte, 1500)
	rawB := make([]byte, 900)
	for i := range rawA {
		rawA[i] = byte(i)
	}
	for i := range rawB {
		rawB[i] = byte(255 - i)
	}
	metaA, encA := buildTestFile(rawA, 128)
	metaB, encB := buildTestFile(rawB, 128)

	sink := newRecordingSink()
	d := NewDriver(sink, nil, nil)

	d.HandleFrame(wire.EncodeMetadata(metaA))
	d.HandleFrame(wire.EncodeMetadata(metaB))

	pktsA := encA.Packets(int(encA.TargetPacketCount()))
	pktsB := encB.Packets(int(encB.TargetPacketCount()))

	i, j := 0, 0
	for i < len(pktsA) || j < len(pktsB) {
		if i < len(pktsA) {
			d.HandleFrame(wire.EncodeData(pktsA[i]))
			i++
		}
		if j < len(pktsB) {
			d.HandleFrame(wire.EncodeData(pktsB[j]))
			j++
		}
	}

	if string(sink.recovered[metaA.FileID]) != string(rawA) {
		t.Fatal("file A did not recover correctly under interleaving")
	}
	if string(sink.recovered[metaB.FileID]) != string(rawB) {
		t.Fatal("file B did not recover correctly under interleaving")
	}
}

func TestDriver_MalformedFrameDroppedSilently(t *testing.T) {
	d := NewDriver(nil, nil, nil)
	if err := d.HandleFrame("not a valid packet at all"); err != nil {
		t.Fatalf("malformed frame should not error: %v", err)
	}
	if d.registry.Count() != 0 {
		t.Fatal("malformed frame should not create a registry entry")
	}
}

func TestDriver_EndOfStreamReportsPartial(t *testing.T) {
	raw := make([]byte, 4096)
	meta, enc := buildTestFile(raw, 256)

	d := NewDriver(nil, nil, nil)
	d.HandleFrame(wire.EncodeMetadata(meta))
	// Feed only the first two systematic packets — nowhere near enough to recover.
	d.HandleFrame(wire.EncodeData(enc.Next()))
	d.HandleFrame(wire.EncodeData(enc.Next()))

	reports := d.EndOfStream()
	if len(reports) != 1 {
		t.Fatalf("expected 1 partial report, got %d", len(reports))
	}
	r := reports[0]
	if r.FileID != meta.FileID {
		t.Fatalf("wrong file_id in report: %s", r.FileID)
	}
	if r.Recovered == r.ChunksCount {
		t.Fatal("expected an incomplete recovery for this scenario")
	}
}

func TestDriver_ChunksCountMismatchPoisons(t *testing.T) {
	raw := make([]byte, 512)
	meta, enc := buildTestFile(raw, 64)

	d := NewDriver(nil, nil, nil)
	// Data packets arrive first, seeding a provisional decoder at the true chunks_count.
	d.HandleFrame(wire.EncodeData(enc.Next()))

	badMeta := meta
	badMeta.ChunksCount = meta.ChunksCount + 1
	d.HandleFrame(wire.EncodeMetadata(badMeta))

	entry, _ := d.registry.Get(meta.FileID)
	if entry.State != StatePoisoned {
		t.Fatalf("expected poisoned state, got %v", entry.State)
	}
}
