package fountain

import (
	"bytes"
	"testing"

	"github.com/qrfountain/qrf/internal/checksum"
)

func buildFile(t *testing.T, size int, chunkSize int) (chunks [][]byte, meta Metadata, raw []byte) {
	t.Helper()
	raw = make([]byte, size)
	for i := range raw {
		raw[i] = byte(i * 7 % 251)
	}

	k := (size + chunkSize - 1) / chunkSize
	if k == 0 {
		k = 1
	}
	chunks = make([][]byte, k)
	for i := 0; i < k; i++ {
		c := make([]byte, chunkSize)
		start := i * chunkSize
		end := start + chunkSize
		if start < len(raw) {
			n := copy(c, raw[start:min(end, len(raw))])
			_ = n
		}
		chunks[i] = c
	}

	sum := checksum.Hex(raw)
	meta = Metadata{
		FileName:     "test.bin",
		FileType:     "application/octet-stream",
		FileSize:     uint64(size),
		ChunksCount:  uint32(k),
		FileChecksum: sum,
		FileID:       checksum.FileID(sum),
	}
	return chunks, meta, raw
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestDecoder_RoundTripNoLoss(t *testing.T) {
	chunks, meta, raw := buildFile(t, 4000, 256)

	enc, err := NewEncoder(meta.FileID, chunks, DefaultEncoderOptions())
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	dec := New(meta)
	target := int(enc.TargetPacketCount())
	for i := 0; i < target && !dec.IsDone(); i++ {
		pkt := enc.Next()
		if _, err := dec.AddPacket(pkt); err != nil {
			t.Fatalf("AddPacket: %v", err)
		}
	}

	if !dec.IsDone() {
		got, k := dec.RecoveryProgress()
		t.Fatalf("decoder not done after %d packets: recovered %d/%d", target, got, k)
	}

	out, ok := dec.FinalizeFile()
	if !ok {
		t.Fatal("FinalizeFile returned ok=false on a done decoder")
	}
	if !bytes.Equal(out, raw) {
		t.Fatalf("recovered buffer mismatch: got %d bytes, want %d", len(out), len(raw))
	}
}

func TestDecoder_ToleratesDroppedPackets(t *testing.T) {
	chunks, meta, raw := buildFile(t, 64*1024, 1024) // K=64

	opts := DefaultEncoderOptions()
	opts.Redundancy = 2.0
	enc, err := NewEncoder(meta.FileID, chunks, opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	dec := New(meta)
	total := int(enc.TargetPacketCount())
	for i := 0; i < total; i++ {
		pkt := enc.Next()
		if i%3 == 1 {
			continue // simulate a dropped packet
		}
		if dec.IsDone() {
			break
		}
		if _, err := dec.AddPacket(pkt); err != nil {
			t.Fatalf("AddPacket: %v", err)
		}
	}

	if !dec.IsDone() {
		got, k := dec.RecoveryProgress()
		t.Fatalf("decoder did not recover under 1/3 packet loss: %d/%d", got, k)
	}
	out, _ := dec.FinalizeFile()
	if !bytes.Equal(out, raw) {
		t.Fatal("recovered buffer mismatch under packet loss")
	}
}

func TestDecoder_DuplicatePacketIgnored(t *testing.T) {
	chunks, meta, _ := buildFile(t, 1024, 256)
	enc, _ := NewEncoder(meta.FileID, chunks, DefaultEncoderOptions())
	dec := New(meta)

	pkt := enc.Next()
	added1, err := dec.AddPacket(pkt)
	if err != nil || !added1 {
		t.Fatalf("first AddPacket: added=%v err=%v", added1, err)
	}
	progressBefore, _ := dec.RecoveryProgress()

	added2, err := dec.AddPacket(pkt)
	if err != nil {
		t.Fatalf("duplicate AddPacket returned error: %v", err)
	}
	if added2 {
		t.Fatal("duplicate packet should report added=false")
	}
	progressAfter, _ := dec.RecoveryProgress()
	if progressBefore != progressAfter {
		t.Fatal("duplicate packet changed recovery progress")
	}
}

func TestDecoder_ChecksumMismatchPoisons(t *testing.T) {
	chunks, meta, _ := buildFile(t, 512, 128)
	meta.FileChecksum = "0000000000000000000000000000000000000000000000000000000000000000"[:64]

	enc, _ := NewEncoder(meta.FileID, chunks, DefaultEncoderOptions())
	dec := New(meta)

	var finalErr error
	for i := 0; i < int(enc.TargetPacketCount())+4; i++ {
		_, err := dec.AddPacket(enc.Next())
		if err != nil {
			finalErr = err
			break
		}
	}

	if finalErr == nil {
		t.Fatal("expected checksum mismatch error, got none")
	}
	poisoned, perr := dec.IsPoisoned()
	if !poisoned || perr == nil {
		t.Fatal("decoder should be poisoned after checksum mismatch")
	}
	if dec.IsDone() {
		t.Fatal("poisoned decoder must not report done")
	}
}

func TestDecoder_ProvisionalThenMetadata(t *testing.T) {
	chunks, meta, raw := buildFile(t, 2048, 512)
	enc, _ := NewEncoder(meta.FileID, chunks, DefaultEncoderOptions())

	dec := NewProvisional(meta.FileID, meta.ChunksCount)
	for i := 0; i < int(enc.TargetPacketCount()); i++ {
		if _, err := dec.AddPacket(enc.Next()); err != nil {
			t.Fatalf("AddPacket on provisional decoder: %v", err)
		}
	}

	data, recovered, k, complete := dec.PartialResult()
	if !complete || recovered != k {
		t.Fatalf("provisional decoder should have recovered all chunks: %d/%d", recovered, k)
	}
	if data == nil {
		t.Fatal("PartialResult returned nil data for a complete provisional decoder")
	}

	if err := dec.AttachMetadata(meta); err != nil {
		t.Fatalf("AttachMetadata: %v", err)
	}
	if !dec.IsDone() {
		t.Fatal("decoder should finalize immediately once metadata completes an already-full buffer")
	}
	out, ok := dec.FinalizeFile()
	if !ok || !bytes.Equal(out, raw) {
		t.Fatal("finalized buffer mismatch after late metadata attach")
	}
}

func TestDecoder_ProvisionalChunksCountMismatchPoisons(t *testing.T) {
	dec := NewProvisional("abc12345", 10)
	badMeta := Metadata{FileID: "abc12345", ChunksCount: 11, FileSize: 100, FileChecksum: checksum.Hex([]byte("x"))}

	if err := dec.AttachMetadata(badMeta); err == nil {
		t.Fatal("expected chunks_count mismatch error")
	}
	poisoned, _ := dec.IsPoisoned()
	if !poisoned {
		t.Fatal("decoder should be poisoned after chunks_count mismatch")
	}
}

func TestDecoder_SingletonShortCircuit(t *testing.T) {
	chunks, meta, _ := buildFile(t, 256, 64) // K=4
	dec := New(meta)

	pkt := Packet{FileID: meta.FileID, ID: 0, Seed: 0, SeedBase: 0, ChunksCount: meta.ChunksCount, Degree: 1, Data: cloneChunk(chunks[0])}
	if _, err := dec.AddPacket(pkt); err != nil {
		t.Fatalf("AddPacket: %v", err)
	}
	got, _ := dec.RecoveryProgress()
	if got != 1 {
		t.Fatalf("expected 1 recovered chunk, got %d", got)
	}

	// Same packet again with a different id: still degree 1, already known.
	pkt2 := Packet{FileID: meta.FileID, ID: 1, Seed: 0, SeedBase: 0, ChunksCount: meta.ChunksCount, Degree: 1, Data: cloneChunk(chunks[0])}
	if _, err := dec.AddPacket(pkt2); err != nil {
		t.Fatalf("AddPacket: %v", err)
	}
	got2, _ := dec.RecoveryProgress()
	if got2 != 1 {
		t.Fatalf("redundant singleton should not change recovered count, got %d", got2)
	}
}

func TestDecoder_OrderIndependence(t *testing.T) {
	chunks, meta, raw := buildFile(t, 8192, 512)
	opts := DefaultEncoderOptions()
	opts.Redundancy = 1.8

	enc1, _ := NewEncoder(meta.FileID, chunks, opts)
	pkts := enc1.Packets(int(enc1.TargetPacketCount()))

	// Forward order
	decA := New(meta)
	for _, p := range pkts {
		if decA.IsDone() {
			break
		}
		decA.AddPacket(p)
	}

	// Reverse order
	decB := New(meta)
	for i := len(pkts) - 1; i >= 0; i-- {
		if decB.IsDone() {
			break
		}
		decB.AddPacket(pkts[i])
	}

	outA, okA := decA.FinalizeFile()
	outB, okB := decB.FinalizeFile()
	if !okA || !okB {
		t.Fatalf("both decoders should finish: okA=%v okB=%v", okA, okB)
	}
	if !bytes.Equal(outA, outB) || !bytes.Equal(outA, raw) {
		t.Fatal("decoder result depends on packet delivery order")
	}
}
