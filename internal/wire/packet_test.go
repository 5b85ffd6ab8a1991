package wire

import (
	"strings"
	"testing"

	"github.com/qrfountain/qrf/internal/checksum"
	"github.com/qrfountain/qrf/internal/fountain"
)

func sampleMetadata() fountain.Metadata {
	sum := checksum.Hex([]byte("hello world"))
	return fountain.Metadata{
		FileName:       "my file (draft).txt",
		FileType:       "text/plain",
		FileSize:       11,
		ChunksCount:    4,
		PacketCount:    6,
		FileChecksum:   sum,
		FileID:         checksum.FileID(sum),
		EncoderVersion: "qrf-1.0",
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := sampleMetadata()
	line := EncodeMetadata(m)

	kind, got, _, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if kind != KindMetadata {
		t.Fatalf("expected KindMetadata, got %v", kind)
	}
	if got != m {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, m)
	}
}

func TestMetadataEscapesSpecialCharacters(t *testing.T) {
	m := sampleMetadata()
	m.FileName = "weird:name/with spaces&stuff.bin"

	line := EncodeMetadata(m)
	if strings.Contains(line, "weird:name") {
		t.Fatal("file_name colon leaked into the wire line unescaped")
	}

	_, got, _, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.FileName != m.FileName {
		t.Fatalf("file_name round trip mismatch: got %q want %q", got.FileName, m.FileName)
	}
}

func TestMetadataReservedFieldsAccepted(t *testing.T) {
	line := EncodeMetadata(sampleMetadata())
	line = strings.Replace(line, "0:0:0:0:0:0", "7:0:0:0:0:0", 1)

	kind, _, _, err := Parse(line)
	if err != nil {
		t.Fatalf("non-zero reserved fields must still parse: %v", err)
	}
	if kind != KindMetadata {
		t.Fatal("expected KindMetadata")
	}
}

func TestMetadataExtraTrailingFieldsIgnored(t *testing.T) {
	line := EncodeMetadata(sampleMetadata()) + ":future:fields:here"
	kind, _, _, err := Parse(line)
	if err != nil {
		t.Fatalf("extra trailing fields should be reserved and ignored: %v", err)
	}
	if kind != KindMetadata {
		t.Fatal("expected KindMetadata")
	}
}

func TestMetadataMissingFieldFailsParse(t *testing.T) {
	line := EncodeMetadata(sampleMetadata())
	truncated := strings.Join(strings.Split(line, ":")[:10], ":")

	kind, _, _, err := Parse(truncated)
	if err == nil {
		t.Fatal("expected parse failure on truncated metadata line")
	}
	if kind != KindInvalid {
		t.Fatal("expected KindInvalid")
	}
}

func TestMetadataBadChecksumRejected(t *testing.T) {
	m := sampleMetadata()
	m.FileChecksum = "not-a-checksum"
	line := EncodeMetadata(m)

	_, _, _, err := Parse(line)
	if err == nil {
		t.Fatal("expected rejection of malformed file_checksum")
	}
}

func samplePacket() fountain.Packet {
	return fountain.Packet{
		FileID:      "abcd1234",
		ID:          42,
		Seed:        42,
		SeedBase:    42,
		ChunksCount: 10,
		Degree:      3,
		Data:        []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0xFF},
	}
}

func TestDataPacketRoundTrip(t *testing.T) {
	p := samplePacket()
	line := EncodeData(p)

	kind, _, got, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if kind != KindData {
		t.Fatalf("expected KindData, got %v", kind)
	}
	if got.FileID != p.FileID || got.ID != p.ID || got.Seed != p.Seed ||
		got.SeedBase != p.SeedBase || got.ChunksCount != p.ChunksCount || got.Degree != p.Degree {
		t.Fatalf("round trip field mismatch: got %+v want %+v", got, p)
	}
	if string(got.Data) != string(p.Data) {
		t.Fatalf("round trip data mismatch: got %v want %v", got.Data, p.Data)
	}
}

func TestDataPacketEncodingHasNoColon(t *testing.T) {
	p := samplePacket()
	p.Data = []byte{0x3A, 0x3A, 0x3A, 0x3A} // bytes chosen adversarially, still must not decode to ':'
	line := EncodeData(p)

	fields := strings.Split(line, ":")
	if len(fields) != dataFields {
		t.Fatalf("data payload introduced a stray ':' : got %d fields, want %d", len(fields), dataFields)
	}
}

func TestDataPacketDegreeZeroRejected(t *testing.T) {
	p := samplePacket()
	p.Degree = 0
	line := EncodeData(p)

	_, _, _, err := Parse(line)
	if err == nil {
		t.Fatal("expected rejection of degree=0")
	}
}

func TestDataPacketDegreeExceedsChunksCountRejected(t *testing.T) {
	p := samplePacket()
	p.Degree = 11
	p.ChunksCount = 10
	line := EncodeData(p)

	_, _, _, err := Parse(line)
	if err == nil {
		t.Fatal("expected rejection of degree > chunks_count")
	}
}

func TestDataPacketMissingFieldFailsParse(t *testing.T) {
	_, _, _, err := Parse("D:abcd1234:1:1")
	if err == nil {
		t.Fatal("expected parse failure on truncated data line")
	}
}

func TestUnknownTagIsInvalid(t *testing.T) {
	kind, _, _, err := Parse("X:garbage:line")
	if kind != KindInvalid || err == nil {
		t.Fatal("unknown tag should be KindInvalid with an error")
	}
}

func TestEmptyLineIsInvalid(t *testing.T) {
	kind, _, _, err := Parse("")
	if kind != KindInvalid || err == nil {
		t.Fatal("empty line should be KindInvalid with an error")
	}
}
