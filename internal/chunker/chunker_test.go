package chunker

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSplit_ExactMultiple(t *testing.T) {
	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i % 256)
	}

	chunks := Split(data, ChunkOptions{ChunkSize: 1024})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0], data[:1024]) {
		t.Error("chunk 0 mismatch")
	}
	if !bytes.Equal(chunks[1], data[1024:]) {
		t.Error("chunk 1 mismatch")
	}
}

func TestSplit_PadsLastChunk(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	chunks := Split(data, ChunkOptions{ChunkSize: 2})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0], []byte{0xDE, 0xAD}) {
		t.Errorf("chunk 0 = %x", chunks[0])
	}
	if !bytes.Equal(chunks[1], []byte{0xBE, 0xEF}) {
		t.Errorf("chunk 1 = %x", chunks[1])
	}
	if !bytes.Equal(chunks[2], []byte{0x01, 0x00}) {
		t.Errorf("last chunk should be zero-padded, got %x", chunks[2])
	}
}

func TestSplit_EmptyBuffer(t *testing.T) {
	chunks := Split(nil, DefaultChunkOptions())
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for empty input, got %d", len(chunks))
	}
	for _, b := range chunks[0] {
		if b != 0 {
			t.Fatal("empty-input chunk should be all zero")
		}
	}
}

func TestSplit_DefaultsOnInvalidSize(t *testing.T) {
	chunks := Split([]byte("hello"), ChunkOptions{ChunkSize: 0})
	if len(chunks[0]) != DefaultChunkOptions().ChunkSize {
		t.Errorf("expected fallback to default chunk size, got %d", len(chunks[0]))
	}
}

func TestReassemble_RoundTrip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog")
	chunks := Split(original, ChunkOptions{ChunkSize: 7})

	got := Reassemble(chunks, uint64(len(original)))
	if !bytes.Equal(got, original) {
		t.Fatalf("reassembled = %q, want %q", got, original)
	}
}

func TestReadFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "data.bin")
	want := []byte("0123456789abcdef")
	if err := os.WriteFile(testFile, want, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, size, err := ReadFile(testFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if size != uint64(len(want)) {
		t.Errorf("size = %d, want %d", size, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Errorf("data = %q, want %q", got, want)
	}
}

func TestReadChunk(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "chunks.bin")

	chunkSize := 1024
	testData := make([]byte, chunkSize*3)
	for i := range testData {
		testData[i] = byte(i % 256)
	}
	if err := os.WriteFile(testFile, testData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	chunk0, err := ReadChunk(testFile, 0, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk(0) failed: %v", err)
	}
	if !bytes.Equal(chunk0, testData[:chunkSize]) {
		t.Error("chunk 0 mismatch")
	}

	chunk1, err := ReadChunk(testFile, 1, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk(1) failed: %v", err)
	}
	if !bytes.Equal(chunk1, testData[chunkSize:2*chunkSize]) {
		t.Error("chunk 1 mismatch")
	}
}

func TestCount(t *testing.T) {
	cases := []struct {
		fileSize  uint64
		chunkSize int
		want      uint32
	}{
		{0, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{2048, 1024, 2},
	}
	for _, c := range cases {
		if got := Count(c.fileSize, c.chunkSize); got != c.want {
			t.Errorf("Count(%d, %d) = %d, want %d", c.fileSize, c.chunkSize, got, c.want)
		}
	}
}
