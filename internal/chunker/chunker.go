package chunker

import (
	"fmt"
	"io"
	"os"
)

// Split divides data into ceil(len(data)/ChunkSize) fixed-length chunks
// (one all-zero chunk for empty data).
// The last chunk is right-padded with zero bytes so every chunk has
// length ChunkSize; true file length is carried separately. Chunk index
// equals offset / ChunkSize. The chunker never consults a PRNG.
func Split(data []byte, options ChunkOptions) []Chunk {
	if options.ChunkSize <= 0 {
		options = DefaultChunkOptions()
	}
	size := options.ChunkSize

	if len(data) == 0 {
		return []Chunk{make(Chunk, size)}
	}

	count := len(data) / size
	if len(data)%size != 0 {
		count++
	}

	chunks := make([]Chunk, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunk := make(Chunk, size)
		copy(chunk, data[start:end])
		chunks[i] = chunk
	}
	return chunks
}

// ReadFile loads a file in full, returning its exact (pre-padding) size
// alongside the bytes. The encoder needs the whole buffer in memory to
// compute the fountain code, so streaming is not attempted here.
func ReadFile(filePath string) (data []byte, fileSize uint64, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat file: %w", err)
	}

	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, fmt.Errorf("failed to read file: %w", err)
	}

	return buf, uint64(info.Size()), nil
}

// ReadChunk reads a specific chunk directly from a file on disk without
// loading the whole file, for tools that only need to preview one chunk.
func ReadChunk(filePath string, chunkIndex int, chunkSize int) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	offset := int64(chunkIndex) * int64(chunkSize)
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to offset %d: %w", offset, err)
	}

	buffer := make([]byte, chunkSize)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read chunk: %w", err)
	}

	out := make([]byte, chunkSize)
	copy(out, buffer[:n])
	return out, nil
}

// Reassemble concatenates chunks in index order and truncates the
// result to fileSize, undoing the zero-padding on the last chunk.
func Reassemble(chunks []Chunk, fileSize uint64) []byte {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]byte, 0, len(chunks)*len(chunks[0]))
	for _, c := range chunks {
		out = append(out, c...)
	}
	if uint64(len(out)) > fileSize {
		out = out[:fileSize]
	}
	return out
}

// Count returns ceil(fileSize/chunkSize), the number of chunks a file of
// fileSize splits into under chunkSize — used when only sizes, not bytes,
// are on hand (e.g. decoder-side bookkeeping).
func Count(fileSize uint64, chunkSize int) uint32 {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkOptions().ChunkSize
	}
	n := fileSize / uint64(chunkSize)
	if fileSize%uint64(chunkSize) != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return uint32(n)
}
