package fountain

import "fmt"

// EncoderOptions configures the fountain encoder (spec §4.4, §6).
type EncoderOptions struct {
	Redundancy  float64 // rho >= 1.0; ceil(rho*K) packets before the caller must stop
	Systematic  bool    // emit K degree-1 packets before drawing from the distribution
	Distribution Distribution
}

// DefaultEncoderOptions returns the canonical encoder configuration.
func DefaultEncoderOptions() EncoderOptions {
	return EncoderOptions{
		Redundancy:   1.5,
		Systematic:   true,
		Distribution: NewRobustSoliton(),
	}
}

// Encoder produces a deterministic, restartable, lazy sequence of coded
// packets from a fixed set of source chunks. It is pure: calling Next
// repeatedly with the same internal counter state always yields the same
// packet for a given call index.
type Encoder struct {
	fileID string
	chunks [][]byte
	k      uint32
	opts   EncoderOptions
	nextID uint32
}

// NewEncoder creates a fountain encoder over chunks, addressed under
// fileID. Packet identifiers are a monotonic counter starting at 0 for each
// encoder, so two files' packets can share ids; decoders keep them apart by
// the fileID every packet carries.
func NewEncoder(fileID string, chunks [][]byte, opts EncoderOptions) (*Encoder, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("fountain: encoder requires at least one chunk")
	}
	if len(chunks) > 1<<32-1 {
		return nil, fmt.Errorf("fountain: chunk count %d exceeds uint32 range", len(chunks))
	}
	if opts.Distribution == nil {
		opts.Distribution = NewRobustSoliton()
	}
	if opts.Redundancy < 1.0 {
		return nil, fmt.Errorf("fountain: redundancy must be >= 1.0, got %f", opts.Redundancy)
	}

	return &Encoder{
		fileID: fileID,
		chunks: chunks,
		k:      uint32(len(chunks)),
		opts:   opts,
	}, nil
}

// ChunksCount returns K, the number of source chunks.
func (e *Encoder) ChunksCount() uint32 {
	return e.k
}

// TargetPacketCount returns ceil(rho*K), the advisory packet count carried
// in the metadata packet (spec §3, "advisory, not enforced on decode").
func (e *Encoder) TargetPacketCount() uint32 {
	target := uint32(e.opts.Redundancy * float64(e.k))
	if target < e.k {
		target = e.k
	}
	if float64(target) < e.opts.Redundancy*float64(e.k) {
		target++
	}
	return target
}

// Next produces the next coded packet in the sequence (spec §4.4):
// systematic packets (if enabled) first, degree-1 and index-ordered, then
// fountain packets drawn from the configured degree distribution.
func (e *Encoder) Next() Packet {
	n := e.nextID
	e.nextID++

	if e.opts.Systematic && n < e.k {
		return Packet{
			FileID:      e.fileID,
			ID:          n,
			Seed:        n,
			SeedBase:    n,
			ChunksCount: e.k,
			Degree:      1,
			Data:        cloneChunk(e.chunks[n]),
		}
	}

	degree := e.opts.Distribution.Draw(n, e.k)
	indices := Select(n, degree, e.k)
	data := xorChunks(e.chunks, indices)

	return Packet{
		FileID:      e.fileID,
		ID:          n,
		Seed:        n,
		SeedBase:    n,
		ChunksCount: e.k,
		Degree:      uint16(len(indices)),
		Data:        data,
	}
}

// Packets generates the next n packets as a slice, a convenience over
// repeated Next() calls for callers that want to batch-render frames.
func (e *Encoder) Packets(n int) []Packet {
	out := make([]Packet, n)
	for i := range out {
		out[i] = e.Next()
	}
	return out
}

func cloneChunk(c []byte) []byte {
	out := make([]byte, len(c))
	copy(out, c)
	return out
}

// xorChunks XORs together the chunks selected by indices, returning a new
// buffer the size of a single chunk.
func xorChunks(chunks [][]byte, indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	size := len(chunks[indices[0]])
	out := make([]byte, size)
	for _, idx := range indices {
		xorInto(out, chunks[idx])
	}
	return out
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
