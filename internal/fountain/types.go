package fountain

// Metadata is the immutable per-file record created by the encoder and
// consumed by every decoder (spec §3).
type Metadata struct {
	FileName       string
	FileType       string
	FileSize       uint64
	ChunksCount    uint32
	PacketCount    uint32 // advisory, not enforced on decode
	FileChecksum   string // 64 hex chars, SHA-256 of the unpadded file
	FileID         string // 8 hex chars, prefix of FileChecksum
	EncoderVersion string
}

// Packet is a coded packet: the XOR of Degree source chunks, addressed by
// Seed (spec §3).
type Packet struct {
	FileID      string
	ID          uint32
	Seed        uint32
	SeedBase    uint32
	ChunksCount uint32
	Degree      uint16
	Data        []byte
}
