// Package wire implements the textual grammar packets are carried in
// across the optical channel: single-line, colon-separated records, with
// text fields URL-escaped and payload bytes transport-encoded so that
// neither can introduce a stray ':' into the line.
package wire

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qrfountain/qrf/internal/checksum"
	"github.com/qrfountain/qrf/internal/fountain"
)

const (
	metadataTag     = "M"
	dataTag         = "D"
	metadataVersion = "4.0"
	metadataFields  = 16 // tag + 15 fields, see EncodeMetadata
	dataFields      = 8  // tag + 7 fields, see EncodeData
)

// dataEncoding is the DATAENC scheme named in the shipping manifest:
// Base64, URL-safe alphabet, no padding.
var dataEncoding = base64.RawURLEncoding

// EncodeMetadata renders a metadata packet line (spec §6).
func EncodeMetadata(m fountain.Metadata) string {
	return strings.Join([]string{
		metadataTag,
		metadataVersion,
		url.QueryEscape(m.FileName),
		url.QueryEscape(m.FileType),
		strconv.FormatUint(m.FileSize, 10),
		strconv.FormatUint(uint64(m.ChunksCount), 10),
		strconv.FormatUint(uint64(m.PacketCount), 10),
		"0:0:0:0:0:0", // reserved forward-compatibility fields
		m.FileID,
		m.FileChecksum,
		m.EncoderVersion,
	}, ":")
}

// EncodeData renders a data packet line (spec §6).
func EncodeData(p fountain.Packet) string {
	return strings.Join([]string{
		dataTag,
		p.FileID,
		strconv.FormatUint(uint64(p.ID), 10),
		strconv.FormatUint(uint64(p.Seed), 10),
		strconv.FormatUint(uint64(p.SeedBase), 10),
		strconv.FormatUint(uint64(p.ChunksCount), 10),
		strconv.FormatUint(uint64(p.Degree), 10),
		dataEncoding.EncodeToString(p.Data),
	}, ":")
}

// Kind identifies which packet type a parsed line carries.
type Kind int

const (
	// KindInvalid marks a line that failed to parse; it is not a packet.
	KindInvalid Kind = iota
	KindMetadata
	KindData
)

// Parse tokenizes a raw decoded string into a metadata or data packet
// (spec §4.6). Malformed strings return KindInvalid and must be dropped
// silently by the caller — Parse itself never errors loudly, matching the
// "parsing is infallible from the caller's viewpoint" contract (spec §7).
func Parse(raw string) (Kind, fountain.Metadata, fountain.Packet, error) {
	parts := strings.Split(raw, ":")
	if len(parts) == 0 {
		return KindInvalid, fountain.Metadata{}, fountain.Packet{}, fmt.Errorf("wire: empty line")
	}

	switch parts[0] {
	case metadataTag:
		m, err := parseMetadata(parts)
		if err != nil {
			return KindInvalid, fountain.Metadata{}, fountain.Packet{}, err
		}
		return KindMetadata, m, fountain.Packet{}, nil
	case dataTag:
		p, err := parseData(parts)
		if err != nil {
			return KindInvalid, fountain.Metadata{}, fountain.Packet{}, err
		}
		return KindData, fountain.Metadata{}, p, nil
	default:
		return KindInvalid, fountain.Metadata{}, fountain.Packet{}, fmt.Errorf("wire: unknown tag %q", parts[0])
	}
}

// parseMetadata expects at least leading+reserved+trailing tokens, all at
// fixed positions counted from the front of the line: the reserved block
// is always exactly 6 fields at indices 7-12, and file_id/file_checksum/
// encoder_version always immediately follow it at indices 13-15. Anything
// at index >= leading+reserved+trailing is a genuine forward-compatible
// trailing field and is ignored (spec §4.6, §8.2) — counting back from
// len(parts) instead would misattribute those extra fields to file_id/
// file_checksum/encoder_version, so positions are fixed from the front only.
func parseMetadata(parts []string) (fountain.Metadata, error) {
	const leading = 7   // tag, version, file_name, file_type, file_size, chunks_count, packet_count
	const reserved = 6
	const trailing = 3 // file_id, file_checksum, encoder_version

	if len(parts) < leading+reserved+trailing {
		return fountain.Metadata{}, fmt.Errorf("wire: metadata has %d fields, want at least %d", len(parts), leading+reserved+trailing)
	}

	fileName, err := url.QueryUnescape(parts[2])
	if err != nil {
		return fountain.Metadata{}, fmt.Errorf("wire: bad file_name escaping: %w", err)
	}
	fileType, err := url.QueryUnescape(parts[3])
	if err != nil {
		return fountain.Metadata{}, fmt.Errorf("wire: bad file_type escaping: %w", err)
	}
	fileSize, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		return fountain.Metadata{}, fmt.Errorf("wire: bad file_size: %w", err)
	}
	chunksCount, err := strconv.ParseUint(parts[5], 10, 32)
	if err != nil {
		return fountain.Metadata{}, fmt.Errorf("wire: bad chunks_count: %w", err)
	}
	packetCount, err := strconv.ParseUint(parts[6], 10, 32)
	if err != nil {
		return fountain.Metadata{}, fmt.Errorf("wire: bad packet_count: %w", err)
	}

	tailStart := leading + reserved
	fileID := parts[tailStart]
	fileChecksum := parts[tailStart+1]
	encoderVersion := parts[tailStart+2]

	if !checksum.Valid(fileChecksum) {
		return fountain.Metadata{}, fmt.Errorf("wire: malformed file_checksum %q", fileChecksum)
	}
	if fileID != checksum.FileID(fileChecksum) {
		return fountain.Metadata{}, fmt.Errorf("wire: file_id %q does not match checksum prefix", fileID)
	}

	return fountain.Metadata{
		FileName:       fileName,
		FileType:       fileType,
		FileSize:       fileSize,
		ChunksCount:    uint32(chunksCount),
		PacketCount:    uint32(packetCount),
		FileChecksum:   fileChecksum,
		FileID:         fileID,
		EncoderVersion: encoderVersion,
	}, nil
}

// parseData expects dataFields tokens; extras are reserved and ignored.
func parseData(parts []string) (fountain.Packet, error) {
	if len(parts) < dataFields {
		return fountain.Packet{}, fmt.Errorf("wire: data packet has %d fields, want at least %d", len(parts), dataFields)
	}

	fileID := parts[1]
	if len(fileID) != 8 {
		return fountain.Packet{}, fmt.Errorf("wire: file_id %q is not 8 hex chars", fileID)
	}

	id, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return fountain.Packet{}, fmt.Errorf("wire: bad id: %w", err)
	}
	seed, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return fountain.Packet{}, fmt.Errorf("wire: bad seed: %w", err)
	}
	seedBase, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		return fountain.Packet{}, fmt.Errorf("wire: bad seed_base: %w", err)
	}
	chunksCount, err := strconv.ParseUint(parts[5], 10, 32)
	if err != nil {
		return fountain.Packet{}, fmt.Errorf("wire: bad chunks_count: %w", err)
	}
	degree, err := strconv.ParseUint(parts[6], 10, 16)
	if err != nil {
		return fountain.Packet{}, fmt.Errorf("wire: bad degree: %w", err)
	}
	if degree == 0 {
		return fountain.Packet{}, fmt.Errorf("wire: degree must be >= 1")
	}
	if degree > chunksCount {
		return fountain.Packet{}, fmt.Errorf("wire: degree %d exceeds chunks_count %d", degree, chunksCount)
	}

	data, err := dataEncoding.DecodeString(parts[7])
	if err != nil {
		return fountain.Packet{}, fmt.Errorf("wire: bad data encoding: %w", err)
	}

	return fountain.Packet{
		FileID:      fileID,
		ID:          uint32(id),
		Seed:        uint32(seed),
		SeedBase:    uint32(seedBase),
		ChunksCount: uint32(chunksCount),
		Degree:      uint16(degree),
		Data:        data,
	}, nil
}
