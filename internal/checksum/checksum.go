// Package checksum wraps the SHA-256 checksum primitive the wire grammar
// commits to (spec §1: "checksum primitive... delegated"). It exists so
// the fountain decoder and the metadata builder share one hex-encoding
// convention instead of each calling crypto/sha256 independently.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Hex computes the SHA-256 of data and returns it as 64 lowercase hex
// characters.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileID returns the 8-hex-character file_id: the prefix of the file's
// checksum (spec §3).
func FileID(checksumHex string) string {
	if len(checksumHex) < 8 {
		return checksumHex
	}
	return checksumHex[:8]
}

// HexFile streams a file through SHA-256 without loading it fully into
// memory, for CLI tools that only need the checksum (e.g. verification
// outside the main encode/decode path).
func HexFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether s looks like a 64-character hex SHA-256 digest.
func Valid(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
