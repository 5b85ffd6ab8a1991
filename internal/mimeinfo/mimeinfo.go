// Package mimeinfo auto-detects a file's MIME type from its content, so
// the encoder can populate the metadata packet's file_type field without
// relying on a possibly-wrong OS file-extension mapping.
package mimeinfo

import (
	"github.com/gabriel-vasile/mimetype"
)

// Detect sniffs data's content and returns its MIME type string (e.g.
// "image/png", "application/pdf"). Falls back to
// "application/octet-stream" for content mimetype cannot classify.
func Detect(data []byte) string {
	mtype := mimetype.Detect(data)
	return mtype.String()
}

// DetectFile sniffs the MIME type of the file at path, reading only the
// header bytes mimetype needs rather than the whole file.
func DetectFile(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}

// Extension returns the conventional file extension (with leading dot)
// mimetype associates with a MIME type string, or "" if unknown.
func Extension(data []byte) string {
	return mimetype.Detect(data).Extension()
}
