// Command qrfchunk inspects a file the way the encoder would: it reports
// the chunk layout and checksum without actually rendering any QR frames,
// useful for sizing a transfer before committing to an encode run.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/qrfountain/qrf/internal/checksum"
	"github.com/qrfountain/qrf/internal/chunker"
	"github.com/qrfountain/qrf/internal/fountain"
	"github.com/qrfountain/qrf/internal/mimeinfo"
)

type layout struct {
	FileName     string  `json:"file_name"`
	FileType     string  `json:"file_type"`
	FileSize     uint64  `json:"file_size"`
	ChunkSize    int     `json:"chunk_size"`
	ChunksCount  uint32  `json:"chunks_count"`
	Redundancy   float64 `json:"redundancy"`
	PacketCount  uint32  `json:"packet_count"`
	FileChecksum string  `json:"file_checksum"`
	FileID       string  `json:"file_id"`
}

func main() {
	chunkSize := flag.Int("chunk-size", 1024, "bytes per source chunk")
	redundancy := flag.Float64("redundancy", 1.5, "target redundancy rho")
	output := flag.String("output", "", "write layout JSON to file (default: stdout)")
	pretty := flag.Bool("pretty", true, "pretty-print JSON output")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qrfchunk [options] <file_path>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	filePath := flag.Arg(0)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: file not found: %s\n", filePath)
		os.Exit(2)
	}

	data, fileSize, err := chunker.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(3)
	}

	sum := checksum.Hex(data)
	chunksCount := chunker.Count(fileSize, *chunkSize)

	opts := fountain.DefaultEncoderOptions()
	opts.Redundancy = *redundancy
	target := uint32(math.Ceil(float64(chunksCount) * *redundancy))
	if target < chunksCount {
		target = chunksCount
	}

	l := layout{
		FileName:     baseName(filePath),
		FileType:     mimeinfo.Detect(data),
		FileSize:     fileSize,
		ChunkSize:    *chunkSize,
		ChunksCount:  chunksCount,
		Redundancy:   *redundancy,
		PacketCount:  target,
		FileChecksum: sum,
		FileID:       checksum.FileID(sum),
	}

	var jsonData []byte
	if *pretty {
		jsonData, err = json.MarshalIndent(l, "", "  ")
	} else {
		jsonData, err = json.Marshal(l)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error serializing layout: %v\n", err)
		os.Exit(4)
	}

	if *output != "" {
		if err := os.WriteFile(*output, jsonData, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
			os.Exit(5)
		}
		fmt.Fprintf(os.Stderr, "Layout written to: %s\n", *output)
		return
	}
	fmt.Println(string(jsonData))
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
