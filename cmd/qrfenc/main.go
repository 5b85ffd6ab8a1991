// Command qrfenc turns an arbitrary file into a sequence of QR-coded
// video frames, transporting it across a one-way optical channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel"
	"golang.org/x/term"

	"github.com/google/uuid"

	"github.com/qrfountain/qrf/internal/checksum"
	"github.com/qrfountain/qrf/internal/chunker"
	"github.com/qrfountain/qrf/internal/config"
	"github.com/qrfountain/qrf/internal/fountain"
	"github.com/qrfountain/qrf/internal/history"
	"github.com/qrfountain/qrf/internal/mimeinfo"
	"github.com/qrfountain/qrf/internal/observability"
	"github.com/qrfountain/qrf/internal/qr"
	"github.com/qrfountain/qrf/internal/videoio"
	"github.com/qrfountain/qrf/internal/wire"
)

var version = "qrf-1.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML encoder config file")
	chunkSize := flag.Int("chunk-size", 0, "bytes per source chunk (overrides config)")
	redundancy := flag.Float64("redundancy", 0, "target redundancy rho (overrides config)")
	fps := flag.Int("fps", 0, "video frame rate (overrides config)")
	output := flag.String("output", "", "output video path (default: <input>.mp4)")
	historyPath := flag.String("history", "", "path to a SQLite run-history database")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	flag.Parse()

	if shutdown, err := observability.InitTracing(context.Background(), "qrfenc"); err == nil {
		defer shutdown(context.Background())
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qrfenc [options] <file_path>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	cfg, err := config.LoadEncoderConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
		os.Exit(1)
	}
	if *chunkSize > 0 {
		cfg.ChunkSize = *chunkSize
	}
	if *redundancy > 0 {
		cfg.Redundancy = *redundancy
	}
	if *fps > 0 {
		cfg.FPS = *fps
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		*output = inputPath + ".mp4"
	}

	runID := uuid.NewString()
	log := observability.NewLogger("qrfenc", version, os.Stderr).WithRun(runID)
	metrics := observability.NewMetrics()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error(err, "metrics server stopped")
			}
		}()
	}

	ctx, span := otel.Tracer("qrfenc").Start(context.Background(), "EncodeFile")
	defer span.End()

	start := time.Now()
	data, fileSize, err := chunker.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
		os.Exit(1)
	}

	fileType := mimeinfo.Detect(data)
	sum := checksum.Hex(data)
	fileID := checksum.FileID(sum)

	chunks := chunker.Split(data, chunker.ChunkOptions{ChunkSize: cfg.ChunkSize})
	encOpts := fountain.DefaultEncoderOptions()
	encOpts.Redundancy = cfg.Redundancy
	encOpts.Systematic = cfg.Systematic

	enc, err := fountain.NewEncoder(fileID, chunks, encOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
		os.Exit(1)
	}

	meta := fountain.Metadata{
		FileName:       baseName(inputPath),
		FileType:       fileType,
		FileSize:       fileSize,
		ChunksCount:    enc.ChunksCount(),
		PacketCount:    enc.TargetPacketCount(),
		FileChecksum:   sum,
		FileID:         fileID,
		EncoderVersion: version,
	}

	ec := qr.ErrorCorrection(cfg.ErrorCorrection)
	density := qr.Density(cfg.Density)

	metaLine := wire.EncodeMetadata(meta)
	if qr.CapacityWarning(len(metaLine), density) {
		color.Yellow("warning: metadata packet is close to QR capacity at density %q", density)
	}

	composer, err := videoio.NewComposer(videoio.ComposeOptions{FPS: cfg.FPS, OutputPath: *output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
		os.Exit(1)
	}

	totalFrames := int(meta.PacketCount) + 10 // 10 leading metadata repeats, spec §6
	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.Default(int64(totalFrames), "encoding")
	}

	emitFrame := func(payload string) error {
		img, err := qr.EncodeScaled(payload, ec, 512)
		if err != nil {
			return err
		}
		if err := composer.WriteFrame(img); err != nil {
			return err
		}
		metrics.FramesEmittedTotal.Inc()
		if bar != nil {
			bar.Add(1)
		}
		return nil
	}

	// Metadata packet repeated at least 10 times at the start (spec §6).
	for i := 0; i < 10; i++ {
		if err := emitFrame(metaLine); err != nil {
			fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
			os.Exit(1)
		}
	}

	packetCount := 0
	_, batchSpan := otel.Tracer("qrfenc").Start(ctx, "EmitPacketBatch")
	for i := uint32(0); i < meta.PacketCount; i++ {
		pkt := enc.Next()
		metrics.RecordPacketGenerated(pkt.Degree == 1 && pkt.ID < enc.ChunksCount())
		if err := emitFrame(wire.EncodeData(pkt)); err != nil {
			fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
			os.Exit(1)
		}
		packetCount++
		// Re-inject metadata periodically so late joiners can catch it (spec §6).
		if packetCount%200 == 0 {
			if err := emitFrame(metaLine); err != nil {
				fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
				os.Exit(1)
			}
		}
		log.FrameEmitted(fileID, pkt.ID, pkt.Degree)
	}
	batchSpan.End()

	if err := composer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "qrfenc: %v\n", err)
		os.Exit(1)
	}

	duration := time.Since(start)
	metrics.EncodeDuration.Observe(duration.Seconds())
	log.EncodeCompleted(fileID, packetCount, duration)
	color.Green("encoded %s -> %s (%d packets, %s)", inputPath, *output, packetCount, duration.Round(time.Millisecond))

	if *historyPath != "" {
		hist, err := history.Open(*historyPath)
		if err == nil {
			defer hist.Close()
			hist.Record(history.Run{
				RunID:       runID,
				FileID:      fileID,
				FileName:    meta.FileName,
				Kind:        history.KindEncode,
				Outcome:     history.OutcomeDone,
				FileSize:    int64(fileSize),
				ChunksCount: int64(meta.ChunksCount),
				StartedAt:   start,
				FinishedAt:  time.Now(),
			})
		}
	}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
