// Command qrfdec recovers files from a video of QR-coded fountain
// packets, writing each recovered file to an output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel"
	"golang.org/x/term"

	"github.com/qrfountain/qrf/internal/checkpoint"
	"github.com/qrfountain/qrf/internal/config"
	"github.com/qrfountain/qrf/internal/dispatch"
	"github.com/qrfountain/qrf/internal/fountain"
	"github.com/qrfountain/qrf/internal/history"
	"github.com/qrfountain/qrf/internal/observability"
	"github.com/qrfountain/qrf/internal/qr"
	"github.com/qrfountain/qrf/internal/videoio"
)

var version = "qrf-1.0"

type fileSink struct {
	outDir  string
	hist    *history.Store
	log     *observability.Logger
	cp      *checkpoint.Store
	runID   string
	started time.Time
}

func (s *fileSink) FileRecovered(fileID string, meta fountain.Metadata, data []byte) error {
	name := meta.FileName
	if name == "" {
		name = fileID
	}
	outPath := filepath.Join(s.outDir, name)
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("qrfdec: write %s: %w", outPath, err) // spec §7 kind 6: I/O failure surfaces upward
	}
	if s.cp != nil {
		if err := s.cp.Delete(fileID); err != nil && s.log != nil {
			s.log.Error(err, "checkpoint delete failed for completed file")
		}
	}
	if s.hist != nil {
		s.hist.Record(history.Run{
			RunID:       s.runID,
			FileID:      fileID,
			FileName:    name,
			Kind:        history.KindDecode,
			Outcome:     history.OutcomeDone,
			FileSize:    int64(len(data)),
			ChunksCount: int64(meta.ChunksCount),
			StartedAt:   s.started,
			FinishedAt:  time.Now(),
		})
	}
	return nil
}

// snapshotFromDecoder converts a decoder's exported resume state into the
// form the checkpoint store persists.
func snapshotFromDecoder(dec *fountain.Decoder) checkpoint.Snapshot {
	st := dec.ExportState()
	recovered, _ := dec.RecoveryProgress()
	return checkpoint.Snapshot{
		FileID:           st.FileID,
		ChunksCount:      st.ChunksCount,
		ChunkSize:        st.ChunkSize,
		Recovered:        recovered,
		SeenPacketIDs:    st.SeenIDs,
		RecoveredIndices: st.RecoveredIndices,
		RecoveredChunks:  st.RecoveredChunks,
		HasMetadata:      st.HasMetadata,
		FileSize:         st.FileSize,
		ChecksumHex:      st.ChecksumHex,
	}
}

// decoderFromSnapshot rebuilds a decoder from a persisted checkpoint
// snapshot, the inverse of snapshotFromDecoder.
func decoderFromSnapshot(snap checkpoint.Snapshot) *fountain.Decoder {
	return fountain.RestoreDecoder(fountain.State{
		FileID:           snap.FileID,
		ChunksCount:      snap.ChunksCount,
		ChunkSize:        snap.ChunkSize,
		SeenIDs:          snap.SeenPacketIDs,
		RecoveredIndices: snap.RecoveredIndices,
		RecoveredChunks:  snap.RecoveredChunks,
		HasMetadata:      snap.HasMetadata,
		FileSize:         snap.FileSize,
		ChecksumHex:      snap.ChecksumHex,
	})
}

// checkpointSweep persists every in-flight (non-terminal) decoder's
// resume state. Called periodically from the frame loop rather than on
// every frame, since a Bolt write transaction per frame would dominate
// decode time on a long video.
func checkpointSweep(driver *dispatch.Driver, cp *checkpoint.Store, log *observability.Logger) {
	for _, e := range driver.Entries() {
		if e.State == dispatch.StateDone || e.State == dispatch.StatePoisoned {
			continue
		}
		if err := cp.Save(snapshotFromDecoder(e.Dec)); err != nil && log != nil {
			log.Error(err, "checkpoint save failed")
		}
	}
}

// checkpointInterval is how many frames pass between checkpoint sweeps.
const checkpointInterval = 100

// serveObservability starts a background HTTP server exposing Prometheus
// metrics and a health-check endpoint, for callers that want to scrape this
// CLI while a long decode run is in flight. Binding errors are logged, not
// fatal: observability is optional and never blocks the decode itself.
func serveObservability(addr string, metrics *observability.Metrics, health *observability.HealthChecker, log *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", health.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error(err, "observability server stopped")
		}
	}()
}

func main() {
	configPath := flag.String("config", "", "path to a YAML decoder config file")
	frameRate := flag.Int("frame-rate", 0, "frames per second sampled from the video (overrides config)")
	fastScan := flag.Bool("fast-scan", false, "set fast_scan in the decoder config (the frame loop does not seek ahead)")
	outDir := flag.String("out", ".", "output directory for recovered files")
	checkpointPath := flag.String("checkpoint", "", "path to a BoltDB checkpoint store")
	historyPath := flag.String("history", "", "path to a SQLite run-history database")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics and health checks on this address (overrides config)")
	flag.Parse()

	if shutdown, err := observability.InitTracing(context.Background(), "qrfdec"); err == nil {
		defer shutdown(context.Background())
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qrfdec [options] <video_path>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	videoPath := flag.Arg(0)

	cfg, err := config.LoadDecoderConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrfdec: %v\n", err)
		os.Exit(1)
	}
	if *frameRate > 0 {
		cfg.FrameRate = *frameRate
	}
	if *fastScan {
		cfg.FastScan = true
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "qrfdec: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "qrfdec: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger("qrfdec", version, os.Stderr)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker(version)

	var cp *checkpoint.Store
	if *checkpointPath != "" {
		cp, err = checkpoint.Open(*checkpointPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qrfdec: %v\n", err)
			os.Exit(1)
		}
		defer cp.Close()
		health.RegisterCheck("checkpoint", observability.CheckpointStoreCheck(cp.Ping))
	}

	var hist *history.Store
	if *historyPath != "" {
		hist, err = history.Open(*historyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qrfdec: %v\n", err)
			os.Exit(1)
		}
		defer hist.Close()
		health.RegisterCheck("history", observability.HistoryStoreCheck(hist.Ping))
	}

	if cfg.MetricsAddr != "" {
		serveObservability(cfg.MetricsAddr, metrics, health, log)
	}

	driver := dispatch.NewDriver(nil, log, metrics)
	sink := &fileSink{outDir: *outDir, hist: hist, log: log, cp: cp, runID: driver.RunID(), started: time.Now()}
	driver.SetSink(sink)

	if cp != nil {
		snaps, err := cp.All()
		if err != nil {
			log.Error(err, "checkpoint resume pass failed")
		}
		for _, snap := range snaps {
			dec := decoderFromSnapshot(snap)
			meta := fountain.Metadata{
				FileID:       snap.FileID,
				FileSize:     snap.FileSize,
				ChunksCount:  snap.ChunksCount,
				FileChecksum: snap.ChecksumHex,
			}
			if err := driver.Resume(dec, meta); err != nil {
				log.Error(err, "checkpoint resume failed for a file")
				continue
			}
			log.DecodeProgress(snap.FileID, snap.Recovered, snap.ChunksCount, "resumed_from_checkpoint")
		}
	}

	source, err := videoio.OpenFrameSource(videoPath, videoio.DemuxOptions{FrameRate: cfg.FrameRate})
	if err != nil {
		fmt.Fprintf(os.Stderr, "qrfdec: %v\n", err)
		os.Exit(1)
	}

	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.NewOptions(-1, progressbar.OptionSetDescription("scanning"))
	}

	_, decodeSpan := otel.Tracer("qrfdec").Start(context.Background(), "DecodeFile")
	defer decodeSpan.End()

	var sinkFailures int
	frameCount := 0
	for {
		frame, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Error(err, "frame decode failed")
			break
		}
		frameCount++
		if bar != nil {
			bar.Add(1)
		}

		text, scanErr := qr.Decode(frame)
		if scanErr != nil {
			driver.HandleFrame("")
			continue
		}
		if err := driver.HandleFrame(text); err != nil {
			// A file finished decoding and verifying but the sink (disk
			// write) failed; the decoder's own state stays Done (spec §7
			// error kind 6), so this never shows up in EndOfStream — track
			// it separately so the CLI's exit code still reflects it.
			color.Red("qrfdec: %v", err)
			sinkFailures++
		}

		if cp != nil && frameCount%checkpointInterval == 0 {
			checkpointSweep(driver, cp, log)
		}
	}

	if err := source.Close(); err != nil {
		log.Error(err, "frame source close failed")
	}
	if cp != nil {
		checkpointSweep(driver, cp, log)
	}

	reports := driver.EndOfStream()
	exitCode := 0
	if sinkFailures > 0 {
		exitCode = 2
	}
	for _, r := range reports {
		switch r.State {
		case dispatch.StatePoisoned:
			color.Red("file %s poisoned: %s", r.FileID, r.PoisonedReason)
			exitCode = 2
		default:
			if r.Unverified {
				color.Yellow("file %s recovered but unverified (%d/%d chunks, no metadata)", r.FileID, r.Recovered, r.ChunksCount)
			} else {
				color.Yellow("file %s partial: %d/%d chunks recovered", r.FileID, r.Recovered, r.ChunksCount)
			}
			exitCode = 2
		}
		if hist != nil {
			hist.Record(history.Run{
				RunID:       driver.RunID(),
				FileID:      r.FileID,
				FileName:    r.FileID,
				Kind:        history.KindDecode,
				Outcome:     reportOutcome(r),
				FileSize:    int64(len(r.Data)),
				ChunksCount: int64(r.ChunksCount),
				StartedAt:   sink.started,
				FinishedAt:  time.Now(),
			})
		}
	}

	if exitCode == 0 {
		color.Green("all discovered files recovered and verified")
	}
	os.Exit(exitCode)
}

// reportOutcome maps an end-of-stream report (a file that never reached
// dispatch.StateDone) to a history outcome.
func reportOutcome(r dispatch.Report) history.Outcome {
	if r.State == dispatch.StatePoisoned {
		return history.OutcomePoisoned
	}
	if r.Unverified {
		return history.OutcomeInterrupted
	}
	return history.OutcomePartial
}
