package dispatch

import (
	"errors"

	"github.com/google/uuid"

	"github.com/qrfountain/qrf/internal/fountain"
	"github.com/qrfountain/qrf/internal/observability"
	"github.com/qrfountain/qrf/internal/wire"
)

// Sink receives a file's bytes the moment its decoder reaches done.
type Sink interface {
	FileRecovered(fileID string, meta fountain.Metadata, data []byte) error
}

// Report describes one registered file at end-of-stream (spec §4.7).
type Report struct {
	FileID         string
	State          FileState
	Recovered      uint32
	ChunksCount    uint32
	Unverified     bool // recovered == chunks_count but no checksum was ever attached
	Data           []byte
	PoisonedReason string
}

// Driver consumes decoded QR strings and routes them to per-file decoders
// (spec §4.7). It holds no goroutines of its own: callers feed it frames
// one at a time from whatever polls the frame source.
type Driver struct {
	registry *Registry
	sink     Sink
	log      *observability.Logger
	metrics  *observability.Metrics
	runID    string

	metaCache map[string]fountain.Metadata // retained for reports and re-attach
}

// NewDriver creates a dispatch driver writing recovered files to sink.
// log and metrics may be nil, in which case dispatch runs unobserved. Every
// driver gets its own run_id, correlating its log lines and history rows
// with one CLI invocation without becoming part of the wire format (file
// routing stays on file_id per spec.md §3).
func NewDriver(sink Sink, log *observability.Logger, metrics *observability.Metrics) *Driver {
	runID := uuid.NewString()
	if log != nil {
		log = log.WithRun(runID)
	}
	return &Driver{
		registry:  NewRegistry(),
		sink:      sink,
		log:       log,
		metrics:   metrics,
		runID:     runID,
		metaCache: make(map[string]fountain.Metadata),
	}
}

// RunID returns this driver's run correlation id, for callers that also
// record history rows and want to tag them with the same value.
func (d *Driver) RunID() string { return d.runID }

// SetSink attaches the sink a caller wants FileRecovered callbacks sent to.
// Separated from NewDriver so a caller can read RunID() first and fold it
// into the sink it constructs (e.g. for history rows) before wiring it in.
func (d *Driver) SetSink(sink Sink) { d.sink = sink }

// Entries returns every registered file's entry, letting a caller sweep
// in-flight decoders to persist checkpoints without waiting for
// EndOfStream, which is reserved for the final reporting pass.
func (d *Driver) Entries() []*Entry { return d.registry.All() }

// Resume re-registers a decoder rebuilt from a checkpoint (spec's "Decoder
// checkpointing" supplemented feature), so packets already accounted for
// before a crash are not peeled again. meta, if non-zero, re-seeds the
// report/sink metadata cache the same way a metadata packet would. If the
// restored decoder is already done (every chunk was recovered and
// verified before the crash), it is handed to the sink immediately rather
// than waiting for a duplicate data packet to trigger finish().
func (d *Driver) Resume(dec *fountain.Decoder, meta fountain.Metadata) error {
	fileID := dec.FileID()
	state := StateFresh
	switch {
	case dec.IsDone():
		state = StateDone
	case dec.HasMetadata():
		state = StateMetadataKnown
	default:
		if _, k := dec.RecoveryProgress(); k > 0 {
			state = StateDataFlowing
		}
	}

	entry := &Entry{FileID: fileID, State: state, Dec: dec}
	if err := d.registry.Put(entry); err != nil {
		return err
	}
	if meta.FileID != "" {
		d.metaCache[fileID] = meta
	}
	if d.metrics != nil && state != StateDone {
		d.metrics.ActiveDecodersGauge.Inc()
	}
	if state == StateDone {
		return d.finish(entry)
	}
	return nil
}

// HandleFrame processes one decoded QR string (spec §4.7, steps 1-4). A
// nil/empty raw value (no symbol read this frame) is a no-op.
func (d *Driver) HandleFrame(raw string) error {
	if raw == "" {
		if d.metrics != nil {
			d.metrics.FramesUnreadableTotal.Inc()
		}
		return nil
	}
	if d.metrics != nil {
		d.metrics.FramesScannedTotal.Inc()
	}

	kind, meta, pkt, err := wire.Parse(raw)
	if err != nil || kind == wire.KindInvalid {
		if d.metrics != nil {
			d.metrics.RecordPacketMalformed(malformedReason(err))
		}
		if d.log != nil {
			d.log.PacketDropped(malformedReason(err), truncate(raw, 24))
		}
		return nil // malformed strings are dropped silently (spec §7, kind 1)
	}

	switch kind {
	case wire.KindMetadata:
		return d.handleMetadata(meta)
	case wire.KindData:
		return d.handleData(pkt)
	}
	return nil
}

func (d *Driver) handleMetadata(meta fountain.Metadata) error {
	entry, exists := d.registry.Get(meta.FileID)
	if !exists {
		dec := fountain.New(meta)
		entry = &Entry{FileID: meta.FileID, State: StateFresh, Dec: dec}
		if err := d.registry.Put(entry); err != nil {
			return err
		}
		d.metaCache[meta.FileID] = meta
		d.registry.Transition(meta.FileID, StateMetadataKnown)
		if d.metrics != nil {
			d.metrics.ActiveDecodersGauge.Inc()
		}
		return nil
	}

	if entry.State == StatePoisoned {
		return nil // poisoned is terminal; later metadata changes nothing
	}
	if !entry.Dec.HasMetadata() {
		// provisional decoder merge (spec §4.7 step 3, §9)
		if err := entry.Dec.AttachMetadata(meta); err != nil {
			d.registry.Transition(meta.FileID, StatePoisoned)
			if d.metrics != nil {
				reason := "chunks_count_mismatch"
				if errors.Is(err, fountain.ErrChecksumMismatch) {
					reason = "checksum_mismatch"
				}
				d.metrics.RecordFilePoisoned(reason)
				d.metrics.ActiveDecodersGauge.Dec()
			}
			if d.log != nil {
				d.log.FilePoisoned(meta.FileID, err.Error())
			}
			return nil
		}
		d.metaCache[meta.FileID] = meta
		d.registry.Transition(meta.FileID, StateMetadataKnown)
		if entry.Dec.IsDone() {
			return d.finish(entry)
		}
	}
	// redundant metadata for an already-initialized decoder: ignored
	return nil
}

func (d *Driver) handleData(pkt fountain.Packet) error {
	entry, exists := d.registry.Get(pkt.FileID)
	if !exists {
		dec := fountain.NewProvisional(pkt.FileID, pkt.ChunksCount)
		entry = &Entry{FileID: pkt.FileID, State: StateFresh, Dec: dec}
		if err := d.registry.Put(entry); err != nil {
			return err
		}
		if d.metrics != nil {
			d.metrics.ActiveDecodersGauge.Inc()
		}
	}

	if entry.State == StateDone || entry.State == StatePoisoned {
		return nil // absorb stragglers; done/poisoned decoders ignore further packets
	}

	recoveredBefore, _ := entry.Dec.RecoveryProgress()
	added, err := entry.Dec.AddPacket(pkt)
	if err != nil {
		d.registry.Transition(pkt.FileID, StatePoisoned)
		if d.metrics != nil {
			d.metrics.RecordFilePoisoned("checksum_mismatch")
			d.metrics.ActiveDecodersGauge.Dec()
		}
		if d.log != nil {
			d.log.FilePoisoned(pkt.FileID, err.Error())
		}
		return nil
	}
	if !added && d.metrics != nil {
		d.metrics.PacketsDuplicateTotal.Inc()
	}

	d.registry.Transition(pkt.FileID, StateDataFlowing)
	if d.metrics != nil {
		recoveredAfter, _ := entry.Dec.RecoveryProgress()
		d.metrics.ChunksRecoveredTotal.Add(float64(recoveredAfter - recoveredBefore))
	}

	if entry.Dec.IsDone() {
		return d.finish(entry)
	}
	return nil
}

// finish transitions entry to done and hands its bytes to the sink. A sink
// I/O failure is returned to the caller rather than swallowed (spec §7
// error kind 6: "I/O failure in sink — surface upward; does not roll back
// the decoder state") — the decoder itself has already recovered and
// verified the file, so its state stays Done regardless of what the caller
// does with the returned error.
func (d *Driver) finish(entry *Entry) error {
	d.registry.Transition(entry.FileID, StateDone)
	data, _ := entry.Dec.FinalizeFile()
	meta := d.metaCache[entry.FileID]

	if d.metrics != nil {
		d.metrics.FilesRecoveredTotal.Inc()
		d.metrics.ActiveDecodersGauge.Dec()
	}
	if d.log != nil {
		d.log.FileDone(entry.FileID, int64(len(data)), 0)
	}
	if d.sink != nil {
		if err := d.sink.FileRecovered(entry.FileID, meta, data); err != nil {
			if d.log != nil {
				d.log.Error(err, "sink failed to receive recovered file")
			}
			return err
		}
	}
	return nil
}

// EndOfStream reports every file that never reached done, per spec §4.7's
// end-of-stream partial-reporting rule.
func (d *Driver) EndOfStream() []Report {
	var reports []Report
	for _, e := range d.registry.All() {
		if e.State == StateDone {
			continue
		}

		recovered, k := e.Dec.RecoveryProgress()
		poisoned, perr := e.Dec.IsPoisoned()
		rep := Report{
			FileID:      e.FileID,
			State:       e.State,
			Recovered:   recovered,
			ChunksCount: k,
		}
		if poisoned {
			rep.State = StatePoisoned
			if perr != nil {
				rep.PoisonedReason = perr.Error()
			}
		} else if recovered == k {
			data, _, _, complete := e.Dec.PartialResult()
			if complete {
				rep.Unverified = true
				rep.Data = data
			}
		}
		reports = append(reports, rep)
		if d.metrics != nil && !poisoned {
			d.metrics.FilesPartialTotal.Inc()
		}
	}
	return reports
}

func malformedReason(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
