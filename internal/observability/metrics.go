package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the encoder and decoder.
type Metrics struct {
	// Encode metrics
	FramesEmittedTotal prometheus.Counter
	EncodeDuration      prometheus.Histogram
	PacketsGenerated    *prometheus.CounterVec // label: kind (systematic|coded)

	// Decode metrics
	FilesRecoveredTotal  prometheus.Counter
	FilesPoisonedTotal   *prometheus.CounterVec // label: reason
	FilesPartialTotal    prometheus.Counter
	DecodeDuration       prometheus.Histogram
	ChunksRecoveredTotal prometheus.Counter

	// Wire/dispatch metrics
	PacketsMalformedTotal *prometheus.CounterVec // label: reason
	PacketsDuplicateTotal prometheus.Counter
	FramesScannedTotal    prometheus.Counter
	FramesUnreadableTotal prometheus.Counter

	// Supporting storage metrics
	CheckpointWriteDuration prometheus.Histogram
	HistoryWriteDuration    prometheus.Histogram
	ActiveDecodersGauge     prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesEmittedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qrf_frames_emitted_total",
				Help: "Total video frames emitted by the encoder",
			},
		),

		EncodeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrf_encode_duration_seconds",
				Help:    "Wall-clock time to encode one file",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		PacketsGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrf_packets_generated_total",
				Help: "Coded packets generated by the encoder",
			},
			[]string{"kind"},
		),

		FilesRecoveredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qrf_files_recovered_total",
				Help: "Files fully recovered and checksum-verified",
			},
		),

		FilesPoisonedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrf_files_poisoned_total",
				Help: "Decoders that entered the poisoned terminal state",
			},
			[]string{"reason"},
		),

		FilesPartialTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qrf_files_partial_total",
				Help: "Decoders that ended the stream without verified completion",
			},
		),

		DecodeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrf_decode_duration_seconds",
				Help:    "Wall-clock time from first packet to verified completion",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),

		ChunksRecoveredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qrf_chunks_recovered_total",
				Help: "Source chunks recovered across all decoders",
			},
		),

		PacketsMalformedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrf_packets_malformed_total",
				Help: "Packets dropped for failing wire-grammar parsing",
			},
			[]string{"reason"},
		),

		PacketsDuplicateTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qrf_packets_duplicate_total",
				Help: "Packets dropped as duplicates of an already-seen packet id",
			},
		),

		FramesScannedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qrf_frames_scanned_total",
				Help: "Video frames whose QR symbol was read and handed to the packet parser",
			},
		),

		FramesUnreadableTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qrf_frames_unreadable_total",
				Help: "Video frames with no decodable QR symbol",
			},
		),

		CheckpointWriteDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrf_checkpoint_write_duration_seconds",
				Help:    "Decoder checkpoint persistence latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),

		HistoryWriteDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrf_history_write_duration_seconds",
				Help:    "Run-history row insert latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),

		ActiveDecodersGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrf_active_decoders",
				Help: "Decoders currently registered (not done, not poisoned)",
			},
		),
	}
}

// RecordPacketGenerated tags a packet by kind ("systematic" or "coded").
func (m *Metrics) RecordPacketGenerated(systematic bool) {
	kind := "coded"
	if systematic {
		kind = "systematic"
	}
	m.PacketsGenerated.WithLabelValues(kind).Inc()
}

// RecordFilePoisoned tags a poisoning by its triggering reason.
func (m *Metrics) RecordFilePoisoned(reason string) {
	m.FilesPoisonedTotal.WithLabelValues(reason).Inc()
}

// RecordPacketMalformed tags a dropped packet by its parse-failure reason.
func (m *Metrics) RecordPacketMalformed(reason string) {
	m.PacketsMalformedTotal.WithLabelValues(reason).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
