package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// WithFile adds file_id context to the logger.
func (l *Logger) WithFile(fileID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("file_id", fileID).Logger(),
	}
}

// WithRun adds run_id context to the logger (ties log lines to a history row).
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("run_id", runID).Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// EncodeStarted logs the beginning of an encode run.
func (l *Logger) EncodeStarted(fileID, fileName string, fileSize int64, chunksCount int) {
	l.logger.Info().
		Str("file_id", fileID).
		Str("file_name", fileName).
		Int64("file_size", fileSize).
		Int("chunks_count", chunksCount).
		Msg("encode started")
}

// FrameEmitted logs a single rendered frame (debug-level; high volume).
func (l *Logger) FrameEmitted(fileID string, packetID uint32, degree uint16) {
	l.logger.Debug().
		Str("file_id", fileID).
		Uint32("packet_id", packetID).
		Uint16("degree", degree).
		Msg("frame emitted")
}

// EncodeCompleted logs encode completion.
func (l *Logger) EncodeCompleted(fileID string, packetCount int, duration time.Duration) {
	l.logger.Info().
		Str("file_id", fileID).
		Int("packet_count", packetCount).
		Float64("duration_seconds", duration.Seconds()).
		Msg("encode completed")
}

// DecodeProgress logs decoder recovery progress for a file.
func (l *Logger) DecodeProgress(fileID string, recovered, k uint32, state string) {
	l.logger.Info().
		Str("file_id", fileID).
		Uint32("recovered", recovered).
		Uint32("chunks_count", k).
		Str("state", state).
		Msg("decode progress")
}

// FileDone logs a verified, completed decode.
func (l *Logger) FileDone(fileID string, fileSize int64, duration time.Duration) {
	l.logger.Info().
		Str("file_id", fileID).
		Int64("file_size", fileSize).
		Float64("duration_seconds", duration.Seconds()).
		Msg("file recovered and verified")
}

// FilePoisoned logs a decoder entering the poisoned state.
func (l *Logger) FilePoisoned(fileID string, reason string) {
	l.logger.Error().
		Str("file_id", fileID).
		Str("reason", reason).
		Msg("decoder poisoned")
}

// FilePartial logs an end-of-stream decoder that never reached verified completion.
func (l *Logger) FilePartial(fileID string, recovered, k uint32) {
	l.logger.Warn().
		Str("file_id", fileID).
		Uint32("recovered", recovered).
		Uint32("chunks_count", k).
		Msg("stream ended with file incomplete")
}

// PacketDropped logs a malformed or unparseable wire packet, discarded per
// the decode contract that a bad frame never terminates the stream.
func (l *Logger) PacketDropped(reason string, rawPrefix string) {
	l.logger.Warn().
		Str("reason", reason).
		Str("raw_prefix", rawPrefix).
		Msg("packet dropped")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
