// Package config holds the encoder- and decoder-side settings named in
// spec §6, loaded from an optional YAML file and overridable by CLI
// flags in the cmd/ entrypoints.
package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v2"
)

// Density names a QR density tier per spec §6; the encoder uses it only
// for the QR capacity warning.
type Density string

const (
	DensityLow    Density = "low"
	DensityMedium Density = "medium"
	DensityHigh   Density = "high"
	DensityUltra  Density = "ultra"
)

// ErrorCorrection is the QR error-correction level per spec §6.
type ErrorCorrection string

const (
	ErrorCorrectionL ErrorCorrection = "L"
	ErrorCorrectionM ErrorCorrection = "M"
	ErrorCorrectionQ ErrorCorrection = "Q"
	ErrorCorrectionH ErrorCorrection = "H"
)

// EncoderConfig holds encoder-side settings (spec §6, "Configuration
// (encoder side)").
type EncoderConfig struct {
	FPS             int             `yaml:"fps"`
	ChunkSize       int             `yaml:"chunk_size"`
	Redundancy      float64         `yaml:"redundancy"`
	Density         Density         `yaml:"density"`
	ErrorCorrection ErrorCorrection `yaml:"error_correction"`
	Systematic      bool            `yaml:"systematic"`

	CheckpointPath string `yaml:"checkpoint_path"`
	HistoryPath    string `yaml:"history_path"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// DefaultEncoderConfig returns the canonical encoder defaults from spec §6.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		FPS:             10,
		ChunkSize:       1024,
		Redundancy:      1.5,
		Density:         DensityLow,
		ErrorCorrection: ErrorCorrectionL,
		Systematic:      true,
	}
}

// Validate rejects configurations the codec core cannot honor.
func (c EncoderConfig) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("config: fps must be positive, got %d", c.FPS)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.Redundancy < 1.0 {
		return fmt.Errorf("config: redundancy must be >= 1.0, got %f", c.Redundancy)
	}
	switch c.Density {
	case DensityLow, DensityMedium, DensityHigh, DensityUltra:
	default:
		return fmt.Errorf("config: unknown density %q", c.Density)
	}
	switch c.ErrorCorrection {
	case ErrorCorrectionL, ErrorCorrectionM, ErrorCorrectionQ, ErrorCorrectionH:
	default:
		return fmt.Errorf("config: unknown error_correction %q", c.ErrorCorrection)
	}
	return nil
}

// DecoderConfig holds decoder-side settings (spec §6, "Configuration
// (decoder side)").
type DecoderConfig struct {
	FrameRate int  `yaml:"frame_rate"`
	FastScan  bool `yaml:"fast_scan"`

	CheckpointPath string `yaml:"checkpoint_path"`
	HistoryPath    string `yaml:"history_path"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// DefaultDecoderConfig returns the canonical decoder defaults from spec §6.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		FrameRate: 1,
		FastScan:  false,
	}
}

// Validate rejects configurations the driver cannot honor.
func (c DecoderConfig) Validate() error {
	if c.FrameRate <= 0 {
		return fmt.Errorf("config: frame_rate must be positive, got %d", c.FrameRate)
	}
	return nil
}

// LoadEncoderConfig reads an encoder configuration from a YAML file,
// falling back to defaults for any field the file omits.
func LoadEncoderConfig(path string) (EncoderConfig, error) {
	cfg := DefaultEncoderConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDecoderConfig reads a decoder configuration from a YAML file,
// falling back to defaults for any field the file omits.
func LoadDecoderConfig(path string) (DecoderConfig, error) {
	cfg := DefaultDecoderConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
