// Package qr wraps the QR symbol renderer and scanner. These are the
// external collaborators the core codec never touches directly (spec
// §5): the encoder hands render.Encode a wire-grammar string and gets an
// image back; the decoder's frame source hands scan.Decode a raw video
// frame and gets a string back (or none, if no symbol is legible).
package qr

import (
	"fmt"
	"image"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// ErrorCorrection mirrors the encoder-side error_correction setting
// (spec §6): {L,M,Q,H}.
type ErrorCorrection string

const (
	ErrorCorrectionL ErrorCorrection = "L"
	ErrorCorrectionM ErrorCorrection = "M"
	ErrorCorrectionQ ErrorCorrection = "Q"
	ErrorCorrectionH ErrorCorrection = "H"
)

func (e ErrorCorrection) level() qr.ErrorCorrectionLevel {
	switch e {
	case ErrorCorrectionM:
		return qr.M
	case ErrorCorrectionQ:
		return qr.Q
	case ErrorCorrectionH:
		return qr.H
	default:
		return qr.L
	}
}

// Density names spec §6's {low,medium,high,ultra} tiers (symbol versions
// 21/25/29/33). Only CapacityWarning uses it; Encode does not take a
// density, and the symbol version is left to the renderer.
type Density string

const (
	DensityLow    Density = "low"
	DensityMedium Density = "medium"
	DensityHigh   Density = "high"
	DensityUltra  Density = "ultra"
)

// capacityHint returns an approximate byte budget for alphanumeric content
// at each density tier, used only to emit the capacity warning in spec §6
// ("implementations should warn when chunk_size + overhead exceeds 80% of
// QR capacity"); the renderer itself fails hard if the string truly
// doesn't fit.
func (d Density) capacityHint() int {
	switch d {
	case DensityMedium:
		return 370
	case DensityHigh:
		return 520
	case DensityUltra:
		return 690
	default:
		return 240
	}
}

// CapacityWarning reports whether payloadLen risks exceeding 80% of the
// configured density's estimated capacity.
func CapacityWarning(payloadLen int, density Density) bool {
	return float64(payloadLen) > 0.8*float64(density.capacityHint())
}

// Encode renders payload (a wire-grammar packet line) as a QR symbol at
// the requested error-correction level. The renderer, not the core,
// fails if payload exceeds the symbol's capacity (spec §6).
func Encode(payload string, ec ErrorCorrection) (barcode.Barcode, error) {
	bc, err := qr.Encode(payload, ec.level(), qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return bc, nil
}

// EncodeScaled renders payload and scales the result to size x size
// pixels, suitable for compositing into a video frame at a fixed
// resolution.
func EncodeScaled(payload string, ec ErrorCorrection, size int) (image.Image, error) {
	bc, err := Encode(payload, ec)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(bc, size, size)
	if err != nil {
		return nil, fmt.Errorf("qr: scale: %w", err)
	}
	return scaled, nil
}
