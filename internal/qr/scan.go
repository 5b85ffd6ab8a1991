package qr

import (
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoSymbol means the frame contains no decodable QR symbol; callers
// treat this as "no packet this frame", never as an error (spec §4.7:
// the driver consumes (frame_timestamp, decoded_string_or_none) events).
var ErrNoSymbol = errors.New("qr: no symbol found in frame")

var reader = qrcode.NewQRCodeReader()

// Decode scans a single video frame and returns the QR symbol's encoded
// text, or ErrNoSymbol if none was found.
func Decode(frame image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", ErrNoSymbol
	}
	result, err := reader.Decode(bmp, nil)
	if err != nil {
		return "", ErrNoSymbol
	}
	return result.GetText(), nil
}
