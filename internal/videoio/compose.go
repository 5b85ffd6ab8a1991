// Package videoio wraps an external ffmpeg process for both directions of
// the optical channel: compose.go pipes a sequence of rendered QR frames
// into an encoded video file, demux.go pulls raw frames back out of one
// for scanning. Neither the fountain codec nor the QR renderer/scanner
// knows ffmpeg exists; it is confined to this package, per spec §5's rule
// that blocking is "confined to external collaborators".
package videoio

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
)

// ComposeOptions configures the video composer (spec §6's encoder-side
// fps setting).
type ComposeOptions struct {
	FPS        int
	OutputPath string
}

// Composer feeds successive QR frame images to ffmpeg over a pipe and
// produces a single video file.
type Composer struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewComposer starts an ffmpeg process reading a sequence of PNG images
// from stdin (image2pipe) at the configured frame rate.
func NewComposer(opts ComposeOptions) (*Composer, error) {
	if opts.FPS <= 0 {
		opts.FPS = 10
	}
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "image2pipe",
		"-framerate", fmt.Sprintf("%d", opts.FPS),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		"-vcodec", "libx264",
		opts.OutputPath,
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("videoio: ffmpeg stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("videoio: ffmpeg start failed (is ffmpeg installed?): %w", err)
	}

	return &Composer{cmd: cmd, stdin: stdin}, nil
}

// WriteFrame encodes img as PNG and writes it to the ffmpeg pipe.
func (c *Composer) WriteFrame(img image.Image) error {
	if err := png.Encode(c.stdin, img); err != nil {
		return fmt.Errorf("videoio: encode frame: %w", err)
	}
	return nil
}

// Close finishes the frame stream and waits for ffmpeg to finalize the
// output file.
func (c *Composer) Close() error {
	if err := c.stdin.Close(); err != nil {
		return fmt.Errorf("videoio: close ffmpeg stdin: %w", err)
	}
	if err := c.cmd.Wait(); err != nil {
		return fmt.Errorf("videoio: ffmpeg exited with error: %w", err)
	}
	return nil
}
