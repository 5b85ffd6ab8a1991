package videoio

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strings"
)

// DemuxOptions configures the frame source (spec §6's decoder-side
// frame_rate setting).
type DemuxOptions struct {
	FrameRate int // frames sampled per second of source video; default 1
}

// FrameSource pulls decoded frames one at a time out of a video file via
// ffmpeg, at the configured sampling rate. It is the external collaborator
// the dispatch driver polls between frames (spec §5).
type FrameSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// OpenFrameSource starts an ffmpeg process that demuxes path into a
// stream of JPEG-encoded frames on stdout (image2pipe), sampled at
// opts.FrameRate frames per second.
func OpenFrameSource(path string, opts DemuxOptions) (*FrameSource, error) {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 1
	}
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-vf", fmt.Sprintf("fps=%d", opts.FrameRate),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("videoio: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("videoio: ffmpeg start failed (is ffmpeg installed?): %w", err)
	}

	return &FrameSource{cmd: cmd, stdout: stdout}, nil
}

// Next decodes and returns the next frame, or io.EOF once the stream is
// exhausted. A JPEG stream has no inner length prefix, so Next relies on
// image/jpeg's own decoder to consume exactly one frame's bytes from the
// shared reader.
func (f *FrameSource) Next() (image.Image, error) {
	img, err := jpeg.Decode(f.stdout)
	if err != nil {
		if err == io.EOF || strings.Contains(err.Error(), "unexpected EOF") {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("videoio: decode frame: %w", err)
	}
	return img, nil
}

// Close drains any unread output and waits for ffmpeg to exit. Draining
// before Wait avoids a broken-pipe signal when the caller stops reading
// before end-of-stream (e.g. fast_scan seeking ahead).
func (f *FrameSource) Close() error {
	io.Copy(io.Discard, f.stdout)
	if err := f.cmd.Wait(); err != nil {
		if !strings.Contains(err.Error(), "exit status") {
			return fmt.Errorf("videoio: ffmpeg exited with error: %w", err)
		}
	}
	return nil
}

// Seek instructs a fresh ffmpeg process to start demuxing from
// offsetSeconds into path, used for fast_scan (spec §6 decoder-side
// fast_scan setting): once every known file's metadata has been seen,
// the driver may jump ahead to locate the remaining files faster.
func Seek(path string, offsetSeconds float64, opts DemuxOptions) (*FrameSource, error) {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 1
	}
	cmd := exec.Command("ffmpeg",
		"-ss", fmt.Sprintf("%f", offsetSeconds),
		"-i", path,
		"-vf", fmt.Sprintf("fps=%d", opts.FrameRate),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("videoio: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("videoio: ffmpeg start failed: %w", err)
	}
	return &FrameSource{cmd: cmd, stdout: stdout}, nil
}
