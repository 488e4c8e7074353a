// Package source opens the media a run reads frames from: video files and
// capture devices through ffmpeg, MJPEG byte streams, and image directories.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/posepipe/internal/ingest"
)

// Options select and tune a source.
type Options struct {
	// Input is a file, device, directory, or "-" for an MJPEG stream on stdin.
	Input string
	// Format forces an ffmpeg demuxer, e.g. "v4l2" for a webcam.
	Format string
}

// Kind names the adapter chosen for an input.
type Kind string

const (
	KindFFmpeg Kind = "ffmpeg"
	KindMJPEG  Kind = "mjpeg"
	KindImages Kind = "images"
)

// Detect picks the adapter for an input without opening it.
func Detect(opts Options) Kind {
	if opts.Input == "-" {
		return KindMJPEG
	}
	if opts.Format == "" {
		if info, err := os.Stat(opts.Input); err == nil && info.IsDir() {
			return KindImages
		}
		switch strings.ToLower(filepath.Ext(opts.Input)) {
		case ".mjpeg", ".mjpg":
			return KindMJPEG
		}
	}
	return KindFFmpeg
}

// Opener returns an ingest.OpenFunc for the input.
func Opener(opts Options) ingest.OpenFunc {
	return func(ctx context.Context) (ingest.Source, error) {
		return Open(ctx, opts)
	}
}

// Open starts reading the input with the adapter Detect selects.
func Open(ctx context.Context, opts Options) (ingest.Source, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("no input given")
	}
	switch Detect(opts) {
	case KindImages:
		src, err := OpenImageDir(opts.Input)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindMJPEG:
		if opts.Input == "-" {
			return NewMJPEG(os.Stdin), nil
		}
		f, err := os.Open(opts.Input)
		if err != nil {
			return nil, err
		}
		return NewMJPEG(f), nil
	default:
		src, err := OpenFFmpeg(ctx, opts.Input, opts.Format)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
