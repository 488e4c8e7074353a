// Package sink writes ordered frames to an encoded video or an image sequence.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/posepipe/internal/types"
)

// ErrGeometry is returned when a frame does not match the sink's geometry.
var ErrGeometry = errors.New("frame geometry does not match output")

// Writer receives frames in order. Close finalizes the output.
type Writer interface {
	Write(frame types.Frame) error
	Close() error
}

// Open picks an encoder from the path: a trailing separator or an existing
// directory yields an image sequence, anything else is encoded by ffmpeg.
func Open(ctx context.Context, path string, fps float64, g types.Geometry) (Writer, error) {
	if path == "" {
		return nil, errors.New("no output path given")
	}
	if g.Empty() {
		return nil, fmt.Errorf("invalid output geometry %s", g)
	}
	if isDirTarget(path) {
		w, err := NewImageDir(path, "png", g)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	w, err := NewFFmpeg(ctx, path, fps, g)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func isDirTarget(path string) bool {
	if strings.HasSuffix(path, string(filepath.Separator)) || strings.HasSuffix(path, "/") {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func checkGeometry(want types.Geometry, f types.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if got := f.Geometry(); got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrGeometry, got, want)
	}
	return nil
}
