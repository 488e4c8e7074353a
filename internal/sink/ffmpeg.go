package sink

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/andresmejia3/posepipe/internal/utils"
)

// FFmpeg pipes raw RGBA frames into an H.264 encoder.
type FFmpeg struct {
	cmd   *utils.SafeCommand
	stdin io.WriteCloser
	geom  types.Geometry
	path  string
}

// NewFFmpeg starts the encoder. The output file is replaced.
func NewFFmpeg(ctx context.Context, path string, fps float64, g types.Geometry) (*FFmpeg, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	cmd := utils.NewSafeCommand(utils.NewFFmpegEncoder(ctx, path, fps, g.Width, g.Height))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &FFmpeg{cmd: cmd, stdin: stdin, geom: g, path: path}, nil
}

func (s *FFmpeg) Write(f types.Frame) error {
	if err := checkGeometry(s.geom, f); err != nil {
		return err
	}
	if _, err := s.stdin.Write(f.Pix); err != nil {
		return fmt.Errorf("encoder pipe: %w: %s", err, s.cmd.Stderr.String())
	}
	return nil
}

func (s *FFmpeg) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder failed writing %s: %w: %s", s.path, err, s.cmd.Stderr.String())
	}
	return nil
}
