package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/andresmejia3/posepipe/internal/utils"
)

// FFmpeg decodes a file or device into raw RGBA frames.
type FFmpeg struct {
	cmd    *utils.SafeCommand
	stdout io.ReadCloser
	geom   types.Geometry
	fps    float64
	frames int
	rotate int
	done   bool
}

// OpenFFmpeg probes the input and starts the decoder.
func OpenFFmpeg(ctx context.Context, input, format string) (*FFmpeg, error) {
	info, err := utils.ProbeVideo(ctx, input, format)
	if err != nil {
		return nil, err
	}

	cmd := utils.NewSafeCommand(utils.NewFFmpegRawDecoder(ctx, input, format))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &FFmpeg{
		cmd:    cmd,
		stdout: stdout,
		geom:   types.Geometry{Width: info.Width, Height: info.Height},
		fps:    info.FrameRate,
		frames: info.Frames,
		rotate: info.Rotation,
	}, nil
}

// FrameRate is the probed native rate, 0 if unknown.
func (s *FFmpeg) FrameRate() float64 { return s.fps }

// Frames is the container's frame count, 0 if unknown.
func (s *FFmpeg) Frames() int { return s.frames }

// Rotation is the display rotation recorded in the container. Frames are
// delivered in stored orientation regardless.
func (s *FFmpeg) Rotation() int { return s.rotate }

func (s *FFmpeg) Read(ctx context.Context) (types.Frame, error) {
	if s.done {
		return types.Frame{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	f := types.NewFrame(s.geom)
	if _, err := io.ReadFull(s.stdout, f.Pix); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// A trailing partial frame is dropped
			if werr := s.cmd.Wait(); werr != nil && ctx.Err() == nil {
				return types.Frame{}, fmt.Errorf("ffmpeg exited: %w: %s", werr, s.cmd.Stderr.String())
			}
			return types.Frame{}, io.EOF
		}
		return types.Frame{}, err
	}
	return f, nil
}

func (s *FFmpeg) Close() error {
	s.stdout.Close()
	if s.done {
		return nil
	}
	s.done = true
	// Reading stopped early (limit or cancellation): stop the decoder
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
