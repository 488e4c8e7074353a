package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"

	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/andresmejia3/posepipe/internal/utils"
)

const maxJpegSize = 32 * 1024 * 1024

// MJPEG reads concatenated JPEG images from a byte stream.
type MJPEG struct {
	r       io.ReadCloser
	scanner *bufio.Scanner
}

// NewMJPEG wraps a stream. The stream is closed by Close.
func NewMJPEG(r io.ReadCloser) *MJPEG {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), maxJpegSize)
	scanner.Split(utils.SplitJpeg)
	return &MJPEG{r: r, scanner: scanner}
}

func (s *MJPEG) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return types.Frame{}, fmt.Errorf("mjpeg stream: %w", err)
		}
		return types.Frame{}, io.EOF
	}
	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return types.Frame{}, fmt.Errorf("decode jpeg: %w", err)
	}
	return types.FrameFromImage(img), nil
}

func (s *MJPEG) Close() error { return s.r.Close() }
