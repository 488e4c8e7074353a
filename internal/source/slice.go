package source

import (
	"context"
	"io"

	"github.com/andresmejia3/posepipe/internal/types"
)

// Slice serves frames held in memory.
type Slice struct {
	Frames []types.Frame
	// Rate is reported by FrameRate when positive.
	Rate float64
	next int
}

func (s *Slice) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.next >= len(s.Frames) {
		return types.Frame{}, io.EOF
	}
	f := s.Frames[s.next]
	s.next++
	return f, nil
}

func (s *Slice) Close() error        { return nil }
func (s *Slice) FrameRate() float64 { return s.Rate }
