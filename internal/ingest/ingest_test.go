package ingest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/andresmejia3/posepipe/internal/logger"
	"github.com/andresmejia3/posepipe/internal/queue"
	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource returns n 1-pixel frames whose red channel holds the read position.
type fakeSource struct {
	n      int
	failAt int // -1 disables
	pos    int
	closed bool
	geomAt map[int]types.Geometry
}

func (f *fakeSource) Read(context.Context) (types.Frame, error) {
	if f.failAt >= 0 && f.pos == f.failAt {
		return types.Frame{}, errors.New("device unplugged")
	}
	if f.pos >= f.n {
		return types.Frame{}, io.EOF
	}
	g := types.Geometry{Width: 1, Height: 1}
	if alt, ok := f.geomAt[f.pos]; ok {
		g = alt
	}
	fr := types.NewFrame(g)
	fr.Pix[0] = byte(f.pos)
	f.pos++
	return fr, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func opener(src *fakeSource) OpenFunc {
	return func(context.Context) (Source, error) { return src, nil }
}

func drain(t *testing.T, q *queue.Queue[types.Frame]) []types.IndexedItem[types.Frame] {
	t.Helper()
	q.Close()
	var items []types.IndexedItem[types.Frame]
	for {
		it, err := q.Get(context.Background(), time.Second)
		if err != nil {
			require.ErrorIs(t, err, queue.ErrClosed)
			return items
		}
		items = append(items, it)
	}
}

func TestIngestAssignsDenseIndices(t *testing.T) {
	src := &fakeSource{n: 5, failAt: -1}
	q := queue.New[types.Frame](0)

	res, err := New(logger.Nop{}, Options{}).Run(context.Background(), opener(src), q)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Count)
	assert.Equal(t, types.Geometry{Width: 1, Height: 1}, res.Geometry)
	assert.Nil(t, res.Stopped)
	assert.True(t, src.closed, "source must be closed after ingestion")

	items := drain(t, q)
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, i, it.Index)
		assert.Equal(t, byte(i), it.Payload.Pix[0])
	}
}

func TestIngestMidStreamFailureIsNaturalTermination(t *testing.T) {
	src := &fakeSource{n: 10, failAt: 4}
	q := queue.New[types.Frame](0)

	res, err := New(logger.Nop{}, Options{}).Run(context.Background(), opener(src), q)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count)
	assert.ErrorContains(t, res.Stopped, "device unplugged")
	assert.Len(t, drain(t, q), 4)
}

func TestIngestOpenFailure(t *testing.T) {
	q := queue.New[types.Frame](0)
	open := func(context.Context) (Source, error) { return nil, errors.New("no such file") }

	_, err := New(logger.Nop{}, Options{}).Run(context.Background(), open, q)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorContains(t, err, "no such file")
	assert.Equal(t, 0, q.Len())
}

func TestIngestEmptySource(t *testing.T) {
	q := queue.New[types.Frame](0)
	res, err := New(logger.Nop{}, Options{}).Run(context.Background(), opener(&fakeSource{failAt: -1}), q)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.True(t, res.Geometry.Empty())
}

func TestIngestEveryAndLimit(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantCount int
		wantFirst []byte // red channel of queued frames, i.e. source positions
	}{
		{"every 3rd", Options{Every: 3}, 4, []byte{0, 3, 6, 9}},
		{"limit 2", Options{Limit: 2}, 2, []byte{0, 1}},
		{"every 2nd limited", Options{Every: 2, Limit: 3}, 3, []byte{0, 2, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.New[types.Frame](0)
			res, err := New(logger.Nop{}, tt.opts).Run(context.Background(), opener(&fakeSource{n: 10, failAt: -1}), q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, res.Count)

			var got []byte
			for i, it := range drain(t, q) {
				assert.Equal(t, i, it.Index, "indices stay dense after sampling")
				got = append(got, it.Payload.Pix[0])
			}
			assert.Equal(t, tt.wantFirst, got)
		})
	}
}

func TestIngestCountsGeometryMismatch(t *testing.T) {
	src := &fakeSource{n: 3, failAt: -1, geomAt: map[int]types.Geometry{1: {Width: 2, Height: 1}}}
	q := queue.New[types.Frame](0)
	res, err := New(logger.Nop{}, Options{}).Run(context.Background(), opener(src), q)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 1, res.Mismatched)
}
