// Package ingest drains a frame source into the input queue, assigning dense
// sequence indices in read order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/posepipe/internal/logger"
	"github.com/andresmejia3/posepipe/internal/queue"
	"github.com/andresmejia3/posepipe/internal/types"
)

// ErrSourceUnavailable means the source could not be opened. It is fatal and
// aborts the run before any worker starts.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source yields frames in order. Read returns io.EOF once exhausted.
type Source interface {
	Read(ctx context.Context) (types.Frame, error)
	Close() error
}

// OpenFunc opens a Source.
type OpenFunc func(ctx context.Context) (Source, error)

// Options tune which source frames are ingested.
type Options struct {
	// Every keeps one frame out of every N read (1 keeps all).
	Every int
	// Limit stops after this many frames have been queued (0 = no limit).
	Limit int
}

// Result summarizes a completed ingestion.
type Result struct {
	// Count is the number of frames queued, indexed 0..Count-1.
	Count int
	// Geometry is that of the first queued frame.
	Geometry types.Geometry
	// Read is the number of frames read from the source, including skipped ones.
	Read int
	// Mismatched counts queued frames whose geometry differs from the first.
	Mismatched int
	// Stopped holds the mid-stream read error that ended ingestion, if any.
	Stopped error
}

// Stage is the synchronous ingestion phase.
type Stage struct {
	log  logger.Logger
	opts Options
}

// New creates an ingestion stage.
func New(log logger.Logger, opts Options) *Stage {
	if opts.Every < 1 {
		opts.Every = 1
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	return &Stage{log: log.WithComponent("ingest"), opts: opts}
}

// Run opens the source and pushes every kept frame onto q. A read failure
// other than io.EOF is treated as natural termination: ingestion stops and the
// count seen so far is returned without error.
func (s *Stage) Run(ctx context.Context, open OpenFunc, q *queue.Queue[types.Frame]) (Result, error) {
	var res Result

	src, err := open(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			s.log.Debug("source close: %v", cerr)
		}
	}()

	for s.opts.Limit == 0 || res.Count < s.opts.Limit {
		frame, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.log.Warn("read failed after %d frames, treating as end of stream: %v", res.Read, err)
			res.Stopped = err
			break
		}
		res.Read++

		if (res.Read-1)%s.opts.Every != 0 {
			continue
		}

		if res.Count == 0 {
			res.Geometry = frame.Geometry()
		} else if frame.Geometry() != res.Geometry {
			res.Mismatched++
			s.log.Warn("frame %d is %s, expected %s", res.Count, frame.Geometry(), res.Geometry)
		}

		if err := q.Put(ctx, types.IndexedItem[types.Frame]{Index: res.Count, Payload: frame}); err != nil {
			return res, fmt.Errorf("queue frame %d: %w", res.Count, err)
		}
		res.Count++
	}

	s.log.Debug("queued %d of %d frames read (%s)", res.Count, res.Read, res.Geometry)
	return res, nil
}
