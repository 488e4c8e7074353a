// Package reassemble restores sequence order: it is the single writer that
// places each worker outcome into its slot of the ResultBuffer.
package reassemble

import (
	"context"
	"errors"
	"time"

	"github.com/andresmejia3/posepipe/internal/logger"
	"github.com/andresmejia3/posepipe/internal/queue"
	"github.com/andresmejia3/posepipe/internal/types"
)

// Progress receives one tick per recorded outcome. *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(n int) error
}

// Options configure Collect.
type Options struct {
	// DrainTimeout bounds the wait for each next outcome. <= 0 waits until the
	// output queue is closed.
	DrainTimeout time.Duration
	Log          logger.Logger
	Progress     Progress
}

// Stats describe how collection ended.
type Stats struct {
	Recorded   int
	Failed     int
	Duplicates int
	OutOfRange int
	// TimedOut is set when collection stopped on the drain timeout before
	// count outcomes were recorded. Late results are not collected.
	TimedOut bool
	// Closed is set when the output queue was closed and drained first.
	Closed bool
	Err    error
}

// Collect reads outcomes until count have been recorded, the drain timeout
// elapses with nothing arriving, the queue is closed and empty, or ctx is done.
func Collect(ctx context.Context, out *queue.Queue[types.Outcome], count int, opts Options) (*types.ResultBuffer, Stats) {
	log := opts.Log
	if log == nil {
		log = logger.Nop{}
	}
	log = log.WithComponent("reassemble")

	buf := types.NewResultBuffer(count)
	var st Stats

	for st.Recorded < count {
		item, err := out.Get(ctx, opts.DrainTimeout)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrTimeout):
				st.TimedOut = true
				log.Warn("no result for %s, drained with %d of %d recorded", opts.DrainTimeout, st.Recorded, count)
			case errors.Is(err, queue.ErrClosed):
				st.Closed = true
			default:
				st.Err = err
			}
			break
		}

		var werr error
		if item.Payload.Failed() {
			werr = buf.MarkFailed(item.Index, item.Payload.Err.Error())
		} else {
			werr = buf.Set(item.Index, item.Payload.Frame)
		}
		if werr != nil {
			if errors.Is(werr, types.ErrSlotWritten) {
				st.Duplicates++
			} else {
				st.OutOfRange++
			}
			log.Warn("discarded result: %v", werr)
			continue
		}

		st.Recorded++
		if item.Payload.Failed() {
			st.Failed++
			log.Debug("frame %d of %d failed", item.Index+1, count)
		} else {
			log.Debug("frame %d of %d", item.Index+1, count)
		}
		if opts.Progress != nil {
			_ = opts.Progress.Add(1)
		}
	}

	return buf, st
}
