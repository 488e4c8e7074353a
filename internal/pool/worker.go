package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/posepipe/internal/queue"
	"github.com/andresmejia3/posepipe/internal/transform"
	"github.com/andresmejia3/posepipe/internal/types"
)

// ExitReason says why a worker stopped.
type ExitReason int

const (
	ExitRunning ExitReason = iota
	// ExitDrained: the input queue was empty past the poll timeout, or closed and empty.
	ExitDrained
	// ExitFailed: a frame failed under PolicyDegrade.
	ExitFailed
	// ExitAborted: a frame failed under PolicyAbort.
	ExitAborted
	// ExitCancelled: the context was cancelled.
	ExitCancelled
	// ExitStartup: the worker's transform instance could not be created.
	ExitStartup
)

func (r ExitReason) String() string {
	switch r {
	case ExitRunning:
		return "running"
	case ExitDrained:
		return "drained"
	case ExitFailed:
		return "failed"
	case ExitAborted:
		return "aborted"
	case ExitCancelled:
		return "cancelled"
	case ExitStartup:
		return "startup"
	default:
		return "unknown"
	}
}

// Stats describe one worker after it exited.
type Stats struct {
	ID        int
	Processed int
	Failed    int
	Exit      ExitReason
	Err       error
}

// Handle owns one worker goroutine.
type Handle struct {
	ID    int
	done  chan struct{}
	stats Stats
}

// Done is closed when the worker exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the worker exits and returns its stats.
func (h *Handle) Wait() Stats {
	<-h.done
	return h.stats
}

func (h *Handle) run(ctx context.Context, abort context.CancelCauseFunc, p *Pool, in *queue.Queue[types.Frame], out *queue.Queue[types.Outcome]) {
	log := p.log.WithComponent(fmt.Sprintf("worker %d", h.ID))
	h.stats.ID = h.ID
	defer func() {
		log.Debug("exit: %s (processed %d, failed %d)", h.stats.Exit, h.stats.Processed, h.stats.Failed)
		if p.opts.OnExit != nil {
			p.opts.OnExit(h.stats)
		}
		close(h.done)
	}()

	t, err := p.opts.Factory(ctx, h.ID)
	if err != nil {
		log.Error("engine startup failed: %v", err)
		h.stats.Exit, h.stats.Err = ExitStartup, err
		return
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			log.Debug("engine close: %v", cerr)
		}
	}()

	for {
		item, err := in.Get(ctx, p.opts.PollTimeout)
		if err != nil {
			// Ingestion finished before we started, so an empty queue means all work is consumed
			if errors.Is(err, queue.ErrTimeout) || errors.Is(err, queue.ErrClosed) {
				h.stats.Exit = ExitDrained
			} else {
				h.stats.Exit, h.stats.Err = ExitCancelled, err
			}
			return
		}

		result, attempts, terr := h.process(t, item.Payload, p.opts.MaxAttempts)
		if terr == nil {
			h.stats.Processed++
			if !h.push(ctx, out, types.IndexedItem[types.Outcome]{Index: item.Index, Payload: types.Outcome{Frame: result}}) {
				return
			}
			continue
		}

		h.stats.Failed++
		failure := &TransformError{WorkerID: h.ID, Index: item.Index, Attempts: attempts, Err: terr}
		log.Warn("%v", failure)

		if !h.push(ctx, out, types.IndexedItem[types.Outcome]{Index: item.Index, Payload: types.Outcome{Err: failure}}) {
			return
		}

		switch {
		case p.opts.Policy == PolicyAbort:
			h.stats.Exit, h.stats.Err = ExitAborted, failure
			abort(failure)
			return
		case p.opts.Policy == PolicySkip && !errors.Is(terr, transform.ErrBroken):
			continue
		default:
			// Degrade, or an instance that cannot take another frame
			h.stats.Exit, h.stats.Err = ExitFailed, failure
			return
		}
	}
}

// process applies the transform up to maxAttempts times on this worker's own
// instance. A broken instance is not retried.
func (h *Handle) process(t transform.Transformer, f types.Frame, maxAttempts int) (types.Frame, int, error) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var out types.Frame
		out, err = safeApply(t, f)
		if err == nil {
			return out, attempt, nil
		}
		if errors.Is(err, transform.ErrBroken) {
			return types.Frame{}, attempt, err
		}
	}
	return types.Frame{}, maxAttempts, err
}

func safeApply(t transform.Transformer, f types.Frame) (out types.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform panicked: %v", r)
		}
	}()
	return t.Apply(f)
}

func (h *Handle) push(ctx context.Context, out *queue.Queue[types.Outcome], item types.IndexedItem[types.Outcome]) bool {
	if err := out.Put(ctx, item); err != nil {
		// Output closed (drain gave up) or context cancelled: the result cannot be delivered
		h.stats.Exit, h.stats.Err = ExitCancelled, err
		return false
	}
	return true
}
