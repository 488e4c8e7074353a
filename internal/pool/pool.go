// Package pool runs a fixed number of workers, each owning a private
// transform instance, between the input and output queues.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/posepipe/internal/logger"
	"github.com/andresmejia3/posepipe/internal/queue"
	"github.com/andresmejia3/posepipe/internal/transform"
	"github.com/andresmejia3/posepipe/internal/types"
)

// Policy decides what a worker does after a frame exhausts its attempts.
type Policy string

const (
	// PolicyDegrade tombstones the frame and retires the worker, shrinking the pool.
	PolicyDegrade Policy = "degrade"
	// PolicySkip tombstones the frame and keeps the worker running.
	PolicySkip Policy = "skip"
	// PolicyAbort tombstones the frame and cancels every worker.
	PolicyAbort Policy = "abort"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyDegrade, PolicySkip, PolicyAbort:
		return p, nil
	default:
		return "", fmt.Errorf("invalid failure policy %q (must be degrade, skip or abort)", s)
	}
}

// ErrWorkerTransformFailure matches every TransformError.
var ErrWorkerTransformFailure = errors.New("worker transform failure")

// TransformError records a frame the transform could not process.
type TransformError struct {
	WorkerID int
	Index    int
	Attempts int
	Err      error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("worker %d: frame %d failed after %d attempt(s): %v", e.WorkerID, e.Index, e.Attempts, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

func (e *TransformError) Is(target error) bool { return target == ErrWorkerTransformFailure }

// Options configure a Pool.
type Options struct {
	Size        int
	Factory     transform.Factory
	PollTimeout time.Duration
	MaxAttempts int
	Policy      Policy
	Log         logger.Logger
	// OnExit, if set, is called from each worker goroutine right after it stops.
	OnExit func(Stats)
}

// Pool spawns workers.
type Pool struct {
	opts Options
	log  logger.Logger
}

// New validates options and fills defaults.
func New(opts Options) (*Pool, error) {
	if opts.Size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", opts.Size)
	}
	if opts.Factory == nil {
		return nil, errors.New("pool requires a transform factory")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDegrade
	}
	if opts.Log == nil {
		opts.Log = logger.Nop{}
	}
	return &Pool{opts: opts, log: opts.Log.WithComponent("pool")}, nil
}

// Spawn starts Size workers pulling from in and pushing to out.
func (p *Pool) Spawn(ctx context.Context, in *queue.Queue[types.Frame], out *queue.Queue[types.Outcome]) []*Handle {
	ctx, cancel := context.WithCancelCause(ctx)

	handles := make([]*Handle, p.opts.Size)
	var wg sync.WaitGroup
	for i := range handles {
		h := &Handle{ID: i, done: make(chan struct{})}
		handles[i] = h
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.run(ctx, cancel, p, in, out)
		}()
	}

	// Release the derived context once every worker is gone
	go func() {
		wg.Wait()
		cancel(nil)
	}()

	p.log.Debug("spawned %d workers (poll timeout %s, policy %s)", p.opts.Size, p.opts.PollTimeout, p.opts.Policy)
	return handles
}

// Summary aggregates joined workers.
type Summary struct {
	Workers   []Stats
	Processed int
	Failed    int
	// Aborted is the failure that cancelled the pool under PolicyAbort.
	Aborted error
}

// Join waits for every handle and aggregates their stats.
func Join(handles []*Handle) Summary {
	var s Summary
	for _, h := range handles {
		st := h.Wait()
		s.Workers = append(s.Workers, st)
		s.Processed += st.Processed
		s.Failed += st.Failed
		if st.Exit == ExitAborted && s.Aborted == nil {
			s.Aborted = st.Err
		}
	}
	return s
}
