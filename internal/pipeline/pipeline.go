// Package pipeline wires ingestion, the worker pool and the reassembler into a
// single-pass run and writes the ordered result to a sink.
//
// Ingestion runs to completion before any worker starts, so the input queue
// can be closed up front and an empty input queue unambiguously means all
// work has been consumed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/posepipe/internal/ingest"
	"github.com/andresmejia3/posepipe/internal/logger"
	"github.com/andresmejia3/posepipe/internal/pool"
	"github.com/andresmejia3/posepipe/internal/queue"
	"github.com/andresmejia3/posepipe/internal/reassemble"
	"github.com/andresmejia3/posepipe/internal/transform"
	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/google/uuid"
)

// DefaultFrameRate is used when neither the config nor the source provides one.
const DefaultFrameRate = 30.0

// FrameWriter receives frames in strict sequence order. Close flushes and finalizes.
type FrameWriter interface {
	Write(frame types.Frame) error
	Close() error
}

// SinkOpener opens an output medium.
type SinkOpener interface {
	Open(ctx context.Context, path string, fps float64, g types.Geometry) (FrameWriter, error)
}

// SinkFunc adapts a function to SinkOpener.
type SinkFunc func(ctx context.Context, path string, fps float64, g types.Geometry) (FrameWriter, error)

func (f SinkFunc) Open(ctx context.Context, path string, fps float64, g types.Geometry) (FrameWriter, error) {
	return f(ctx, path, fps, g)
}

// RateProvider is implemented by sources that know their native frame rate.
type RateProvider interface {
	FrameRate() float64
}

// Config holds the run parameters.
type Config struct {
	Workers        int
	PollTimeout    time.Duration
	DrainTimeout   time.Duration
	MaxAttempts    int
	Policy         pool.Policy
	OutputCapacity int
	Every          int
	Limit          int
	OutputPath     string
	FrameRate      float64
	// Strict refuses to write output when any slot is failed or missing.
	Strict bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithProgress installs a progress factory, called once with the ingested count.
func WithProgress(fn func(total int) reassemble.Progress) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithStateHook observes state transitions.
func WithStateHook(fn func(from, to State)) Option {
	return func(p *Pipeline) { p.onState = fn }
}

// Pipeline is a single-use run. Create a new one per invocation.
type Pipeline struct {
	cfg     Config
	open    ingest.OpenFunc
	factory transform.Factory
	sink    SinkOpener

	log      logger.Logger
	progress func(total int) reassemble.Progress
	onState  func(from, to State)
	state    atomic.Int32
}

// New validates collaborators and returns an idle pipeline.
func New(cfg Config, open ingest.OpenFunc, factory transform.Factory, sink SinkOpener, opts ...Option) (*Pipeline, error) {
	if open == nil {
		return nil, errors.New("pipeline requires a source")
	}
	if factory == nil {
		return nil, errors.New("pipeline requires a transform factory")
	}
	if sink == nil {
		return nil, errors.New("pipeline requires a sink")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", cfg.Workers)
	}
	p := &Pipeline{cfg: cfg, open: open, factory: factory, sink: sink, log: logger.Nop{}}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithComponent("pipeline")
	return p, nil
}

// Run executes Idle -> Ingesting -> Pooling -> Draining -> Complete and then
// writes every slot in index order. The report is returned even on error.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	defer func() { rep.EndedAt = time.Now() }()

	// Ingesting
	p.advance(StateIngesting)
	in := queue.New[types.Frame](0)
	var src ingest.Source
	open := func(ctx context.Context) (ingest.Source, error) {
		s, err := p.open(ctx)
		src = s
		return s, err
	}

	start := time.Now()
	ing, err := ingest.New(p.log, ingest.Options{Every: p.cfg.Every, Limit: p.cfg.Limit}).Run(ctx, open, in)
	rep.IngestDuration = time.Since(start)
	if err != nil {
		return rep, err
	}
	// Completion marker: nothing else will ever be produced
	in.Close()

	rep.Total = ing.Count
	rep.Geometry = ing.Geometry
	rep.Mismatched = ing.Mismatched
	rep.FrameRate = p.frameRate(src)
	if ing.Stopped != nil {
		rep.SourceStopped = ing.Stopped.Error()
	}
	p.log.Info("ingested %d frames (%s @ %.2f fps)", rep.Total, rep.Geometry, rep.FrameRate)

	// Pooling
	wp, err := pool.New(pool.Options{
		Size:        p.cfg.Workers,
		Factory:     p.factory,
		PollTimeout: p.cfg.PollTimeout,
		MaxAttempts: p.cfg.MaxAttempts,
		Policy:      p.cfg.Policy,
		Log:         p.log,
		OnExit:      func(pool.Stats) { p.advance(StateDraining) },
	})
	if err != nil {
		return rep, err
	}

	p.advance(StatePooling)
	start = time.Now()
	out := queue.New[types.Outcome](p.cfg.OutputCapacity)
	handles := wp.Spawn(ctx, in, out)

	joined := make(chan pool.Summary, 1)
	go func() {
		s := pool.Join(handles)
		// Every producer is gone: let the reassembler finish without waiting out its timeout
		out.Close()
		joined <- s
	}()

	var progress reassemble.Progress
	if p.progress != nil {
		progress = p.progress(rep.Total)
	}
	buf, cst := reassemble.Collect(ctx, out, rep.Total, reassemble.Options{
		DrainTimeout: p.cfg.DrainTimeout,
		Log:          p.log,
		Progress:     progress,
	})

	// Draining: results arriving after this point are dropped
	p.advance(StateDraining)
	out.Close()
	sum := <-joined
	rep.ProcessDuration = time.Since(start)
	p.advance(StateComplete)

	rep.Workers = sum.Workers
	rep.DrainTimedOut = cst.TimedOut
	rep.Duplicates = cst.Duplicates + cst.OutOfRange
	rep.absorb(buf)

	if rep.DrainTimedOut {
		p.log.Warn("drain timeout elapsed with %d of %d results collected", cst.Recorded, rep.Total)
	}
	if rep.Missing() > 0 {
		p.log.Warn("%d failed and %d missing of %d frames; gaps will be written as blank frames", rep.Failed, rep.Pending, rep.Total)
	}

	if sum.Aborted != nil {
		return rep, fmt.Errorf("run aborted: %w", sum.Aborted)
	}
	if cst.Err != nil {
		return rep, cst.Err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if p.cfg.Strict && rep.Missing() > 0 {
		return rep, fmt.Errorf("%w: %d failed, %d missing of %d frames", ErrIncompleteOutput, rep.Failed, rep.Pending, rep.Total)
	}

	start = time.Now()
	err = p.write(ctx, rep, buf)
	rep.WriteDuration = time.Since(start)
	return rep, err
}

// write emits every slot in index order. Gaps become blank frames so the
// output keeps the source's length and timing.
func (p *Pipeline) write(ctx context.Context, rep *Report, buf *types.ResultBuffer) error {
	if buf.Len() == 0 {
		p.log.Warn("no frames ingested, nothing to write")
		return nil
	}

	w, err := p.sink.Open(ctx, p.cfg.OutputPath, rep.FrameRate, rep.Geometry)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrSinkWriteFailure, p.cfg.OutputPath, err)
	}

	var blank types.Frame
	for i := 0; i < buf.Len(); i++ {
		slot := buf.Slot(i)
		frame := slot.Frame
		if slot.State != types.SlotDone {
			if blank.Pix == nil {
				blank = types.BlankFrame(rep.Geometry)
			}
			frame = blank
		}
		if err := w.Write(frame); err != nil {
			_ = w.Close()
			return fmt.Errorf("%w: frame %d: %w", ErrSinkWriteFailure, i, err)
		}
		rep.Written++
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finalize %s: %w", ErrSinkWriteFailure, p.cfg.OutputPath, err)
	}
	return nil
}

func (p *Pipeline) frameRate(src ingest.Source) float64 {
	if p.cfg.FrameRate > 0 {
		return p.cfg.FrameRate
	}
	if rp, ok := src.(RateProvider); ok && rp.FrameRate() > 0 {
		return rp.FrameRate()
	}
	return DefaultFrameRate
}
