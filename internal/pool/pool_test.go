package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/posepipe/internal/logger"
	"github.com/andresmejia3/posepipe/internal/queue"
	"github.com/andresmejia3/posepipe/internal/transform"
	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill queues n single-pixel frames whose red channel carries the index.
func fill(t *testing.T, n int) *queue.Queue[types.Frame] {
	t.Helper()
	q := queue.New[types.Frame](0)
	for i := 0; i < n; i++ {
		f := types.NewFrame(types.Geometry{Width: 1, Height: 1})
		f.Pix[0] = byte(i)
		require.NoError(t, q.Put(context.Background(), types.IndexedItem[types.Frame]{Index: i, Payload: f}))
	}
	return q
}

func collectAll(out *queue.Queue[types.Outcome]) map[int]types.Outcome {
	got := make(map[int]types.Outcome)
	for {
		it, err := out.Get(context.Background(), 10*time.Millisecond)
		if err != nil {
			return got
		}
		got[it.Index] = it.Payload
	}
}

func failOn(index byte) transform.Factory {
	return transform.Stateless(func(f types.Frame) (types.Frame, error) {
		if f.Pix[0] == index {
			return types.Frame{}, errors.New("model rejected frame")
		}
		return f.Clone(), nil
	})
}

func newPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	if opts.PollTimeout == 0 {
		opts.PollTimeout = 50 * time.Millisecond
	}
	opts.Log = logger.Nop{}
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Size: 0, Factory: failOn(0)})
	assert.Error(t, err)
	_, err = New(Options{Size: 1})
	assert.Error(t, err)

	_, err = ParsePolicy("retry-forever")
	assert.Error(t, err)
	p, err := ParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, PolicySkip, p)
}

func TestWorkersDrainOnTimeout(t *testing.T) {
	in := fill(t, 50)
	out := queue.New[types.Outcome](0)
	identity, _ := transform.Builtin("identity")

	p := newPool(t, Options{Size: 4, Factory: identity})
	sum := Join(p.Spawn(context.Background(), in, out))

	assert.Equal(t, 50, sum.Processed)
	assert.Equal(t, 0, sum.Failed)
	for _, w := range sum.Workers {
		assert.Equal(t, ExitDrained, w.Exit)
	}

	got := collectAll(out)
	require.Len(t, got, 50)
	for i := 0; i < 50; i++ {
		assert.Equal(t, byte(i), got[i].Frame.Pix[0])
	}
}

func TestWorkersExitImmediatelyOnClosedInput(t *testing.T) {
	in := fill(t, 3)
	in.Close()
	out := queue.New[types.Outcome](0)
	identity, _ := transform.Builtin("identity")

	// A long poll timeout must not delay exit once the input is closed
	p := newPool(t, Options{Size: 2, Factory: identity, PollTimeout: time.Minute})
	start := time.Now()
	sum := Join(p.Spawn(context.Background(), in, out))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 3, sum.Processed)
}

func TestDegradePolicyRetiresWorkerAndTombstones(t *testing.T) {
	in := fill(t, 10)
	in.Close()
	out := queue.New[types.Outcome](0)

	p := newPool(t, Options{Size: 1, Factory: failOn(5), Policy: PolicyDegrade})
	sum := Join(p.Spawn(context.Background(), in, out))

	require.Len(t, sum.Workers, 1)
	assert.Equal(t, ExitFailed, sum.Workers[0].Exit)
	assert.ErrorIs(t, sum.Workers[0].Err, ErrWorkerTransformFailure)
	assert.Equal(t, 5, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	assert.Nil(t, sum.Aborted)

	got := collectAll(out)
	require.Len(t, got, 6)
	assert.True(t, got[5].Failed())
	// The lone worker retired, so 6..9 were never picked up
	assert.Equal(t, 4, in.Len())
}

func TestSkipPolicyKeepsWorkerRunning(t *testing.T) {
	in := fill(t, 10)
	in.Close()
	out := queue.New[types.Outcome](0)

	p := newPool(t, Options{Size: 2, Factory: failOn(5), Policy: PolicySkip})
	sum := Join(p.Spawn(context.Background(), in, out))

	assert.Equal(t, 9, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	got := collectAll(out)
	require.Len(t, got, 10)
	var tf *TransformError
	require.ErrorAs(t, got[5].Err, &tf)
	assert.Equal(t, 5, tf.Index)
}

func TestAbortPolicyCancelsPool(t *testing.T) {
	in := fill(t, 1000)
	in.Close()
	out := queue.New[types.Outcome](0)

	slowFail := transform.Stateless(func(f types.Frame) (types.Frame, error) {
		if f.Pix[0] == 3 {
			return types.Frame{}, errors.New("bad tensor")
		}
		time.Sleep(time.Millisecond)
		return f.Clone(), nil
	})

	p := newPool(t, Options{Size: 4, Factory: slowFail, Policy: PolicyAbort})
	sum := Join(p.Spawn(context.Background(), in, out))

	require.Error(t, sum.Aborted)
	assert.ErrorIs(t, sum.Aborted, ErrWorkerTransformFailure)
	assert.Greater(t, in.Len(), 0, "abort should leave unconsumed frames behind")
}

func TestRetriesBeforeTombstoning(t *testing.T) {
	in := fill(t, 1)
	in.Close()
	out := queue.New[types.Outcome](0)

	var calls atomic.Int32
	flaky := transform.Stateless(func(f types.Frame) (types.Frame, error) {
		if calls.Add(1) < 3 {
			return types.Frame{}, errors.New("transient")
		}
		return f.Clone(), nil
	})

	p := newPool(t, Options{Size: 1, Factory: flaky, MaxAttempts: 3})
	sum := Join(p.Spawn(context.Background(), in, out))
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 0, sum.Failed)
	assert.EqualValues(t, 3, calls.Load())
}

func TestPanicIsTreatedAsTransformFailure(t *testing.T) {
	in := fill(t, 2)
	in.Close()
	out := queue.New[types.Outcome](0)

	boom := transform.Stateless(func(types.Frame) (types.Frame, error) { panic("segfault in model") })
	p := newPool(t, Options{Size: 1, Factory: boom})
	sum := Join(p.Spawn(context.Background(), in, out))

	assert.Equal(t, ExitFailed, sum.Workers[0].Exit)
	assert.ErrorContains(t, sum.Workers[0].Err, "segfault in model")
}

func TestEachWorkerGetsPrivateInstance(t *testing.T) {
	in := fill(t, 100)
	in.Close()
	out := queue.New[types.Outcome](0)

	var mu sync.Mutex
	created := map[int]bool{}
	factory := func(_ context.Context, id int) (transform.Transformer, error) {
		mu.Lock()
		defer mu.Unlock()
		created[id] = true
		return transform.Func(transform.Identity), nil
	}

	p := newPool(t, Options{Size: 5, Factory: factory})
	Join(p.Spawn(context.Background(), in, out))
	assert.Len(t, created, 5)
}

func TestStartupFailure(t *testing.T) {
	in := fill(t, 2)
	in.Close()
	out := queue.New[types.Outcome](0)

	var exits atomic.Int32
	broken := func(context.Context, int) (transform.Transformer, error) {
		return nil, errors.New("python3: not found")
	}
	p := newPool(t, Options{Size: 2, Factory: broken, OnExit: func(Stats) { exits.Add(1) }})
	sum := Join(p.Spawn(context.Background(), in, out))

	for _, w := range sum.Workers {
		assert.Equal(t, ExitStartup, w.Exit)
	}
	assert.EqualValues(t, 2, exits.Load())
	assert.Equal(t, 2, in.Len())
}

func TestBrokenInstanceRetiresWorkerUnderSkip(t *testing.T) {
	in := fill(t, 5)
	in.Close()
	out := queue.New[types.Outcome](0)

	var calls atomic.Int32
	broken := transform.Stateless(func(types.Frame) (types.Frame, error) {
		calls.Add(1)
		return types.Frame{}, fmt.Errorf("engine pipe: %w", transform.ErrBroken)
	})

	p := newPool(t, Options{Size: 1, Factory: broken, Policy: PolicySkip, MaxAttempts: 3})
	sum := Join(p.Spawn(context.Background(), in, out))

	require.Len(t, sum.Workers, 1)
	assert.Equal(t, ExitFailed, sum.Workers[0].Exit)
	assert.ErrorIs(t, sum.Workers[0].Err, transform.ErrBroken)
	assert.EqualValues(t, 1, calls.Load(), "a broken instance is not retried")
	assert.Equal(t, 4, in.Len(), "the worker stops taking frames")

	got := collectAll(out)
	require.Len(t, got, 1)
	assert.True(t, got[0].Failed())
}
