// Package transform defines the per-frame transform capability and the
// built-in deterministic transforms.
//
// Every worker owns a private Transformer built by a Factory, so implementations
// need not be safe for concurrent use.
package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/andresmejia3/posepipe/internal/types"
)

// Transformer maps one frame to one annotated frame.
type Transformer interface {
	Apply(frame types.Frame) (types.Frame, error)
	Close() error
}

// ErrBroken marks a Transformer that must not receive further frames, such as
// an engine whose reply stream is out of sync. The owning worker retires.
var ErrBroken = errors.New("transform instance broken")

// Factory builds a private Transformer for one worker.
type Factory func(ctx context.Context, workerID int) (Transformer, error)

// Func adapts a pure function to a Transformer.
type Func func(types.Frame) (types.Frame, error)

func (f Func) Apply(frame types.Frame) (types.Frame, error) { return f(frame) }
func (f Func) Close() error                                 { return nil }

// Stateless returns a Factory that hands every worker the same pure function.
func Stateless(fn Func) Factory {
	return func(context.Context, int) (Transformer, error) {
		return fn, nil
	}
}

var builtins = map[string]Func{
	"identity":  Identity,
	"invert":    Invert,
	"grayscale": Grayscale,
	"mirror":    Mirror,
}

// Builtin returns the factory for a named built-in transform.
func Builtin(name string) (Factory, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q (built-ins: %v)", name, Names())
	}
	return Stateless(fn), nil
}

// IsBuiltin reports whether name refers to a built-in transform.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// Names lists the built-in transforms.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
