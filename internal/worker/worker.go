// Package worker runs an external pose-estimation engine as a child process.
// Each pool worker owns one process, so model state is never shared.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/andresmejia3/posepipe/internal/transform"
	"github.com/andresmejia3/posepipe/internal/types"
	"github.com/andresmejia3/posepipe/internal/utils" // Using the SafeCommand wrapper
)

const (
	statusOK  byte = 0
	statusErr byte = 1

	// Upper bound on a single response, guards against a corrupted length header
	maxResponse = 256 * 1024 * 1024
)

// ErrEngine marks an error reported by the engine itself rather than the pipe.
var ErrEngine = errors.New("pose engine error")

// PoseConfig describes how to launch the engine.
type PoseConfig struct {
	Python string
	Script string
	Model  string
	// ReadTimeout bounds the wait for one response. Zero waits forever.
	ReadTimeout time.Duration
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// PoseWorker is one engine process. It is not safe for concurrent use.
//
// Any pipe or framing error leaves unread bytes in the pipes, so the worker
// marks itself broken and refuses every later frame instead of pairing a
// stale reply with the wrong request.
type PoseWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	broken error
}

// NewPoseWorker starts the engine. Results come back on FD 3 so the engine's
// own stdout and stderr chatter never corrupts the protocol.
func NewPoseWorker(ctx context.Context, id int, cfg PoseConfig) (*PoseWorker, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	args := []string{"-u", cfg.Script}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	py := utils.NewSafeCommand(exec.CommandContext(ctx, python, args...))

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PoseWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Factory returns a transform.Factory that starts one engine per worker.
func Factory(cfg PoseConfig) transform.Factory {
	return func(ctx context.Context, id int) (transform.Transformer, error) {
		w, err := NewPoseWorker(ctx, id, cfg)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Apply sends one frame and waits for the annotated frame.
//
// Request:  [Len uint32][Width uint32][Height uint32][RGBA pixels]
// Response: [Len uint32][Status byte] then either
// [Width uint32][Height uint32][RGBA pixels] or [MsgLen uint32][Msg].
func (w *PoseWorker) Apply(f types.Frame) (types.Frame, error) {
	if w.broken != nil {
		return types.Frame{}, fmt.Errorf("worker %d: %w: %w", w.ID, transform.ErrBroken, w.broken)
	}
	if err := f.Validate(); err != nil {
		return types.Frame{}, err
	}

	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(8+len(f.Pix)))
	binary.BigEndian.PutUint32(hdr[4:], uint32(f.Width))
	binary.BigEndian.PutUint32(hdr[8:], uint32(f.Height))
	if _, err := w.Stdin.Write(hdr[:]); err != nil {
		return types.Frame{}, w.fail(w.pipeError("write header", err))
	}
	if _, err := w.Stdin.Write(f.Pix); err != nil {
		return types.Frame{}, w.fail(w.pipeError("write frame", err))
	}

	body, err := w.readResponse()
	if err != nil {
		return types.Frame{}, w.fail(err)
	}
	// The whole reply has been consumed, so decode errors leave the stream in sync
	return decodeResponse(body)
}

// fail records err as the reason the worker is unusable.
func (w *PoseWorker) fail(err error) error {
	w.broken = err
	return fmt.Errorf("%w: %w", transform.ErrBroken, err)
}

func (w *PoseWorker) readResponse() ([]byte, error) {
	if d, ok := w.DataPipe.(deadliner); ok && w.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		defer d.SetReadDeadline(time.Time{})
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, w.pipeError("read header", err) // This is where we catch the "ModuleNotFoundError" crash
	}
	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 || respLen > maxResponse {
		return nil, fmt.Errorf("worker %d: invalid response length %d", w.ID, respLen)
	}

	body := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, body); err != nil {
		return nil, w.pipeError("read body", err)
	}
	return body, nil
}

func decodeResponse(body []byte) (types.Frame, error) {
	r := bytes.NewReader(body)
	status, _ := r.ReadByte()

	switch status {
	case statusOK:
		var dims [2]uint32
		if err := binary.Read(r, binary.BigEndian, &dims); err != nil {
			return types.Frame{}, fmt.Errorf("short response: %w", err)
		}
		// Check the declared size against what arrived before allocating for it
		if want := uint64(dims[0]) * uint64(dims[1]) * 4; want == 0 || uint64(r.Len()) != want {
			return types.Frame{}, fmt.Errorf("frame %dx%d needs %d bytes, response carries %d", dims[0], dims[1], want, r.Len())
		}
		out := types.NewFrame(types.Geometry{Width: int(dims[0]), Height: int(dims[1])})
		if _, err := io.ReadFull(r, out.Pix); err != nil {
			return types.Frame{}, fmt.Errorf("truncated frame (%dx%d): %w", dims[0], dims[1], err)
		}
		return out, nil
	case statusErr:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return types.Frame{}, fmt.Errorf("short error response: %w", err)
		}
		if uint64(msgLen) > uint64(r.Len()) {
			return types.Frame{}, fmt.Errorf("error message of %d bytes, response carries %d", msgLen, r.Len())
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return types.Frame{}, fmt.Errorf("truncated error message: %w", err)
		}
		return types.Frame{}, fmt.Errorf("%w: %s", ErrEngine, msg)
	default:
		return types.Frame{}, fmt.Errorf("unknown response status %d", status)
	}
}

func (w *PoseWorker) pipeError(op string, err error) error {
	if w.Cmd != nil && w.Cmd.Stderr.Len() > 0 {
		return fmt.Errorf("worker %d %s: %w\n%s", w.ID, op, err, w.Cmd.Stderr.String())
	}
	return fmt.Errorf("worker %d %s: %w", w.ID, op, err)
}

// Close shuts the engine down. Closing stdin is the engine's signal to exit.
func (w *PoseWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
