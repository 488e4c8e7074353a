package types

import "fmt"

// SlotState distinguishes "not yet produced" from "failed" so that gaps in the
// output are explicit rather than an ambiguous empty value.
type SlotState int

const (
	SlotPending SlotState = iota
	SlotDone
	SlotFailed
)

func (s SlotState) String() string {
	switch s {
	case SlotPending:
		return "pending"
	case SlotDone:
		return "done"
	case SlotFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Slot is one position of a ResultBuffer.
type Slot struct {
	State  SlotState
	Frame  Frame
	Reason string
}

// ResultBuffer is a fixed-length, write-once-per-slot ordered buffer.
// It has a single writer (the reassembler) and is read only after all
// workers have been joined, so it carries no lock.
type ResultBuffer struct {
	slots []Slot
}

// NewResultBuffer pre-allocates n pending slots.
func NewResultBuffer(n int) *ResultBuffer {
	if n < 0 {
		n = 0
	}
	return &ResultBuffer{slots: make([]Slot, n)}
}

// Len returns the number of slots.
func (b *ResultBuffer) Len() int {
	return len(b.slots)
}

// Slot returns the slot at index i.
func (b *ResultBuffer) Slot(i int) Slot {
	return b.slots[i]
}

// Set records a produced frame for index i.
func (b *ResultBuffer) Set(i int, f Frame) error {
	if err := b.writable(i); err != nil {
		return err
	}
	b.slots[i] = Slot{State: SlotDone, Frame: f}
	return nil
}

// MarkFailed records a tombstone for index i.
func (b *ResultBuffer) MarkFailed(i int, reason string) error {
	if err := b.writable(i); err != nil {
		return err
	}
	b.slots[i] = Slot{State: SlotFailed, Reason: reason}
	return nil
}

func (b *ResultBuffer) writable(i int) error {
	if i < 0 || i >= len(b.slots) {
		return fmt.Errorf("%w: index %d not in [0,%d)", ErrIndexOutOfRange, i, len(b.slots))
	}
	if b.slots[i].State != SlotPending {
		return fmt.Errorf("%w: index %d already %s", ErrSlotWritten, i, b.slots[i].State)
	}
	return nil
}

// Indices returns the slot indices currently in the given state, ascending.
func (b *ResultBuffer) Indices(state SlotState) []int {
	var out []int
	for i, s := range b.slots {
		if s.State == state {
			out = append(out, i)
		}
	}
	return out
}

// Count returns how many slots are in the given state.
func (b *ResultBuffer) Count(state SlotState) int {
	n := 0
	for _, s := range b.slots {
		if s.State == state {
			n++
		}
	}
	return n
}

// Complete reports whether every slot holds a produced frame.
func (b *ResultBuffer) Complete() bool {
	return b.Count(SlotDone) == len(b.slots)
}
