package types

import "errors"

var (
	// ErrIndexOutOfRange is returned when an index falls outside the buffer.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrSlotWritten is returned on a second write to the same slot.
	ErrSlotWritten = errors.New("slot already written")
)
