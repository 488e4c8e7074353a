package pipeline

import (
	"time"

	"github.com/andresmejia3/posepipe/internal/pool"
	"github.com/andresmejia3/posepipe/internal/types"
)

// Report describes a finished (or failed) run.
type Report struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time

	Geometry  types.Geometry
	FrameRate float64

	// Total is the number of ingested frames; the output always has this length.
	Total     int
	Completed int
	Failed    int
	Pending   int
	Written   int

	FailedIndices  []int
	PendingIndices []int
	// Failures maps a tombstoned index to its reason.
	Failures map[int]string

	SourceStopped string
	Mismatched    int
	DrainTimedOut bool
	Duplicates    int
	Workers       []pool.Stats

	IngestDuration  time.Duration
	ProcessDuration time.Duration
	WriteDuration   time.Duration
}

// Missing is the number of output positions without a produced frame.
func (r *Report) Missing() int {
	return r.Failed + r.Pending
}

func (r *Report) absorb(buf *types.ResultBuffer) {
	r.Completed = buf.Count(types.SlotDone)
	r.FailedIndices = buf.Indices(types.SlotFailed)
	r.PendingIndices = buf.Indices(types.SlotPending)
	r.Failed = len(r.FailedIndices)
	r.Pending = len(r.PendingIndices)
	if r.Failed > 0 {
		r.Failures = make(map[int]string, r.Failed)
		for _, i := range r.FailedIndices {
			r.Failures[i] = buf.Slot(i).Reason
		}
	}
}
