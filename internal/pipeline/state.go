package pipeline

// State is the single-pass lifecycle of a run. Transitions only move forward.
type State int32

const (
	StateIdle State = iota
	StateIngesting
	StatePooling
	StateDraining
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIngesting:
		return "ingesting"
	case StatePooling:
		return "pooling"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// advance moves to next if it is ahead of the current state. It is safe to
// call from worker goroutines.
func (p *Pipeline) advance(next State) {
	for {
		cur := State(p.state.Load())
		if next <= cur {
			return
		}
		if p.state.CompareAndSwap(int32(cur), int32(next)) {
			p.log.Debug("state: %s -> %s", cur, next)
			if p.onState != nil {
				p.onState(cur, next)
			}
			return
		}
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}
