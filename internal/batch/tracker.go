package batch

import (
	"sync"
	"sync/atomic"

	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// Tracker records the latest state and outcome of every file in a batch so
// that progress can be polled while the batch runs. Pass Observe to
// WithObserver.
type Tracker struct {
	states []atomic.Int32

	mu       sync.RWMutex
	outcomes []scanning.Outcome
}

// NewTracker creates a tracker for a batch of n files, all Queued
func NewTracker(n int) *Tracker {
	return &Tracker{
		states:   make([]atomic.Int32, n),
		outcomes: make([]scanning.Outcome, n),
	}
}

// Observe applies an event. States never move backward.
func (t *Tracker) Observe(e Event) {
	if e.Index < 0 || e.Index >= len(t.states) {
		return
	}
	slot := &t.states[e.Index]
	for {
		current := slot.Load()
		if State(current) >= e.State {
			break
		}
		if slot.CompareAndSwap(current, int32(e.State)) {
			break
		}
	}

	if e.Outcome != nil {
		t.mu.Lock()
		t.outcomes[e.Index] = e.Outcome
		t.mu.Unlock()
	}
}

// States returns a snapshot of every file's state
func (t *Tracker) States() []State {
	states := make([]State, len(t.states))
	for i := range t.states {
		states[i] = State(t.states[i].Load())
	}
	return states
}

// Outcomes returns a snapshot of the outcomes known so far; pending slots are nil
func (t *Tracker) Outcomes() []scanning.Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	outcomes := make([]scanning.Outcome, len(t.outcomes))
	copy(outcomes, t.outcomes)
	return outcomes
}

// Done reports whether every file has reached a terminal state
func (t *Tracker) Done() bool {
	for i := range t.states {
		if !State(t.states[i].Load()).Terminal() {
			return false
		}
	}
	return true
}

// Counts returns how many files are in each state
func (t *Tracker) Counts() map[State]int {
	counts := make(map[State]int, 4)
	for _, s := range t.States() {
		counts[s]++
	}
	return counts
}
