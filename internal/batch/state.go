package batch

import (
	"fmt"

	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// State is the lifecycle of one file in a batch. Transitions only move
// forward: Queued -> InFlight -> Succeeded | Failed.
type State int32

const (
	Queued State = iota
	InFlight
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state as its snake_case name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{Queued, InFlight, Succeeded, Failed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Checkpoint marks the point in a file's task at which an Event is emitted
type Checkpoint int

const (
	// Started is emitted once the file has been admitted past the limit
	Started Checkpoint = iota + 1
	// Extracted is emitted when the extractor has returned an outcome
	Extracted
	// Finished is emitted when the file reaches a terminal state
	Finished
)

func (c Checkpoint) String() string {
	switch c {
	case Started:
		return "started"
	case Extracted:
		return "extracted"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("checkpoint(%d)", int(c))
	}
}

// MarshalText renders the checkpoint as its name
func (c Checkpoint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a checkpoint name
func (c *Checkpoint) UnmarshalText(text []byte) error {
	for _, candidate := range []Checkpoint{Started, Extracted, Finished} {
		if candidate.String() == string(text) {
			*c = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown checkpoint %q", text)
}

// Event is a progress notification for the file at Index.
// Outcome is nil at the Started checkpoint.
type Event struct {
	Index      int
	Path       string
	Checkpoint Checkpoint
	State      State
	Outcome    scanning.Outcome
}

// Observer receives progress events. Calls for one batch are serialized.
type Observer func(Event)

// Result holds one outcome per input path, in input order
type Result []scanning.Outcome

// Succeeded counts the successful outcomes
func (r Result) Succeeded() int {
	n := 0
	for _, o := range r {
		if _, ok := o.(*scanning.Success); ok {
			n++
		}
	}
	return n
}

// Failed counts the failed outcomes
func (r Result) Failed() int {
	return len(r) - r.Succeeded()
}

// Records returns the records of the successful outcomes, in input order
func (r Result) Records() []scanning.InvoiceRecord {
	records := make([]scanning.InvoiceRecord, 0, len(r))
	for _, o := range r {
		if s, ok := o.(*scanning.Success); ok {
			records = append(records, s.Record)
		}
	}
	return records
}

func stateOf(outcome scanning.Outcome) State {
	if _, ok := outcome.(*scanning.Success); ok {
		return Succeeded
	}
	return Failed
}
