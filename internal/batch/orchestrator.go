package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// DefaultLimit is the number of extractions allowed in flight when no limit is set
const DefaultLimit = 3

// ErrNegativeLimit is returned by Run when the orchestrator was built with a negative limit
var ErrNegativeLimit = errors.New("concurrency limit must not be negative")

// Orchestrator runs an Extractor over many files with a bound on the number
// of extractions in flight
type Orchestrator struct {
	extractor scanning.Extractor
	limit     int
	observers []Observer
	logger    *slog.Logger

	// serializes observer calls
	mu sync.Mutex
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLimit sets the maximum number of extractions in flight. Zero selects DefaultLimit.
func WithLimit(n int) Option {
	return func(o *Orchestrator) {
		o.limit = n
	}
}

// WithObserver subscribes fn to progress events. May be given more than once.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator around extractor
func New(extractor scanning.Extractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.limit == 0 {
		o.limit = DefaultLimit
	}
	return o
}

// Limit returns the effective concurrency limit
func (o *Orchestrator) Limit() int {
	return o.limit
}

// Run extracts every path and returns one outcome per path, in input order.
// Result[i] always belongs to paths[i]. Business failures are reported as
// *scanning.Failure outcomes; the error is only non-nil for misuse.
// A path still waiting for admission when ctx is done fails with TransportError.
func (o *Orchestrator) Run(ctx context.Context, paths []string) (Result, error) {
	if o.limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeLimit, o.limit)
	}
	if o.extractor == nil {
		return nil, errors.New("orchestrator has no extractor")
	}

	start := time.Now()
	o.logger.Info("Batch started", "files", len(paths), "limit", o.limit)

	result := make(Result, len(paths))
	gate := semaphore.NewWeighted(int64(o.limit))

	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			result[i] = o.runOne(ctx, gate, i, path)
			return nil
		})
	}
	// tasks never return an error
	_ = g.Wait()

	o.logger.Info("Batch finished",
		"files", len(paths),
		"succeeded", result.Succeeded(),
		"failed", result.Failed(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (o *Orchestrator) runOne(ctx context.Context, gate *semaphore.Weighted, i int, path string) scanning.Outcome {
	if err := gate.Acquire(ctx, 1); err != nil {
		outcome := scanning.NewFailure(path, scanning.TransportError, "batch cancelled", err)
		o.emit(Event{Index: i, Path: path, Checkpoint: Finished, State: Failed, Outcome: outcome})
		return outcome
	}
	defer gate.Release(1)

	o.emit(Event{Index: i, Path: path, Checkpoint: Started, State: InFlight})

	outcome := o.extractor.Extract(ctx, path)
	if outcome == nil {
		outcome = scanning.NewFailure(path, scanning.EmptyResponse, "extractor returned no outcome", nil)
	}
	o.emit(Event{Index: i, Path: path, Checkpoint: Extracted, State: InFlight, Outcome: outcome})

	state := stateOf(outcome)
	if f, ok := outcome.(*scanning.Failure); ok {
		o.logger.Warn("Extraction failed", "file", f.File(), "reason", f.Reason, "error", f.Detail())
	} else {
		o.logger.Debug("Extraction succeeded", "file", outcome.File())
	}
	o.emit(Event{Index: i, Path: path, Checkpoint: Finished, State: state, Outcome: outcome})
	return outcome
}

func (o *Orchestrator) emit(e Event) {
	if len(o.observers) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, fn := range o.observers {
		fn(e)
	}
}
