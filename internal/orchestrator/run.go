package orchestrator

import (
	"context"
	"time"

	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// Run is the handle for one started task.
//
// Events delivers the run's events in emission order and is closed after
// the single outcome event. Sends block once the buffer is full, so the
// caller must drain Events until it is closed.
type Run struct {
	ID      string
	Request types.TaskRequest

	events chan types.Event
	done   chan struct{}
	cancel context.CancelFunc

	// Written only by the worker goroutine.
	seq     int
	outcome types.Outcome
	now     func() time.Time
}

func newRun(id string, req types.TaskRequest, buffer int, now func() time.Time) *Run {
	return &Run{
		ID:      id,
		Request: req,
		events:  make(chan types.Event, buffer),
		done:    make(chan struct{}),
		now:     now,
	}
}

// Events returns the run's event stream.
func (r *Run) Events() <-chan types.Event {
	return r.events
}

// Done returns a channel closed once the orchestrator is idle again.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run has finished and the orchestrator is idle.
func (r *Run) Wait(ctx context.Context) (types.Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return types.Outcome{}, ctx.Err()
	}
}

func (r *Run) emit(e types.Event) {
	r.seq++
	e.RunID = r.ID
	e.Seq = r.seq
	e.Time = r.now()
	r.events <- e
}

func (r *Run) notice(phase types.Phase, text string) {
	r.emit(types.Event{Phase: phase, Kind: types.EventNotice, Text: text})
}

// sink forwards process output for phase onto the event stream.
func (r *Run) sink(phase types.Phase) func(string) {
	return func(chunk string) {
		r.emit(types.Event{Phase: phase, Kind: types.EventOutput, Text: chunk})
	}
}

func (r *Run) finish(out types.Outcome) {
	r.outcome = out
	r.emit(types.Event{Kind: types.EventOutcome, Outcome: &out})
	close(r.events)
}
