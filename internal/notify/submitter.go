package notify

import (
	"context"

	"printbot/internal/task/engine"
)

// Task kinds; each kind is its own concurrency group.
const (
	KindText  = "notify.text"
	KindPhoto = "notify.photo"
)

// MaxInFlightPerKind caps concurrent deliveries of one kind.
const MaxInFlightPerKind = 6

// Submitter queues deliveries on the task engine.
//
// Tasks never expire in the queue and are never merged; a full concurrency
// group makes them wait. Once started, a delivery is not cancelled by engine
// shutdown.
type Submitter struct {
	run Runner
}

func NewSubmitter(run Runner) *Submitter { return &Submitter{run: run} }

// Submit blocks only while the engine queue is full.
func (s *Submitter) Submit(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
	return s.run.Submit(ctx, engine.Task{
		Name:           kind,
		ConcurrencyKey: kind,
		Opt:            engine.TaskOptions{ConcurrencyLimit: MaxInFlightPerKind},
		Run: func(c context.Context) error {
			return fn(context.WithoutCancel(c))
		},
	})
}
