package engine

import (
	"context"
	"time"
)

type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// MaxQueueDelay drops tasks that waited in the queue longer than this.
	// 0 keeps late tasks.
	MaxQueueDelay time.Duration

	HistorySize int
}

type TaskOptions struct {
	// ConcurrencyLimit caps concurrent runs within the task's group; 0 is unlimited.
	ConcurrencyLimit int
}

// Task is a unit of work. Tasks sharing a ConcurrencyKey (or Name when the
// key is empty) form a group capped by Opt.ConcurrencyLimit; tasks above the
// cap wait for a slot and are never dropped for it.
type Task struct {
	ID             string
	Name           string
	Timeout        time.Duration
	Run            func(ctx context.Context) error
	Opt            TaskOptions
	ConcurrencyKey string
}

func (t Task) group() string {
	if t.ConcurrencyKey != "" {
		return t.ConcurrencyKey
	}
	return t.Name
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is the payload of the task.* bus events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

const (
	EventStarted  = "task.started"
	EventFinished = "task.finished"
	EventFailed   = "task.failed"
	EventDropped  = "task.dropped"
)

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	Enabled  bool
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	// WaitingForGroup counts dequeued tasks blocked on a full group.
	WaitingForGroup int

	DroppedStale uint64
	History      []HistoryItem
}
