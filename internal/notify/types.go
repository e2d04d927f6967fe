package notify

import (
	"context"
	"io"
	"time"

	"printbot/internal/task/engine"
	"printbot/internal/task/scheduler"
	"printbot/internal/transport"
)

type Config struct {
	// PercentThreshold is the percent step between notifications; 0 disables.
	PercentThreshold int
	// HeightThreshold is the Z step in mm between notifications; 0 disables.
	HeightThreshold float64
	// IntervalSeconds is the period of the timer notification; 0 disables.
	IntervalSeconds int

	Primary   transport.Recipient
	Groups    []transport.Recipient
	GroupOnly bool

	SilentProgress bool
	SilentCommands bool
	SilentStatus   bool
}

// DefaultConfig returns the defaults: every trigger off, every category silent.
func DefaultConfig() Config {
	return Config{SilentProgress: true, SilentCommands: true, SilentStatus: true}
}

// PrinterState is the view of the running job the notifier reads.
type PrinterState interface {
	Running() bool
	ElapsedSeconds() float64
	SetElapsedSeconds(n float64)
	ETAMessage() string
}

// ImageSource produces one snapshot per call. Callers close the image.
type ImageSource interface {
	Enabled() bool
	Capture(ctx context.Context) (io.ReadSeekCloser, error)
}

// Runner executes submitted tasks in the background.
type Runner interface {
	Submit(ctx context.Context, t engine.Task) error
}

// Recurring manages named interval jobs.
type Recurring interface {
	AddInterval(name string, every time.Duration, job scheduler.Job) error
	Remove(name string) bool
	Has(name string) bool
	Every(name string) (time.Duration, bool)
}

// Event types published on the bus.
const (
	EventFired  = "notify.fired"
	EventSent   = "notify.sent"
	EventFailed = "notify.failed"
)

// FiredEvent is the payload of EventFired.
type FiredEvent struct {
	Trigger string `json:"trigger"` // percent, height, timer, error, status
	Text    string `json:"text"`
}

// SendEvent is the payload of EventSent and EventFailed.
type SendEvent struct {
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	Photo    bool   `json:"photo"`
	Silent   bool   `json:"silent"`
	Error    string `json:"error,omitempty"`
}
