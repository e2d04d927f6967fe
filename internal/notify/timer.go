package notify

import (
	"time"

	"printbot/internal/task/scheduler"
)

// TimerName identifies the single recurring notification job.
const TimerName = "notifier_timer"

// Timer keeps at most one recurring job registered under TimerName.
type Timer struct {
	rec  Recurring
	tick scheduler.Job
}

func NewTimer(rec Recurring, tick scheduler.Job) *Timer {
	return &Timer{rec: rec, tick: tick}
}

// Add registers the job every seconds, replacing an existing one.
// It does nothing when seconds <= 0.
func (t *Timer) Add(seconds int) error {
	if seconds <= 0 {
		return nil
	}
	return t.rec.AddInterval(TimerName, time.Duration(seconds)*time.Second, t.tick)
}

// Remove unregisters the job and waits for a running tick to finish.
func (t *Timer) Remove() bool { return t.rec.Remove(TimerName) }

// Reschedule changes the period of an existing job. It never creates one.
func (t *Timer) Reschedule(seconds int) (bool, error) {
	if seconds <= 0 || !t.rec.Has(TimerName) {
		return false, nil
	}
	return true, t.Add(seconds)
}

func (t *Timer) Active() bool { return t.rec.Has(TimerName) }

// Interval returns the period of the registered job.
func (t *Timer) Interval() (time.Duration, bool) { return t.rec.Every(TimerName) }
