package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "printbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, r *run) {
	for {
		// A closed stopping channel wins over queued work.
		select {
		case <-r.stopping:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-r.stopping:
			return
		case qt := <-r.queue:
			if !s.runLimited(ctx, qt) {
				return
			}
		}
	}
}

// runLimited waits for a group slot, then executes. It returns false when
// the wait was cut short by ctx.
func (s *Service) runLimited(ctx context.Context, qt queuedTask) bool {
	if sem := s.groups.get(qt.task); sem != nil {
		s.waitingForGroup.Add(1)
		err := sem.Acquire(ctx, 1)
		s.waitingForGroup.Add(-1)
		if err != nil {
			return false
		}
		defer sem.Release(1)
	}
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	s.exec(ctx, qt)
	return true
}

func (s *Service) exec(ctx context.Context, qt queuedTask) {
	t := qt.task
	start := time.Now()
	delay := max(start.Sub(qt.enqueuedAt), 0)
	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay}
	ev := TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay}

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()
	if maxDelay > 0 && delay > maxDelay {
		s.droppedStale.Add(1)
		item.Error, ev.Error = "stale_queue_delay", "stale_queue_delay"
		s.log.Warn("task dropped: stale queue", logx.String("task", t.Name), logx.Duration("queue_delay", delay))
		s.publish(EventDropped, ev)
		s.record(item)
		return
	}

	s.publish(EventStarted, ev)
	err := s.call(ctx, t)
	item.Duration = time.Since(start)
	ev.Duration = item.Duration

	if err != nil {
		item.Error, ev.Error = err.Error(), err.Error()
		s.log.Warn("task failed", logx.String("task", t.Name), logx.Err(err), logx.Duration("dur", item.Duration))
		s.publish(EventFailed, ev)
	} else {
		s.log.Debug("task done", logx.String("task", t.Name), logx.Duration("queue_delay", delay), logx.Duration("dur", item.Duration))
		s.publish(EventFinished, ev)
	}
	s.record(item)
}

// call runs the task with its timeout; a panic becomes an error.
func (s *Service) call(ctx context.Context, t Task) (err error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task panicked", logx.String("task", t.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}
