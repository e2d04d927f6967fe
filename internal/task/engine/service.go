// Package engine is a bounded worker pool for background tasks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"printbot/internal/eventbus"
	rtsup "printbot/internal/runtime/supervisor"
	logx "printbot/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	run *run // nil while stopped

	log logx.Logger
	bus eventbus.Bus

	groups groups

	inFlight        atomic.Int32
	waitingForGroup atomic.Int32
	droppedStale    atomic.Uint64
	idSeq           atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

// run is one Start/Stop cycle.
type run struct {
	queue    chan queuedTask
	stopping chan struct{} // closed by Stop
	sup      *rtsup.Supervisor
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	cfg.Workers = max(cfg.Workers, 1)
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, bus: bus}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start launches the workers. It is a no-op when disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.run != nil {
		return
	}

	r := &run{
		queue:    make(chan queuedTask, s.cfg.QueueSize),
		stopping: make(chan struct{}),
		sup: rtsup.NewSupervisor(ctx,
			rtsup.WithLogger(s.log),
			// A broken task must not take the app down.
			rtsup.WithCancelOnError(false),
		),
	}
	for i := 0; i < s.cfg.Workers; i++ {
		r.sup.Go0(fmt.Sprintf("worker.%d", i), func(c context.Context) { s.worker(c, r) })
	}
	s.run = r
	s.log.Info("task engine started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop cancels running tasks and waits for the workers until ctx ends.
// Queued tasks that never started are discarded.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()
	if r == nil {
		return
	}

	close(r.stopping)
	if err := r.sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("task engine stop timed out", logx.Err(err))
		return
	}
	s.inFlight.Store(0)
	s.waitingForGroup.Store(0)
	s.log.Info("task engine stopped")
}

// Enqueue adds t without blocking; a full queue drops it with ErrQueueFull.
func (s *Service) Enqueue(t Task) error {
	return s.enqueue(context.Background(), t, false)
}

// Submit adds t, waiting for queue space until ctx ends or the engine stops.
func (s *Service) Submit(ctx context.Context, t Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.enqueue(ctx, t, true)
}

func (s *Service) enqueue(ctx context.Context, t Task, wait bool) error {
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	if t.Name = strings.TrimSpace(t.Name); t.Name == "" {
		return errors.New("task Name is required")
	}
	now := time.Now()
	if t.ID == "" {
		t.ID = fmt.Sprintf("tsk-%x-%x", now.UnixNano(), s.idSeq.Add(1))
	}

	s.mu.Lock()
	enabled, r := s.cfg.Enabled, s.run
	s.mu.Unlock()
	switch {
	case !enabled:
		return ErrDisabled
	case r == nil:
		return ErrStopped
	}

	qt := queuedTask{task: t, enqueuedAt: now}
	if !wait {
		select {
		case r.queue <- qt:
			return nil
		case <-r.stopping:
			return ErrStopping
		default:
			s.log.Warn("task dropped: queue full", logx.String("task", t.Name), logx.Int("queue_cap", cap(r.queue)))
			s.publish(EventDropped, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "queue_full"})
			return ErrQueueFull
		}
	}
	select {
	case r.queue <- qt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopping:
		return ErrStopping
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Workers: s.cfg.Workers, Running: s.run != nil}
	if s.run != nil {
		snap.QueueLen, snap.QueueCap = len(s.run.queue), cap(s.run.queue)
	}
	s.mu.Unlock()

	snap.InFlight = int(s.inFlight.Load())
	snap.WaitingForGroup = int(s.waitingForGroup.Load())
	snap.DroppedStale = s.droppedStale.Load()

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if n := len(s.history) - size; n > 0 {
		s.history = append(s.history[:0:0], s.history[n:]...)
	}
	s.hmu.Unlock()
}
