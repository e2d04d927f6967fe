package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	logx "printbot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg,
		log:  log,
		defs: map[string]*scheduleDef{},
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply updates the config; a timezone change moves the jobs to a new cron.
// The old instance drains a running job without holding the lock.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	old := s.c
	if old == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		s.mu.Unlock()
		return
	}
	stopped := old.Stop()
	s.startCronLocked()
	tz, n := s.loc.String(), len(s.defs)
	s.mu.Unlock()

	<-stopped.Done()
	s.log.Info("service restarted", logx.String("tz", tz), logx.Int("schedules", n))
}

// Start starts triggering. Jobs added before Start are registered now.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startCronLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering and waits for running jobs until ctx expires.
// Definitions remain so they resume on the next Start().
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// AddInterval registers job under name to run every interval, replacing any
// job already registered under that name.
func (s *Service) AddInterval(name string, every time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	prev := s.detachLocked(name)
	d := &scheduleDef{name: name, every: every, job: job}
	s.defs[name] = d
	if s.c != nil {
		s.addCronLocked(d)
	}
	s.mu.Unlock()

	waitRun(prev)
	s.log.Debug("schedule registered", logx.String("name", name), logx.Duration("every", every))
	return nil
}

// Remove unschedules name and waits for an in-progress run to return.
// It reports whether a job was registered.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	prev := s.detachLocked(strings.TrimSpace(name))
	s.mu.Unlock()

	if prev == nil {
		return false
	}
	waitRun(prev)
	s.log.Debug("schedule removed", logx.String("name", name))
	return true
}

// Has reports whether a job is registered under name.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	_, ok := s.defs[strings.TrimSpace(name)]
	s.mu.Unlock()
	return ok
}

// Every returns the interval of the job registered under name.
func (s *Service) Every(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[strings.TrimSpace(name)]
	if !ok {
		return 0, false
	}
	return d.every, true
}

// Schedules lists registered jobs with their next and previous trigger times.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Every: d.every}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	return out
}

// detachLocked removes name from cron and the registry. Call with s.mu held.
func (s *Service) detachLocked(name string) *scheduleDef {
	d, ok := s.defs[name]
	if !ok {
		return nil
	}
	delete(s.defs, name)
	d.removed.Store(true)
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	d.entryID = 0
	return d
}

// waitRun blocks until a run of d that started before removal returns.
func waitRun(d *scheduleDef) {
	if d == nil {
		return
	}
	d.runMu.Lock()
	d.runMu.Unlock()
}

func (s *Service) startCronLocked() {
	s.loc = s.loadLocationLocked()
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, d := range s.defs {
		s.addCronLocked(d)
	}
	s.c.Start()
}

func (s *Service) addCronLocked(d *scheduleDef) {
	ctx := s.ctx
	d.entryID = s.c.Schedule(cron.Every(d.every), cron.FuncJob(func() {
		d.runMu.Lock()
		defer d.runMu.Unlock()
		if d.removed.Load() || ctx.Err() != nil {
			return
		}
		d.job(ctx)
	}))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
