package app

import (
	"context"
	"fmt"
	"time"

	logx "printbot/pkg/logx"
)

type shutdownStep struct {
	name   string
	budget time.Duration
	run    func(context.Context) error
}

// Stop shuts components down in dependency order. Every step gets its own
// budget, so a stuck component delays shutdown but does not block it.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	steps := []shutdownStep{
		// The timer goes first so no tick is queued behind the engine stop.
		{"notifier", time.Second, func(context.Context) error { a.notif.StopAll(); return nil }},
		{"scheduler", 2 * time.Second, func(c context.Context) error { a.sched.Stop(c); return nil }},
		{"taskengine", 2 * time.Second, func(c context.Context) error { a.engine.Stop(c); return nil }},
		{"adapter", 2 * time.Second, a.adapter.Stop},
		{"supervisor", 2 * time.Second, a.sup.Wait},
	}
	for _, st := range steps {
		a.runStep(ctx, st)
	}

	a.log.Info("stopped", logx.Uint64("events_dropped", a.bus.Dropped()))
	return a.logs.Close()
}

func (a *App) runStep(ctx context.Context, st shutdownStep) {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, st.budget)
	defer cancel()

	res := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				res <- fmt.Errorf("panic: %v", r)
			}
		}()
		res <- st.run(sctx)
	}()

	log := a.log.With(logx.String("step", st.name))
	select {
	case err := <-res:
		if err != nil {
			log.Warn("shutdown step failed", logx.Err(err))
		}
		log.Debug("shutdown step done", logx.Duration("took", time.Since(start)))
	case <-sctx.Done():
		log.Warn("shutdown step abandoned", logx.Duration("took", time.Since(start)))
	}
}
