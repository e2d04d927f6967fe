package app

import (
	"context"
	"strings"
	"time"

	"printbot/internal/camera"
	"printbot/internal/commands"
	"printbot/internal/config"
	"printbot/internal/eventbus"
	"printbot/internal/moonraker"
	"printbot/internal/notify"
	"printbot/internal/printer"
	rtsup "printbot/internal/runtime/supervisor"
	"printbot/internal/task/engine"
	"printbot/internal/task/scheduler"
	kit "printbot/internal/transport"
	"printbot/internal/transport/telegram"
	logx "printbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter kit.Adapter

	engine *engine.Service
	sched  *scheduler.Service
	camera *camera.Camera
	state  *printer.State
	notif  *notify.Notifier
	poller *moonraker.Poller
	cmds   *commands.Dispatcher

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	comp := func(name string) logx.Logger { return log.With(logx.String("comp", name)) }

	tgCfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tgCfg, comp("telegram"))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineSvc := engine.New(engCfg, comp("taskengine"), bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), comp("scheduler"))

	camCfg, err := mapCameraConfig(cfg)
	if err != nil {
		return nil, err
	}
	cam := camera.New(camCfg, comp("camera"))
	state := printer.NewState()

	notif := notify.New(mapNotifyConfig(cfg), notify.Deps{
		Sender:    ad,
		Images:    cam,
		State:     state,
		Runner:    engineSvc,
		Recurring: schedSvc,
		Log:       comp("notifier"),
		Bus:       bus,
	})

	mrCfg, err := mapMoonrakerConfig(cfg)
	if err != nil {
		return nil, err
	}
	poller := moonraker.New(mrCfg, state, notif, comp("moonraker"))

	cmds := commands.NewDispatcher(ad, cfg.Telegram.ChatID, notif.SilentCommands, comp("commands"))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     comp("app"),
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		engine:  engineSvc,
		sched:   schedSvc,
		camera:  cam,
		state:   state,
		notif:   notif,
		poller:  poller,
		cmds:    cmds,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed once the app stops running, after a fatal error or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	} else {
		a.log.Warn("task engine disabled; notifications will not be delivered")
	}
	a.sched.Start(a.sup.Context())

	a.cmds.Register(a.sup.Context(), commands.Builtin(commands.Deps{
		Notifier: a.notif,
		Printer:  a.state,
		Camera:   a.camera,
	})...)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmds.DispatchLoop(c, a.updates)
	})

	a.sup.GoRestart("moonraker.poll", a.poller.Run,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithStopOnCleanExit(true),
	)

	// Debug-level event log for deliveries and tasks.
	events, unsub := a.bus.Subscribe(128, "notify.", "task.")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.followConfig(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int64("chat_id", a.cfgm.Get().Telegram.ChatID),
		logx.Bool("camera", a.camera.Enabled()),
	)
	return nil
}

// applyConfig pushes a validated config to every live component.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.cmds.SetChatID(newCfg.Telegram.ChatID)
	a.sched.Apply(mapSchedulerConfig(newCfg))

	if err := a.notif.ApplyConfig(mapNotifyConfig(newCfg)); err != nil {
		a.log.Warn("notifier config not fully applied", logx.Err(err))
	}
	if cc, err := mapCameraConfig(newCfg); err != nil {
		a.log.Warn("invalid camera config; keeping previous", logx.Err(err))
	} else {
		a.camera.Apply(cc)
	}
	if mc, err := mapMoonrakerConfig(newCfg); err != nil {
		a.log.Warn("invalid moonraker config; keeping previous", logx.Err(err))
	} else {
		a.poller.Apply(mc)
	}

	if pending := restartOnly(oldCfg, newCfg); len(pending) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("keys", strings.Join(pending, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// followConfig applies each published config. Bursts collapse to the newest.
func (a *App) followConfig(ctx context.Context, sub <-chan *config.Config) {
	applied := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = newest(sub, cfg)
		}
		a.applyConfig(applied, next)
		applied = next
	}
}

func newest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case c, ok := <-sub:
			if !ok {
				return cfg
			}
			if c != nil {
				cfg = c
			}
		default:
			return cfg
		}
	}
}
