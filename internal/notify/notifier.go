package notify

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"printbot/internal/eventbus"
	"printbot/internal/printer"
	"printbot/internal/transport"
	logx "printbot/pkg/logx"
)

type Deps struct {
	Sender    transport.Sender
	Images    ImageSource
	State     PrinterState
	Runner    Runner
	Recurring Recurring
	Log       logx.Logger
	Bus       eventbus.Bus
}

// Notifier is safe for concurrent use. Progress samples, timer ticks and
// config changes may arrive from different goroutines; network I/O never
// happens under mu.
type Notifier struct {
	mu  sync.Mutex
	cfg Config

	lastPercent int
	lastHeight  float64
	statusLine  string

	// timerMu serializes timer registration changes.
	timerMu sync.Mutex

	state  PrinterState
	fanout *Fanout
	submit *Submitter
	timer  *Timer

	log logx.Logger
	bus eventbus.Bus
}

func New(cfg Config, d Deps) *Notifier {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{
		state:  d.State,
		fanout: NewFanout(d.Sender, d.Images, cfg.Primary, cfg.Groups, log, d.Bus),
		submit: NewSubmitter(d.Runner),
		log:    log,
		bus:    d.Bus,
	}
	n.timer = NewTimer(d.Recurring, n.OnTimerTick)

	n.cfg = cfg
	if cfg.PercentThreshold < 0 {
		n.cfg.PercentThreshold = 0
	}
	if cfg.HeightThreshold < 0 {
		n.cfg.HeightThreshold = 0
	}
	if cfg.IntervalSeconds < 0 {
		n.cfg.IntervalSeconds = 0
	}
	return n
}

// Fanout exposes the delivery path for direct replies.
func (n *Notifier) Fanout() *Fanout { return n.fanout }

func (n *Notifier) SetPercentThreshold(v int) {
	if v < 0 {
		return
	}
	n.mu.Lock()
	n.cfg.PercentThreshold = v
	n.mu.Unlock()
}

func (n *Notifier) SetHeightThreshold(v float64) {
	if v < 0 {
		return
	}
	n.mu.Lock()
	n.cfg.HeightThreshold = v
	n.mu.Unlock()
}

// SetInterval sets the timer period. 0 removes the timer; a positive value
// (re)registers it at the new period.
func (n *Notifier) SetInterval(seconds int) error {
	if seconds < 0 {
		return nil
	}
	n.timerMu.Lock()
	defer n.timerMu.Unlock()

	n.mu.Lock()
	n.cfg.IntervalSeconds = seconds
	n.mu.Unlock()

	if seconds == 0 {
		n.timer.Remove()
		return nil
	}
	return n.timer.Add(seconds)
}

// AddTimer registers the timer at the configured period, if any.
func (n *Notifier) AddTimer() error {
	n.timerMu.Lock()
	defer n.timerMu.Unlock()
	n.mu.Lock()
	seconds := n.cfg.IntervalSeconds
	n.mu.Unlock()
	return n.timer.Add(seconds)
}

// TimerActive reports whether the timer job is registered.
func (n *Notifier) TimerActive() bool { return n.timer.Active() }

func (n *Notifier) SetStatusLine(s string) {
	n.mu.Lock()
	n.statusLine = s
	n.mu.Unlock()
}

func (n *Notifier) StatusLine() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statusLine
}

// Thresholds returns the percent step, height step and timer period.
func (n *Notifier) Thresholds() (percent int, height float64, interval int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg.PercentThreshold, n.cfg.HeightThreshold, n.cfg.IntervalSeconds
}

func (n *Notifier) SilentCommands() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg.SilentCommands
}

func (n *Notifier) SilentStatus() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg.SilentStatus
}

// ApplyConfig updates thresholds, flags and the timer period on reload.
// Recipients are fixed at construction. A changed period only reschedules a
// timer that is already registered.
func (n *Notifier) ApplyConfig(cfg Config) error {
	n.timerMu.Lock()
	defer n.timerMu.Unlock()

	n.mu.Lock()
	if cfg.PercentThreshold >= 0 {
		n.cfg.PercentThreshold = cfg.PercentThreshold
	}
	if cfg.HeightThreshold >= 0 {
		n.cfg.HeightThreshold = cfg.HeightThreshold
	}
	n.cfg.GroupOnly = cfg.GroupOnly
	n.cfg.SilentProgress = cfg.SilentProgress
	n.cfg.SilentCommands = cfg.SilentCommands
	n.cfg.SilentStatus = cfg.SilentStatus
	changed := cfg.IntervalSeconds >= 0 && cfg.IntervalSeconds != n.cfg.IntervalSeconds
	if changed {
		n.cfg.IntervalSeconds = cfg.IntervalSeconds
	}
	n.mu.Unlock()

	if !changed {
		return nil
	}
	if cfg.IntervalSeconds == 0 {
		n.timer.Remove()
		return nil
	}
	_, err := n.timer.Reschedule(cfg.IntervalSeconds)
	return err
}

// OnProgressSample is called for every progress update. A zero percent or
// z means no update on that axis.
func (n *Notifier) OnProgressSample(ctx context.Context, percent int, z float64) {
	if !n.state.Running() || n.state.ElapsedSeconds() <= 0 {
		return
	}

	n.mu.Lock()
	pt, ht := n.cfg.PercentThreshold, n.cfg.HeightThreshold
	if pt == 0 && ht == 0 {
		n.mu.Unlock()
		return
	}

	var msg, trigger string
	if percent != 0 && pt != 0 {
		if percent < n.lastPercent-pt {
			n.lastPercent = percent
		} else if percent%pt == 0 && percent > n.lastPercent {
			msg = "Printed " + strconv.Itoa(percent) + "%\n"
			trigger = "percent"
			n.lastPercent = percent
		}
	}
	// Height is evaluated last; its message replaces a percent message on the same sample.
	if z != 0 && ht != 0 {
		if z < n.lastHeight-ht {
			n.lastHeight = z
		} else if onStep(z, ht) && z > n.lastHeight {
			msg = "Printed " + strconv.FormatFloat(z, 'f', -1, 64) + "mm\n"
			trigger = "height"
			n.lastHeight = z
		}
	}
	if msg == "" {
		n.mu.Unlock()
		return
	}
	msg += n.suffixLocked()
	silent, groupOnly := n.cfg.SilentProgress, n.cfg.GroupOnly
	n.mu.Unlock()

	n.fired(trigger, msg)
	n.async(ctx, KindPhoto, msg, func(c context.Context) error {
		return n.fanout.Notify(c, msg, silent, groupOnly)
	})
}

// onStep reports whether z is a multiple of step. Heights carry two decimals,
// so both are compared in hundredths of a millimetre.
func onStep(z, step float64) bool {
	zc, sc := int64(math.Round(z*100)), int64(math.Round(step*100))
	return sc > 0 && zc%sc == 0
}

// OnTimerTick delivers the elapsed time synchronously on the timer goroutine.
func (n *Notifier) OnTimerTick(ctx context.Context) {
	if !n.state.Running() {
		return
	}
	elapsed := n.state.ElapsedSeconds()
	if elapsed <= 0 {
		return
	}

	n.mu.Lock()
	msg := "Printing for " + printer.FormatDuration(time.Duration(math.Round(elapsed))*time.Second) + "\n"
	msg += n.suffixLocked()
	silent, groupOnly := n.cfg.SilentProgress, n.cfg.GroupOnly
	n.mu.Unlock()

	n.fired("timer", msg)
	if err := n.fanout.Notify(ctx, msg, silent, groupOnly); err != nil {
		n.log.Warn("timer notification failed", logx.Err(err))
	}
}

// suffixLocked returns the status line and ETA appended to progress messages.
func (n *Notifier) suffixLocked() string {
	var b strings.Builder
	if n.statusLine != "" {
		b.WriteString(n.statusLine)
		b.WriteString("\n")
	}
	b.WriteString(n.state.ETAMessage())
	return b.String()
}

// SendError sends text to every recipient with sound.
func (n *Notifier) SendError(ctx context.Context, msg string) error {
	n.fired("error", msg)
	return n.async(ctx, KindText, msg, func(c context.Context) error {
		return n.fanout.SendText(c, msg, false, false)
	})
}

// SendErrorWithPhoto is SendError with a snapshot when the camera is enabled.
func (n *Notifier) SendErrorWithPhoto(ctx context.Context, msg string) error {
	n.fired("error", msg)
	return n.async(ctx, KindPhoto, msg, func(c context.Context) error {
		return n.fanout.Notify(c, msg, false, false)
	})
}

// SendStatus sends text to every recipient using the status silence flag.
func (n *Notifier) SendStatus(ctx context.Context, msg string) error {
	silent := n.SilentStatus()
	n.fired("status", msg)
	return n.async(ctx, KindText, msg, func(c context.Context) error {
		return n.fanout.SendText(c, msg, silent, false)
	})
}

// SendStatusWithPhoto is SendStatus with a snapshot when the camera is enabled.
func (n *Notifier) SendStatusWithPhoto(ctx context.Context, msg string) error {
	silent := n.SilentStatus()
	n.fired("status", msg)
	return n.async(ctx, KindPhoto, msg, func(c context.Context) error {
		return n.fanout.Notify(c, msg, silent, false)
	})
}

// Reset clears both watermarks, the status line and the job's elapsed time.
func (n *Notifier) Reset() {
	n.mu.Lock()
	n.lastPercent = 0
	n.lastHeight = 0
	n.statusLine = ""
	n.mu.Unlock()
	n.state.SetElapsedSeconds(0)
}

// StopAll resets state and removes the timer. No tick is delivered after it
// returns; queued deliveries still complete.
func (n *Notifier) StopAll() {
	n.Reset()
	n.timerMu.Lock()
	n.timer.Remove()
	n.timerMu.Unlock()
}

func (n *Notifier) async(ctx context.Context, kind, msg string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := n.submit.Submit(ctx, kind, fn)
	if err != nil {
		n.log.Error("notification not queued", logx.String("kind", kind), logx.String("text", firstLine(msg)), logx.Err(err))
	}
	return err
}

func (n *Notifier) fired(trigger, msg string) {
	n.log.Debug("notification fired", logx.String("trigger", trigger), logx.String("text", firstLine(msg)))
	if n.bus != nil {
		n.bus.Publish(eventbus.Event{Type: EventFired, Data: FiredEvent{Trigger: trigger, Text: msg}})
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
