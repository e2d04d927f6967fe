// Package moonraker polls a Moonraker API server for Klipper print state and
// turns state changes into notifier calls.
package moonraker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"printbot/internal/printer"
	logx "printbot/pkg/logx"
)

const queryPath = "/printer/objects/query?print_stats&virtual_sdcard&toolhead&display_status"

type Config struct {
	URL          string
	APIKey       string
	PollInterval time.Duration
}

// Notifier is the subset of notify.Notifier the poller drives.
type Notifier interface {
	Reset()
	StopAll()
	AddTimer() error
	SetStatusLine(s string)
	OnProgressSample(ctx context.Context, percent int, z float64)
	SendStatus(ctx context.Context, msg string) error
	SendStatusWithPhoto(ctx context.Context, msg string) error
	SendErrorWithPhoto(ctx context.Context, msg string) error
}

// Snapshot is one decoded query response.
type Snapshot struct {
	State         printer.Status
	Filename      string
	Message       string // print_stats.message (error text)
	Display       string // display_status.message (M117)
	PrintDuration float64
	Progress      float64
	Z             float64
}

type Poller struct {
	mu  sync.Mutex
	cfg Config

	http  *http.Client
	state *printer.State
	n     Notifier
	log   logx.Logger

	seen      bool
	last      printer.Status
	display   string
	reachable bool
}

func New(cfg Config, state *printer.State, n Notifier, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Poller{http: &http.Client{Timeout: 10 * time.Second}, state: state, n: n, log: log, reachable: true}
	p.Apply(cfg)
	return p
}

func (p *Poller) Apply(cfg Config) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Poller) config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.markReachable(false, err)
		}
		t := time.NewTimer(p.config().PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll fetches the printer state once and applies it.
func (p *Poller) Poll(ctx context.Context) error {
	snap, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	p.markReachable(true, nil)
	p.apply(ctx, snap)
	return nil
}

func (p *Poller) markReachable(ok bool, err error) {
	p.mu.Lock()
	changed := p.reachable != ok
	p.reachable = ok
	p.mu.Unlock()
	if !changed {
		return
	}
	if ok {
		p.log.Info("moonraker reachable")
	} else {
		p.log.Warn("moonraker unreachable", logx.Err(err))
	}
}

func (p *Poller) fetch(ctx context.Context) (Snapshot, error) {
	cfg := p.config()
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return Snapshot{}, fmt.Errorf("moonraker: bad url %q", cfg.URL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL+queryPath, nil)
	if err != nil {
		return Snapshot{}, err
	}
	if cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", cfg.APIKey)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("moonraker: query: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("moonraker: read: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Snapshot{}, fmt.Errorf("moonraker: http=%d: %s", resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}
	return Decode(body)
}

// Decode parses an objects/query response.
func Decode(body []byte) (Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return Snapshot{}, errors.New("moonraker: invalid json")
	}
	st := gjson.GetBytes(body, "result.status")
	if !st.Exists() {
		return Snapshot{}, errors.New("moonraker: missing result.status")
	}
	return Snapshot{
		State:         printer.Status(st.Get("print_stats.state").String()),
		Filename:      st.Get("print_stats.filename").String(),
		Message:       st.Get("print_stats.message").String(),
		Display:       st.Get("display_status.message").String(),
		PrintDuration: st.Get("print_stats.print_duration").Float(),
		Progress:      st.Get("virtual_sdcard.progress").Float(),
		Z:             math.Round(st.Get("toolhead.position.2").Float()*100) / 100,
	}, nil
}

func (p *Poller) apply(ctx context.Context, s Snapshot) {
	p.mu.Lock()
	first := !p.seen
	prev := p.last
	displayChanged := s.Display != p.display
	p.seen = true
	p.last = s.State
	p.display = s.Display
	p.mu.Unlock()

	p.state.SetStatus(s.State)
	p.state.SetFilename(s.Filename)
	p.state.SetMessage(s.Display)

	if first {
		// Started while a job was already running: resume the timer quietly.
		if s.State == printer.StatusPrinting || s.State == printer.StatusPaused {
			p.state.SetElapsedSeconds(s.PrintDuration)
			p.state.SetProgress(s.Progress)
			if err := p.n.AddTimer(); err != nil {
				p.log.Warn("timer not registered", logx.Err(err))
			}
		}
		prev = s.State
	}

	if s.State != prev {
		p.transition(ctx, prev, s)
	}
	if displayChanged && !first {
		p.n.SetStatusLine(s.Display)
	}
	if s.State == printer.StatusPrinting {
		p.state.SetElapsedSeconds(s.PrintDuration)
		p.state.SetProgress(s.Progress)
		p.state.SetZ(s.Z)
		p.n.OnProgressSample(ctx, int(s.Progress*100), s.Z)
	}
}

func (p *Poller) transition(ctx context.Context, prev printer.Status, s Snapshot) {
	p.log.Info("print state changed", logx.String("from", string(prev)), logx.String("to", string(s.State)), logx.String("file", s.Filename))

	var err error
	switch s.State {
	case printer.StatusPrinting:
		if prev == printer.StatusPaused {
			err = p.n.SendStatus(ctx, "Printer resumed printing")
			break
		}
		p.n.Reset()
		if e := p.n.AddTimer(); e != nil {
			p.log.Warn("timer not registered", logx.Err(e))
		}
		err = p.n.SendStatusWithPhoto(ctx, "Printer started printing: "+s.Filename+"\n")
	case printer.StatusPaused:
		err = p.n.SendStatus(ctx, "Printer paused")
	case printer.StatusComplete:
		err = p.n.SendStatusWithPhoto(ctx, "Finished printing "+s.Filename+"\n")
		p.n.StopAll()
	case printer.StatusCancelled:
		err = p.n.SendStatus(ctx, "Printing cancelled: "+s.Filename+"\n")
		p.n.StopAll()
	case printer.StatusError:
		err = p.n.SendErrorWithPhoto(ctx, "Printer error: "+s.Message+"\n")
		p.n.StopAll()
	case printer.StatusStandby:
		if prev == printer.StatusPrinting || prev == printer.StatusPaused {
			p.n.StopAll()
		}
	}
	if err != nil {
		p.log.Warn("state notification failed", logx.String("state", string(s.State)), logx.Err(err))
	}
}
