package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"printbot/internal/printer"
	kit "printbot/internal/transport"
)

type reply struct {
	to     kit.Recipient
	text   string
	photo  bool
	silent bool
}

type fakeSender struct {
	mu      sync.Mutex
	replies []reply
	menu    []kit.BotCommand
}

func (s *fakeSender) SendText(_ context.Context, to kit.Recipient, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{to: to, text: text, silent: opt.Silent})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (s *fakeSender) SendPhoto(_ context.Context, to kit.Recipient, photo io.Reader, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if _, err := io.ReadAll(photo); err != nil {
		return kit.MessageRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{to: to, text: caption, photo: true, silent: opt.Silent})
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (s *fakeSender) SendPresence(context.Context, kit.Recipient, kit.Presence) error { return nil }

func (s *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	s.mu.Lock()
	s.menu = cmds
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) all() []reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reply(nil), s.replies...)
}

func (s *fakeSender) waitReplies(n int) []reply {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r := s.all(); len(r) >= n {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.all()
}

type fakeNotifier struct {
	mu          sync.Mutex
	percent     int
	height      float64
	interval    int
	intervalErr error
	line        string
	active      bool
}

func (n *fakeNotifier) SetPercentThreshold(v int) { n.mu.Lock(); n.percent = v; n.mu.Unlock() }
func (n *fakeNotifier) SetHeightThreshold(v float64) {
	n.mu.Lock()
	n.height = v
	n.mu.Unlock()
}
func (n *fakeNotifier) SetInterval(s int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.intervalErr != nil {
		return n.intervalErr
	}
	n.interval = s
	return nil
}
func (n *fakeNotifier) Thresholds() (int, float64, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.percent, n.height, n.interval
}
func (n *fakeNotifier) StatusLine() string { return n.line }
func (n *fakeNotifier) TimerActive() bool  { return n.active }

type fakePrinter struct {
	status   printer.Status
	file     string
	msg      string
	progress float64
	z        float64
	eta      string
}

func (p *fakePrinter) Status() printer.Status { return p.status }
func (p *fakePrinter) Filename() string       { return p.file }
func (p *fakePrinter) Message() string        { return p.msg }
func (p *fakePrinter) Progress() float64      { return p.progress }
func (p *fakePrinter) Z() float64             { return p.z }
func (p *fakePrinter) ETAMessage() string     { return p.eta }

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

type fakeCamera struct {
	enabled bool
	err     error
}

func (c *fakeCamera) Enabled() bool { return c.enabled }
func (c *fakeCamera) Capture(context.Context) (io.ReadSeekCloser, error) {
	if c.err != nil {
		return nil, c.err
	}
	return nopCloser{bytes.NewReader([]byte("jpeg"))}, nil
}

var errCamera = errors.New("camera offline")

const primaryChat = int64(100)

func msg(chat int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chat, FromID: 1, Text: text}}
}
