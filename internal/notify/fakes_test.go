package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"printbot/internal/task/engine"
	"printbot/internal/task/scheduler"
	"printbot/internal/transport"
)

type sent struct {
	to     transport.Recipient
	text   string
	photo  []byte
	silent bool
}

type fakeSender struct {
	mu        sync.Mutex
	sends     []sent
	presences []transport.Presence
	fail      map[int64]error
}

func (s *fakeSender) SendText(_ context.Context, to transport.Recipient, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	s.sends = append(s.sends, sent{to: to, text: text, silent: opt.Silent})
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (s *fakeSender) SendPhoto(_ context.Context, to transport.Recipient, photo io.Reader, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	b, err := io.ReadAll(photo)
	if err != nil {
		return transport.MessageRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	s.sends = append(s.sends, sent{to: to, text: caption, photo: b, silent: opt.Silent})
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (s *fakeSender) SendPresence(_ context.Context, _ transport.Recipient, p transport.Presence) error {
	s.mu.Lock()
	s.presences = append(s.presences, p)
	s.mu.Unlock()
	return errors.New("presence is best-effort")
}

func (s *fakeSender) all() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sends...)
}

func (s *fakeSender) texts() []string {
	var out []string
	for _, m := range s.all() {
		out = append(out, m.text)
	}
	return out
}

type fakeImage struct {
	*bytes.Reader
	closed *int
}

func (i fakeImage) Close() error {
	*i.closed++
	return nil
}

type fakeImages struct {
	enabled  bool
	data     []byte
	err      error
	captures int
	closed   int
}

func (f *fakeImages) Enabled() bool { return f.enabled }

func (f *fakeImages) Capture(context.Context) (io.ReadSeekCloser, error) {
	f.captures++
	if f.err != nil {
		return nil, f.err
	}
	return fakeImage{Reader: bytes.NewReader(f.data), closed: &f.closed}, nil
}

type fakeState struct {
	mu      sync.Mutex
	running bool
	elapsed float64
	eta     string
}

func (s *fakeState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeState) ElapsedSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *fakeState) SetElapsedSeconds(n float64) {
	s.mu.Lock()
	s.elapsed = n
	s.mu.Unlock()
}

func (s *fakeState) ETAMessage() string { return s.eta }

// syncRunner runs tasks inline and records them.
type syncRunner struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
}

func (r *syncRunner) Submit(ctx context.Context, t engine.Task) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
	return t.Run(ctx)
}

type fakeRecurring struct {
	mu   sync.Mutex
	jobs map[string]time.Duration
	fns  map[string]scheduler.Job
}

func newFakeRecurring() *fakeRecurring {
	return &fakeRecurring{jobs: map[string]time.Duration{}, fns: map[string]scheduler.Job{}}
}

func (r *fakeRecurring) AddInterval(name string, every time.Duration, job scheduler.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = every
	r.fns[name] = job
	return nil
}

func (r *fakeRecurring) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[name]
	delete(r.jobs, name)
	delete(r.fns, name)
	return ok
}

func (r *fakeRecurring) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[name]
	return ok
}

func (r *fakeRecurring) Every(name string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.jobs[name]
	return d, ok
}

func (r *fakeRecurring) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

var (
	primary = transport.Recipient{ChatID: 100}
	groupA  = transport.Recipient{ChatID: -200}
	groupB  = transport.Recipient{ChatID: -300, ThreadID: 7}
)

type harness struct {
	n      *Notifier
	sender *fakeSender
	images *fakeImages
	state  *fakeState
	runner *syncRunner
	rec    *fakeRecurring
}

func newHarness(cfg Config) *harness {
	h := &harness{
		sender: &fakeSender{fail: map[int64]error{}},
		images: &fakeImages{data: []byte("jpeg")},
		state:  &fakeState{running: true, elapsed: 60, eta: "ETA\n"},
		runner: &syncRunner{},
		rec:    newFakeRecurring(),
	}
	if cfg.Primary == (transport.Recipient{}) {
		cfg.Primary = primary
	}
	h.n = New(cfg, Deps{
		Sender:    h.sender,
		Images:    h.images,
		State:     h.state,
		Runner:    h.runner,
		Recurring: h.rec,
	})
	return h
}
