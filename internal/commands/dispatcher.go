// Package commands serves the bot's chat commands (/status, /percent...).
package commands

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "printbot/internal/runtime/supervisor"
	kit "printbot/internal/transport"
	logx "printbot/pkg/logx"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Chat    kit.Recipient
	FromID  int64
	Command string
	Args    []string
	Log     logx.Logger

	d *Dispatcher
}

// Reply sends text to the requesting chat using the command silence flag.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.d.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{Silent: r.d.silent()})
	return err
}

// Dispatcher routes messages from the primary chat to registered commands.
// Messages from other chats are ignored.
type Dispatcher struct {
	mu   sync.RWMutex
	cmds map[string]*Command
	list []Command

	chatID atomic.Int64
	silent func() bool

	sender kit.Sender
	log    logx.Logger

	workers int
	jobs    chan func()
	reqSeq  atomic.Uint64
}

func NewDispatcher(sender kit.Sender, chatID int64, silent func() bool, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if silent == nil {
		silent = func() bool { return true }
	}
	d := &Dispatcher{
		cmds:    map[string]*Command{},
		silent:  silent,
		sender:  sender,
		log:     log,
		workers: 2,
		jobs:    make(chan func(), 64),
	}
	d.chatID.Store(chatID)
	return d
}

// SetChatID updates the chat commands are accepted from (hot reload).
func (d *Dispatcher) SetChatID(id int64) { d.chatID.Store(id) }

// Register replaces the command set and refreshes the Telegram menu when the
// sender supports it.
func (d *Dispatcher) Register(ctx context.Context, cmds ...Command) {
	m := map[string]*Command{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		m[name] = &cc
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, exists := m[a]; !exists {
					m[a] = &cc
				}
			}
		}
		list = append(list, cc)
	}
	d.mu.Lock()
	d.cmds = m
	d.list = list
	d.mu.Unlock()

	if up, ok := d.sender.(kit.CommandMenuUpdater); ok {
		menu := make([]kit.BotCommand, 0, len(list))
		for _, c := range list {
			menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
		}
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(mctx, menu); err != nil {
			d.log.Warn("menu update failed", logx.Err(err))
		}
	}
}

// Commands returns the registered commands in registration order.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Command(nil), d.list...)
}

// DispatchLoop reads updates until ctx is cancelled or updates is closed.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(d.log.With(logx.String("comp", "commands.workers"))),
		rtsup.WithCancelOnError(false),
	)
	jobs := d.jobs
	for i := 0; i < d.workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-jobs:
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	d.log.Info("command dispatcher started", logx.Int("workers", d.workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if job := d.route(sup.Context(), up); job != nil {
				select {
				case jobs <- job:
				default:
					d.log.Warn("command dropped: workers busy")
				}
			}
		}
	}
}

// route returns the job for a command message, or nil to ignore it.
func (d *Dispatcher) route(ctx context.Context, up kit.Update) func() {
	msg := up.Message
	if up.Kind != kit.UpdateMessage || msg == nil || msg.ChatID != d.chatID.Load() {
		return nil
	}
	fields := strings.Fields(strings.TrimSpace(msg.Text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil
	}
	word := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	d.mu.RLock()
	cmd := d.cmds[word]
	d.mu.RUnlock()
	if cmd == nil {
		return nil
	}

	rid := strconv.FormatUint(d.reqSeq.Add(1), 36)
	req := &Request{
		Chat:    kit.Recipient{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    fields[1:],
		Log:     d.log.With(logx.String("rid", rid), logx.String("cmd", cmd.Name)),
		d:       d,
	}
	final := wrap(cmd)
	return func() {
		_ = d.sender.SendPresence(ctx, req.Chat, kit.PresenceTyping)
		_ = final(ctx, req)
	}
}

// sanitizeTelegramCommand converts a name into a Telegram-safe bot command.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(strings.TrimPrefix(s, "/")))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}
