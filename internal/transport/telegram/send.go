package telegram

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "printbot/internal/transport"
	logx "printbot/pkg/logx"
)

const (
	textLimit    = 4000
	captionLimit = 1024
	menuLimit    = 100
)

// call paces fn through the limiter and retries once when Telegram answers
// with a flood wait.
func (a *Adapter) call(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn()
		wait, flood := floodWait(err)
		if !flood || attempt > 0 {
			return err
		}
		a.log.Warn("telegram flood wait", logx.Duration("retry_after", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w (flood wait %s)", ctx.Err(), wait)
		case <-t.C:
		}
	}
}

func floodWait(err error) (time.Duration, bool) {
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return time.Duration(fe.RetryAfter) * time.Second, true
	}
	var fp *tele.FloodError
	if errors.As(err, &fp) && fp != nil {
		return time.Duration(fp.RetryAfter) * time.Second, true
	}
	return 0, false
}

func sendOptions(to kit.Recipient, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.DisableNotification = opt.Silent
	}
	return so
}

// SendText sends text, split into several messages when it exceeds the
// message limit. The ref is that of the first part.
func (a *Adapter) SendText(ctx context.Context, to kit.Recipient, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	ref := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	chat := &tele.Chat{ID: to.ChatID}
	for i, part := range chunkText(text, textLimit) {
		var msg *tele.Message
		err := a.call(ctx, func() (err error) {
			msg, err = a.bot.Send(chat, part, sendOptions(to, opt))
			return err
		})
		if err != nil {
			return ref, err
		}
		if i == 0 {
			ref.MessageID = msg.ID
		}
	}
	return ref, nil
}

// SendPhoto uploads photo once; flood waits are not retried since the reader
// is consumed by the first attempt.
func (a *Adapter) SendPhoto(ctx context.Context, to kit.Recipient, photo io.Reader, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	p := &tele.Photo{File: tele.FromReader(photo), Caption: clipCaption(caption)}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, p, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendPresence(ctx context.Context, to kit.Recipient, p kit.Presence) error {
	action := tele.Typing
	if p == kit.PresenceUploadPhoto {
		action = tele.UploadingPhoto
	}
	chat := &tele.Chat{ID: to.ChatID}
	return a.call(ctx, func() error {
		if to.ThreadID != 0 {
			return a.bot.Notify(chat, action, to.ThreadID)
		}
		return a.bot.Notify(chat, action)
	})
}

// UpdateMenuCommands publishes cmds with setMyCommands, skipping the call
// when the list is unchanged since the last success.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	menu := menuEntries(cmds)
	sum := menuSum(menu)

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if sum == a.menuSum {
		return nil
	}
	if err := a.call(ctx, func() error { return a.bot.SetCommands(menu) }); err != nil {
		return err
	}
	a.menuSum = sum
	a.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}

func menuEntries(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, min(len(cmds), menuLimit))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		if len(out) == menuLimit {
			break
		}
		desc := c.Description
		if desc == "" {
			desc = c.Command
		}
		out = append(out, tele.Command{Text: c.Command, Description: clipRunes(desc, 256, "")})
	}
	return out
}

func menuSum(menu []tele.Command) uint64 {
	h := fnv.New64a()
	for _, c := range menu {
		fmt.Fprintf(h, "%s\x00%s\x00", c.Text, c.Description)
	}
	// 0 means "never published".
	return h.Sum64() | 1
}

// chunkText splits s into parts of at most limit runes, cutting after a
// newline when one falls in the last two thirds of the window.
func chunkText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var parts []string
	for len(rs) > 0 {
		cut := min(limit, len(rs))
		if cut < len(rs) {
			for i := cut - 1; i >= limit/3; i-- {
				if rs[i] == '\n' {
					cut = i + 1
					break
				}
			}
		}
		if part := strings.TrimRight(string(rs[:cut]), "\n"); part != "" {
			parts = append(parts, part)
		}
		rs = rs[cut:]
		for len(rs) > 0 && rs[0] == '\n' {
			rs = rs[1:]
		}
	}
	return parts
}

func clipCaption(s string) string { return clipRunes(s, captionLimit, "…") }

// clipRunes cuts s to at most n runes, the tail included.
func clipRunes(s string, n int, tail string) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-len([]rune(tail))]) + tail
}
