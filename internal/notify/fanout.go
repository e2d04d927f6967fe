package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"printbot/internal/eventbus"
	"printbot/internal/transport"
	logx "printbot/pkg/logx"
)

// Fanout sends one message to the primary chat and every broadcast group.
type Fanout struct {
	sender  transport.Sender
	images  ImageSource
	primary transport.Recipient
	groups  []transport.Recipient

	log logx.Logger
	bus eventbus.Bus
}

func NewFanout(sender transport.Sender, images ImageSource, primary transport.Recipient, groups []transport.Recipient, log logx.Logger, bus eventbus.Bus) *Fanout {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fanout{
		sender:  sender,
		images:  images,
		primary: primary,
		groups:  append([]transport.Recipient(nil), groups...),
		log:     log,
		bus:     bus,
	}
}

// recipients returns the primary chat (unless groupOnly) followed by the groups.
func (f *Fanout) recipients(groupOnly bool) []transport.Recipient {
	out := make([]transport.Recipient, 0, len(f.groups)+1)
	if !groupOnly {
		out = append(out, f.primary)
	}
	return append(out, f.groups...)
}

// Notify sends text with a snapshot as caption when the camera is enabled,
// otherwise as plain text. A failed capture falls back to text.
func (f *Fanout) Notify(ctx context.Context, text string, silent, groupOnly bool) error {
	if f.images == nil || !f.images.Enabled() {
		return f.SendText(ctx, text, silent, groupOnly)
	}
	img, err := f.images.Capture(ctx)
	if err != nil || img == nil {
		f.log.Warn("snapshot failed, sending text", logx.Err(err))
		return f.SendText(ctx, text, silent, groupOnly)
	}
	defer img.Close()
	return f.sendPhoto(ctx, img, text, silent, groupOnly)
}

// SendText sends text to every recipient. A failed send does not stop the
// remaining ones; all failures are returned joined.
func (f *Fanout) SendText(ctx context.Context, text string, silent, groupOnly bool) error {
	opt := &transport.SendOptions{Silent: silent}
	var errs []error
	for _, to := range f.recipients(groupOnly) {
		_ = f.sender.SendPresence(ctx, to, transport.PresenceTyping)
		_, err := f.sender.SendText(ctx, to, text, opt)
		f.report(to, false, silent, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("send text to %d: %w", to.ChatID, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) sendPhoto(ctx context.Context, img io.ReadSeeker, caption string, silent, groupOnly bool) error {
	opt := &transport.SendOptions{Silent: silent}
	var errs []error
	for _, to := range f.recipients(groupOnly) {
		// Every recipient reads the image from the start.
		if _, err := img.Seek(0, io.SeekStart); err != nil {
			errs = append(errs, fmt.Errorf("rewind snapshot: %w", err))
			break
		}
		_ = f.sender.SendPresence(ctx, to, transport.PresenceUploadPhoto)
		_, err := f.sender.SendPhoto(ctx, to, img, caption, opt)
		f.report(to, true, silent, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("send photo to %d: %w", to.ChatID, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) report(to transport.Recipient, photo, silent bool, err error) {
	ev := SendEvent{ChatID: to.ChatID, ThreadID: to.ThreadID, Photo: photo, Silent: silent}
	typ := EventSent
	if err != nil {
		typ = EventFailed
		ev.Error = err.Error()
		f.log.Warn("notification send failed", logx.Int64("chat_id", to.ChatID), logx.Bool("photo", photo), logx.Err(err))
	}
	if f.bus != nil {
		f.bus.Publish(eventbus.Event{Type: typ, Data: ev})
	}
}
