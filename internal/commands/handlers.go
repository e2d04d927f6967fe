package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"printbot/internal/printer"
	kit "printbot/internal/transport"
	logx "printbot/pkg/logx"
)

// NotifierControl is the part of the notifier the commands adjust.
type NotifierControl interface {
	SetPercentThreshold(v int)
	SetHeightThreshold(v float64)
	SetInterval(seconds int) error
	Thresholds() (percent int, height float64, interval int)
	StatusLine() string
	TimerActive() bool
}

// PrinterView is the read side of printer.State.
type PrinterView interface {
	Status() printer.Status
	Filename() string
	Message() string
	Progress() float64
	Z() float64
	ETAMessage() string
}

type ImageSource interface {
	Enabled() bool
	Capture(ctx context.Context) (io.ReadSeekCloser, error)
}

type Deps struct {
	Notifier NotifierControl
	Printer  PrinterView
	Camera   ImageSource
}

var errUsage = errors.New("usage")

// Builtin returns the bot's command set.
func Builtin(d Deps) []Command {
	h := &handlers{d: d}
	cmds := []Command{
		{Name: "status", Aliases: []string{"s"}, Description: "Printer status", Timeout: 20 * time.Second, Handle: h.status},
		{Name: "notify", Description: "Notification settings", Handle: h.notify},
		{Name: "percent", Description: "Notify every N percent (0 = off)", Usage: "/percent N", Handle: h.percent},
		{Name: "height", Description: "Notify every N mm of height (0 = off)", Usage: "/height N", Handle: h.height},
		{Name: "interval", Description: "Notify every N seconds (0 = off)", Usage: "/interval N", Handle: h.interval},
	}
	h.list = cmds
	return append(cmds, Command{Name: "help", Description: "List commands", Handle: h.help})
}

type handlers struct {
	d    Deps
	list []Command
}

func (h *handlers) status(ctx context.Context, req *Request) error {
	text := StatusText(h.d.Printer, h.d.Notifier.StatusLine())
	if h.d.Camera == nil || !h.d.Camera.Enabled() {
		return req.Reply(ctx, text)
	}
	_ = req.d.sender.SendPresence(ctx, req.Chat, kit.PresenceUploadPhoto)
	img, err := h.d.Camera.Capture(ctx)
	if err != nil {
		req.Log.Warn("status photo unavailable, sending text")
		return req.Reply(ctx, text)
	}
	defer img.Close()
	_, err = req.d.sender.SendPhoto(ctx, req.Chat, img, text, &kit.SendOptions{Silent: req.d.silent()})
	return err
}

// StatusText renders the /status reply.
func StatusText(p PrinterView, statusLine string) string {
	var b strings.Builder
	st := p.Status()
	fmt.Fprintf(&b, "Printer: %s\n", st)
	switch st {
	case printer.StatusPrinting, printer.StatusPaused:
		fmt.Fprintf(&b, "File: %s\n", p.Filename())
		fmt.Fprintf(&b, "Progress: %d%%\n", int(p.Progress()*100))
		fmt.Fprintf(&b, "Height: %smm\n", strconv.FormatFloat(p.Z(), 'f', -1, 64))
		if statusLine != "" {
			b.WriteString(statusLine)
			b.WriteString("\n")
		}
		b.WriteString(p.ETAMessage())
	case printer.StatusError:
		if m := p.Message(); m != "" {
			fmt.Fprintf(&b, "Error: %s\n", m)
		}
	}
	return b.String()
}

func (h *handlers) notify(ctx context.Context, req *Request) error {
	pct, height, interval := h.d.Notifier.Thresholds()
	var b strings.Builder
	b.WriteString("Notification settings\n")
	fmt.Fprintf(&b, "Percent: %s\n", offOr(pct != 0, strconv.Itoa(pct)+"%"))
	fmt.Fprintf(&b, "Height: %s\n", offOr(height != 0, strconv.FormatFloat(height, 'f', -1, 64)+"mm"))
	fmt.Fprintf(&b, "Interval: %s\n", offOr(interval != 0, strconv.Itoa(interval)+"s"))
	if interval != 0 {
		fmt.Fprintf(&b, "Timer running: %t\n", h.d.Notifier.TimerActive())
	}
	return req.Reply(ctx, b.String())
}

func offOr(on bool, v string) string {
	if !on {
		return "off"
	}
	return v
}

func (h *handlers) percent(ctx context.Context, req *Request) error {
	n, err := intArg(req)
	if err != nil {
		return h.usage(ctx, req, err)
	}
	h.d.Notifier.SetPercentThreshold(n)
	return req.Reply(ctx, fmt.Sprintf("Percent notifications: %s", offOr(n != 0, strconv.Itoa(n)+"%")))
}

func (h *handlers) height(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return h.usage(ctx, req, errUsage)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(req.Args[0], "mm"), 64)
	if err != nil || v < 0 {
		return h.usage(ctx, req, errUsage)
	}
	h.d.Notifier.SetHeightThreshold(v)
	return req.Reply(ctx, fmt.Sprintf("Height notifications: %s", offOr(v != 0, strconv.FormatFloat(v, 'f', -1, 64)+"mm")))
}

func (h *handlers) interval(ctx context.Context, req *Request) error {
	n, err := intArg(req)
	if err != nil {
		return h.usage(ctx, req, err)
	}
	if err := h.d.Notifier.SetInterval(n); err != nil {
		req.Log.Warn("interval not applied", logx.Err(err))
		return req.Reply(ctx, "Could not set interval: "+err.Error())
	}
	return req.Reply(ctx, fmt.Sprintf("Timer notifications: %s", offOr(n != 0, strconv.Itoa(n)+"s")))
}

func (h *handlers) help(ctx context.Context, req *Request) error {
	var b strings.Builder
	for _, c := range h.list {
		use := c.Usage
		if use == "" {
			use = "/" + c.Name
		}
		fmt.Fprintf(&b, "%s - %s\n", use, c.Description)
	}
	return req.Reply(ctx, b.String())
}

func (h *handlers) usage(ctx context.Context, req *Request, cause error) error {
	use := "/" + req.Command + " N"
	for _, c := range h.list {
		if c.Name == req.Command && c.Usage != "" {
			use = c.Usage
		}
	}
	req.Log.Debug("bad arguments", logx.Err(cause), logx.Int("args", len(req.Args)))
	return req.Reply(ctx, "Usage: "+use)
}

func intArg(req *Request) (int, error) {
	if len(req.Args) != 1 {
		return 0, errUsage
	}
	n, err := strconv.Atoi(strings.TrimSuffix(req.Args[0], "%"))
	if err != nil || n < 0 {
		return 0, errUsage
	}
	return n, nil
}
