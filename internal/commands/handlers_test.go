package commands

import (
	"errors"
	"strings"
	"testing"

	"printbot/internal/printer"
)

func TestStatusTextWhilePrinting(t *testing.T) {
	p := &fakePrinter{status: printer.StatusPrinting, file: "benchy.gcode", progress: 0.425, z: 3.2, eta: "ETA\n"}
	got := StatusText(p, "Layer 12/80")
	want := "Printer: printing\nFile: benchy.gcode\nProgress: 42%\nHeight: 3.2mm\nLayer 12/80\nETA\n"
	if got != want {
		t.Fatalf("StatusText = %q, want %q", got, want)
	}
}

func TestStatusTextError(t *testing.T) {
	got := StatusText(&fakePrinter{status: printer.StatusError, msg: "thermal runaway"}, "")
	if got != "Printer: error\nError: thermal runaway\n" {
		t.Fatalf("StatusText = %q", got)
	}
}

func TestStatusSendsPhotoWhenCameraEnabled(t *testing.T) {
	d, s := newTestDispatcher(t, true, Deps{
		Notifier: &fakeNotifier{},
		Printer:  &fakePrinter{status: printer.StatusStandby},
		Camera:   &fakeCamera{enabled: true},
	})
	run(t, d, msg(primaryChat, "/status"))
	r := s.all()
	if len(r) != 1 || !r[0].photo || r[0].text != "Printer: standby\n" {
		t.Fatalf("replies = %+v", r)
	}
}

func TestStatusFallsBackToTextOnCaptureError(t *testing.T) {
	d, s := newTestDispatcher(t, true, Deps{
		Notifier: &fakeNotifier{},
		Printer:  &fakePrinter{status: printer.StatusStandby},
		Camera:   &fakeCamera{enabled: true, err: errCamera},
	})
	run(t, d, msg(primaryChat, "/status"))
	r := s.all()
	if len(r) != 1 || r[0].photo {
		t.Fatalf("replies = %+v", r)
	}
}

func TestThresholdCommands(t *testing.T) {
	n := &fakeNotifier{}
	d, s := newTestDispatcher(t, true, Deps{Notifier: n, Printer: &fakePrinter{}})

	run(t, d, msg(primaryChat, "/percent 5%"))
	run(t, d, msg(primaryChat, "/height 0.4mm"))
	run(t, d, msg(primaryChat, "/interval 600"))

	p, h, i := n.Thresholds()
	if p != 5 || h != 0.4 || i != 600 {
		t.Fatalf("thresholds = %d %v %d", p, h, i)
	}
	r := s.all()
	want := []string{"Percent notifications: 5%", "Height notifications: 0.4mm", "Timer notifications: 600s"}
	for k, w := range want {
		if r[k].text != w {
			t.Fatalf("reply %d = %q, want %q", k, r[k].text, w)
		}
	}

	run(t, d, msg(primaryChat, "/percent 0"))
	if got := s.all()[3].text; got != "Percent notifications: off" {
		t.Fatalf("reply = %q", got)
	}
}

func TestThresholdCommandUsage(t *testing.T) {
	n := &fakeNotifier{percent: 7}
	d, s := newTestDispatcher(t, true, Deps{Notifier: n, Printer: &fakePrinter{}})
	for _, text := range []string{"/percent", "/percent x", "/percent -1", "/height abc", "/interval 1 2"} {
		run(t, d, msg(primaryChat, text))
	}
	if p, _, _ := n.Thresholds(); p != 7 {
		t.Fatalf("percent changed to %d", p)
	}
	for _, r := range s.all() {
		if !strings.HasPrefix(r.text, "Usage: /") {
			t.Fatalf("reply = %q", r.text)
		}
	}
}

func TestIntervalErrorIsReported(t *testing.T) {
	n := &fakeNotifier{intervalErr: errors.New("scheduler disabled")}
	d, s := newTestDispatcher(t, true, Deps{Notifier: n, Printer: &fakePrinter{}})
	run(t, d, msg(primaryChat, "/interval 30"))
	r := s.all()
	if len(r) != 1 || !strings.Contains(r[0].text, "scheduler disabled") {
		t.Fatalf("replies = %+v", r)
	}
}

func TestNotifySettings(t *testing.T) {
	n := &fakeNotifier{percent: 10, interval: 300, active: true}
	d, s := newTestDispatcher(t, true, Deps{Notifier: n, Printer: &fakePrinter{}})
	run(t, d, msg(primaryChat, "/notify"))
	want := "Notification settings\nPercent: 10%\nHeight: off\nInterval: 300s\nTimer running: true\n"
	if got := s.all()[0].text; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}
