package moonraker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"printbot/internal/printer"
	logx "printbot/pkg/logx"
)

type call struct {
	name string
	arg  string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeNotifier) rec(name, arg string) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, arg})
	f.mu.Unlock()
}

func (f *fakeNotifier) Reset()                 { f.rec("Reset", "") }
func (f *fakeNotifier) StopAll()               { f.rec("StopAll", "") }
func (f *fakeNotifier) AddTimer() error        { f.rec("AddTimer", ""); return nil }
func (f *fakeNotifier) SetStatusLine(s string) { f.rec("SetStatusLine", s) }
func (f *fakeNotifier) OnProgressSample(_ context.Context, percent int, z float64) {
	f.rec("Sample", fmt.Sprintf("%d/%g", percent, z))
}
func (f *fakeNotifier) SendStatus(_ context.Context, msg string) error {
	f.rec("SendStatus", msg)
	return nil
}
func (f *fakeNotifier) SendStatusWithPhoto(_ context.Context, msg string) error {
	f.rec("SendStatusWithPhoto", msg)
	return nil
}
func (f *fakeNotifier) SendErrorWithPhoto(_ context.Context, msg string) error {
	f.rec("SendErrorWithPhoto", msg)
	return nil
}

func (f *fakeNotifier) take() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

func statusJSON(state, file, display string, dur, progress, z float64) string {
	return fmt.Sprintf(`{"result":{"eventtime":1.0,"status":{
		"print_stats":{"state":%q,"filename":%q,"message":"","print_duration":%g},
		"virtual_sdcard":{"progress":%g},
		"toolhead":{"position":[10.0,20.0,%g,0.0]},
		"display_status":{"message":%q,"progress":%g}}}}`, state, file, dur, progress, z, display, progress)
}

type fakeServer struct {
	mu   sync.Mutex
	body string
	key  string
}

func (s *fakeServer) set(body string) {
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/printer/objects/query" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = r.Header.Get("X-Api-Key")
	_, _ = w.Write([]byte(s.body))
}

func TestPollerDrivesJobLifecycle(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	st := printer.NewState()
	n := &fakeNotifier{}
	p := New(Config{URL: srv.URL + "/", APIKey: "k"}, st, n, logx.Nop())
	ctx := context.Background()

	poll := func(body string) []call {
		t.Helper()
		fs.set(body)
		if err := p.Poll(ctx); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		return n.take()
	}

	if got := poll(statusJSON("standby", "", "", 0, 0, 0)); len(got) != 0 {
		t.Fatalf("standby calls = %v", got)
	}
	fs.mu.Lock()
	key := fs.key
	fs.mu.Unlock()
	if key != "k" {
		t.Fatalf("api key header = %q", key)
	}

	got := poll(statusJSON("printing", "cube.gcode", "", 1, 0.001, 0.2))
	want := []call{
		{"Reset", ""},
		{"AddTimer", ""},
		{"SendStatusWithPhoto", "Printer started printing: cube.gcode\n"},
		{"Sample", "0/0.2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("start calls = %v; want %v", got, want)
	}
	if !st.Running() || st.Filename() != "cube.gcode" {
		t.Fatalf("state not updated: running=%v file=%q", st.Running(), st.Filename())
	}

	got = poll(statusJSON("printing", "cube.gcode", "Layer 3", 120, 0.25, 1.0000001))
	want = []call{{"SetStatusLine", "Layer 3"}, {"Sample", "25/1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("progress calls = %v; want %v", got, want)
	}
	if st.ElapsedSeconds() != 120 || st.Progress() != 0.25 {
		t.Fatalf("elapsed=%v progress=%v", st.ElapsedSeconds(), st.Progress())
	}

	got = poll(statusJSON("paused", "cube.gcode", "Layer 3", 130, 0.3, 1.2))
	if !reflect.DeepEqual(got, []call{{"SendStatus", "Printer paused"}}) {
		t.Fatalf("pause calls = %v", got)
	}
	got = poll(statusJSON("printing", "cube.gcode", "Layer 3", 131, 0.3, 1.2))
	if len(got) == 0 || got[0] != (call{"SendStatus", "Printer resumed printing"}) {
		t.Fatalf("resume calls = %v", got)
	}

	got = poll(statusJSON("complete", "cube.gcode", "", 500, 1, 20))
	want = []call{
		{"SendStatusWithPhoto", "Finished printing cube.gcode\n"},
		{"StopAll", ""},
		{"SetStatusLine", ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("complete calls = %v; want %v", got, want)
	}
}

func TestPollerErrorState(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	n := &fakeNotifier{}
	p := New(Config{URL: srv.URL}, printer.NewState(), n, logx.Nop())
	ctx := context.Background()

	fs.set(statusJSON("printing", "a.gcode", "", 10, 0.1, 1))
	_ = p.Poll(ctx)
	n.take()

	fs.set(strings.Replace(statusJSON("error", "a.gcode", "", 10, 0.1, 1), `"message":""`, `"message":"Heater extruder not heating"`, 1))
	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	got := n.take()
	want := []call{{"SendErrorWithPhoto", "Printer error: Heater extruder not heating\n"}, {"StopAll", ""}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("error calls = %v; want %v", got, want)
	}
}

func TestPollerResumesTimerWhenStartedMidPrint(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	n := &fakeNotifier{}
	st := printer.NewState()
	p := New(Config{URL: srv.URL}, st, n, logx.Nop())

	fs.set(statusJSON("printing", "a.gcode", "hello", 3600, 0.5, 12))
	if err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	got := n.take()
	want := []call{{"AddTimer", ""}, {"Sample", "50/12"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v; want %v", got, want)
	}
	if st.ElapsedSeconds() != 3600 {
		t.Fatalf("elapsed = %v", st.ElapsedSeconds())
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte("{")); err == nil {
		t.Fatalf("expected invalid json error")
	}
	if _, err := Decode([]byte(`{"result":{}}`)); err == nil {
		t.Fatalf("expected missing status error")
	}
}

func TestPollHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Unauthorized"}}`))
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL}, printer.NewState(), &fakeNotifier{}, logx.Nop())
	err := p.Poll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("err = %v", err)
	}
}
