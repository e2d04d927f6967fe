// Package printer holds the in-memory view of the current print job.
package printer

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// Status mirrors Klipper's print_stats.state.
type Status string

const (
	StatusStandby   Status = "standby"
	StatusPrinting  Status = "printing"
	StatusPaused    Status = "paused"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// State is safe for concurrent use.
type State struct {
	mu sync.RWMutex

	status   Status
	filename string
	message  string

	elapsed  float64 // seconds actually printing
	progress float64 // 0..1
	z        float64

	now func() time.Time
}

func NewState() *State {
	return &State{status: StatusStandby, now: time.Now}
}

// Running reports whether a job is printing (paused counts as running).
func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusPrinting || s.status == StatusPaused
}

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *State) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *State) Filename() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filename
}

func (s *State) SetFilename(name string) {
	s.mu.Lock()
	s.filename = name
	s.mu.Unlock()
}

// Message is the last display status (M117) reported by the printer.
func (s *State) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

func (s *State) SetMessage(m string) {
	s.mu.Lock()
	s.message = m
	s.mu.Unlock()
}

func (s *State) ElapsedSeconds() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed
}

func (s *State) SetElapsedSeconds(n float64) {
	s.mu.Lock()
	s.elapsed = n
	s.mu.Unlock()
}

// Progress is the file progress in [0, 1].
func (s *State) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

func (s *State) SetProgress(p float64) {
	s.mu.Lock()
	s.progress = math.Max(0, math.Min(1, p))
	s.mu.Unlock()
}

func (s *State) Z() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.z
}

func (s *State) SetZ(z float64) {
	s.mu.Lock()
	s.z = z
	s.mu.Unlock()
}

// ETAMessage estimates the remaining time from elapsed time and progress.
// It returns "Estimated time left: H:MM:SS\nFinish at YYYY-MM-DD HH:MM\n",
// or an empty string when there is not enough data.
func (s *State) ETAMessage() string {
	s.mu.RLock()
	elapsed, progress, now := s.elapsed, s.progress, s.now
	s.mu.RUnlock()

	if elapsed <= 0 || progress <= 0 {
		return ""
	}
	left := elapsed/progress - elapsed
	d := time.Duration(math.Round(left)) * time.Second
	finish := now().Add(d)

	var b strings.Builder
	fmt.Fprintf(&b, "Estimated time left: %s\n", FormatDuration(d))
	fmt.Fprintf(&b, "Finish at %s\n", finish.Format("2006-01-02 15:04"))
	return b.String()
}

// FormatDuration renders d as H:MM:SS with total hours, rounded to seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", sec/3600, sec/60%60, sec%60)
}
