// Package camera fetches still images from a webcam snapshot endpoint
// (mjpg-streamer, crowsnest, go2rtc...).
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	logx "printbot/pkg/logx"
)

var (
	ErrDisabled   = errors.New("camera disabled")
	ErrEmptyImage = errors.New("camera returned an empty image")
)

const defaultMaxBytes = 10 << 20

type Config struct {
	Enabled     bool
	SnapshotURL string
	Timeout     time.Duration
	MaxBytes    int64
}

// Camera is safe for concurrent use. Enabled can be toggled at runtime.
type Camera struct {
	enabled atomic.Bool
	cfg     atomic.Pointer[Config]

	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Camera {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Camera{http: &http.Client{}, log: log}
	c.Apply(cfg)
	return c
}

// Apply swaps the config; it is used on hot reload.
func (c *Camera) Apply(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	cfg.SnapshotURL = strings.TrimSpace(cfg.SnapshotURL)
	c.cfg.Store(&cfg)
	c.enabled.Store(cfg.Enabled && cfg.SnapshotURL != "")
}

func (c *Camera) Enabled() bool { return c.enabled.Load() }

func (c *Camera) SetEnabled(v bool) {
	c.enabled.Store(v && c.cfg.Load().SnapshotURL != "")
}

// Capture downloads one snapshot. The returned handle is seekable so it can be
// re-read for every recipient; callers must Close it.
func (c *Camera) Capture(ctx context.Context) (io.ReadSeekCloser, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	cfg := c.cfg.Load()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.SnapshotURL, nil)
	if err != nil {
		return nil, fmt.Errorf("camera: build request: %w", err)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera: fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("camera: snapshot http=%d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("camera: read snapshot: %w", err)
	}
	if int64(len(b)) > cfg.MaxBytes {
		return nil, fmt.Errorf("camera: snapshot larger than %d bytes", cfg.MaxBytes)
	}
	if len(b) == 0 {
		return nil, ErrEmptyImage
	}
	c.log.Debug("snapshot captured", logx.Int("bytes", len(b)), logx.Duration("took", time.Since(start)))
	return &Snapshot{Reader: bytes.NewReader(b)}, nil
}

// Snapshot is an in-memory image. Close releases the buffer.
type Snapshot struct {
	*bytes.Reader
}

func (s *Snapshot) Close() error {
	s.Reader.Reset(nil)
	return nil
}
