package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	logx "printbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
}

type Job func(ctx context.Context)

type scheduleDef struct {
	name    string
	every   time.Duration
	job     Job
	entryID cron.EntryID

	// runMu is held for the whole run; removed is checked under it.
	runMu   sync.Mutex
	removed atomic.Bool
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	defs   map[string]*scheduleDef
}

type ScheduleInfo struct {
	Name  string
	Every time.Duration
	Next  time.Time
	Prev  time.Time
}
