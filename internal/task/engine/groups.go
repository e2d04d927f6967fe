package engine

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// groups hands out one weighted semaphore per concurrency group. The first
// limit seen for a group is kept for the life of the engine.
type groups struct {
	mu  sync.Mutex
	sem map[string]*semaphore.Weighted
}

// get returns nil when the task is not limited.
func (g *groups) get(t Task) *semaphore.Weighted {
	if t.Opt.ConcurrencyLimit <= 0 || t.group() == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sem == nil {
		g.sem = map[string]*semaphore.Weighted{}
	}
	s, ok := g.sem[t.group()]
	if !ok {
		s = semaphore.NewWeighted(int64(t.Opt.ConcurrencyLimit))
		g.sem[t.group()] = s
	}
	return s
}
