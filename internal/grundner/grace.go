package grundner

import (
	"sync"
	"time"
)

// Grace tracks allocation conflicts across poll cycles. A material must
// stay in conflict for two consecutive observations before it alerts, and
// alerts at most once per sustained conflict; clearing and re-entering
// conflict starts over. Entries not refreshed within the TTL are dropped,
// so a stalled poller cannot alert from stale state.
type Grace struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*graceEntry
}

type graceEntry struct {
	consecutive int
	alerted     bool
	seenAt      time.Time
}

func NewGrace(ttl time.Duration) *Grace {
	return &Grace{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*graceEntry),
	}
}

// Observe records the materials currently in conflict and returns the
// subset whose alert is due on this cycle.
func (g *Grace) Observe(keys []string) []string {
	now := g.now()
	current := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		current[k] = struct{}{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for key, e := range g.entries {
		if _, still := current[key]; !still {
			delete(g.entries, key)
			continue
		}
		if now.Sub(e.seenAt) > g.ttl {
			delete(g.entries, key)
		}
	}

	var due []string
	for _, key := range keys {
		e, ok := g.entries[key]
		if !ok {
			e = &graceEntry{}
			g.entries[key] = e
		}
		e.consecutive++
		e.seenAt = now
		if e.consecutive >= 2 && !e.alerted {
			e.alerted = true
			due = append(due, key)
		}
	}
	return due
}

// Drain forgets every tracked conflict. Called on shutdown.
func (g *Grace) Drain() {
	g.mu.Lock()
	g.entries = make(map[string]*graceEntry)
	g.mu.Unlock()
}
