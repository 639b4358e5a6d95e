package lifecycle

import (
	"strings"
	"sync"
	"time"
)

// ReleaseSet tracks NC names whose reservation the daemon itself is in the
// middle of releasing. The inventory poller consults it to suppress
// allocation-conflict alerts that would otherwise fire while the storage
// system catches up. Entries expire after the configured TTL; stage sanity
// marks names for 60 seconds.
type ReleaseSet struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewReleaseSet(ttl time.Duration) *ReleaseSet {
	return &ReleaseSet{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

// Mark records names as pending release, refreshing the deadline for names
// already present. Names are folded to lower case; NC lookups elsewhere are
// case-insensitive too.
func (s *ReleaseSet) Mark(names ...string) {
	deadline := s.now().Add(s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			s.entries[name] = deadline
		}
	}
}

// Active prunes expired entries and returns the surviving names.
func (s *ReleaseSet) Active() []string {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name, deadline := range s.entries {
		if now.After(deadline) {
			delete(s.entries, name)
			continue
		}
		out = append(out, name)
	}
	return out
}

// Contains reports whether name is still marked.
func (s *ReleaseSet) Contains(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.entries[name]
	if !ok {
		return false
	}
	if now.After(deadline) {
		delete(s.entries, name)
		return false
	}
	return true
}

// Drain empties the set. Called on shutdown.
func (s *ReleaseSet) Drain() {
	s.mu.Lock()
	s.entries = make(map[string]time.Time)
	s.mu.Unlock()
}
