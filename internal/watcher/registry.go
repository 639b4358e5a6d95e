// Package watcher holds the shared plumbing the file-driven components sit
// on: a registry of named watchers for the status API and UI, a per-path
// debouncer that serializes bursts of events on the same file, and an
// fsnotify-backed directory watcher with a depth bound.
package watcher

import (
	"sync"
	"time"

	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
)

type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateError    State = "error"
	StateDisabled State = "disabled"
)

// Entry is a snapshot of one registered watcher.
type Entry struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	State     State     `json:"state"`
	LastEvent string    `json:"last_event,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry tracks watcher state and mirrors every change onto the UI bus.
type Registry struct {
	notify realtime.Notifier
	log    *logger.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

func NewRegistry(notify realtime.Notifier, baseLog *logger.Logger) *Registry {
	return &Registry{
		notify:  notify,
		log:     baseLog.With("component", "WatcherRegistry"),
		entries: make(map[string]*Entry),
	}
}

func (r *Registry) Register(name, label string) {
	r.update(name, func(e *Entry) {
		e.Label = label
		e.State = StateStarting
	})
	r.notify.RegisterWatcher(name, label)
}

func (r *Registry) Ready(name string) {
	r.update(name, func(e *Entry) {
		e.State = StateReady
		e.LastError = ""
	})
	r.notify.WatcherReady(name)
	r.log.Info("watcher ready", "watcher", name)
}

// Disable marks a watcher that refused to start, typically because its
// configured path is missing. The rest of the daemon keeps running.
func (r *Registry) Disable(name, reason string) {
	r.update(name, func(e *Entry) {
		e.State = StateDisabled
		e.LastError = reason
	})
	r.notify.WatcherEvent(name, "disabled: "+reason, nil)
	r.log.Warn("watcher disabled", "watcher", name, "reason", reason)
}

func (r *Registry) Event(name, message string, context map[string]any) {
	r.update(name, func(e *Entry) {
		e.LastEvent = message
	})
	r.notify.WatcherEvent(name, message, context)
}

func (r *Registry) Error(name string, err error, context map[string]any) {
	r.update(name, func(e *Entry) {
		e.State = StateError
		e.LastError = err.Error()
	})
	r.notify.WatcherError(name, err, context)
	r.log.Error("watcher error", "watcher", name, "error", err)
}

// Snapshot returns the current entries sorted by registration name.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

func (r *Registry) update(name string, fn func(*Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		e = &Entry{Name: name}
		r.entries[name] = e
	}
	fn(e)
	e.UpdatedAt = time.Now().UTC()
}
