package watcher

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of filesystem events on the same path into one
// handler call, fired after the path has been quiet for the configured
// delay. A path is never handled concurrently with itself: events arriving
// while the handler runs re-arm the timer instead of spawning a second run.
// Distinct paths run in parallel.
type Debouncer struct {
	delay  time.Duration
	handle func(path string)

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight map[string]bool
	rearm    map[string]bool
	stopped  bool
	wg       sync.WaitGroup
}

func NewDebouncer(delay time.Duration, handle func(path string)) *Debouncer {
	return &Debouncer{
		delay:    delay,
		handle:   handle,
		timers:   make(map[string]*time.Timer),
		inflight: make(map[string]bool),
		rearm:    make(map[string]bool),
	}
}

// Hit registers activity on path, starting or resetting its quiet timer.
func (d *Debouncer) Hit(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() { d.fire(path) })
}

func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.timers, path)
	if d.inflight[path] {
		// Handler still running from the previous burst; run again once
		// it finishes.
		d.rearm[path] = true
		d.mu.Unlock()
		return
	}
	d.inflight[path] = true
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.handle(path)

		d.mu.Lock()
		delete(d.inflight, path)
		again := d.rearm[path]
		delete(d.rearm, path)
		if again && !d.stopped {
			if _, ok := d.timers[path]; !ok {
				d.timers[path] = time.AfterFunc(d.delay, func() { d.fire(path) })
			}
		}
		d.mu.Unlock()
	}()
}

// Stop cancels pending timers and waits for in-flight handlers to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
