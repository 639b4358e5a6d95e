package realtime

import (
	"sync"
	"time"
)

// Coalescer folds bursts of refresh hints on the same key into one callback
// after the delay elapses. The notification relay and the inventory poller
// both use it with a 250 ms window so UI clients reload once per burst.
type Coalescer struct {
	delay time.Duration
	fire  func(key string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewCoalescer(delay time.Duration, fire func(key string)) *Coalescer {
	return &Coalescer{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

// Kick schedules (or extends) the callback for key.
func (c *Coalescer) Kick(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if t, ok := c.timers[key]; ok {
		t.Reset(c.delay)
		return
	}
	c.timers[key] = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		delete(c.timers, key)
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			c.fire(key)
		}
	})
}

// Stop cancels every pending callback.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
	}
}
