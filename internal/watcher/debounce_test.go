package watcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func(path string) {
		calls.Add(1)
	})
	for i := 0; i < 10; i++ {
		d.Hit("/drop/a.csv")
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	d.Stop()
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}
}

func TestDebouncer_NeverConcurrentPerPath(t *testing.T) {
	var active atomic.Int32
	var overlapped atomic.Bool
	var calls atomic.Int32
	d := NewDebouncer(5*time.Millisecond, func(path string) {
		if active.Add(1) > 1 {
			overlapped.Store(true)
		}
		calls.Add(1)
		time.Sleep(40 * time.Millisecond)
		active.Add(-1)
	})

	d.Hit("/drop/a.csv")
	time.Sleep(20 * time.Millisecond) // handler now running
	d.Hit("/drop/a.csv")              // must queue, not overlap
	time.Sleep(150 * time.Millisecond)
	d.Stop()

	if overlapped.Load() {
		t.Fatalf("same path handled concurrently with itself")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("handler ran %d times, want 2 (one per burst)", got)
	}
}

func TestDebouncer_DistinctPathsRunInParallel(t *testing.T) {
	var mu sync.Mutex
	start := make(map[string]time.Time)
	release := make(chan struct{})
	d := NewDebouncer(time.Millisecond, func(path string) {
		mu.Lock()
		start[path] = time.Now()
		mu.Unlock()
		<-release
	})
	d.Hit("/drop/a.csv")
	d.Hit("/drop/b.csv")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	both := len(start) == 2
	mu.Unlock()
	close(release)
	d.Stop()
	if !both {
		t.Fatalf("distinct paths did not run in parallel: %v", start)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func(path string) { calls.Add(1) })
	d.Hit("/drop/a.csv")
	d.Stop()
	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("stopped debouncer still fired %d times", got)
	}
}
