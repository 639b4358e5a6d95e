package lifecycle

import (
	"testing"
	"time"
)

func TestReleaseSet_MarkAndExpire(t *testing.T) {
	s := NewReleaseSet(60 * time.Second)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Mark("J2.nc", "  other.NC ")
	if !s.Contains("j2.nc") || !s.Contains("OTHER.nc") {
		t.Fatalf("expected case-insensitive membership")
	}
	if got := len(s.Active()); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}

	now = now.Add(61 * time.Second)
	if s.Contains("j2.nc") {
		t.Fatalf("entry survived past TTL")
	}
	if got := len(s.Active()); got != 0 {
		t.Fatalf("active after expiry = %d, want 0", got)
	}
}

func TestReleaseSet_MarkRefreshesDeadline(t *testing.T) {
	s := NewReleaseSet(60 * time.Second)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Mark("a.nc")
	now = now.Add(50 * time.Second)
	s.Mark("a.nc")
	now = now.Add(50 * time.Second)
	if !s.Contains("a.nc") {
		t.Fatalf("re-mark did not refresh deadline")
	}
}

func TestReleaseSet_Drain(t *testing.T) {
	s := NewReleaseSet(time.Minute)
	s.Mark("a.nc", "b.nc")
	s.Drain()
	if len(s.Active()) != 0 {
		t.Fatalf("drain left entries behind")
	}
}
