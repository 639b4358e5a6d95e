package autopac

import (
	"fmt"
	"testing"

	types "github.com/nestlogic/floorwatch/internal/domain"
)

func testMachine() *types.Machine {
	return &types.Machine{ID: 1, Name: "WT1"}
}

func TestValidateRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "  \r\n "},
		{"no delimiter", "JOB001\nJOB002\n"},
		{"token missing", "JOB001,7\nJOB002,7\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, kind, reason := validate([]byte(c.body), testMachine()); kind == rejectNone || reason == "" {
				t.Fatalf("expected rejection for %q", c.body)
			}
		})
	}
}

func TestValidateAcceptsTokenByNameOrID(t *testing.T) {
	for _, body := range []string{
		"JOB001,1\n",
		"JOB001,WT1\n",
		"JOB001;wt-1\n",
	} {
		if _, kind, reason := validate([]byte(body), testMachine()); kind != rejectNone {
			t.Fatalf("body %q rejected: %s", body, reason)
		}
	}
}

func TestValidateClassifiesTokenMismatch(t *testing.T) {
	_, kind, reason := validate([]byte("JOB001,99\n"), testMachine())
	if kind != rejectTokenMismatch || reason == "" {
		t.Fatalf("kind = %v, reason = %q, want token mismatch", kind, reason)
	}
	// An empty file is a per-machine shape problem, not a misrouted drop.
	if _, kind, _ := validate(nil, testMachine()); kind == rejectTokenMismatch {
		t.Fatalf("empty file classified as token mismatch")
	}
}

func TestExtractNcBases(t *testing.T) {
	rows := [][]string{
		{"JOB001", "1"},
		{"JOB001.nc", "1"}, // dedup happens per cell text, not per base
		{"JOB-2_a.b", "1"},
		{"42", "1"}, // all-numeric program names are legal
		{"bad name!", "1"},
		{"JOB001", "1"}, // duplicate
	}
	got := extractNcBases(rows)
	want := []string{"JOB001", "JOB001.nc", "JOB-2_a.b", "42"}
	if len(got) != len(want) {
		t.Fatalf("bases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bases[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestHashCacheSeen(t *testing.T) {
	c := NewHashCache(2)
	h1 := Hash([]byte("body-1"))
	if c.Seen("/drop/a.csv", h1) {
		t.Fatalf("first sight reported as seen")
	}
	if !c.Seen("/drop/a.csv", h1) {
		t.Fatalf("identical re-drop not deduplicated")
	}
	if c.Seen("/drop/a.csv", Hash([]byte("body-2"))) {
		t.Fatalf("changed content reported as seen")
	}

	// Eviction: two newer paths push a.csv out of the bounded cache.
	c.Seen("/drop/b.csv", h1)
	c.Seen("/drop/c.csv", h1)
	if c.Seen("/drop/a.csv", Hash([]byte("body-2"))) {
		t.Fatalf("evicted entry still deduplicating")
	}
}

func TestHashCacheDefaultBound(t *testing.T) {
	c := NewHashCache(DefaultHashEntries)
	h := Hash([]byte("body"))
	c.Seen("/drop/first.csv", h)
	for i := 0; i < DefaultHashEntries; i++ {
		c.Seen(fmt.Sprintf("/drop/f%03d.csv", i), h)
	}
	if c.Seen("/drop/first.csv", h) {
		t.Fatalf("oldest entry survived past the cache bound")
	}
}
