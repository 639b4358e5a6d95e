package grundner

import (
	"testing"
	"time"
)

func TestParseStockWithHeaderSynonyms(t *testing.T) {
	body := "type,customer,length,width,thickness,stock,available,reserved,name\n" +
		"18,C1,2800,2070,18.5,20,15,5,MDF18\n" +
		"12,,2500,1250,12,8,8,0,HPL12\n"
	rows, err := ParseStock([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	r := rows[0]
	if r.TypeData != 18 || r.CustomerID != "C1" || r.Name != "MDF18" {
		t.Fatalf("identity fields wrong: %#v", r)
	}
	if r.LengthMm != 2800 || r.WidthMm != 2070 || r.ThicknessMm != 18.5 {
		t.Fatalf("dimensions wrong: %#v", r)
	}
	if r.Stock != 20 || r.StockAvailable != 15 || r.ReservedStock != 5 {
		t.Fatalf("counts wrong: %#v", r)
	}
}

func TestParseStockPositionalFallback(t *testing.T) {
	// Headerless export: fixed positions 0,1,3,4,5,7,8 and reserved at 14.
	body := "18;C1;x;2800;2070;18.5;x;20;15;x;x;x;x;x;5\n"
	rows, err := ParseStock([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.TypeData != 18 || r.CustomerID != "C1" || r.LengthMm != 2800 ||
		r.WidthMm != 2070 || r.ThicknessMm != 18.5 ||
		r.Stock != 20 || r.StockAvailable != 15 || r.ReservedStock != 5 {
		t.Fatalf("positional parse wrong: %#v", r)
	}
}

func TestParseStockReservedHeaderFallsBackToPosition(t *testing.T) {
	// Header present but names no reserved column: position 14 still wins.
	body := "type,customer,a,length,width,thickness,b,stock,available,c,d,e,f,g,h\n" +
		"18,C1,x,2800,2070,18,x,20,15,x,x,x,x,x,7\n"
	rows, err := ParseStock([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0].ReservedStock != 7 {
		t.Fatalf("reserved fallback wrong: %#v", rows)
	}
}

func TestParseStockSkipsSummaryLines(t *testing.T) {
	body := "type,stock\nTOTAL,99\n18,20\n\n"
	rows, err := ParseStock([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0].TypeData != 18 {
		t.Fatalf("summary line not skipped: %#v", rows)
	}
}

func TestGraceTwoCycleRule(t *testing.T) {
	g := NewGrace(120 * time.Second)
	now := time.Now()
	g.now = func() time.Time { return now }

	if due := g.Observe([]string{"MDF18"}); len(due) != 0 {
		t.Fatalf("alert fired on first observation: %v", due)
	}
	now = now.Add(10 * time.Second)
	if due := g.Observe([]string{"MDF18"}); len(due) != 1 || due[0] != "MDF18" {
		t.Fatalf("second consecutive observation due = %v, want [MDF18]", due)
	}
	now = now.Add(10 * time.Second)
	if due := g.Observe([]string{"MDF18"}); len(due) != 0 {
		t.Fatalf("sustained conflict alerted twice: %v", due)
	}
}

func TestGraceClearingResets(t *testing.T) {
	g := NewGrace(120 * time.Second)
	g.Observe([]string{"MDF18"})
	g.Observe(nil) // conflict cleared
	if due := g.Observe([]string{"MDF18"}); len(due) != 0 {
		t.Fatalf("cleared conflict alerted on re-entry first cycle: %v", due)
	}
	if due := g.Observe([]string{"MDF18"}); len(due) != 1 {
		t.Fatalf("re-sustained conflict did not alert: %v", due)
	}
}

func TestGraceTTLExpiry(t *testing.T) {
	g := NewGrace(120 * time.Second)
	now := time.Now()
	g.now = func() time.Time { return now }

	g.Observe([]string{"MDF18"})
	now = now.Add(121 * time.Second)
	// Entry expired: this counts as a fresh first observation.
	if due := g.Observe([]string{"MDF18"}); len(due) != 0 {
		t.Fatalf("stale observation counted toward grace: %v", due)
	}
}
