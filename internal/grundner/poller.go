package grundner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nestlogic/floorwatch/internal/data/repos"
	"github.com/nestlogic/floorwatch/internal/fsx"
	"github.com/nestlogic/floorwatch/internal/lifecycle"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

const (
	pollInterval = 10 * time.Second
	replyWait    = 3 * time.Second
	graceTTL     = 120 * time.Second

	requestFileName = "stock_request.csv"
	replyFileName   = "stock.csv"
	// requestBody is the library's fixed request protocol.
	requestBody = "0\r\n!E"
)

// Poller drives the request/reply cycle against the storage system's shared
// folder and reconciles the stock table from each fresh snapshot.
type Poller struct {
	dir      string
	stock    repos.StockRepo
	release  *lifecycle.ReleaseSet
	grace    *Grace
	refresh  *realtime.Coalescer
	notify   realtime.Notifier
	registry *watcher.Registry
	log      *logger.Logger
	interval time.Duration

	lastHash string
}

func NewPoller(dir string, stockRepo repos.StockRepo, release *lifecycle.ReleaseSet, notify realtime.Notifier, registry *watcher.Registry, baseLog *logger.Logger) *Poller {
	return &Poller{
		dir:      dir,
		stock:    stockRepo,
		release:  release,
		grace:    NewGrace(graceTTL),
		refresh:  realtime.NewCoalescer(250*time.Millisecond, notify.DBNotify),
		notify:   notify,
		registry: registry,
		log:      baseLog.With("component", "GrundnerPoller"),
		interval: pollInterval,
	}
}

func (p *Poller) Run(ctx context.Context) error {
	p.registry.Register("grundner", "Grundner stock poller")
	p.registry.Ready("grundner")
	defer p.refresh.Stop()
	defer p.grace.Drain()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval):
		}
		if err := p.Tick(ctx); err != nil {
			p.registry.Error("grundner", err, nil)
		}
	}
}

// Tick runs one request/reply cycle. When a request is already in flight
// (the request file still exists) it does nothing; the library deletes the
// file once served.
func (p *Poller) Tick(ctx context.Context) error {
	requestPath := filepath.Join(p.dir, requestFileName)
	if _, err := os.Stat(requestPath); err == nil {
		return nil
	}

	if err := fsx.WriteFileAtomic(requestPath, []byte(requestBody), 0o644); err != nil {
		return fmt.Errorf("write stock request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(replyWait):
	}

	replyPath := filepath.Join(p.dir, replyFileName)
	if _, err := os.Stat(replyPath); err != nil {
		return nil
	}
	if _, err := fsx.WaitForStableFile(ctx, replyPath, 10, 300*time.Millisecond); err != nil {
		return fmt.Errorf("wait for stock reply: %w", err)
	}
	if !fsx.WaitForFileRelease(ctx, replyPath, 10, 200*time.Millisecond) {
		return fmt.Errorf("stock reply %s held open beyond the release wait", replyPath)
	}
	raw, err := os.ReadFile(replyPath)
	if err != nil {
		return fmt.Errorf("read stock reply: %w", err)
	}
	if err := fsx.RemoveWithRetry(ctx, replyPath, 3, 200*time.Millisecond); err != nil {
		p.log.Warn("stock reply not deleted", "error", err)
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	if hash == p.lastHash {
		return nil
	}
	p.lastHash = hash

	return p.applySnapshot(ctx, raw)
}

func (p *Poller) applySnapshot(ctx context.Context, raw []byte) error {
	rows, err := ParseStock(raw)
	if err != nil {
		return fmt.Errorf("parse stock reply: %w", err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	changes, err := p.stock.ReplaceSnapshot(dbc, rows)
	if err != nil {
		return err
	}
	for _, ch := range changes {
		p.notify.AppMessage("grundner.stock.updated", map[string]any{
			"type_data":    ch.TypeData,
			"customer_id":  ch.CustomerID,
			"material":     ch.Name,
			"old_reserved": ch.OldReserved,
			"new_reserved": ch.NewReserved,
		}, "grundner")
	}

	if err := p.checkConflicts(dbc); err != nil {
		return err
	}

	p.refresh.Kick("grundner")
	p.refresh.Kick("allocated-material")
	return nil
}

func (p *Poller) checkConflicts(dbc dbctx.Context) error {
	conflicts, err := p.stock.FindAllocationConflicts(dbc, p.release.Active())
	if err != nil {
		return err
	}

	byKey := make(map[string]repos.AllocationConflict, len(conflicts))
	keys := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		key := conflictKey(c)
		byKey[key] = c
		keys = append(keys, key)
	}

	due := p.grace.Observe(keys)
	if len(due) == 0 {
		return nil
	}

	details := make([]map[string]any, 0, len(due))
	for _, key := range due {
		c := byKey[key]
		details = append(details, map[string]any{
			"material": conflictKey(c),
			"reserved": c.Reserved,
			"demand":   c.Demand,
		})
	}
	p.notify.AppAlert("warning",
		fmt.Sprintf("%d material(s) with insufficient reserved stock", len(due)),
		map[string]any{"conflicts": details})
	p.log.Warn("allocation conflicts sustained", "materials", due)
	return nil
}

// conflictKey names a conflicting material for alerts and for the grace
// tracker: the material name when the export carries one, otherwise the
// type/customer pair.
func conflictKey(c repos.AllocationConflict) string {
	if c.Name != "" {
		return c.Name
	}
	key := strconv.Itoa(c.TypeData)
	if c.CustomerID != "" {
		key += "/" + c.CustomerID
	}
	return key
}
