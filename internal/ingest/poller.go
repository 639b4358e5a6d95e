package ingest

import (
	"context"
	"math/rand"
	"time"

	"github.com/nestlogic/floorwatch/internal/data/repos"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

const (
	defaultInterval = 5 * time.Second
	tickJitter      = time.Second
)

// Poller synchronizes the jobs table with the processed-jobs root on a
// fixed period. A tick runs to completion before the next one is
// considered, so ticks never overlap.
type Poller struct {
	scanner  *Scanner
	pruner   *Pruner
	jobs     repos.JobRepo
	notify   realtime.Notifier
	registry *watcher.Registry
	log      *logger.Logger
	interval time.Duration
}

func NewPoller(scanner *Scanner, pruner *Pruner, jobRepo repos.JobRepo, notify realtime.Notifier, registry *watcher.Registry, baseLog *logger.Logger) *Poller {
	return &Poller{
		scanner:  scanner,
		pruner:   pruner,
		jobs:     jobRepo,
		notify:   notify,
		registry: registry,
		log:      baseLog.With("component", "IngestPoller"),
		interval: defaultInterval,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.registry.Register("ingest", "Processed jobs ingest")
	p.registry.Ready("ingest")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval + time.Duration(rand.Int63n(int64(tickJitter)))):
		}
		if err := p.Tick(ctx); err != nil {
			p.registry.Error("ingest", err, nil)
		}
	}
}

// Tick performs one synchronization pass: upsert every NC file found on
// disk, then prune PENDING rows with no backing file. Running it repeatedly
// over an unchanged tree is a no-op after the first pass.
func (p *Poller) Tick(ctx context.Context) error {
	scanned, err := p.scanner.Scan()
	if err != nil {
		return err
	}

	dbc := dbctx.Context{Ctx: ctx}
	var inserts []*types.Job
	for _, found := range scanned {
		existing, err := p.jobs.Get(dbc, found.Key)
		if err != nil {
			return err
		}
		if existing == nil {
			inserts = append(inserts, &types.Job{
				Key:       found.Key,
				Folder:    found.Folder,
				NcFile:    found.NcFile,
				Material:  found.Material,
				Parts:     found.Parts,
				Size:      found.Size,
				Thickness: found.Thickness,
				DateAdded: time.Now().UTC(),
				Status:    types.StatusPending,
			})
			continue
		}
		if updates := attributeChanges(existing, found); len(updates) > 0 {
			if err := p.jobs.UpdateFields(dbc, found.Key, updates); err != nil {
				return err
			}
			p.notify.AppMessage("job.updated", map[string]any{"key": found.Key}, "ingest")
		}
	}

	if len(inserts) > 0 {
		if err := p.jobs.Create(dbc, inserts); err != nil {
			return err
		}
		for _, job := range inserts {
			p.notify.AppMessage("job.detected", map[string]any{
				"key":      job.Key,
				"material": job.Material,
				"parts":    job.Parts,
			}, "ingest")
		}
		p.log.Info("jobs detected", "count", len(inserts))
	}

	_, keys, err := p.scanner.Keys()
	if err != nil {
		return err
	}
	removed, err := p.pruner.PruneMissing(ctx, keys)
	if err != nil {
		return err
	}
	if removed > 0 {
		p.log.Info("pending jobs pruned", "count", removed)
	}
	return nil
}

// attributeChanges diffs the non-key columns the sidecar owns.
func attributeChanges(existing *types.Job, found ScannedJob) map[string]interface{} {
	updates := map[string]interface{}{}
	if found.Material != "" && found.Material != existing.Material {
		updates["material"] = found.Material
	}
	if found.Parts != 0 && found.Parts != existing.Parts {
		updates["parts"] = found.Parts
	}
	if found.Size != "" && found.Size != existing.Size {
		updates["size"] = found.Size
	}
	if found.Thickness != 0 && found.Thickness != existing.Thickness {
		updates["thickness"] = found.Thickness
	}
	return updates
}
