package sanity

import (
	"context"
	"time"

	"github.com/nestlogic/floorwatch/internal/ingest"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

const sourceInterval = 30 * time.Second

// SourcePoller prunes PENDING jobs whose NC file disappeared from the
// processed-jobs root. It shares the ingest loop's scanner and pruner so
// the two cannot disagree on key derivation or deletion rules.
type SourcePoller struct {
	scanner  *ingest.Scanner
	pruner   *ingest.Pruner
	registry *watcher.Registry
	log      *logger.Logger
	interval time.Duration
}

func NewSourcePoller(scanner *ingest.Scanner, pruner *ingest.Pruner, registry *watcher.Registry, baseLog *logger.Logger) *SourcePoller {
	return &SourcePoller{
		scanner:  scanner,
		pruner:   pruner,
		registry: registry,
		log:      baseLog.With("component", "SourceSanity"),
		interval: sourceInterval,
	}
}

func (p *SourcePoller) Run(ctx context.Context) error {
	p.registry.Register("source-sanity", "Processed jobs reconciler")
	p.registry.Ready("source-sanity")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval):
		}
		if err := p.Tick(ctx); err != nil {
			p.registry.Error("source-sanity", err, nil)
		}
	}
}

func (p *SourcePoller) Tick(ctx context.Context) error {
	_, keys, err := p.scanner.Keys()
	if err != nil {
		return err
	}
	removed, err := p.pruner.PruneMissing(ctx, keys)
	if err != nil {
		return err
	}
	if removed > 0 {
		p.log.Info("orphaned pending jobs pruned", "count", removed)
	}
	return nil
}
