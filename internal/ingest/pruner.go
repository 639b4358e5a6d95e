package ingest

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nestlogic/floorwatch/internal/autopac"
	"github.com/nestlogic/floorwatch/internal/data/repos"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
)

// Pruner removes PENDING jobs whose NC file left the processed-jobs root.
// Jobs in any later state are kept for history regardless of what the
// filesystem says. Both the ingest poller and the source-sanity poller run
// it, on different periods.
type Pruner struct {
	db       *gorm.DB
	jobs     repos.JobRepo
	events   repos.JobEventRepo
	stock    repos.StockRepo
	notify   realtime.Notifier
	prodlist autopac.ProductionListPublisher
	log      *logger.Logger
}

func NewPruner(db *gorm.DB, jobRepo repos.JobRepo, eventRepo repos.JobEventRepo, stockRepo repos.StockRepo, notify realtime.Notifier, prodlist autopac.ProductionListPublisher, baseLog *logger.Logger) *Pruner {
	return &Pruner{
		db:       db,
		jobs:     jobRepo,
		events:   eventRepo,
		stock:    stockRepo,
		notify:   notify,
		prodlist: prodlist,
		log:      baseLog.With("component", "JobPruner"),
	}
}

// PruneMissing deletes every PENDING job whose key is absent from diskKeys
// and returns the number removed. Each deletion appends a prune event and
// resynchronizes the material's reservation count in the same transaction.
func (p *Pruner) PruneMissing(ctx context.Context, diskKeys []string) (int, error) {
	stale, err := p.jobs.ListPendingNotIn(dbctx.Context{Ctx: ctx}, diskKeys)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var lockedNcFiles []string
	removed := 0
	for _, job := range stale {
		pruned, err := p.pruneOne(ctx, job)
		if err != nil {
			p.log.Error("prune failed", "job", job.Key, "error", err)
			continue
		}
		if !pruned {
			continue
		}
		removed++
		if job.Locked {
			lockedNcFiles = append(lockedNcFiles, job.NcFile+".nc")
		}
		p.notify.AppMessage("job.removed", map[string]any{
			"key":      job.Key,
			"material": job.Material,
		}, "ingest")
	}

	if len(lockedNcFiles) > 0 {
		if err := p.prodlist.PublishDelete(ctx, nil, lockedNcFiles); err != nil {
			p.log.Error("production list delete publish failed", "error", err)
		}
	}
	return removed, nil
}

// pruneOne deletes one job in its own transaction. The row is re-read
// under lock first: a job that left PENDING since the listing is kept.
func (p *Pruner) pruneOne(ctx context.Context, job *types.Job) (bool, error) {
	pruned := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		current, err := p.jobs.GetForUpdate(dbc, job.Key)
		if err != nil {
			return err
		}
		if current == nil || current.Status != types.StatusPending {
			return nil
		}

		payload, _ := json.Marshal(map[string]any{
			"material":     current.Material,
			"pre_reserved": current.PreReserved,
			"locked":       current.Locked,
			"status":       current.Status,
		})
		event := &types.JobEvent{
			JobKey:    current.Key,
			Kind:      "jobs:prune:missing-source",
			Payload:   datatypes.JSON(payload),
			MachineID: current.MachineID,
		}
		if err := p.events.Append(dbc, []*types.JobEvent{event}); err != nil {
			return err
		}
		if err := p.jobs.Delete(dbc, current.Key); err != nil {
			return err
		}
		if current.Material != "" {
			if err := p.stock.ResyncReservedForMaterial(dbc, current.Material); err != nil {
				return err
			}
		}
		pruned = true
		return nil
	})
	return pruned, err
}
