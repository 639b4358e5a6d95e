// Package sanity reconciles database state against filesystem reality. The
// stage poller reverts STAGED jobs whose NC file left the machine's staging
// folder; the source poller prunes PENDING jobs whose source file left the
// processed-jobs root.
package sanity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/nestlogic/floorwatch/internal/autopac"
	"github.com/nestlogic/floorwatch/internal/data/repos"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/lifecycle"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	pkgerrors "github.com/nestlogic/floorwatch/internal/pkg/errors"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

const stageInterval = 10 * time.Second

// StagePoller verifies that every STAGED job still has its NC file under
// the assigned machine's staging folder, reverting the reservation when it
// does not.
type StagePoller struct {
	jobs     repos.JobRepo
	machines repos.MachineRepo
	engine   *lifecycle.Engine
	release  *lifecycle.ReleaseSet
	prodlist autopac.ProductionListPublisher
	notify   realtime.Notifier
	registry *watcher.Registry
	log      *logger.Logger
	interval time.Duration
}

func NewStagePoller(jobRepo repos.JobRepo, machineRepo repos.MachineRepo, engine *lifecycle.Engine, release *lifecycle.ReleaseSet, prodlist autopac.ProductionListPublisher, notify realtime.Notifier, registry *watcher.Registry, baseLog *logger.Logger) *StagePoller {
	return &StagePoller{
		jobs:     jobRepo,
		machines: machineRepo,
		engine:   engine,
		release:  release,
		prodlist: prodlist,
		notify:   notify,
		registry: registry,
		log:      baseLog.With("component", "StageSanity"),
		interval: stageInterval,
	}
}

func (p *StagePoller) Run(ctx context.Context) error {
	p.registry.Register("stage-sanity", "Staged job reconciler")
	p.registry.Ready("stage-sanity")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval):
		}
		if err := p.Tick(ctx); err != nil {
			p.registry.Error("stage-sanity", err, nil)
		}
	}
}

func (p *StagePoller) Tick(ctx context.Context) error {
	dbc := dbctx.Context{Ctx: ctx}
	staged, err := p.jobs.ListByStatus(dbc, types.StatusStaged)
	if err != nil {
		return err
	}

	byMachine := make(map[int64][]*types.Job)
	for _, job := range staged {
		if job.MachineID == nil {
			continue
		}
		byMachine[*job.MachineID] = append(byMachine[*job.MachineID], job)
	}

	for machineID, jobs := range byMachine {
		machine, err := p.machines.Get(dbc, machineID)
		if err != nil {
			return err
		}
		if machine == nil || machine.APJobfolder == "" {
			continue
		}
		present, err := scanNcBases(machine.APJobfolder)
		if err != nil {
			// Unreachable share; leave the machine alone this tick.
			p.log.Warn("staging folder unreadable, skipping machine",
				"machine", machineID, "folder", machine.APJobfolder, "error", err)
			continue
		}

		var reverted []*types.Job
		for _, job := range jobs {
			if _, ok := present[strings.ToLower(job.NcFile)]; ok {
				continue
			}
			if p.revert(ctx, job, machineID) {
				reverted = append(reverted, job)
			}
		}
		if len(reverted) > 0 {
			// The release set carries bare base names, matching jobs.ncfile;
			// the production list wants the on-disk file name.
			bases := make([]string, len(reverted))
			files := make([]string, len(reverted))
			for i, job := range reverted {
				bases[i] = job.NcFile
				files[i] = job.NcFile + ".nc"
			}
			p.release.Mark(bases...)
			if err := p.prodlist.PublishDelete(ctx, &machineID, files); err != nil {
				p.log.Error("production list delete publish failed", "machine", machineID, "error", err)
			}
			p.log.Info("staged jobs reverted", "machine", machineID, "count", len(reverted))
		}
	}
	return nil
}

func (p *StagePoller) revert(ctx context.Context, job *types.Job, machineID int64) bool {
	err := p.engine.Advance(ctx, lifecycle.Request{
		Key:     job.Key,
		To:      types.StatusPending,
		Source:  lifecycle.SourceStageSanity,
		Kind:    "worklist:revert:missing-nc",
		Payload: map[string]any{"machine_id": machineID},
	})
	switch {
	case err == nil:
		p.notify.AppMessage("job.ready.missing", map[string]any{
			"key":     job.Key,
			"ncfile":  job.NcFile,
			"machine": machineID,
		}, "stage-sanity")
		return true
	case errors.Is(err, pkgerrors.ErrStaleState), errors.Is(err, pkgerrors.ErrUnknownJob):
		// Moved on or pruned between the list and the lock; nothing to undo.
		return false
	default:
		p.registry.Error("stage-sanity", fmt.Errorf("revert %s: %w", job.Key, err), nil)
		return false
	}
}

// scanNcBases collects the lowercased base names of every NC file anywhere
// under root.
func scanNcBases(root string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".nc") {
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			out[strings.ToLower(base)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
