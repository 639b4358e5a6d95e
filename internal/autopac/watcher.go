// Package autopac consumes the stage-completion CSVs the upstream scheduler
// drops as jobs move through load, label and cut, and advances the affected
// jobs' lifecycle. It also owns the reverse channel: production-list-delete
// publications back to the scheduler.
package autopac

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nestlogic/floorwatch/internal/data/repos"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/fsx"
	"github.com/nestlogic/floorwatch/internal/lifecycle"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	pkgerrors "github.com/nestlogic/floorwatch/internal/pkg/errors"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

var (
	fileNameRe = regexp.MustCompile(`(?i)^(load_finish|label_finish|cnc_finish)[-_ ]?(.+)\.csv$`)
	ncBaseRe   = regexp.MustCompile(`(?i)^[a-z0-9_.-]+(?:\.nc)?$`)
)

var stageTargets = map[string]types.JobStatus{
	"load_finish":  types.StatusLoadFinish,
	"label_finish": types.StatusLabelFinish,
	"cnc_finish":   types.StatusCncFinish,
}

// Forwarder hands a freshly cut job to the downstream picking cell. The
// nestpick package provides the implementation; the indirection keeps this
// package below it in the import graph.
type Forwarder interface {
	Forward(ctx context.Context, job *types.Job, machine *types.Machine) error
}

// Watcher processes AutoPAC status CSVs dropped under its directory
// (three levels deep).
type Watcher struct {
	dir       string
	debounce  time.Duration
	jobs      repos.JobRepo
	machines  repos.MachineRepo
	health    repos.MachineHealthRepo
	engine    *lifecycle.Engine
	forwarder Forwarder
	hashes    *HashCache
	notify    realtime.Notifier
	registry  *watcher.Registry
	log       *logger.Logger
}

func NewWatcher(dir string, debounce time.Duration, jobRepo repos.JobRepo, machineRepo repos.MachineRepo, healthRepo repos.MachineHealthRepo, engine *lifecycle.Engine, forwarder Forwarder, hashes *HashCache, notify realtime.Notifier, registry *watcher.Registry, baseLog *logger.Logger) *Watcher {
	return &Watcher{
		dir:       dir,
		debounce:  debounce,
		jobs:      jobRepo,
		machines:  machineRepo,
		health:    healthRepo,
		engine:    engine,
		forwarder: forwarder,
		hashes:    hashes,
		notify:    notify,
		registry:  registry,
		log:       baseLog.With("watcher", "autopac"),
	}
}

// Run watches the drop directory until ctx is cancelled. A drop directory
// that cannot be watched degrades this component only; the watch is
// retried until the share comes back.
func (w *Watcher) Run(ctx context.Context) error {
	w.registry.Register("autopac", "AutoPAC status CSVs")
	return watcher.Supervise(ctx, w.registry, "autopac", watcher.RetryInterval, func() *watcher.DirWatcher {
		return watcher.NewDirWatcher(w.dir, 3, w.debounce,
			func(path string) bool { return fileNameRe.MatchString(filepath.Base(path)) },
			func(path string) { w.Process(ctx, path) },
			w.log)
	})
}

// Process handles one dropped CSV end to end. Errors are reported through
// the registry and health rows; nothing propagates to the watch loop.
func (w *Watcher) Process(ctx context.Context, path string) {
	m := fileNameRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return
	}
	stage := strings.ToLower(m[1])
	token := m[2]

	if _, err := fsx.WaitForStableFile(ctx, path, 10, 300*time.Millisecond); err != nil {
		w.registry.Error("autopac", fmt.Errorf("wait for %s: %w", path, err), nil)
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		w.registry.Error("autopac", fmt.Errorf("read %s: %w", path, err), nil)
		return
	}
	if w.hashes.Seen(path, Hash(raw)) {
		w.log.Debug("duplicate CSV skipped", "file", path)
		return
	}

	dbc := dbctx.Context{Ctx: ctx}
	machine, err := w.machines.FindByToken(dbc, token)
	if err != nil {
		w.registry.Error("autopac", fmt.Errorf("resolve machine %q: %w", token, err), nil)
		return
	}
	if machine == nil {
		w.reject(ctx, path, nil, types.HealthCodeCopyFailure,
			fmt.Sprintf("%s names no known machine (token %q)", filepath.Base(path), token))
		return
	}
	machineID := machine.ID

	doc, kind, reason := validate(raw, machine)
	if kind != rejectNone {
		code := types.HealthCodeNoPartsCSV
		scope := &machineID
		if kind == rejectTokenMismatch {
			// Token mismatch suggests the file landed in the wrong drop;
			// flag it globally, not against the named machine.
			code = types.HealthCodeCopyFailure
			scope = nil
		}
		w.reject(ctx, path, scope, code, fmt.Sprintf("%s: %s", filepath.Base(path), reason))
		return
	}

	bases := extractNcBases(doc)
	if len(bases) == 0 {
		w.reject(ctx, path, &machineID, types.HealthCodeNoPartsCSV,
			fmt.Sprintf("%s contains no NC base names", filepath.Base(path)))
		return
	}

	target := stageTargets[stage]
	processed := 0
	for _, base := range bases {
		if w.advance(ctx, base, target, machine, path) {
			processed++
		}
	}

	if processed == 0 {
		w.log.Warn("no jobs matched CSV", "file", path, "bases", bases)
		return
	}

	if err := fsx.RemoveWithRetry(ctx, path, 3, 200*time.Millisecond); err != nil {
		w.registry.Error("autopac", err, map[string]any{"file": path})
	}
	w.clearHealth(ctx, &machineID, types.HealthCodeNoPartsCSV)
	w.registry.Event("autopac", fmt.Sprintf("%s: %d job(s) advanced to %s", filepath.Base(path), processed, target), nil)
}

// advance moves one job forward, returning true when the artifact is
// accounted for (accepted, already applied, or a duplicate).
func (w *Watcher) advance(ctx context.Context, base string, target types.JobStatus, machine *types.Machine, path string) bool {
	job, err := w.jobs.FindByNcBasePreferStatus(dbctx.Context{Ctx: ctx}, base, nil)
	if err != nil {
		w.registry.Error("autopac", fmt.Errorf("lookup %q: %w", base, err), nil)
		return false
	}
	if job == nil {
		w.log.Warn("CSV names unknown job", "base", base, "file", path)
		return false
	}

	machineID := machine.ID
	err = w.engine.Advance(ctx, lifecycle.Request{
		Key:       job.Key,
		To:        target,
		Source:    lifecycle.SourceAutoPac,
		MachineID: &machineID,
		Payload:   map[string]any{"file": filepath.Base(path)},
	})
	switch {
	case err == nil:
	case errors.Is(err, pkgerrors.ErrStaleState):
		// Duplicate evidence for a transition already taken elsewhere.
		return true
	case errors.Is(err, pkgerrors.ErrUnknownJob):
		return false
	default:
		w.registry.Error("autopac", fmt.Errorf("advance %s to %s: %w", job.Key, target, err), nil)
		return false
	}

	if target == types.StatusCncFinish {
		w.notify.AppMessage("cnc.completion", map[string]any{
			"key":     job.Key,
			"ncfile":  job.NcFile,
			"machine": machine.Name,
		}, "autopac")
		if w.forwarder != nil && machine.NestpickEnabled {
			if err := w.forwarder.Forward(ctx, job, machine); err != nil {
				w.log.Error("nestpick forward failed", "job", job.Key, "error", err)
			}
		}
	}
	return true
}

// reject deletes a CSV that failed validation and surfaces the reason as a
// modal alert plus a durable health row.
func (w *Watcher) reject(ctx context.Context, path string, scope *int64, code, reason string) {
	if err := fsx.RemoveWithRetry(ctx, path, 3, 200*time.Millisecond); err != nil {
		w.log.Error("delete rejected CSV", "file", path, "error", err)
	}
	w.notify.UserAlert("AutoPAC CSV rejected", reason)
	if err := w.health.Set(dbctx.Context{Ctx: ctx}, scope, code, types.HealthWarning, reason,
		map[string]any{"file": filepath.Base(path)}); err != nil {
		w.log.Error("set health", "code", code, "error", err)
	}
	w.notify.MachineHealthSet(scope, code, types.HealthWarning, reason,
		map[string]any{"file": filepath.Base(path)})
	w.log.Warn("CSV rejected", "file", path, "reason", reason)
}

func (w *Watcher) clearHealth(ctx context.Context, scope *int64, code string) {
	if err := w.health.Clear(dbctx.Context{Ctx: ctx}, scope, code); err != nil {
		w.log.Error("clear health", "code", code, "error", err)
		return
	}
	w.notify.MachineHealthClear(scope, code)
}
