package nestpick

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nestlogic/floorwatch/internal/csvx"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/fsx"
	"github.com/nestlogic/floorwatch/internal/lifecycle"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	pkgerrors "github.com/nestlogic/floorwatch/internal/pkg/errors"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

// ReportFileName is the completion report the picking cell writes back into
// the hand-off folder.
const ReportFileName = "Report_FullNestpickUnstack.csv"

// JobFinder is the lookup surface the unstack watcher needs from the jobs
// repository.
type JobFinder interface {
	FindByNcBasePreferStatus(dbc dbctx.Context, base string, preferred []types.JobStatus) (*types.Job, error)
	SetPallet(dbc dbctx.Context, key string, pallet *string) error
}

// UnstackWatcher finalizes jobs from one machine's unstack report.
type UnstackWatcher struct {
	machine  *types.Machine
	debounce time.Duration
	jobs     JobFinder
	engine   *lifecycle.Engine
	notify   realtime.Notifier
	registry *watcher.Registry
	log      *logger.Logger
}

func NewUnstackWatcher(machine *types.Machine, debounce time.Duration, jobs JobFinder, engine *lifecycle.Engine, notify realtime.Notifier, registry *watcher.Registry, baseLog *logger.Logger) *UnstackWatcher {
	return &UnstackWatcher{
		machine:  machine,
		debounce: debounce,
		jobs:     jobs,
		engine:   engine,
		notify:   notify,
		registry: registry,
		log:      baseLog.With("watcher", "nestpick-unstack", "machine", machine.ID),
	}
}

func (w *UnstackWatcher) name() string {
	return fmt.Sprintf("nestpick-unstack-%d", w.machine.ID)
}

// Run watches the machine's hand-off folder for the unstack report until
// ctx is cancelled. An unmounted hand-off folder degrades this watcher
// only; the watch is retried until the share comes back.
func (w *UnstackWatcher) Run(ctx context.Context) error {
	name := w.name()
	w.registry.Register(name, fmt.Sprintf("Nestpick unstack report (%s)", w.machine.Name))
	return watcher.Supervise(ctx, w.registry, name, watcher.RetryInterval, func() *watcher.DirWatcher {
		return watcher.NewDirWatcher(w.machine.NestpickFolder, 1, w.debounce,
			func(path string) bool { return strings.EqualFold(filepath.Base(path), ReportFileName) },
			func(path string) { w.Process(ctx, path) },
			w.log)
	})
}

// Process consumes one report: each row maps an NC base to the pallet the
// parts were unstacked onto.
func (w *UnstackWatcher) Process(ctx context.Context, path string) {
	if _, err := fsx.WaitForStableFile(ctx, path, 10, 300*time.Millisecond); err != nil {
		w.registry.Error(w.name(), fmt.Errorf("wait for %s: %w", path, err), nil)
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		w.registry.Error(w.name(), fmt.Errorf("read %s: %w", path, err), nil)
		return
	}
	rows, err := csvx.Parse(raw)
	if err != nil {
		w.registry.Error(w.name(), fmt.Errorf("parse %s: %w", path, err), nil)
		return
	}

	var unmatched []string
	completed := 0
	for _, row := range rows {
		base := csvx.Column(row, 0)
		if base == "" {
			continue
		}
		pallet := csvx.Column(row, 1)
		if done, ok := w.finalize(ctx, base, pallet); ok {
			completed += done
		} else {
			unmatched = append(unmatched, base)
		}
	}

	if err := archiveReport(path); err != nil {
		w.registry.Error(w.name(), err, nil)
	}
	if len(unmatched) > 0 {
		w.notify.UserAlert("Nestpick unstack: unmatched programs",
			fmt.Sprintf("no forwarded job found for: %s", strings.Join(unmatched, ", ")))
	}
	if completed > 0 {
		w.registry.Event(w.name(), fmt.Sprintf("%d job(s) completed", completed), nil)
	}
}

// finalize returns (1, true) when a job was completed, (0, true) when the
// row was consumed idempotently, and (0, false) when no job matched.
func (w *UnstackWatcher) finalize(ctx context.Context, base, pallet string) (int, bool) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := w.jobs.FindByNcBasePreferStatus(dbc, base,
		[]types.JobStatus{types.StatusForwardedToNestpick})
	if err != nil {
		w.registry.Error(w.name(), fmt.Errorf("lookup %q: %w", base, err), nil)
		return 0, true
	}
	if job == nil {
		return 0, false
	}

	var palletPtr *string
	if pallet != "" {
		palletPtr = &pallet
	}
	if err := w.jobs.SetPallet(dbc, job.Key, palletPtr); err != nil {
		w.registry.Error(w.name(), fmt.Errorf("set pallet for %s: %w", job.Key, err), nil)
		return 0, true
	}

	// MachineID stays nil: the picking cell has no machine identity and
	// must not overwrite the router recorded at staging.
	err = w.engine.Advance(ctx, lifecycle.Request{
		Key:     job.Key,
		To:      types.StatusNestpickComplete,
		Source:  lifecycle.SourceNestpickUnstack,
		Kind:    "nestpick:unstack",
		Payload: map[string]any{"pallet": pallet},
	})
	switch {
	case err == nil:
		return 1, true
	case errors.Is(err, pkgerrors.ErrStaleState):
		return 0, true
	default:
		w.registry.Error(w.name(), fmt.Errorf("complete %s: %w", job.Key, err), nil)
		return 0, true
	}
}

// archiveReport moves the consumed report into the archive subfolder,
// suffixing the name with millis when a previous archive already exists.
func archiveReport(path string) error {
	dir := filepath.Join(filepath.Dir(path), "archive")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + fmt.Sprintf("_%d", time.Now().UnixMilli()) + ext
	}
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}
