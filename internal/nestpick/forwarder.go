// Package nestpick handles both directions of the downstream picking cell:
// publishing the rewritten stage CSV to the cell's hand-off folder, and
// finalizing jobs from the unstack report the cell writes back.
package nestpick

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nestlogic/floorwatch/internal/csvx"
	"github.com/nestlogic/floorwatch/internal/data/repos"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/fsx"
	"github.com/nestlogic/floorwatch/internal/lifecycle"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
)

const (
	// HandoffFileName is the single output slot the picking cell consumes.
	HandoffFileName = "Nestpick.csv"
	slotTimeout     = 5 * time.Minute

	colDestination   = "Destination"
	colSourceMachine = "SourceMachine"
	// destinationCode is the fixed drop-off the cell expects on every row.
	destinationCode = "99"
)

// Forwarder rewrites a job's stage CSV and publishes it atomically into the
// machine's hand-off folder.
type Forwarder struct {
	health repos.MachineHealthRepo
	engine *lifecycle.Engine
	notify realtime.Notifier
	log    *logger.Logger
}

func NewForwarder(healthRepo repos.MachineHealthRepo, engine *lifecycle.Engine, notify realtime.Notifier, baseLog *logger.Logger) *Forwarder {
	return &Forwarder{
		health: healthRepo,
		engine: engine,
		notify: notify,
		log:    baseLog.With("component", "NestpickForwarder"),
	}
}

// Forward runs the hand-off for a job that just reached CNC_FINISH on
// machine. On any failure it sets a COPY_FAILURE health row on the machine
// and leaves the job state untouched so the next cnc_finish evidence can
// retry.
func (f *Forwarder) Forward(ctx context.Context, job *types.Job, machine *types.Machine) error {
	dest := filepath.Join(machine.NestpickFolder, HandoffFileName)
	sourceCsv, err := f.forward(ctx, job, machine, dest)
	if err != nil {
		reason := fmt.Sprintf("hand-off for %s failed: %v", job.Key, err)
		healthCtx := map[string]any{
			"jobKey":            job.Key,
			"sourceCsv":         sourceCsv,
			"destinationFolder": machine.NestpickFolder,
		}
		machineID := machine.ID
		if herr := f.health.Set(dbctx.Context{Ctx: ctx}, &machineID, types.HealthCodeCopyFailure,
			types.HealthWarning, reason, healthCtx); herr != nil {
			f.log.Error("set COPY_FAILURE health", "machine", machine.ID, "error", herr)
		}
		f.notify.MachineHealthSet(&machineID, types.HealthCodeCopyFailure, types.HealthWarning, reason, healthCtx)
		f.notify.WorkerError("nestpick-forward", err, healthCtx)
		return err
	}
	return nil
}

func (f *Forwarder) forward(ctx context.Context, job *types.Job, machine *types.Machine, dest string) (string, error) {
	source, err := locateStageCsv(machine.APJobfolder, job)
	if err != nil {
		return "", err
	}

	if _, err := fsx.WaitForStableFile(ctx, source, 10, 300*time.Millisecond); err != nil {
		return source, fmt.Errorf("wait for %s: %w", source, err)
	}
	raw, err := os.ReadFile(source)
	if err != nil {
		return source, fmt.Errorf("read %s: %w", source, err)
	}
	rows, err := csvx.Parse(raw)
	if err != nil {
		return source, fmt.Errorf("parse %s: %w", source, err)
	}
	if len(rows) == 0 {
		return source, fmt.Errorf("stage CSV %s is empty", source)
	}

	out := rewrite(rows, machine.ID)

	if err := fsx.WaitForSlot(ctx, dest, slotTimeout); err != nil {
		return source, fmt.Errorf("hand-off slot %s: %w", dest, err)
	}
	if err := fsx.WriteFileAtomic(dest, csvx.Write(out), 0o644); err != nil {
		return source, err
	}

	machineID := machine.ID
	if err := f.engine.Advance(ctx, lifecycle.Request{
		Key:       job.Key,
		To:        types.StatusForwardedToNestpick,
		Source:    lifecycle.SourceNestpickForward,
		Kind:      "nestpick:forwarded",
		MachineID: &machineID,
		Payload:   map[string]any{"source": source, "dest": dest},
	}); err != nil {
		return source, err
	}

	if err := fsx.RemoveWithRetry(ctx, source, 3, 200*time.Millisecond); err != nil {
		f.log.Warn("stage CSV not deleted after forward", "file", source, "error", err)
	}
	if err := f.health.Clear(dbctx.Context{Ctx: ctx}, &machineID, types.HealthCodeCopyFailure); err != nil {
		f.log.Error("clear COPY_FAILURE health", "machine", machine.ID, "error", err)
	} else {
		f.notify.MachineHealthClear(&machineID, types.HealthCodeCopyFailure)
	}
	f.log.Info("job forwarded to nestpick", "job", job.Key, "dest", dest)
	return source, nil
}

// locateStageCsv finds the CSV the nesting software wrote for the job under
// the machine's staging folder: first the subdirectory named after the
// job's folder leaf, then a walk two levels deep for "<base>.csv" or a file
// starting with the base.
func locateStageCsv(stagingRoot string, job *types.Job) (string, error) {
	base := strings.ToLower(job.NcFile)

	preferred := filepath.Join(stagingRoot, job.Folder)
	if entries, err := os.ReadDir(preferred); err == nil {
		if found := matchCsv(preferred, entries, base); found != "" {
			return found, nil
		}
	}

	var found string
	root := filepath.Clean(stagingRoot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			rel, rerr := filepath.Rel(root, path)
			if rerr == nil && rel != "." && strings.Count(rel, string(filepath.Separator)) >= 2 {
				return fs.SkipDir
			}
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".csv") {
			return nil
		}
		if name == base+".csv" {
			found = path
			return fs.SkipAll
		}
		if found == "" && strings.HasPrefix(name, base) {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no stage CSV for %s under %s", job.NcFile, stagingRoot)
	}
	return found, nil
}

func matchCsv(dir string, entries []fs.DirEntry, base string) string {
	var prefix string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.HasSuffix(name, ".csv") {
			continue
		}
		if name == base+".csv" {
			return filepath.Join(dir, e.Name())
		}
		if prefix == "" && strings.HasPrefix(name, base) {
			prefix = filepath.Join(dir, e.Name())
		}
	}
	return prefix
}

// rewrite stamps the destination and source-machine columns onto every data
// row. A first row naming either column is treated as the header and
// completed in place; any other table is all data and gets the two fixed
// columns appended, under a fresh two-column header.
func rewrite(rows [][]string, machineID int64) [][]string {
	id := strconv.FormatInt(machineID, 10)

	destIdx := csvx.FindColumn(rows[0], colDestination)
	srcIdx := csvx.FindColumn(rows[0], colSourceMachine)
	if destIdx >= 0 || srcIdx >= 0 {
		header := append([]string(nil), rows[0]...)
		if destIdx < 0 {
			header = append(header, colDestination)
			destIdx = len(header) - 1
		}
		if srcIdx < 0 {
			header = append(header, colSourceMachine)
			srcIdx = len(header) - 1
		}
		out := [][]string{header}
		for _, row := range rows[1:] {
			cells := append([]string(nil), row...)
			for len(cells) <= destIdx || len(cells) <= srcIdx {
				cells = append(cells, "")
			}
			cells[destIdx] = destinationCode
			cells[srcIdx] = id
			out = append(out, cells)
		}
		return out
	}

	out := [][]string{{colDestination, colSourceMachine}}
	for _, row := range rows {
		cells := append(append([]string(nil), row...), destinationCode, id)
		out = append(out, cells)
	}
	return out
}
