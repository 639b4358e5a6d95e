package sanity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nestlogic/floorwatch/internal/autopac"
	grundnerrepo "github.com/nestlogic/floorwatch/internal/data/repos/grundner"
	jobsrepo "github.com/nestlogic/floorwatch/internal/data/repos/jobs"
	machinesrepo "github.com/nestlogic/floorwatch/internal/data/repos/machines"
	"github.com/nestlogic/floorwatch/internal/data/repos/testutil"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/lifecycle"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
	"gorm.io/gorm"
)

type stageFixture struct {
	tx      *gorm.DB
	poller  *StagePoller
	release *lifecycle.ReleaseSet
	machine *types.Machine
	staging string
	apDir   string
}

func newStageFixture(t *testing.T) *stageFixture {
	t.Helper()
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	notify := realtime.NewNopNotifier()

	staging := t.TempDir()
	apDir := t.TempDir()

	machine := testutil.SeedMachine(t, tx, 2, "WT2")
	if err := tx.Model(&types.Machine{}).Where("id = ?", machine.ID).
		Update("ap_jobfolder", staging).Error; err != nil {
		t.Fatalf("update machine folder: %v", err)
	}
	machine.APJobfolder = staging

	jobRepo := jobsrepo.NewJobRepo(tx, log)
	eventRepo := jobsrepo.NewJobEventRepo(tx, log)
	engine := lifecycle.NewEngine(tx, jobRepo, eventRepo, log)
	release := lifecycle.NewReleaseSet(60 * time.Second)
	poller := NewStagePoller(jobRepo, machinesrepo.NewMachineRepo(tx, log), engine, release,
		autopac.NewProductionListPublisher(apDir, log), notify,
		watcher.NewRegistry(notify, log), log)

	return &stageFixture{tx: tx, poller: poller, release: release, machine: machine, staging: staging, apDir: apDir}
}

func seedStagedJob(t *testing.T, tx *gorm.DB, key, folder, nc string, machineID int64) *types.Job {
	t.Helper()
	job := testutil.SeedJob(t, tx, key, folder, nc, types.StatusStaged)
	if err := tx.Model(&types.Job{}).Where("key = ?", key).Updates(map[string]any{
		"machine_id": machineID,
		"staged_at":  gorm.Expr("now()"),
	}).Error; err != nil {
		t.Fatalf("stage job: %v", err)
	}
	return job
}

func TestStagePoller_RevertsMissingNc(t *testing.T) {
	f := newStageFixture(t)
	seedStagedJob(t, f.tx, "FolderB/J2", "FolderB", "J2", f.machine.ID)

	if err := f.poller.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var got types.Job
	if err := f.tx.Where("key = ?", "FolderB/J2").First(&got).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.Status != types.StatusPending || got.MachineID != nil || got.StagedAt != nil {
		t.Fatalf("revert incomplete: status=%s machine=%v staged=%v", got.Status, got.MachineID, got.StagedAt)
	}

	var kinds []string
	if err := f.tx.Model(&types.JobEvent{}).Where("job_key = ?", "FolderB/J2").
		Pluck("kind", &kinds).Error; err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(kinds) != 1 || kinds[0] != "worklist:revert:missing-nc" {
		t.Fatalf("events = %v", kinds)
	}

	if !f.release.Contains("j2") {
		t.Fatalf("reverted NC not marked pending release")
	}

	entries, err := os.ReadDir(f.apDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("production list delete not published: %v %v", entries, err)
	}
	raw, _ := os.ReadFile(filepath.Join(f.apDir, entries[0].Name()))
	if string(raw) != "J2.nc\n" {
		t.Fatalf("production list body = %q", raw)
	}
}

func TestStagePoller_RevertSuppressesAllocationConflict(t *testing.T) {
	f := newStageFixture(t)
	job := seedStagedJob(t, f.tx, "FolderB/JOB001", "FolderB", "JOB001", f.machine.ID)
	if err := f.tx.Model(&types.Job{}).Where("key = ?", job.Key).
		Update("pre_reserved", true).Error; err != nil {
		t.Fatalf("pre-reserve job: %v", err)
	}
	testutil.SeedStockItem(t, f.tx, 7, "MDF18", 0)

	stock := grundnerrepo.NewStockRepo(f.tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	conflicts, err := stock.FindAllocationConflicts(dbc, f.release.Active())
	if err != nil {
		t.Fatalf("conflicts before revert: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected a conflict while the job is still reserved, got %v", conflicts)
	}

	if err := f.poller.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	conflicts, err = stock.FindAllocationConflicts(dbc, f.release.Active())
	if err != nil {
		t.Fatalf("conflicts after revert: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("reverted job still counted against stock: %v", conflicts)
	}
}

func TestStagePoller_KeepsJobsWithNcPresent(t *testing.T) {
	f := newStageFixture(t)
	seedStagedJob(t, f.tx, "FolderB/J3", "FolderB", "J3", f.machine.ID)
	sub := filepath.Join(f.staging, "FolderB")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "j3.NC"), []byte("G0"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := f.poller.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var got types.Job
	if err := f.tx.Where("key = ?", "FolderB/J3").First(&got).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.Status != types.StatusStaged {
		t.Fatalf("job with present NC reverted to %s", got.Status)
	}
}

func TestStagePoller_SkipsMachineOnUnreadableFolder(t *testing.T) {
	f := newStageFixture(t)
	seedStagedJob(t, f.tx, "FolderB/J4", "FolderB", "J4", f.machine.ID)
	if err := f.tx.Model(&types.Machine{}).Where("id = ?", f.machine.ID).
		Update("ap_jobfolder", filepath.Join(f.staging, "does-not-exist")).Error; err != nil {
		t.Fatal(err)
	}

	if err := f.poller.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var got types.Job
	if err := f.tx.Where("key = ?", "FolderB/J4").First(&got).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.Status != types.StatusStaged {
		t.Fatalf("unreadable folder caused a revert to %s", got.Status)
	}
}
