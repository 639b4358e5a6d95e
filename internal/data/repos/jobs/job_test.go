package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/nestlogic/floorwatch/internal/data/repos/testutil"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
)

func seedJob(key, ncfile string, status types.JobStatus) *types.Job {
	return &types.Job{
		Key:       key,
		Folder:    "batch1",
		NcFile:    ncfile,
		Material:  "MDF18",
		Parts:     4,
		Status:    status,
		DateAdded: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
}

func TestJobRepo_CreateGetDelete(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(gdb, testutil.Logger(t))

	if err := repo.Create(dbc, []*types.Job{seedJob("batch1/part-a", "part-a", types.StatusPending)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := repo.Get(dbc, "batch1/part-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job == nil || job.NcFile != "part-a" {
		t.Fatalf("unexpected job: %#v", job)
	}

	missing, err := repo.Get(dbc, "batch1/nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing job, got %#v", missing)
	}

	if err := repo.Delete(dbc, "batch1/part-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	job, err = repo.Get(dbc, "batch1/part-a")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if job != nil {
		t.Fatalf("expected job gone, got %#v", job)
	}
}

func TestJobRepo_FindByNcBase_CaseAndExtensionInsensitive(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(gdb, testutil.Logger(t))

	if err := repo.Create(dbc, []*types.Job{seedJob("batch1/Panel_01", "Panel_01", types.StatusPending)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, probe := range []string{"Panel_01", "panel_01", "PANEL_01.NC", "panel_01.nc"} {
		found, err := repo.FindByNcBase(dbc, probe)
		if err != nil {
			t.Fatalf("find %q: %v", probe, err)
		}
		if len(found) != 1 || found[0].Key != "batch1/Panel_01" {
			t.Fatalf("probe %q: unexpected result %#v", probe, found)
		}
	}
}

func TestJobRepo_FindByNcBasePreferStatus(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(gdb, testutil.Logger(t))

	a := seedJob("batch1/shared", "shared", types.StatusPending)
	b := seedJob("batch2/shared", "shared", types.StatusForwardedToNestpick)
	b.Folder = "batch2"
	if err := repo.Create(dbc, []*types.Job{a, b}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByNcBasePreferStatus(dbc, "shared", []types.JobStatus{types.StatusForwardedToNestpick})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil || got.Key != "batch2/shared" {
		t.Fatalf("expected forwarded job preferred, got %#v", got)
	}

	// No preferred match falls back to a candidate rather than nil.
	got, err = repo.FindByNcBasePreferStatus(dbc, "shared", []types.JobStatus{types.StatusCncFinish})
	if err != nil {
		t.Fatalf("find fallback: %v", err)
	}
	if got == nil {
		t.Fatalf("expected fallback candidate")
	}
}

func TestJobRepo_ListPendingInAndNotIn(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(gdb, testutil.Logger(t))

	keep := seedJob("batch1/keep", "keep", types.StatusPending)
	gone := seedJob("batch1/gone", "gone", types.StatusPending)
	staged := seedJob("batch1/staged", "staged", types.StatusStaged)
	if err := repo.Create(dbc, []*types.Job{keep, gone, staged}); err != nil {
		t.Fatalf("create: %v", err)
	}

	onDisk := []string{"batch1/keep"}
	missing, err := repo.ListPendingNotIn(dbc, onDisk)
	if err != nil {
		t.Fatalf("not-in: %v", err)
	}
	if len(missing) != 1 || missing[0].Key != "batch1/gone" {
		t.Fatalf("unexpected missing set: %#v", missing)
	}

	present, err := repo.ListPendingIn(dbc, onDisk)
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	if len(present) != 1 || present[0].Key != "batch1/keep" {
		t.Fatalf("unexpected present set: %#v", present)
	}
}

func TestJobRepo_FlagsAndPallet(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(gdb, testutil.Logger(t))

	if err := repo.Create(dbc, []*types.Job{seedJob("batch1/flags", "flags", types.StatusPending)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.SetPreReserved(dbc, "batch1/flags", true); err != nil {
		t.Fatalf("set pre_reserved: %v", err)
	}
	if err := repo.SetLocked(dbc, "batch1/flags", true); err != nil {
		t.Fatalf("set locked: %v", err)
	}
	pallet := "P-07"
	if err := repo.SetPallet(dbc, "batch1/flags", &pallet); err != nil {
		t.Fatalf("set pallet: %v", err)
	}

	job, err := repo.Get(dbc, "batch1/flags")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !job.PreReserved || !job.Locked {
		t.Fatalf("flags not set: %#v", job)
	}
	if job.Pallet == nil || *job.Pallet != "P-07" {
		t.Fatalf("pallet not set: %#v", job.Pallet)
	}

	if err := repo.SetPallet(dbc, "batch1/flags", nil); err != nil {
		t.Fatalf("clear pallet: %v", err)
	}
	job, _ = repo.Get(dbc, "batch1/flags")
	if job.Pallet != nil {
		t.Fatalf("expected pallet cleared, got %#v", job.Pallet)
	}
}

func TestNormalizeNcBase(t *testing.T) {
	if got := NormalizeNcBase(" Panel_01.NC "); got != "Panel_01" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := NormalizeNcBase("panel_01"); got != "panel_01" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestJobEventRepo_AppendAndList(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	jobRepo := NewJobRepo(gdb, testutil.Logger(t))
	eventRepo := NewJobEventRepo(gdb, testutil.Logger(t))

	if err := jobRepo.Create(dbc, []*types.Job{seedJob("batch1/ev", "ev", types.StatusPending)}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	machineID := int64(2)
	events := []*types.JobEvent{
		{JobKey: "batch1/ev", Kind: "ingest:pending", Payload: []byte(`{}`)},
		{JobKey: "batch1/ev", Kind: "autopac:load_finish", Payload: []byte(`{"file":"load_finish_2.csv"}`), MachineID: &machineID},
	}
	if err := eventRepo.Append(dbc, events); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := eventRepo.ListByJob(dbc, "batch1/ev", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
}
