package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	jobsrepo "github.com/nestlogic/floorwatch/internal/data/repos/jobs"
	machinesrepo "github.com/nestlogic/floorwatch/internal/data/repos/machines"
	"github.com/nestlogic/floorwatch/internal/data/repos/testutil"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var pingOK = pingFunc(func(context.Context) error { return nil })

func serve(t *testing.T, cfg RouterConfig, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	NewRouter(cfg).ServeHTTP(rec, req)
	return rec
}

func TestHealthzDegradedWhenDatabaseDown(t *testing.T) {
	log := logger.NewNop()
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	cfg := RouterConfig{HealthHandler: NewHealthHandler(down, pingOK, log)}
	rec := serve(t, cfg, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "degraded" || body["redis"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthzRedisFailureIsNotFatal(t *testing.T) {
	log := logger.NewNop()
	down := pingFunc(func(context.Context) error { return errors.New("no route") })

	cfg := RouterConfig{HealthHandler: NewHealthHandler(pingOK, down, log)}
	if rec := serve(t, cfg, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with redis degraded", rec.Code)
	}
}

func TestStatusReturnsRegistrySnapshot(t *testing.T) {
	log := logger.NewNop()
	registry := watcher.NewRegistry(realtime.NewNopNotifier(), log)
	registry.Register("ingest", "Job folder scanner")
	registry.Ready("ingest")

	cfg := RouterConfig{StatusHandler: NewStatusHandler(registry, log)}
	rec := serve(t, cfg, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Watchers []watcher.Entry `json:"watchers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Watchers) != 1 || body.Watchers[0].Name != "ingest" || body.Watchers[0].State != watcher.StateReady {
		t.Fatalf("watchers = %#v", body.Watchers)
	}
}

func TestJobListRejectsUnknownStatus(t *testing.T) {
	cfg := RouterConfig{JobHandler: NewJobHandler(nil, nil, logger.NewNop())}
	if rec := serve(t, cfg, http.MethodGet, "/api/v1/jobs?status=BOGUS"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestJobEventsRequireKey(t *testing.T) {
	cfg := RouterConfig{JobHandler: NewJobHandler(nil, nil, logger.NewNop())}
	if rec := serve(t, cfg, http.MethodGet, "/api/v1/job-events"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestJobListFiltersByStatus(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	testutil.SeedJob(t, tx, "run1/a.nc", "run1", "a.nc", types.StatusPending)
	testutil.SeedJob(t, tx, "run1/b.nc", "run1", "b.nc", types.StatusStaged)

	cfg := RouterConfig{JobHandler: NewJobHandler(jobsrepo.NewJobRepo(tx, log), jobsrepo.NewJobEventRepo(tx, log), log)}
	rec := serve(t, cfg, http.MethodGet, "/api/v1/jobs?status=staged")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Jobs []*types.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Jobs) != 1 || body.Jobs[0].Key != "run1/b.nc" {
		t.Fatalf("filtered jobs = %#v", body.Jobs)
	}
}

func TestMachineListGroupsHealth(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	testutil.SeedMachine(t, tx, 1, "WT1")
	health := machinesrepo.NewMachineHealthRepo(tx, log)
	id := int64(1)
	dbc := dbctx.Context{Ctx: context.Background()}
	if err := health.Set(dbc, &id, types.HealthCodeTelemetry, types.HealthWarning, "no telemetry", nil); err != nil {
		t.Fatal(err)
	}
	if err := health.Set(dbc, nil, types.HealthCodeCopyFailure, types.HealthWarning, "share offline", nil); err != nil {
		t.Fatal(err)
	}

	cfg := RouterConfig{MachineHandler: NewMachineHandler(
		machinesrepo.NewMachineRepo(tx, log), health, machinesrepo.NewCncStatRepo(tx, log), log)}
	rec := serve(t, cfg, http.MethodGet, "/api/v1/machines")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Machines []struct {
			Machine *types.Machine         `json:"machine"`
			Health  []*types.MachineHealth `json:"health"`
		} `json:"machines"`
		GlobalHealth []*types.MachineHealth `json:"global_health"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Machines) != 1 || len(body.Machines[0].Health) != 1 {
		t.Fatalf("machine health grouping wrong: %s", rec.Body.String())
	}
	if len(body.GlobalHealth) != 1 || body.GlobalHealth[0].Code != types.HealthCodeCopyFailure {
		t.Fatalf("global health = %#v", body.GlobalHealth)
	}
}
