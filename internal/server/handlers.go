package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nestlogic/floorwatch/internal/data/repos"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

// Pinger reports liveness of a backing service. The Postgres service and
// the redis bus both satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	redis Pinger
	log   *logger.Logger
}

func NewHealthHandler(db, redis Pinger, baseLog *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, log: baseLog.With("handler", "HealthHandler")}
}

// Healthz reports daemon liveness. The database is load-bearing, so a
// failed ping is a 503; the UI bus is advisory and only flips the field.
func (h *HealthHandler) Healthz(c *gin.Context) {
	out := gin.H{"status": "ok", "db": "ok", "redis": "ok"}
	code := http.StatusOK

	if err := h.db.Ping(c.Request.Context()); err != nil {
		out["status"] = "degraded"
		out["db"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if h.redis == nil {
		out["redis"] = "disabled"
	} else if err := h.redis.Ping(c.Request.Context()); err != nil {
		out["redis"] = err.Error()
	}
	c.JSON(code, out)
}

type StatusHandler struct {
	registry *watcher.Registry
	log      *logger.Logger
}

func NewStatusHandler(registry *watcher.Registry, baseLog *logger.Logger) *StatusHandler {
	return &StatusHandler{registry: registry, log: baseLog.With("handler", "StatusHandler")}
}

// Status returns the live watcher registry: one entry per worker with its
// state and last event or error.
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"watchers": h.registry.Snapshot()})
}

type MachineHandler struct {
	machines repos.MachineRepo
	health   repos.MachineHealthRepo
	stats    repos.CncStatRepo
	log      *logger.Logger
}

func NewMachineHandler(machines repos.MachineRepo, health repos.MachineHealthRepo, stats repos.CncStatRepo, baseLog *logger.Logger) *MachineHandler {
	return &MachineHandler{
		machines: machines,
		health:   health,
		stats:    stats,
		log:      baseLog.With("handler", "MachineHandler"),
	}
}

// List returns every machine with its live health conditions. Conditions
// with a nil machine scope are reported under "global".
func (h *MachineHandler) List(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	machines, err := h.machines.List(dbc)
	if err != nil {
		h.fail(c, err)
		return
	}
	conditions, err := h.health.List(dbc)
	if err != nil {
		h.fail(c, err)
		return
	}

	byMachine := make(map[int64][]*types.MachineHealth)
	var global []*types.MachineHealth
	for _, cond := range conditions {
		if cond.MachineID == nil {
			global = append(global, cond)
			continue
		}
		byMachine[*cond.MachineID] = append(byMachine[*cond.MachineID], cond)
	}

	out := make([]gin.H, 0, len(machines))
	for _, m := range machines {
		out = append(out, gin.H{"machine": m, "health": byMachine[m.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"machines": out, "global_health": global})
}

// Telemetry returns the most recent status sample for one machine.
func (h *MachineHandler) Telemetry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "machine id must be numeric"})
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	machine, err := h.machines.Get(dbc, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if machine == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown machine"})
		return
	}
	sample, err := h.stats.LatestByIP(dbc, machine.PcIP)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"machine_id": machine.ID, "sample": sample})
}

func (h *MachineHandler) fail(c *gin.Context, err error) {
	h.log.Error("machine query failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

type JobHandler struct {
	jobs   repos.JobRepo
	events repos.JobEventRepo
	log    *logger.Logger
}

func NewJobHandler(jobs repos.JobRepo, events repos.JobEventRepo, baseLog *logger.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, events: events, log: baseLog.With("handler", "JobHandler")}
}

// List returns jobs, optionally filtered by one or more lifecycle states
// (?status=STAGED,CNC_FINISH). Unknown states are a 400, not an empty list.
func (h *JobHandler) List(c *gin.Context) {
	var statuses []types.JobStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := types.JobStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
				return
			}
			statuses = append(statuses, status)
		}
	}
	jobs, err := h.jobs.ListByStatus(dbctx.Context{Ctx: c.Request.Context()}, statuses...)
	if err != nil {
		h.log.Error("job query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Events returns the audit trail for one job, newest first. The key rides
// in the query string because it contains a path separator.
func (h *JobHandler) Events(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}
	events, err := h.events.ListByJob(dbctx.Context{Ctx: c.Request.Context()}, key, limit)
	if err != nil {
		h.log.Error("job event query failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "events": events})
}

type StockHandler struct {
	stock repos.StockRepo
	log   *logger.Logger
}

func NewStockHandler(stock repos.StockRepo, baseLog *logger.Logger) *StockHandler {
	return &StockHandler{stock: stock, log: baseLog.With("handler", "StockHandler")}
}

func (h *StockHandler) List(c *gin.Context) {
	items, err := h.stock.List(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		h.log.Error("stock query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": items})
}

type FeedHandler struct {
	messages repos.MessageRepo
	log      *logger.Logger
}

func NewFeedHandler(messages repos.MessageRepo, baseLog *logger.Logger) *FeedHandler {
	return &FeedHandler{messages: messages, log: baseLog.With("handler", "FeedHandler")}
}

// Recent returns the operator message feed so a reconnecting UI can
// backfill what it missed on the bus.
func (h *FeedHandler) Recent(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}
	msgs, err := h.messages.ListRecent(dbctx.Context{Ctx: c.Request.Context()}, limit)
	if err != nil {
		h.log.Error("feed query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
