// Package lifecycle gates every job state transition. The engine is the
// single writer of a job's status, machine assignment and lifecycle
// timestamps; each accepted transition runs inside one database transaction
// that row-locks the job, so two watchers racing on the same artifact cannot
// double-advance it.
package lifecycle

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	pkgerrors "github.com/nestlogic/floorwatch/internal/pkg/errors"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// JobStore is the narrow repository surface the engine consumes. The jobs
// repository satisfies it; nothing below the repository layer knows the
// engine exists.
type JobStore interface {
	GetForUpdate(dbc dbctx.Context, key string) (*types.Job, error)
	UpdateFields(dbc dbctx.Context, key string, updates map[string]interface{}) error
}

// EventStore appends to the immutable job event ledger.
type EventStore interface {
	Append(dbc dbctx.Context, events []*types.JobEvent) error
}

// Source tags recorded on transitions, named after the subsystem whose
// evidence triggered them.
const (
	SourceIngest          = "ingest"
	SourceWorklist        = "worklist"
	SourceStageSanity     = "stage-sanity"
	SourceAutoPac         = "autopac"
	SourceNestpickForward = "nestpick-forward"
	SourceNestpickUnstack = "nestpick-unstack"
)

// expectedFrom maps each reachable target state to the state it advances
// from. The PENDING entry covers only the stage-sanity reversal; job
// creation does not go through the engine.
var expectedFrom = map[types.JobStatus]types.JobStatus{
	types.StatusStaged:              types.StatusPending,
	types.StatusLoadFinish:          types.StatusStaged,
	types.StatusLabelFinish:         types.StatusLoadFinish,
	types.StatusCncFinish:           types.StatusLabelFinish,
	types.StatusForwardedToNestpick: types.StatusCncFinish,
	types.StatusNestpickComplete:    types.StatusForwardedToNestpick,
	types.StatusPending:             types.StatusStaged,
}

// Request describes one attempted transition.
type Request struct {
	Key    string
	To     types.JobStatus
	Source string
	// Kind overrides the default event kind "<source>:<to-lower>" when the
	// ledger uses a historical name (nestpick:forwarded,
	// worklist:revert:missing-nc, nestpick:unstack).
	Kind string
	// MachineID is written on acceptance when non-nil. The unstack path
	// passes nil: the picking cell has no machine identity and must not
	// overwrite the router that cut the job.
	MachineID *int64
	Payload   map[string]any
}

type Engine struct {
	db     *gorm.DB
	jobs   JobStore
	events EventStore
	log    *logger.Logger

	mu            sync.Mutex
	unknownLogged map[string]struct{}
}

func NewEngine(db *gorm.DB, jobs JobStore, events EventStore, baseLog *logger.Logger) *Engine {
	return &Engine{
		db:            db,
		jobs:          jobs,
		events:        events,
		log:           baseLog.With("component", "LifecycleEngine"),
		unknownLogged: make(map[string]struct{}),
	}
}

// Advance applies req atomically. It returns nil when the transition was
// accepted or when the job already sits in the target state (an idempotent
// retry, which writes nothing). ErrStaleState is returned when the persisted
// status matches neither side of the transition, ErrUnknownJob when the key
// resolves to no row.
func (e *Engine) Advance(ctx context.Context, req Request) error {
	from, ok := expectedFrom[req.To]
	if !ok {
		return pkgerrors.ErrInvalidArgument
	}

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		job, err := e.jobs.GetForUpdate(dbc, req.Key)
		if err != nil {
			return err
		}
		if job == nil {
			e.logUnknownOnce(req.Key, req.Source)
			return pkgerrors.ErrUnknownJob
		}
		if job.Status == req.To {
			e.log.Debug("transition already applied",
				"job", req.Key, "status", job.Status, "source", req.Source)
			return nil
		}
		if job.Status != from {
			e.log.Warn("stale transition rejected",
				"job", req.Key, "have", job.Status, "want", from, "to", req.To, "source", req.Source)
			return pkgerrors.ErrStaleState
		}

		updates := e.fieldUpdates(job, req)
		if err := e.jobs.UpdateFields(dbc, req.Key, updates); err != nil {
			return err
		}

		event := &types.JobEvent{
			JobKey:    req.Key,
			Kind:      req.EventKind(),
			MachineID: req.MachineID,
		}
		if len(req.Payload) > 0 {
			raw, err := json.Marshal(req.Payload)
			if err != nil {
				return err
			}
			event.Payload = datatypes.JSON(raw)
		}
		return e.events.Append(dbc, []*types.JobEvent{event})
	})
}

// fieldUpdates builds the column set for an accepted transition: the new
// status, the timestamp the target state owns, and the machine assignment.
func (e *Engine) fieldUpdates(job *types.Job, req Request) map[string]interface{} {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     req.To,
		"last_error": "",
	}

	switch req.To {
	case types.StatusPending:
		// Stage-sanity reversal: the NC file left the staging folder, so
		// the reservation on that machine no longer holds.
		updates["machine_id"] = nil
		updates["staged_at"] = nil
	case types.StatusStaged:
		updates["staged_at"] = now
	case types.StatusCncFinish:
		updates["cut_at"] = now
	case types.StatusNestpickComplete:
		updates["nestpick_completed_at"] = now
	}

	if req.MachineID != nil && req.To != types.StatusPending {
		updates["machine_id"] = *req.MachineID
	}
	return updates
}

func (e *Engine) logUnknownOnce(key, source string) {
	e.mu.Lock()
	_, seen := e.unknownLogged[key]
	if !seen {
		e.unknownLogged[key] = struct{}{}
	}
	e.mu.Unlock()
	if !seen {
		e.log.Warn("transition for unknown job", "job", key, "source", source)
	}
}

// EventKind returns the ledger kind for the request.
func (r Request) EventKind() string {
	if r.Kind != "" {
		return r.Kind
	}
	return r.Source + ":" + strings.ToLower(string(r.To))
}
