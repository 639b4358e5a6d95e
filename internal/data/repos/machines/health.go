package machines

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// MachineHealthRepo maintains the live health conditions. A row is present
// iff the condition currently holds: Set upserts, Clear deletes.
type MachineHealthRepo interface {
	Set(dbc dbctx.Context, machineID *int64, code string, severity types.HealthSeverity, message string, context map[string]any) error
	Clear(dbc dbctx.Context, machineID *int64, code string) error
	List(dbc dbctx.Context) ([]*types.MachineHealth, error)
	ListByMachine(dbc dbctx.Context, machineID int64) ([]*types.MachineHealth, error)
}

type machineHealthRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMachineHealthRepo(db *gorm.DB, baseLog *logger.Logger) MachineHealthRepo {
	return &machineHealthRepo{
		db:  db,
		log: baseLog.With("repo", "MachineHealthRepo"),
	}
}

func (r *machineHealthRepo) Set(dbc dbctx.Context, machineID *int64, code string, severity types.HealthSeverity, message string, context map[string]any) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if code == "" {
		return nil
	}
	ctxJSON := []byte("{}")
	if len(context) > 0 {
		raw, err := json.Marshal(context)
		if err != nil {
			return err
		}
		ctxJSON = raw
	}
	// The unique index is on (COALESCE(machine_id, 0), code), so the conflict
	// target must name the same expression.
	return transaction.WithContext(dbc.Ctx).Exec(`
INSERT INTO machine_health (machine_id, code, severity, message, context, set_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT ((COALESCE(machine_id, 0)), code)
DO UPDATE SET severity = EXCLUDED.severity, message = EXCLUDED.message, context = EXCLUDED.context, set_at = EXCLUDED.set_at`,
		machineID, code, string(severity), message, ctxJSON, time.Now(),
	).Error
}

func (r *machineHealthRepo) Clear(dbc dbctx.Context, machineID *int64, code string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if code == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Exec(
		`DELETE FROM machine_health WHERE machine_id IS NOT DISTINCT FROM ? AND code = ?`,
		machineID, code,
	).Error
}

func (r *machineHealthRepo) List(dbc dbctx.Context) ([]*types.MachineHealth, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.MachineHealth
	if err := transaction.WithContext(dbc.Ctx).Order("set_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *machineHealthRepo) ListByMachine(dbc dbctx.Context, machineID int64) ([]*types.MachineHealth, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.MachineHealth
	err := transaction.WithContext(dbc.Ctx).
		Where("machine_id = ?", machineID).
		Order("set_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
