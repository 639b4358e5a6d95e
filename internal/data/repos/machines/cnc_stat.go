package machines

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

type CncStatRepo interface {
	Upsert(dbc dbctx.Context, sample *types.CncStat) error
	LatestByIP(dbc dbctx.Context, machineIP string) (*types.CncStat, error)
}

type cncStatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCncStatRepo(db *gorm.DB, baseLog *logger.Logger) CncStatRepo {
	return &cncStatRepo{
		db:  db,
		log: baseLog.With("repo", "CncStatRepo"),
	}
}

func (r *cncStatRepo) Upsert(dbc dbctx.Context, sample *types.CncStat) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sample == nil || sample.Key == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"machine_ip", "current_program", "mode", "status", "alarm", "emergency_stop",
				"power_on_seconds", "cutting_seconds", "vacuum_seconds", "drill_head_seconds",
				"spindle_seconds", "conveyor_seconds", "grease_seconds", "alarm_history", "recorded_at",
			}),
		}).
		Create(sample).Error
}

func (r *cncStatRepo) LatestByIP(dbc dbctx.Context, machineIP string) (*types.CncStat, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if machineIP == "" {
		return nil, nil
	}
	var s types.CncStat
	err := transaction.WithContext(dbc.Ctx).
		Where("machine_ip = ?", machineIP).
		Order("recorded_at DESC").
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.Key == "" {
		return nil, nil
	}
	return &s, nil
}
