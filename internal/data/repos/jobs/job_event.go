package jobs

import (
	"gorm.io/gorm"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// JobEventRepo appends to the immutable per-job audit trail. There is no
// update or delete on purpose.
type JobEventRepo interface {
	Append(dbc dbctx.Context, events []*types.JobEvent) error
	ListByJob(dbc dbctx.Context, jobKey string, limit int) ([]*types.JobEvent, error)
}

type jobEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobEventRepo(db *gorm.DB, baseLog *logger.Logger) JobEventRepo {
	return &jobEventRepo{
		db:  db,
		log: baseLog.With("repo", "JobEventRepo"),
	}
}

func (r *jobEventRepo) Append(dbc dbctx.Context, events []*types.JobEvent) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&events).Error
}

func (r *jobEventRepo) ListByJob(dbc dbctx.Context, jobKey string, limit int) ([]*types.JobEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobKey == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.JobEvent
	err := transaction.WithContext(dbc.Ctx).
		Where("job_key = ?", jobKey).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
