package jobs

import (
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.Job) error
	Get(dbc dbctx.Context, key string) (*types.Job, error)
	GetForUpdate(dbc dbctx.Context, key string) (*types.Job, error)
	FindByNcBase(dbc dbctx.Context, base string) ([]*types.Job, error)
	FindByNcBasePreferStatus(dbc dbctx.Context, base string, preferred []types.JobStatus) (*types.Job, error)
	ListByStatus(dbc dbctx.Context, statuses ...types.JobStatus) ([]*types.Job, error)
	ListPendingNotIn(dbc dbctx.Context, keys []string) ([]*types.Job, error)
	ListPendingIn(dbc dbctx.Context, keys []string) ([]*types.Job, error)
	UpdateFields(dbc dbctx.Context, key string, updates map[string]interface{}) error
	SetPallet(dbc dbctx.Context, key string, pallet *string) error
	SetPreReserved(dbc dbctx.Context, key string, flag bool) error
	SetLocked(dbc dbctx.Context, key string, flag bool) error
	Delete(dbc dbctx.Context, key string) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Create(dbc dbctx.Context, jobs []*types.Job) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&jobs).Error
}

func (r *jobRepo) Get(dbc dbctx.Context, key string) (*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if key == "" {
		return nil, nil
	}
	var job types.Job
	err := transaction.WithContext(dbc.Ctx).
		Where("key = ?", key).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.Key == "" {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) GetForUpdate(dbc dbctx.Context, key string) (*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if key == "" {
		return nil, nil
	}
	var job types.Job
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("key = ?", key).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.Key == "" {
		return nil, nil
	}
	return &job, nil
}

// NormalizeNcBase strips a trailing ".nc" (any case) and surrounding
// whitespace so lookups accept base names with or without the extension.
func NormalizeNcBase(base string) string {
	base = strings.TrimSpace(base)
	if strings.HasSuffix(strings.ToLower(base), ".nc") {
		base = base[:len(base)-3]
	}
	return base
}

func (r *jobRepo) FindByNcBase(dbc dbctx.Context, base string) ([]*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	base = NormalizeNcBase(base)
	if base == "" {
		return nil, nil
	}
	lower := strings.ToLower(base)
	var out []*types.Job
	err := transaction.WithContext(dbc.Ctx).
		Where("LOWER(ncfile) = ? OR LOWER(ncfile) = ?", lower, lower+".nc").
		Order("updated_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) FindByNcBasePreferStatus(dbc dbctx.Context, base string, preferred []types.JobStatus) (*types.Job, error) {
	candidates, err := r.FindByNcBase(dbc, base)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	for _, status := range preferred {
		for _, job := range candidates {
			if job.Status == status {
				return job, nil
			}
		}
	}
	return candidates[0], nil
}

func (r *jobRepo) ListByStatus(dbc dbctx.Context, statuses ...types.JobStatus) ([]*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Job
	q := transaction.WithContext(dbc.Ctx).Model(&types.Job{})
	if len(statuses) == 1 {
		q = q.Where("status = ?", statuses[0])
	} else if len(statuses) > 1 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("key ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListPendingNotIn(dbc dbctx.Context, keys []string) ([]*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Job
	q := transaction.WithContext(dbc.Ctx).
		Where("status = ?", types.StatusPending)
	if len(keys) > 0 {
		q = q.Where("key NOT IN ?", keys)
	}
	if err := q.Order("key ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListPendingIn(dbc dbctx.Context, keys []string) ([]*types.Job, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(keys) == 0 {
		return nil, nil
	}
	var out []*types.Job
	err := transaction.WithContext(dbc.Ctx).
		Where("status = ? AND key IN ?", types.StatusPending, keys).
		Order("key ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) UpdateFields(dbc dbctx.Context, key string, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if key == "" {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Job{}).
		Where("key = ?", key).
		Updates(updates).Error
}

func (r *jobRepo) SetPallet(dbc dbctx.Context, key string, pallet *string) error {
	return r.UpdateFields(dbc, key, map[string]interface{}{"pallet": pallet})
}

func (r *jobRepo) SetPreReserved(dbc dbctx.Context, key string, flag bool) error {
	return r.UpdateFields(dbc, key, map[string]interface{}{"pre_reserved": flag})
}

func (r *jobRepo) SetLocked(dbc dbctx.Context, key string, flag bool) error {
	return r.UpdateFields(dbc, key, map[string]interface{}{"locked": flag})
}

func (r *jobRepo) Delete(dbc dbctx.Context, key string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if key == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("key = ?", key).
		Delete(&types.Job{}).Error
}
