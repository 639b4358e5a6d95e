package machines

import (
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

type MachineRepo interface {
	UpsertAll(dbc dbctx.Context, machines []*types.Machine) error
	List(dbc dbctx.Context) ([]*types.Machine, error)
	Get(dbc dbctx.Context, id int64) (*types.Machine, error)
	// FindByToken resolves the machine a filename token refers to: the
	// numeric id verbatim, or the machine name compared after lowering and
	// stripping non-alphanumerics.
	FindByToken(dbc dbctx.Context, token string) (*types.Machine, error)
}

type machineRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMachineRepo(db *gorm.DB, baseLog *logger.Logger) MachineRepo {
	return &machineRepo{
		db:  db,
		log: baseLog.With("repo", "MachineRepo"),
	}
}

func (r *machineRepo) UpsertAll(dbc dbctx.Context, machines []*types.Machine) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(machines) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "pc_ip", "pc_port", "ap_jobfolder", "nestpick_folder", "nestpick_enabled", "updated_at",
			}),
		}).
		Create(&machines).Error
}

func (r *machineRepo) List(dbc dbctx.Context) ([]*types.Machine, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Machine
	if err := transaction.WithContext(dbc.Ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *machineRepo) Get(dbc dbctx.Context, id int64) (*types.Machine, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var m types.Machine
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeToken lowers a machine token and removes every non-alphanumeric
// rune, matching how tokens are compared against machine names.
func NormalizeToken(token string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(token), "")
}

func (r *machineRepo) FindByToken(dbc dbctx.Context, token string) (*types.Machine, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	if id, err := strconv.ParseInt(token, 10, 64); err == nil {
		return r.Get(dbc, id)
	}
	all, err := r.List(dbc)
	if err != nil {
		return nil, err
	}
	want := NormalizeToken(token)
	if want == "" {
		return nil, nil
	}
	for _, m := range all {
		if NormalizeToken(m.Name) == want {
			return m, nil
		}
	}
	return nil, nil
}
