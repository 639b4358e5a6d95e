package grundner

import (
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	jobsrepo "github.com/nestlogic/floorwatch/internal/data/repos/jobs"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// StockChange reports a reserved-count movement between two snapshots.
type StockChange struct {
	TypeData    int
	CustomerID  string
	Name        string
	OldReserved int
	NewReserved int
}

// AllocationConflict is a material whose reserved stock no longer covers the
// pre-reserved jobs that depend on it.
type AllocationConflict struct {
	TypeData   int    `gorm:"column:type_data"`
	CustomerID string `gorm:"column:customer_id"`
	Name       string `gorm:"column:name"`
	Reserved   int    `gorm:"column:reserved"`
	Demand     int64  `gorm:"column:demand"`
}

type StockRepo interface {
	List(dbc dbctx.Context) ([]*types.StockItem, error)
	// ReplaceSnapshot makes the table mirror rows exactly, returning the
	// subset whose reserved count differs from the previous snapshot.
	ReplaceSnapshot(dbc dbctx.Context, rows []*types.StockItem) ([]StockChange, error)
	// FindAllocationConflicts joins stock against pre-reserved jobs. Jobs
	// whose NC name is in excludedNcFiles are ignored: the system itself is
	// releasing those reservations.
	FindAllocationConflicts(dbc dbctx.Context, excludedNcFiles []string) ([]AllocationConflict, error)
	// ResyncReservedForMaterial recomputes reserved_stock from the surviving
	// pre-reserved jobs for one material label.
	ResyncReservedForMaterial(dbc dbctx.Context, material string) error
}

type stockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStockRepo(db *gorm.DB, baseLog *logger.Logger) StockRepo {
	return &stockRepo{
		db:  db,
		log: baseLog.With("repo", "StockRepo"),
	}
}

func (r *stockRepo) List(dbc dbctx.Context) ([]*types.StockItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StockItem
	if err := transaction.WithContext(dbc.Ctx).Order("type_data ASC, customer_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type materialKey struct {
	TypeData   int
	CustomerID string
}

func (r *stockRepo) ReplaceSnapshot(dbc dbctx.Context, rows []*types.StockItem) ([]StockChange, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var changes []StockChange
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var existing []*types.StockItem
		if err := txx.Find(&existing).Error; err != nil {
			return err
		}
		prev := make(map[materialKey]*types.StockItem, len(existing))
		for _, item := range existing {
			prev[materialKey{item.TypeData, item.CustomerID}] = item
		}

		now := time.Now()
		incoming := make(map[materialKey]bool, len(rows))
		for _, row := range rows {
			key := materialKey{row.TypeData, row.CustomerID}
			incoming[key] = true
			row.UpdatedAt = now
			if err := txx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "type_data"}, {Name: "customer_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "length_mm", "width_mm", "thickness_mm",
					"stock", "stock_available", "reserved_stock", "updated_at",
				}),
			}).Create(row).Error; err != nil {
				return err
			}
			old := 0
			if p, ok := prev[key]; ok {
				old = p.ReservedStock
			}
			if old != row.ReservedStock {
				changes = append(changes, StockChange{
					TypeData:    row.TypeData,
					CustomerID:  row.CustomerID,
					Name:        row.Name,
					OldReserved: old,
					NewReserved: row.ReservedStock,
				})
			}
		}

		var staleIDs []int64
		for key, item := range prev {
			if !incoming[key] {
				staleIDs = append(staleIDs, item.ID)
			}
		}
		if len(staleIDs) > 0 {
			if err := txx.Where("id IN ?", staleIDs).Delete(&types.StockItem{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// Jobs reference a material either by the library name or by the bare type
// code, so both spellings join.
const materialJoin = `j.pre_reserved = true AND (LOWER(j.material) = LOWER(s.name) OR j.material = CAST(s.type_data AS TEXT))`

func (r *stockRepo) FindAllocationConflicts(dbc dbctx.Context, excludedNcFiles []string) ([]AllocationConflict, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	query := `
SELECT s.type_data, s.customer_id, s.name, s.reserved_stock AS reserved, COUNT(j.key) AS demand
FROM grundner_stock s
JOIN jobs j ON ` + materialJoin + `
`
	args := []interface{}{}
	if len(excludedNcFiles) > 0 {
		// jobs.ncfile holds the bare base name, so callers may hand in
		// either spelling; a trailing ".nc" is stripped before comparing.
		lowered := make([]string, 0, len(excludedNcFiles))
		for _, nc := range excludedNcFiles {
			base := strings.ToLower(jobsrepo.NormalizeNcBase(nc))
			if base != "" {
				lowered = append(lowered, base)
			}
		}
		if len(lowered) > 0 {
			query += `WHERE LOWER(j.ncfile) NOT IN ?
`
			args = append(args, lowered)
		}
	}
	query += `GROUP BY s.type_data, s.customer_id, s.name, s.reserved_stock
HAVING COUNT(j.key) > s.reserved_stock`

	var out []AllocationConflict
	if err := transaction.WithContext(dbc.Ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stockRepo) ResyncReservedForMaterial(dbc dbctx.Context, material string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	material = strings.TrimSpace(material)
	if material == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Exec(`
UPDATE grundner_stock s
SET reserved_stock = (
  SELECT COUNT(*)
  FROM jobs j
  WHERE `+materialJoin+`
), updated_at = ?
WHERE LOWER(s.name) = LOWER(?) OR CAST(s.type_data AS TEXT) = ?`,
		time.Now(), material, material,
	).Error
}
