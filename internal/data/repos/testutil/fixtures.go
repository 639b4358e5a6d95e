package testutil

import (
	"testing"
	"time"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"gorm.io/gorm"
)

func SeedMachine(tb testing.TB, tx *gorm.DB, id int64, name string) *types.Machine {
	tb.Helper()
	m := &types.Machine{
		ID:              id,
		Name:            name,
		PcIP:            "10.0.0.1",
		PcPort:          8000,
		APJobfolder:     "/srv/machines/" + name + "/staging",
		NestpickFolder:  "/srv/machines/" + name + "/nestpick",
		NestpickEnabled: true,
	}
	if err := tx.Create(m).Error; err != nil {
		tb.Fatalf("seed machine %s: %v", name, err)
	}
	return m
}

func SeedJob(tb testing.TB, tx *gorm.DB, key, folder, ncfile string, status types.JobStatus) *types.Job {
	tb.Helper()
	j := &types.Job{
		Key:       key,
		Folder:    folder,
		NcFile:    ncfile,
		Material:  "MDF18",
		Parts:     4,
		Size:      "2800x2070",
		Thickness: 18,
		DateAdded: time.Now().UTC(),
		Status:    status,
	}
	if err := tx.Create(j).Error; err != nil {
		tb.Fatalf("seed job %s: %v", key, err)
	}
	return j
}

func SeedStockItem(tb testing.TB, tx *gorm.DB, typeData int, name string, reserved int) *types.StockItem {
	tb.Helper()
	s := &types.StockItem{
		TypeData:       typeData,
		CustomerID:     "",
		Name:           name,
		LengthMm:       2800,
		WidthMm:        2070,
		ThicknessMm:    18,
		Stock:          20,
		StockAvailable: 20 - reserved,
		ReservedStock:  reserved,
	}
	if err := tx.Create(s).Error; err != nil {
		tb.Fatalf("seed stock %s: %v", name, err)
	}
	return s
}
