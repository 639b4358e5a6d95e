package grundner

import (
	"time"
)

// StockItem mirrors one row of the storage system's stock export. The pair
// (TypeData, CustomerID) identifies a material; CustomerID is the empty
// string when the export carries none, so the composite key stays non-null.
type StockItem struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	TypeData       int       `gorm:"column:type_data;not null;uniqueIndex:ux_grundner_stock_material,priority:1" json:"type_data"`
	CustomerID     string    `gorm:"column:customer_id;size:100;not null;default:'';uniqueIndex:ux_grundner_stock_material,priority:2" json:"customer_id"`
	Name           string    `gorm:"column:name;size:200" json:"name,omitempty"`
	LengthMm       float64   `gorm:"column:length_mm;not null;default:0" json:"length_mm"`
	WidthMm        float64   `gorm:"column:width_mm;not null;default:0" json:"width_mm"`
	ThicknessMm    float64   `gorm:"column:thickness_mm;not null;default:0" json:"thickness_mm"`
	Stock          int       `gorm:"column:stock;not null;default:0" json:"stock"`
	StockAvailable int       `gorm:"column:stock_available;not null;default:0" json:"stock_available"`
	ReservedStock  int       `gorm:"column:reserved_stock;not null;default:0" json:"reserved_stock"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (StockItem) TableName() string { return "grundner_stock" }
