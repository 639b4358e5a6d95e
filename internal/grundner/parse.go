// Package grundner polls the sheet-material library's shared folder: it
// drops a stock request, reads back the stock snapshot, mirrors it into the
// database, and raises allocation-conflict alerts when reserved stock no
// longer covers the pre-reserved jobs.
package grundner

import (
	"strconv"
	"strings"
	"time"

	"github.com/nestlogic/floorwatch/internal/csvx"
	types "github.com/nestlogic/floorwatch/internal/domain"
)

// Column bindings for the stock export. Header names drifted across library
// firmware versions, so every logical column carries its synonyms plus the
// fixed position used when the export has no header at all. The reserved
// column is special: even with a header present, exports missing a reserved
// column fall back to position 14.
var stockColumns = struct {
	typeData, customer, length, width, thickness, stock, available, reserved, name binding
}{
	typeData:  binding{[]string{"type_data", "type"}, 0},
	customer:  binding{[]string{"customer_id", "customer"}, 1},
	length:    binding{[]string{"length_mm", "length"}, 3},
	width:     binding{[]string{"width_mm", "width"}, 4},
	thickness: binding{[]string{"thickness_mm", "thickness"}, 5},
	stock:     binding{[]string{"stock"}, 7},
	available: binding{[]string{"stock_available", "available"}, 8},
	reserved:  binding{[]string{"reserved_stock", "reserved stock", "reserved"}, 14},
	name:      binding{[]string{"name", "material_name", "material"}, -1},
}

type binding struct {
	names    []string
	position int
}

func (b binding) resolve(header []string) int {
	if header != nil {
		if idx := csvx.FindColumn(header, b.names...); idx >= 0 {
			return idx
		}
	}
	return b.position
}

// ParseStock decodes a stock.csv snapshot. Rows without a parseable type
// code are skipped; the library pads exports with blank and summary lines.
func ParseStock(raw []byte) ([]*types.StockItem, error) {
	doc, err := csvx.ParseDocument(raw)
	if err != nil {
		return nil, err
	}

	cols := map[string]int{
		"type":      stockColumns.typeData.resolve(doc.Header),
		"customer":  stockColumns.customer.resolve(doc.Header),
		"length":    stockColumns.length.resolve(doc.Header),
		"width":     stockColumns.width.resolve(doc.Header),
		"thickness": stockColumns.thickness.resolve(doc.Header),
		"stock":     stockColumns.stock.resolve(doc.Header),
		"available": stockColumns.available.resolve(doc.Header),
		"reserved":  stockColumns.reserved.resolve(doc.Header),
		"name":      stockColumns.name.resolve(doc.Header),
	}

	now := time.Now().UTC()
	var out []*types.StockItem
	for _, row := range doc.Rows {
		typeData, err := strconv.Atoi(csvx.Column(row, cols["type"]))
		if err != nil {
			continue
		}
		item := &types.StockItem{
			TypeData:       typeData,
			CustomerID:     csvx.Column(row, cols["customer"]),
			Name:           csvx.Column(row, cols["name"]),
			LengthMm:       parseFloat(csvx.Column(row, cols["length"])),
			WidthMm:        parseFloat(csvx.Column(row, cols["width"])),
			ThicknessMm:    parseFloat(csvx.Column(row, cols["thickness"])),
			Stock:          parseInt(csvx.Column(row, cols["stock"])),
			StockAvailable: parseInt(csvx.Column(row, cols["available"])),
			ReservedStock:  parseInt(csvx.Column(row, cols["reserved"])),
			UpdatedAt:      now,
		}
		out = append(out, item)
	}
	return out, nil
}

func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil {
		return 0
	}
	return f
}
