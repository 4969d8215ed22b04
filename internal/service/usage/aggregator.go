package usage

import (
	"strings"

	"github.com/mamadbah2/stockusage/internal/domain/models"
)

// Aggregate merges the raw-material requirements of every menu line by item
// code. Rows keep first-seen order; name, UOM and unit cost come from the first
// requirement seen for a code. Requirements without an item code are skipped.
//
// ActualQty of an aggregated row is the sum of the per-menu actual quantities,
// which reconciles the aggregate with any direct per-menu edits.
func Aggregate(lines []models.MenuSaleLine) []models.AggregatedRawMaterialRow {
	rows := make([]models.AggregatedRawMaterialRow, 0)
	index := make(map[string]int)

	for _, line := range lines {
		for _, req := range line.Requirements {
			code := strings.TrimSpace(req.ItemCode)
			if code == "" {
				continue
			}

			pos, seen := index[code]
			if !seen {
				rows = append(rows, models.AggregatedRawMaterialRow{
					ItemCode: code,
					ItemName: req.ItemName,
					UOM:      req.UOM,
					UnitCost: num(req.UnitCost),
				})
				pos = len(rows) - 1
				index[code] = pos
			}

			rows[pos].TotalRequiredQty += num(req.PlannedQty)
			rows[pos].ActualQty += num(req.ActualQty)
		}
	}

	for i := range rows {
		RecalcAggregate(&rows[i])
	}
	return rows
}
