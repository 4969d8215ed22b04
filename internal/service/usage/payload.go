package usage

import (
	"context"
	"fmt"
	"strings"

	"github.com/mamadbah2/stockusage/internal/domain/models"
)

// ItemCatalog answers which raw-material codes the item master knows. A code
// missing from the returned map is unknown.
type ItemCatalog interface {
	GetUnitCostBulk(ctx context.Context, itemCodes []string) (map[string]float64, error)
}

// BuildPayload turns the session state into the consumption records the
// persistence service expects. Menu totals are recomputed from the rows, never
// read from cached figures.
func BuildPayload(lines []models.MenuSaleLine, aggregate []models.AggregatedRawMaterialRow) models.ConsumptionPayload {
	payload := models.ConsumptionPayload{
		MenuSummaries: make([]models.MenuSummary, 0, len(lines)),
		RMBreakdown:   make([]models.RawMaterialBreakdown, 0, len(aggregate)),
	}

	actuals := make(map[string]models.AggregatedRawMaterialRow, len(aggregate))
	for _, row := range aggregate {
		actuals[row.ItemCode] = row
	}

	index := make(map[string]int)
	for _, line := range lines {
		summary := models.MenuSummary{
			Menu:         line.Menu,
			Category:     line.Category,
			SellItem:     line.ItemCode,
			QtySold:      num(line.QtySold),
			SalesAmount:  num(line.SellingAmount),
			RawMaterials: make([]models.RawMaterialDetail, 0, len(line.Requirements)),
		}
		if summary.Menu == "" {
			summary.Menu = line.ItemName
		}

		for _, req := range line.Requirements {
			code := strings.TrimSpace(req.ItemCode)
			if code == "" {
				continue
			}

			actual := num(req.ActualQty)
			planned := num(req.PlannedQty)
			unitCost := num(req.UnitCost)
			cost := actual * unitCost
			summary.RMValueTotal += cost

			summary.RawMaterials = append(summary.RawMaterials, models.RawMaterialDetail{
				ItemCode:     code,
				PlannedQty:   planned,
				ActualQty:    actual,
				DiffQty:      actual - planned,
				UOM:          req.UOM,
				UnitCost:     unitCost,
				Cost:         cost,
				AvailableQty: num(req.AvailableQty),
				Remarks:      req.Remarks,
				Warehouse:    req.Warehouse,
			})

			pos, seen := index[code]
			if !seen {
				agg := actuals[code]
				payload.RMBreakdown = append(payload.RMBreakdown, models.RawMaterialBreakdown{
					ItemCode:  code,
					ItemName:  req.ItemName,
					UOM:       req.UOM,
					ActualQty: agg.ActualQty,
					UnitCost:  agg.UnitCost,
				})
				pos = len(payload.RMBreakdown) - 1
				index[code] = pos
			}
			payload.RMBreakdown[pos].PlannedQty += planned
			payload.RMBreakdown[pos].DiffQty += actual - planned
		}

		summary.MarginAmount = summary.SalesAmount - summary.RMValueTotal
		payload.MenuSummaries = append(payload.MenuSummaries, summary)
	}

	return payload
}

// ValidateItems checks every raw-material code of the breakdown against the
// item master. It returns a *ValidationError listing all unknown codes, or a
// wrapped error when the check itself could not run.
func ValidateItems(ctx context.Context, catalog ItemCatalog, breakdown []models.RawMaterialBreakdown) error {
	codes := make([]string, 0, len(breakdown))
	seen := make(map[string]struct{}, len(breakdown))
	for _, row := range breakdown {
		code := strings.TrimSpace(row.ItemCode)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil
	}

	known, err := catalog.GetUnitCostBulk(ctx, codes)
	if err != nil {
		return fmt.Errorf("verify raw-material codes: %w", err)
	}

	var invalid []InvalidItem
	reported := make(map[string]struct{})
	for _, row := range breakdown {
		code := strings.TrimSpace(row.ItemCode)
		if code == "" {
			continue
		}
		if _, ok := known[code]; ok {
			continue
		}
		if _, ok := reported[code]; ok {
			continue
		}
		reported[code] = struct{}{}
		invalid = append(invalid, InvalidItem{ItemCode: code, UOM: row.UOM})
	}

	if len(invalid) > 0 {
		return &ValidationError{Invalid: invalid}
	}
	return nil
}
