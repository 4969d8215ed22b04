package usage

import (
	"math"
	"strings"

	"github.com/mamadbah2/stockusage/internal/domain/models"
	"github.com/mamadbah2/stockusage/pkg/format"
)

func num(v float64) float64 { return format.Flt(v) }

// RecalcRequirement refreshes the derived variance and cost of a single row.
func RecalcRequirement(req *models.RawMaterialRequirement) {
	req.PlannedQty = num(req.PlannedQty)
	req.ActualQty = num(req.ActualQty)
	req.UnitCost = num(req.UnitCost)

	req.DiffQty = req.ActualQty - req.PlannedQty
	req.Cost = req.ActualQty * req.UnitCost
}

// RecalcAggregate refreshes the derived variance and cost of an aggregated row.
func RecalcAggregate(row *models.AggregatedRawMaterialRow) {
	row.TotalRequiredQty = num(row.TotalRequiredQty)
	row.ActualQty = num(row.ActualQty)
	row.UnitCost = num(row.UnitCost)

	row.DiffQty = row.ActualQty - row.TotalRequiredQty
	row.TotalCost = row.ActualQty * row.UnitCost
}

// RecalcMenu refreshes every requirement row of a menu line.
func RecalcMenu(line *models.MenuSaleLine) {
	for i := range line.Requirements {
		RecalcRequirement(&line.Requirements[i])
	}
}

// requirementsCost sums actual × unit cost straight from the inputs so a stale
// Cost field can never leak into a total. Rows without a code are not part of
// the saved consumption and are left out, as in Aggregate and BuildPayload.
func requirementsCost(reqs []models.RawMaterialRequirement) float64 {
	var total float64
	for _, req := range reqs {
		if strings.TrimSpace(req.ItemCode) == "" {
			continue
		}
		total += num(req.ActualQty) * num(req.UnitCost)
	}
	return total
}

// MenuCostOf rolls up the cost of a menu line. Unit cost divides by the sold
// quantity floored at 1.
func MenuCostOf(line models.MenuSaleLine) models.MenuCost {
	total := requirementsCost(line.Requirements)
	selling := num(line.SellingAmount)

	cost := models.MenuCost{
		TotalCost: total,
		UnitCost:  total / math.Max(num(line.QtySold), 1),
		MarginVal: selling - total,
	}
	if selling != 0 {
		cost.MarginPct = total / selling * 100
	}
	return cost
}

// BlockSummary is the footer of the per-menu breakdown table.
func BlockSummary(line models.MenuSaleLine) models.MenuBlockSummary {
	summary := models.MenuBlockSummary{Lines: len(line.Requirements)}
	for _, req := range line.Requirements {
		if strings.TrimSpace(req.ItemCode) == "" {
			continue
		}
		summary.TotalPlannedQty += num(req.PlannedQty)
		summary.TotalActualQty += num(req.ActualQty)
	}
	summary.TotalCost = requirementsCost(line.Requirements)
	return summary
}

// Totals rolls up every menu line of a session. Unlike MenuCostOf, the
// weighted figures fall back to zero when nothing was sold.
func Totals(lines []models.MenuSaleLine) models.SessionTotals {
	var t models.SessionTotals
	for _, line := range lines {
		t.TotalQtySold += num(line.QtySold)
		t.TotalSalesAmount += num(line.SellingAmount)
		t.TotalCost += MenuCostOf(line).TotalCost
	}

	if t.TotalQtySold != 0 {
		t.WeightedUnitCost = t.TotalCost / t.TotalQtySold
		t.WeightedSellRate = t.TotalSalesAmount / t.TotalQtySold
	}
	t.AvgMarginUnit = t.WeightedSellRate - t.WeightedUnitCost
	t.MarginAmount = t.TotalSalesAmount - t.TotalCost
	if t.TotalSalesAmount != 0 {
		t.MarginPct = t.TotalCost / t.TotalSalesAmount * 100
	}
	return t
}
