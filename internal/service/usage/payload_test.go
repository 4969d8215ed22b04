package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mamadbah2/stockusage/internal/domain/models"
)

type stubCatalog struct {
	known map[string]float64
	err   error
	calls [][]string
}

func (c *stubCatalog) GetUnitCostBulk(_ context.Context, codes []string) (map[string]float64, error) {
	c.calls = append(c.calls, codes)
	if c.err != nil {
		return nil, c.err
	}
	return c.known, nil
}

func TestBuildPayload(t *testing.T) {
	lines := sampleLines()
	lines[0].Menu = "Nasi Goreng Spesial"
	lines[0].Category = "Main Course"
	lines[0].Requirements[0].ActualQty = 12
	lines[0].Requirements[1].ActualQty = 10
	lines[1].Requirements[0].ActualQty = 30
	lines[0].Requirements[0].Cost = 1 // stale on purpose

	payload := BuildPayload(lines, Aggregate(lines))

	if len(payload.MenuSummaries) != 2 {
		t.Fatalf("expected two menu summaries, got %d", len(payload.MenuSummaries))
	}

	first := payload.MenuSummaries[0]
	if first.Menu != "Nasi Goreng Spesial" || first.SellItem != "MENU-NASGOR" || first.Category != "Main Course" {
		t.Fatalf("unexpected identity %+v", first)
	}
	if first.RMValueTotal != 12*12000+10*2000 {
		t.Fatalf("rm value total not recomputed from rows: %v", first.RMValueTotal)
	}
	if first.MarginAmount != first.SalesAmount-first.RMValueTotal {
		t.Fatalf("unexpected margin %v", first.MarginAmount)
	}
	if len(first.RawMaterials) != 2 || first.RawMaterials[0].DiffQty != 2 {
		t.Fatalf("unexpected raw material detail %+v", first.RawMaterials)
	}

	second := payload.MenuSummaries[1]
	if second.Menu != "Omelette" {
		t.Fatalf("expected menu to fall back to item name, got %q", second.Menu)
	}
	if len(second.RawMaterials) != 1 {
		t.Fatalf("blank-code rows must be skipped, got %+v", second.RawMaterials)
	}

	if len(payload.RMBreakdown) != 2 {
		t.Fatalf("expected two breakdown rows, got %+v", payload.RMBreakdown)
	}
	egg := payload.RMBreakdown[1]
	if egg.ItemCode != "EGG-01" || egg.PlannedQty != 40 || egg.ActualQty != 40 || egg.DiffQty != 0 || egg.UnitCost != 2000 {
		t.Fatalf("unexpected egg breakdown %+v", egg)
	}
}

func TestValidateItemsReportsEveryUnknownCode(t *testing.T) {
	catalog := &stubCatalog{known: map[string]float64{"RICE-01": 12000}}
	breakdown := []models.RawMaterialBreakdown{
		{ItemCode: "RICE-01", UOM: "Kg"},
		{ItemCode: "GHOST-01", UOM: "Kg"},
		{ItemCode: "GHOST-02", UOM: "Ltr"},
	}

	err := ValidateItems(context.Background(), catalog, breakdown)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Invalid) != 2 || verr.Invalid[0].ItemCode != "GHOST-01" || verr.Invalid[1].UOM != "Ltr" {
		t.Fatalf("unexpected invalid items %+v", verr.Invalid)
	}
	if !strings.Contains(err.Error(), "GHOST-01 (UOM: Kg)") || !strings.Contains(err.Error(), "GHOST-02 (UOM: Ltr)") {
		t.Fatalf("message does not list every code: %s", err.Error())
	}
	if len(catalog.calls) != 1 || len(catalog.calls[0]) != 3 {
		t.Fatalf("expected one bulk call with three codes, got %v", catalog.calls)
	}
}

func TestValidationErrorCapsDisplay(t *testing.T) {
	var invalid []InvalidItem
	for i := 0; i < 13; i++ {
		invalid = append(invalid, InvalidItem{ItemCode: fmt.Sprintf("BAD-%02d", i), UOM: "Nos"})
	}

	msg := (&ValidationError{Invalid: invalid}).Error()
	if !strings.Contains(msg, "BAD-09") || strings.Contains(msg, "BAD-10") {
		t.Fatalf("expected first ten codes only: %s", msg)
	}
	if !strings.HasSuffix(msg, "...and 3 more") {
		t.Fatalf("expected overflow summary: %s", msg)
	}
}

func TestValidateItemsSkipsEmptyBreakdown(t *testing.T) {
	catalog := &stubCatalog{}
	if err := ValidateItems(context.Background(), catalog, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(catalog.calls) != 0 {
		t.Fatalf("catalog should not be queried for an empty breakdown")
	}
}

func TestValidateItemsCheckFailure(t *testing.T) {
	catalog := &stubCatalog{err: errors.New("timeout")}
	err := ValidateItems(context.Background(), catalog, []models.RawMaterialBreakdown{{ItemCode: "RICE-01"}})

	var verr *ValidationError
	if err == nil || errors.As(err, &verr) {
		t.Fatalf("expected a wrapped lookup error, got %v", err)
	}
}
