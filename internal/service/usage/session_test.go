package usage

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mamadbah2/stockusage/internal/domain/models"
)

func newTestSession(lines []models.MenuSaleLine) *Session {
	return NewSession("sess-1", "POS-CLS-0001", "Resto PT", "Stores - R", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), lines)
}

func proportionalLines() []models.MenuSaleLine {
	return []models.MenuSaleLine{
		{ItemCode: "MENU-A", QtySold: 1, Requirements: []models.RawMaterialRequirement{{ItemCode: "SUGAR-01", PlannedQty: 10, UnitCost: 100}}},
		{ItemCode: "MENU-B", QtySold: 1, Requirements: []models.RawMaterialRequirement{{ItemCode: "SUGAR-01", PlannedQty: 30, UnitCost: 100}}},
	}
}

func TestSetAggregateActualDistributesByPlannedShare(t *testing.T) {
	s := newTestSession(proportionalLines())

	if err := s.SetAggregateActual("SUGAR-01", 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := s.Lines()
	if got := lines[0].Requirements[0].ActualQty; got != 5 {
		t.Fatalf("expected first menu actual 5, got %v", got)
	}
	if got := lines[1].Requirements[0].ActualQty; got != 15 {
		t.Fatalf("expected second menu actual 15, got %v", got)
	}
	if got := lines[1].Requirements[0].Cost; got != 1500 {
		t.Fatalf("expected recalculated cost 1500, got %v", got)
	}

	view := s.Snapshot()
	if view.Aggregate[0].ActualQty != 20 || view.Aggregate[0].DiffQty != -20 {
		t.Fatalf("unexpected aggregate %+v", view.Aggregate[0])
	}
}

func TestSetAggregateActualWithZeroPlanned(t *testing.T) {
	s := newTestSession([]models.MenuSaleLine{
		{Requirements: []models.RawMaterialRequirement{{ItemCode: "SALT-01", PlannedQty: 0, ActualQty: 3}}},
	})

	if err := s.SetAggregateActual("SALT-01", 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Lines()[0].Requirements[0].ActualQty; got != 0 {
		t.Fatalf("expected zero actual when nothing was planned, got %v", got)
	}
}

func TestSetAggregateActualUnknownCode(t *testing.T) {
	s := newTestSession(proportionalLines())
	if err := s.SetAggregateActual("NOPE", 1); !errors.Is(err, ErrItemNotInSession) {
		t.Fatalf("expected ErrItemNotInSession, got %v", err)
	}
}

func TestPerMenuEditReconcilesOnAggregate(t *testing.T) {
	s := newTestSession(proportionalLines())
	actual := 12.0

	if _, _, err := s.UpdateRow(0, 0, RowPatch{ActualQty: &actual}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := s.Lines()
	if lines[1].Requirements[0].ActualQty != 0 {
		t.Fatalf("a per-menu edit must not redistribute, got %v", lines[1].Requirements[0].ActualQty)
	}
	if lines[0].Requirements[0].DiffQty != 2 || lines[0].Requirements[0].Cost != 1200 {
		t.Fatalf("derived values stale: %+v", lines[0].Requirements[0])
	}
	if agg := s.Snapshot().Aggregate[0]; agg.ActualQty != 12 {
		t.Fatalf("expected aggregate actual 12 after reconcile, got %v", agg.ActualQty)
	}
}

func TestAddThenRemoveRowRestoresRequirements(t *testing.T) {
	s := newTestSession(sampleLines())
	before := s.Lines()[0].Requirements

	idx, err := s.AddRow(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	added := s.Lines()[0].Requirements[idx]
	if added.PlannedQty != 1 || added.ActualQty != 0 || added.DiffQty != -1 || added.Warehouse != "Stores - R" {
		t.Fatalf("unexpected blank row %+v", added)
	}

	if _, err := s.RemoveRows(0, []int{idx}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if after := s.Lines()[0].Requirements; !reflect.DeepEqual(before, after) {
		t.Fatalf("requirements changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRemoveRows(t *testing.T) {
	s := newTestSession(sampleLines())

	removed, err := s.RemoveRows(0, []int{1, 1, 7, -1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one removed row, got %d", removed)
	}
	if reqs := s.Lines()[0].Requirements; len(reqs) != 1 || reqs[0].ItemCode != "RICE-01" {
		t.Fatalf("unexpected rows %+v", reqs)
	}

	if _, err := s.RemoveRows(0, []int{5}); !errors.Is(err, ErrNoRowsSelected) {
		t.Fatalf("expected ErrNoRowsSelected, got %v", err)
	}
	if _, err := s.RemoveRows(9, []int{0}); !errors.Is(err, ErrMenuIndex) {
		t.Fatalf("expected ErrMenuIndex, got %v", err)
	}
}

func TestParseRowNumbers(t *testing.T) {
	got, err := ParseRowNumbers(" 2, 3,x,5 ,0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{1, 2, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := ParseRowNumbers("a, b"); !errors.Is(err, ErrNoRowsSelected) {
		t.Fatalf("expected ErrNoRowsSelected, got %v", err)
	}
}

func TestUpdateRowIssuesLookupRefs(t *testing.T) {
	s := newTestSession(sampleLines())
	code := "BUTTER-01"

	codeRef, stockRef, err := s.UpdateRow(0, 0, RowPatch{ItemCode: &code})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codeRef == nil || codeRef.ItemCode != code {
		t.Fatalf("expected item lookup ref, got %+v", codeRef)
	}
	if stockRef == nil || stockRef.Location != (models.StockLocation{ItemCode: code, Warehouse: "Stores - R"}) {
		t.Fatalf("expected availability ref, got %+v", stockRef)
	}

	remarks := "spilled"
	codeRef, stockRef, err = s.UpdateRow(0, 0, RowPatch{Remarks: &remarks})
	if err != nil || codeRef != nil || stockRef != nil {
		t.Fatalf("remarks edit should not trigger lookups: %v %v %v", codeRef, stockRef, err)
	}

	if _, _, err := s.UpdateRow(0, 9, RowPatch{}); !errors.Is(err, ErrRowIndex) {
		t.Fatalf("expected ErrRowIndex, got %v", err)
	}
}

func TestStaleLookupIsDiscarded(t *testing.T) {
	s := newTestSession(sampleLines())
	first, second := "BUTTER-01", "CHEESE-01"

	staleRef, _, _ := s.UpdateRow(0, 0, RowPatch{ItemCode: &first})
	freshRef, freshStock, _ := s.UpdateRow(0, 0, RowPatch{ItemCode: &second})

	cheap := 1.0
	if s.ApplyItemLookup(*staleRef, ItemLookup{Metadata: &models.ItemMetadata{ItemName: "Butter"}, UnitCost: &cheap}) {
		t.Fatalf("stale lookup was applied")
	}

	cost := 45000.0
	if !s.ApplyItemLookup(*freshRef, ItemLookup{Metadata: &models.ItemMetadata{ItemName: "Cheese", StockUOM: "Kg"}, UnitCost: &cost}) {
		t.Fatalf("fresh lookup was not applied")
	}
	if !s.ApplyAvailability(*freshStock, 7) {
		t.Fatalf("fresh availability was not applied")
	}

	row := s.Lines()[0].Requirements[0]
	if row.ItemName != "Cheese" || row.UOM != "Kg" || row.UnitCost != 45000 || row.AvailableQty != 7 {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.Cost != row.ActualQty*45000 {
		t.Fatalf("cost not recalculated: %+v", row)
	}
}

func TestLookupSurvivesRowRemovalAboveIt(t *testing.T) {
	s := newTestSession(sampleLines())
	code := "BUTTER-01"

	ref, _, _ := s.UpdateRow(0, 1, RowPatch{ItemCode: &code})
	if _, err := s.RemoveRows(0, []int{0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cost := 30000.0
	if !s.ApplyItemLookup(*ref, ItemLookup{UnitCost: &cost}) {
		t.Fatalf("lookup for a shifted row was not applied")
	}
	if got := s.Lines()[0].Requirements[0]; got.ItemCode != code || got.UnitCost != cost {
		t.Fatalf("lookup applied to wrong row: %+v", got)
	}
}

func TestChangeWarehouseFollowsDefault(t *testing.T) {
	lines := sampleLines()
	lines[0].Requirements[0].Warehouse = "Stores - R"
	lines[0].Requirements[1].Warehouse = "Bar - R"
	s := newTestSession(lines)

	s.ChangeWarehouse("Kitchen - R")

	got := s.Lines()
	if got[0].Requirements[0].Warehouse != "Kitchen - R" {
		t.Fatalf("row on old default did not follow: %+v", got[0].Requirements[0])
	}
	if got[0].Requirements[1].Warehouse != "Bar - R" {
		t.Fatalf("row with its own warehouse changed: %+v", got[0].Requirements[1])
	}
	if got[1].Requirements[0].Warehouse != "Kitchen - R" {
		t.Fatalf("row without warehouse did not follow: %+v", got[1].Requirements[0])
	}
}

func TestLocationsAndBulkAvailability(t *testing.T) {
	s := newTestSession(sampleLines())

	batch, err := s.Locations(-1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Locations) != 2 || len(batch.Rows) != 3 {
		t.Fatalf("expected two distinct locations over three rows, got %+v", batch)
	}

	if applied := s.ApplyAvailabilityBulk(batch, map[string]float64{"EGG-01::Stores - R": 42}); applied != 3 {
		t.Fatalf("expected three rows updated, got %d", applied)
	}
	lines := s.Lines()
	if lines[0].Requirements[1].AvailableQty != 42 || lines[1].Requirements[0].AvailableQty != 42 {
		t.Fatalf("availability not applied: %+v", lines)
	}
	if lines[0].Requirements[0].AvailableQty != 0 {
		t.Fatalf("missing pair should read zero, got %v", lines[0].Requirements[0].AvailableQty)
	}

	if _, err := s.Locations(7); !errors.Is(err, ErrMenuIndex) {
		t.Fatalf("expected ErrMenuIndex, got %v", err)
	}
}

func TestBulkAvailabilityKeepsNewerRowLookup(t *testing.T) {
	s := newTestSession(sampleLines())

	batch, err := s.Locations(-1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The row moves while the bulk request is in flight.
	bar := "Bar - R"
	_, stockRef, err := s.UpdateRow(0, 0, RowPatch{Warehouse: &bar})
	if err != nil || stockRef == nil {
		t.Fatalf("expected availability ref, got %v %v", stockRef, err)
	}
	if !s.ApplyAvailability(*stockRef, 42) {
		t.Fatalf("row availability was not applied")
	}

	applied := s.ApplyAvailabilityBulk(batch, map[string]float64{"RICE-01::Stores - R": 5, "EGG-01::Stores - R": 9})
	if applied != 2 {
		t.Fatalf("expected the moved row to be skipped, got %d rows updated", applied)
	}

	lines := s.Lines()
	if got := lines[0].Requirements[0]; got.Warehouse != bar || got.AvailableQty != 42 {
		t.Fatalf("bulk result overwrote a newer lookup: %+v", got)
	}
	if lines[0].Requirements[1].AvailableQty != 9 || lines[1].Requirements[0].AvailableQty != 9 {
		t.Fatalf("current rows not refreshed: %+v", lines)
	}
}

func TestBulkAvailabilitySkipsWarehouseChange(t *testing.T) {
	s := newTestSession(sampleLines())

	batch, _ := s.Locations(0)
	s.ChangeWarehouse("Kitchen - R")

	if applied := s.ApplyAvailabilityBulk(batch, map[string]float64{"RICE-01::Stores - R": 5}); applied != 0 {
		t.Fatalf("rows on the new warehouse took old availability: %d", applied)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newTestSession(sampleLines())
	view := s.Snapshot()
	view.Menus[0].Line.Requirements[0].ActualQty = 999

	if s.Lines()[0].Requirements[0].ActualQty == 999 {
		t.Fatalf("snapshot shares memory with the session")
	}
	if view.PostingDate != "2026-10-19" {
		t.Fatalf("unexpected posting date %q", view.PostingDate)
	}
}

func TestSessionManagerEvictIdle(t *testing.T) {
	sm := NewSessionManager()
	sm.Put(newTestSession(nil))

	if evicted := sm.EvictIdle(time.Now(), time.Hour); len(evicted) != 0 {
		t.Fatalf("fresh session evicted: %v", evicted)
	}
	if evicted := sm.EvictIdle(time.Now().Add(2*time.Hour), time.Hour); len(evicted) != 1 {
		t.Fatalf("idle session kept: %v", evicted)
	}
	if _, err := sm.Get("sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
