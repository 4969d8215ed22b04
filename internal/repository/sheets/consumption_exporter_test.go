package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/mamadbah2/stockusage/internal/config"
	"github.com/mamadbah2/stockusage/internal/domain/models"
)

type fakeSheet struct {
	existing [][]interface{}
	readErr  error
	written  map[string][][]interface{}
}

func (f *fakeSheet) WriteRows(_ context.Context, sheetRange string, rows [][]interface{}) error {
	if f.written == nil {
		f.written = map[string][][]interface{}{}
	}
	f.written[sheetRange] = append(f.written[sheetRange], rows...)
	return nil
}

func (f *fakeSheet) ReadRange(_ context.Context, _ string) ([][]interface{}, error) {
	return f.existing, f.readErr
}

func sampleRecord() models.ConsumptionRecord {
	return models.ConsumptionRecord{
		RecordID:     "POS-CONS-0001",
		ClosingEntry: "POS-CLS-0001",
		Warehouse:    "Stores - R",
		PostingDate:  time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		RMBreakdown: []models.RawMaterialBreakdown{
			{ItemCode: "SUGAR-01", ItemName: "Sugar", UOM: "Kg", PlannedQty: 4, ActualQty: 4.5, DiffQty: 0.5, UnitCost: 15000},
			{ItemCode: "EGG-01", ItemName: "Egg", UOM: "Pcs", PlannedQty: 10, ActualQty: 9, DiffQty: -1, UnitCost: 2000},
		},
	}
}

func TestConsumptionRows(t *testing.T) {
	rows := ConsumptionRows(sampleRecord())
	if len(rows) != 2 {
		t.Fatalf("expected one row per raw material, got %d", len(rows))
	}

	first := rows[0]
	if first[0] != "POS-CONS-0001" || first[2] != "2026-10-19" || first[4] != "SUGAR-01" {
		t.Fatalf("unexpected row %v", first)
	}
	if first[10] != 7500.0 {
		t.Fatalf("expected variance cost 7500, got %v", first[10])
	}
	if rows[1][10] != -2000.0 {
		t.Fatalf("expected negative variance cost, got %v", rows[1][10])
	}
}

func TestExportConsumption(t *testing.T) {
	sheet := &fakeSheet{existing: [][]interface{}{{"record_id"}, {"POS-CONS-0000"}}}
	exporter := NewConsumptionExporter(sheet, nil)

	if err := exporter.ExportConsumption(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(sheet.written[consumptionRange]); got != 2 {
		t.Fatalf("expected two rows written, got %d", got)
	}
}

func TestExportConsumptionSkipsExportedRecord(t *testing.T) {
	sheet := &fakeSheet{existing: [][]interface{}{{"POS-CONS-0001"}}}
	exporter := NewConsumptionExporter(sheet, nil)

	if err := exporter.ExportConsumption(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sheet.written) != 0 {
		t.Fatalf("record exported twice: %v", sheet.written)
	}
}

func TestExportConsumptionReadFailure(t *testing.T) {
	sheet := &fakeSheet{readErr: errors.New("quota exceeded")}
	exporter := NewConsumptionExporter(sheet, nil)

	if err := exporter.ExportConsumption(context.Background(), sampleRecord()); err == nil {
		t.Fatal("expected an error")
	}
	if len(sheet.written) != 0 {
		t.Fatalf("nothing must be written when the check fails")
	}
}

func TestGoogleSheetRepository(t *testing.T) {
	var appended [][]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
			var body struct {
				Values [][]interface{} `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			appended = body.Values
			_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1"}`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"range":"Consumptions!A1:A2","values":[["record_id"],["POS-CONS-0001"]]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	repo, err := NewGoogleSheetRepository(context.Background(), config.SheetsConfig{SpreadsheetID: "sheet-1"}, nil,
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.WriteRows(context.Background(), consumptionRange, ConsumptionRows(sampleRecord())); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if len(appended) != 2 || appended[0][4] != "SUGAR-01" {
		t.Fatalf("unexpected appended rows %v", appended)
	}

	values, err := repo.ReadRange(context.Background(), recordIDRange)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(values) != 2 || values[1][0] != "POS-CONS-0001" {
		t.Fatalf("unexpected values %v", values)
	}

	if err := repo.WriteRows(context.Background(), "", nil); err == nil {
		t.Fatal("expected an error for an empty range")
	}
}
