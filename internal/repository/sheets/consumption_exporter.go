package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/domain/models"
	"github.com/mamadbah2/stockusage/pkg/format"
)

const (
	consumptionRange = "Consumptions!A:K"
	recordIDRange    = "Consumptions!A:A"
	dateLayout       = "2006-01-02"
)

// ConsumptionExporter mirrors the raw-material breakdown of saved
// consumptions into a sheet, one row per raw material.
type ConsumptionExporter struct {
	repo   Repository
	logger *zap.Logger
}

// NewConsumptionExporter builds an exporter on top of a sheet repository.
func NewConsumptionExporter(repo Repository, logger *zap.Logger) *ConsumptionExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumptionExporter{repo: repo, logger: logger}
}

// ExportConsumption appends the record's raw-material rows unless the record
// was exported before.
func (e *ConsumptionExporter) ExportConsumption(ctx context.Context, record models.ConsumptionRecord) error {
	exported, err := e.exported(ctx, record.RecordID)
	if err != nil {
		return err
	}
	if exported {
		e.logger.Info("consumption already exported", zap.String("record_id", record.RecordID))
		return nil
	}

	rows := ConsumptionRows(record)
	if err := e.repo.WriteRows(ctx, consumptionRange, rows); err != nil {
		return fmt.Errorf("export consumption %s: %w", record.RecordID, err)
	}
	return nil
}

func (e *ConsumptionExporter) exported(ctx context.Context, recordID string) (bool, error) {
	values, err := e.repo.ReadRange(ctx, recordIDRange)
	if err != nil {
		return false, fmt.Errorf("read exported record ids: %w", err)
	}
	for _, row := range values {
		if len(row) > 0 && fmt.Sprint(row[0]) == recordID {
			return true, nil
		}
	}
	return false, nil
}

// ConsumptionRows renders record id, closing entry, posting date, warehouse,
// item code, item name, uom, planned, actual, diff and variance cost for
// every raw material.
func ConsumptionRows(record models.ConsumptionRecord) [][]interface{} {
	rows := make([][]interface{}, 0, len(record.RMBreakdown))
	for _, rm := range record.RMBreakdown {
		rows = append(rows, []interface{}{
			record.RecordID,
			record.ClosingEntry,
			record.PostingDate.Format(dateLayout),
			record.Warehouse,
			rm.ItemCode,
			rm.ItemName,
			rm.UOM,
			format.Round(rm.PlannedQty, 3),
			format.Round(rm.ActualQty, 3),
			format.Round(rm.DiffQty, 3),
			format.Round(rm.DiffQty*rm.UnitCost, 2),
		})
	}
	return rows
}
