package models

// StockMovementItem is one raw-material issue line of a stock movement.
type StockMovementItem struct {
	ItemCode  string  `json:"item_code"`
	ItemName  string  `json:"item_name"`
	Qty       float64 `json:"qty"`
	StockUOM  string  `json:"stock_uom"`
	Warehouse string  `json:"warehouse"`
	Remarks   string  `json:"remarks"`
}

// StockMovementRequest posts issued quantities straight to the warehouse,
// bypassing the consumption record.
type StockMovementRequest struct {
	ClosingEntry    string              `json:"pos_closing_entry"`
	Company         string              `json:"company"`
	PostingDate     string              `json:"posting_date"`
	StockEntryType  string              `json:"stock_entry_type"`
	SourceWarehouse string              `json:"source_warehouse"`
	Remarks         string              `json:"remarks"`
	Items           []StockMovementItem `json:"items"`
}
