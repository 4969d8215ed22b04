package models

import "time"

// RawMaterialDetail is the per-menu raw-material line persisted with a menu summary.
type RawMaterialDetail struct {
	ItemCode     string  `json:"rm_item" bson:"rm_item"`
	PlannedQty   float64 `json:"planned" bson:"planned"`
	ActualQty    float64 `json:"act" bson:"act"`
	DiffQty      float64 `json:"diffq" bson:"diffq"`
	UOM          string  `json:"uom" bson:"uom"`
	UnitCost     float64 `json:"uc" bson:"uc"`
	Cost         float64 `json:"cost" bson:"cost"`
	AvailableQty float64 `json:"avail" bson:"avail"`
	Remarks      string  `json:"remarks" bson:"remarks"`
	Warehouse    string  `json:"wh" bson:"wh"`
}

// MenuSummary is the consumption summary of one sold menu item.
type MenuSummary struct {
	Menu         string              `json:"menu" bson:"menu"`
	Category     string              `json:"category" bson:"category"`
	SellItem     string              `json:"sell_item" bson:"sell_item"`
	QtySold      float64             `json:"qty_sold" bson:"qty_sold"`
	SalesAmount  float64             `json:"sales_amount" bson:"sales_amount"`
	RMValueTotal float64             `json:"rm_value_total" bson:"rm_value_total"`
	MarginAmount float64             `json:"margin_amount" bson:"margin_amount"`
	RawMaterials []RawMaterialDetail `json:"raw_material_breakdown" bson:"raw_material_breakdown"`
}

// RawMaterialBreakdown is one consolidated raw-material line of a consumption.
type RawMaterialBreakdown struct {
	ItemCode   string  `json:"rm_item" bson:"rm_item"`
	ItemName   string  `json:"item_name" bson:"item_name"`
	UOM        string  `json:"uom" bson:"uom"`
	PlannedQty float64 `json:"planned_qty" bson:"planned_qty"`
	ActualQty  float64 `json:"actual_qty" bson:"actual_qty"`
	DiffQty    float64 `json:"diff_qty" bson:"diff_qty"`
	UnitCost   float64 `json:"valuation_rate_snapshot" bson:"valuation_rate_snapshot"`
}

// ConsumptionPayload is what the persistence service receives.
type ConsumptionPayload struct {
	MenuSummaries []MenuSummary          `json:"menu_summaries"`
	RMBreakdown   []RawMaterialBreakdown `json:"rm_breakdown"`
}

// ConsumptionRequest is the terminal create call for a POS consumption record.
type ConsumptionRequest struct {
	ClosingEntry  string                 `json:"pos_closing_entry"`
	Company       string                 `json:"company"`
	Warehouse     string                 `json:"warehouse"`
	Notes         string                 `json:"notes"`
	MenuSummaries []MenuSummary          `json:"menu_summaries"`
	RMBreakdown   []RawMaterialBreakdown `json:"rm_breakdown"`
}

// ConsumptionRecord is the archived copy of a saved consumption, stored in MongoDB.
type ConsumptionRecord struct {
	RecordID      string                 `bson:"record_id" json:"record_id"`
	ClosingEntry  string                 `bson:"closing_entry" json:"closing_entry"`
	Company       string                 `bson:"company" json:"company"`
	Warehouse     string                 `bson:"warehouse" json:"warehouse"`
	PostingDate   time.Time              `bson:"posting_date" json:"posting_date"`
	MenuSummaries []MenuSummary          `bson:"menu_summaries" json:"menu_summaries"`
	RMBreakdown   []RawMaterialBreakdown `bson:"rm_breakdown" json:"rm_breakdown"`
	Totals        SessionTotals          `bson:"totals" json:"totals"`
	CreatedAt     time.Time              `bson:"created_at" json:"created_at"`
}
