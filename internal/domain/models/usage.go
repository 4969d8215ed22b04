package models

// RawMaterialRequirement is one BOM-derived raw-material line owned by a single
// sold menu item. DiffQty and Cost are derived from the inputs and are refreshed
// by the calculator after every edit.
type RawMaterialRequirement struct {
	ItemCode     string  `json:"item_code" bson:"item_code"`
	ItemName     string  `json:"item_name" bson:"item_name"`
	UOM          string  `json:"uom" bson:"uom"`
	PlannedQty   float64 `json:"planned_qty" bson:"planned_qty"`
	ActualQty    float64 `json:"actual_qty" bson:"actual_qty"`
	DiffQty      float64 `json:"diff_qty" bson:"diff_qty"`
	UnitCost     float64 `json:"unit_cost" bson:"unit_cost"`
	Cost         float64 `json:"cost" bson:"cost"`
	Warehouse    string  `json:"warehouse" bson:"warehouse"`
	AvailableQty float64 `json:"available_qty" bson:"available_qty"`
	Remarks      string  `json:"remarks" bson:"remarks"`
}

// MenuSaleLine is one sold menu item of a closed POS session together with its
// exploded raw-material requirements.
type MenuSaleLine struct {
	ItemCode      string                   `json:"item_code"`
	ItemName      string                   `json:"item_name"`
	Menu          string                   `json:"menu"`
	Category      string                   `json:"category"`
	StockUOM      string                   `json:"stock_uom"`
	QtySold       float64                  `json:"qty_sold"`
	SellingRate   float64                  `json:"selling_rate"`
	SellingAmount float64                  `json:"selling_amount"`
	Requirements  []RawMaterialRequirement `json:"raw_material_requirements"`
}

// AggregatedRawMaterialRow merges every requirement sharing an item code.
type AggregatedRawMaterialRow struct {
	ItemCode         string  `json:"item_code"`
	ItemName         string  `json:"item_name"`
	UOM              string  `json:"uom"`
	TotalRequiredQty float64 `json:"total_required_qty"`
	ActualQty        float64 `json:"actual_qty"`
	DiffQty          float64 `json:"diff_qty"`
	UnitCost         float64 `json:"unit_cost"`
	TotalCost        float64 `json:"total_cost"`
}

// MenuCost holds the cost roll-up of a single menu line.
// MarginPct is cost over sales, not profit over sales.
type MenuCost struct {
	UnitCost  float64 `json:"unit_cost"`
	TotalCost float64 `json:"total_cost"`
	MarginVal float64 `json:"margin_val"`
	MarginPct float64 `json:"margin_pct"`
}

// MenuBlockSummary is the footer of a per-menu breakdown table.
type MenuBlockSummary struct {
	Lines           int     `json:"lines"`
	TotalPlannedQty float64 `json:"total_planned_qty"`
	TotalActualQty  float64 `json:"total_actual_qty"`
	TotalCost       float64 `json:"total_cost"`
}

// SessionTotals is derived on demand across every menu line of a session.
type SessionTotals struct {
	TotalQtySold     float64 `json:"total_qty_sold" bson:"total_qty_sold"`
	TotalCost        float64 `json:"total_cost" bson:"total_cost"`
	TotalSalesAmount float64 `json:"total_sales_amount" bson:"total_sales_amount"`
	WeightedUnitCost float64 `json:"weighted_unit_cost" bson:"weighted_unit_cost"`
	WeightedSellRate float64 `json:"weighted_sell_rate" bson:"weighted_sell_rate"`
	AvgMarginUnit    float64 `json:"avg_margin_unit" bson:"avg_margin_unit"`
	MarginAmount     float64 `json:"margin_amount" bson:"margin_amount"`
	MarginPct        float64 `json:"margin_pct" bson:"margin_pct"`
}

// ItemMetadata is the item master data needed when a raw-material code changes.
type ItemMetadata struct {
	ItemName      string  `json:"item_name"`
	StockUOM      string  `json:"stock_uom"`
	ValuationRate float64 `json:"valuation_rate"`
}

// StockLocation identifies a raw material in a warehouse for availability lookups.
type StockLocation struct {
	ItemCode  string `json:"item_code"`
	Warehouse string `json:"warehouse"`
}

// Key renders the "item_code::warehouse" form used by bulk availability maps.
func (l StockLocation) Key() string {
	return l.ItemCode + "::" + l.Warehouse
}
