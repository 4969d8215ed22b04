package models

import "time"

// VarianceLine is the day-level variance of one raw material across saved consumptions.
type VarianceLine struct {
	ItemCode     string
	UOM          string
	PlannedQty   float64
	ActualQty    float64
	DiffQty      float64
	VarianceCost float64
}

// DailyVarianceReport aggregates the consumptions archived during one day.
type DailyVarianceReport struct {
	Date         time.Time
	Records      int
	SalesAmount  float64
	RMCost       float64
	VarianceCost float64
	TopVariances []VarianceLine
}
