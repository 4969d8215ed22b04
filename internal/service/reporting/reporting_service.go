package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/domain/models"
	"github.com/mamadbah2/stockusage/pkg/format"
)

const (
	dateLayout              = "2006-01-02"
	defaultTopVarianceLines = 5
)

// ConsumptionSource lists archived consumptions by posting date.
type ConsumptionSource interface {
	ListConsumptions(ctx context.Context, from, to time.Time) ([]models.ConsumptionRecord, error)
}

// Service builds the daily raw-material variance digest.
type Service struct {
	source   ConsumptionSource
	location *time.Location
	currency string
	top      int
	logger   *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(source ConsumptionSource, location *time.Location, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}
	return &Service{
		source:   source,
		location: location,
		currency: currency,
		top:      defaultTopVarianceLines,
		logger:   logger,
	}
}

// BuildDailyReport aggregates the consumptions posted on the calendar day of
// day, in the service location.
func (s *Service) BuildDailyReport(ctx context.Context, day time.Time) (models.DailyVarianceReport, error) {
	local := day.In(s.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	end := start.AddDate(0, 0, 1)

	records, err := s.source.ListConsumptions(ctx, start, end)
	if err != nil {
		return models.DailyVarianceReport{}, fmt.Errorf("load consumptions for %s: %w", start.Format(dateLayout), err)
	}

	report := models.DailyVarianceReport{Date: start, Records: len(records)}
	lines := make(map[string]*models.VarianceLine)
	var order []string

	for _, record := range records {
		for _, menu := range record.MenuSummaries {
			report.SalesAmount += menu.SalesAmount
			report.RMCost += menu.RMValueTotal
		}

		for _, rm := range record.RMBreakdown {
			code := strings.TrimSpace(rm.ItemCode)
			if code == "" {
				continue
			}
			line, ok := lines[code]
			if !ok {
				line = &models.VarianceLine{ItemCode: code, UOM: rm.UOM}
				lines[code] = line
				order = append(order, code)
			}
			line.PlannedQty += rm.PlannedQty
			line.ActualQty += rm.ActualQty
			line.DiffQty += rm.DiffQty
			line.VarianceCost += rm.DiffQty * rm.UnitCost
		}
	}

	all := make([]models.VarianceLine, 0, len(order))
	for _, code := range order {
		line := lines[code]
		report.VarianceCost += line.VarianceCost
		all = append(all, *line)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return math.Abs(all[i].VarianceCost) > math.Abs(all[j].VarianceCost)
	})
	for _, line := range all {
		if len(report.TopVariances) == s.top {
			break
		}
		if line.DiffQty == 0 {
			continue
		}
		report.TopVariances = append(report.TopVariances, line)
	}

	s.logger.Debug("daily variance report built",
		zap.String("date", start.Format(dateLayout)),
		zap.Int("records", report.Records),
		zap.Int("raw_materials", len(all)))

	return report, nil
}

// FormatDailyReport renders a report as a chat message.
func (s *Service) FormatDailyReport(report models.DailyVarianceReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stock usage digest %s\n", report.Date.Format(dateLayout))

	if report.Records == 0 {
		b.WriteString("No POS consumption was saved today.")
		return b.String()
	}

	fmt.Fprintf(&b, "Consumptions saved: %d\n", report.Records)
	fmt.Fprintf(&b, "Sales: %s\n", format.Currency(report.SalesAmount, s.currency))
	fmt.Fprintf(&b, "RM cost: %s", format.Currency(report.RMCost, s.currency))
	if report.SalesAmount != 0 {
		fmt.Fprintf(&b, " (%s of sales)", format.Percent(report.RMCost/report.SalesAmount*100))
	}
	fmt.Fprintf(&b, "\nVariance cost: %s\n", format.Currency(report.VarianceCost, s.currency))

	if len(report.TopVariances) == 0 {
		b.WriteString("Actual usage matched the BOM for every raw material.")
		return b.String()
	}

	b.WriteString("Largest variances:")
	for i, line := range report.TopVariances {
		sign := ""
		if line.DiffQty > 0 {
			sign = "+"
		}
		fmt.Fprintf(&b, "\n%d. %s %s%s %s (%s)",
			i+1,
			line.ItemCode,
			sign,
			format.Quantity(line.DiffQty, 3),
			line.UOM,
			format.Currency(line.VarianceCost, s.currency))
	}
	return b.String()
}

// DailyDigest builds and renders the digest for the given day.
func (s *Service) DailyDigest(ctx context.Context, day time.Time) (string, error) {
	report, err := s.BuildDailyReport(ctx, day)
	if err != nil {
		return "", err
	}
	return s.FormatDailyReport(report), nil
}
