package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/stockusage/internal/domain/models"
)

const (
	dateLayout            = "2006-01-02"
	defaultStockEntryType = "Material Issue"
	defaultLookupTimeout  = 10 * time.Second
)

// ERPClient is the record store the tool reads sales breakdowns and item data
// from and writes consumption and stock movement records to.
type ERPClient interface {
	ItemCatalog
	GetBreakdown(ctx context.Context, closingEntry, company, warehouse string) ([]models.MenuSaleLine, error)
	GetUnitCost(ctx context.Context, itemCode string) (float64, error)
	GetAvailableQty(ctx context.Context, itemCode, warehouse string) (float64, error)
	GetAvailabilityBulk(ctx context.Context, locations []models.StockLocation) (map[string]float64, error)
	GetItemMetadata(ctx context.Context, itemCode string) (models.ItemMetadata, error)
	CreateConsumptionRecord(ctx context.Context, req models.ConsumptionRequest) (string, error)
	CreateStockMovement(ctx context.Context, req models.StockMovementRequest) (string, error)
}

// Archive keeps a local copy of saved consumptions.
type Archive interface {
	SaveConsumption(ctx context.Context, record models.ConsumptionRecord) error
}

// Exporter mirrors saved consumptions to an external sheet.
type Exporter interface {
	ExportConsumption(ctx context.Context, record models.ConsumptionRecord) error
}

// Notifier announces saved consumptions.
type Notifier interface {
	NotifyConsumption(ctx context.Context, record models.ConsumptionRecord) error
}

// Options tunes the usage service.
type Options struct {
	LookupTimeout  time.Duration
	StockEntryType string
	Location       *time.Location
	Archive        Archive
	Exporter       Exporter
	Notifier       Notifier
}

// Service runs the stock usage workflow on top of the session editor.
type Service struct {
	erp      ERPClient
	sessions *SessionManager
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a usage service.
func NewService(erp ERPClient, sessions *SessionManager, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = NewSessionManager()
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	if opts.StockEntryType == "" {
		opts.StockEntryType = defaultStockEntryType
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		erp:      erp,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// LoadRequest selects the POS closing entry to reconcile.
type LoadRequest struct {
	ClosingEntry  string `json:"closing_entry"`
	Company       string `json:"company"`
	Warehouse     string `json:"warehouse"`
	PostingDate   string `json:"posting_date"`
	PrefillActual bool   `json:"prefill_actual"`
}

// Result pairs a session view with non-fatal warnings.
type Result struct {
	View     View     `json:"session"`
	Warnings []string `json:"warnings,omitempty"`
}

// Load fetches the sales breakdown of a closing entry and opens a new session.
func (s *Service) Load(ctx context.Context, req LoadRequest) (*Result, error) {
	req.ClosingEntry = strings.TrimSpace(req.ClosingEntry)
	req.Company = strings.TrimSpace(req.Company)
	req.Warehouse = strings.TrimSpace(req.Warehouse)

	var missing []string
	if req.ClosingEntry == "" {
		missing = append(missing, "closing_entry")
	}
	if req.Company == "" {
		missing = append(missing, "company")
	}
	if req.Warehouse == "" {
		missing = append(missing, "warehouse")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(missing, ", "))
	}

	postingDate := s.now().In(s.opts.Location)
	if req.PostingDate != "" {
		parsed, err := time.ParseInLocation(dateLayout, req.PostingDate, s.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: posting_date must be YYYY-MM-DD", ErrMissingInput)
		}
		postingDate = parsed
	}

	lines, err := s.erp.GetBreakdown(ctx, req.ClosingEntry, req.Company, req.Warehouse)
	if err != nil {
		return nil, fmt.Errorf("load breakdown for %s: %w", req.ClosingEntry, err)
	}

	for m := range lines {
		for r := range lines[m].Requirements {
			rm := &lines[m].Requirements[r]
			rm.ItemCode = strings.TrimSpace(rm.ItemCode)
			if rm.Warehouse == "" {
				rm.Warehouse = req.Warehouse
			}
			if req.PrefillActual {
				rm.ActualQty = rm.PlannedQty
			}
		}
	}

	session := NewSession(uuid.NewString(), req.ClosingEntry, req.Company, req.Warehouse, postingDate, lines)
	s.sessions.Put(session)
	s.refreshAvailability(ctx, session, -1)

	view := session.Snapshot()
	var warnings []string
	switch {
	case len(view.Menus) == 0:
		warnings = append(warnings, "no menu items were sold in this closing entry")
	case len(view.Aggregate) == 0:
		warnings = append(warnings, "no raw-material requirements found for the sold menu items")
	}

	s.logger.Info("usage session loaded",
		zap.String("session_id", session.ID()),
		zap.String("closing_entry", req.ClosingEntry),
		zap.Int("menus", len(view.Menus)),
		zap.Int("raw_materials", len(view.Aggregate)))

	return &Result{View: view, Warnings: warnings}, nil
}

// Get returns the current view of a session.
func (s *Service) Get(id string) (View, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return View{}, err
	}
	return session.Snapshot(), nil
}

// Clear discards a session.
func (s *Service) Clear(id string) error {
	if !s.sessions.Delete(id) {
		return ErrSessionNotFound
	}
	s.logger.Info("usage session cleared", zap.String("session_id", id))
	return nil
}

// Recalculate refreshes derived values and availability of one menu block, or
// of every block when menu is negative.
func (s *Service) Recalculate(ctx context.Context, id string, menu int) (View, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return View{}, err
	}
	if err := session.Recalculate(menu); err != nil {
		return View{}, err
	}
	s.refreshAvailability(ctx, session, menu)
	return session.Snapshot(), nil
}

// ChangeWarehouse switches the default source warehouse and refreshes availability.
func (s *Service) ChangeWarehouse(ctx context.Context, id, warehouse string) (View, error) {
	if strings.TrimSpace(warehouse) == "" {
		return View{}, fmt.Errorf("%w: warehouse", ErrMissingInput)
	}
	session, err := s.sessions.Get(id)
	if err != nil {
		return View{}, err
	}
	session.ChangeWarehouse(warehouse)
	s.refreshAvailability(ctx, session, -1)
	return session.Snapshot(), nil
}

// SetAggregateActual edits the session-wide actual quantity of a raw material.
func (s *Service) SetAggregateActual(id, itemCode string, actual float64) (View, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return View{}, err
	}
	if err := session.SetAggregateActual(itemCode, actual); err != nil {
		return View{}, err
	}
	return session.Snapshot(), nil
}

// AddRow appends a blank row to a menu block.
func (s *Service) AddRow(id string, menu int) (View, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return View{}, err
	}
	if _, err := session.AddRow(menu); err != nil {
		return View{}, err
	}
	return session.Snapshot(), nil
}

// RemoveRows deletes rows of a menu block by zero-based index, or by typed
// one-based row numbers when no index was selected.
func (s *Service) RemoveRows(id string, menu int, indexes []int, rowNumbers string) (View, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return View{}, err
	}

	if len(indexes) == 0 {
		parsed, err := ParseRowNumbers(rowNumbers)
		if err != nil {
			return View{}, err
		}
		indexes = parsed
	}

	if _, err := session.RemoveRows(menu, indexes); err != nil {
		return View{}, err
	}
	return session.Snapshot(), nil
}

// UpdateRow edits one requirement row and runs the lookups its change requires.
func (s *Service) UpdateRow(ctx context.Context, id string, menu, row int, patch RowPatch) (View, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return View{}, err
	}

	codeRef, stockRef, err := session.UpdateRow(menu, row, patch)
	if err != nil {
		return View{}, err
	}

	if codeRef != nil || stockRef != nil {
		s.enrichRow(ctx, session, codeRef, stockRef)
	}
	return session.Snapshot(), nil
}

// enrichRow fetches item data and availability for an edited row. Lookups run
// concurrently; a failed lookup is logged and leaves the row's value as is.
func (s *Service) enrichRow(ctx context.Context, session *Session, codeRef, stockRef *RowRef) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()

	var (
		meta      *models.ItemMetadata
		unitCost  *float64
		available *float64
	)

	g, gctx := errgroup.WithContext(ctx)
	if codeRef != nil {
		code := codeRef.ItemCode
		g.Go(func() error {
			m, err := s.erp.GetItemMetadata(gctx, code)
			if err != nil {
				s.logger.Warn("item metadata lookup failed", zap.String("item_code", code), zap.Error(err))
				return nil
			}
			meta = &m
			return nil
		})
		g.Go(func() error {
			cost, err := s.erp.GetUnitCost(gctx, code)
			if err != nil {
				s.logger.Warn("unit cost lookup failed", zap.String("item_code", code), zap.Error(err))
				return nil
			}
			unitCost = &cost
			return nil
		})
	}
	if stockRef != nil {
		loc := stockRef.Location
		g.Go(func() error {
			qty, err := s.erp.GetAvailableQty(gctx, loc.ItemCode, loc.Warehouse)
			if err != nil {
				s.logger.Warn("availability lookup failed",
					zap.String("item_code", loc.ItemCode),
					zap.String("warehouse", loc.Warehouse),
					zap.Error(err))
				return nil
			}
			available = &qty
			return nil
		})
	}
	_ = g.Wait()

	if codeRef != nil {
		if unitCost == nil && meta != nil {
			rate := meta.ValuationRate
			unitCost = &rate
		}
		if !session.ApplyItemLookup(*codeRef, ItemLookup{Metadata: meta, UnitCost: unitCost}) {
			s.logger.Debug("discarded stale item lookup", zap.String("item_code", codeRef.ItemCode))
		}
	}
	if stockRef != nil && available != nil {
		if !session.ApplyAvailability(*stockRef, *available) {
			s.logger.Debug("discarded stale availability", zap.String("item_code", stockRef.ItemCode))
		}
	}
}

// refreshAvailability bulk-loads warehouse availability for one menu block, or
// for every block when menu is negative. Failures are logged only.
func (s *Service) refreshAvailability(ctx context.Context, session *Session, menu int) {
	batch, err := session.Locations(menu)
	if err != nil || len(batch.Locations) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()

	s.logger.Debug("refreshing availability", zap.String("session_id", session.ID()), zap.Int("locations", len(batch.Locations)))
	available, err := s.erp.GetAvailabilityBulk(ctx, batch.Locations)
	if err != nil {
		s.logger.Warn("bulk availability lookup failed", zap.String("session_id", session.ID()), zap.Error(err))
		return
	}
	if applied := session.ApplyAvailabilityBulk(batch, available); applied < len(batch.Rows) {
		s.logger.Debug("discarded stale bulk availability",
			zap.String("session_id", session.ID()),
			zap.Int("stale_rows", len(batch.Rows)-applied))
	}
}

// Payload builds the consumption payload of a session without saving it.
func (s *Service) Payload(id string) (models.ConsumptionPayload, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return models.ConsumptionPayload{}, err
	}
	lines := session.Lines()
	return BuildPayload(lines, Aggregate(lines)), nil
}

// SaveResult is the outcome of a successful save.
type SaveResult struct {
	RecordID string   `json:"record_id"`
	Warnings []string `json:"warnings,omitempty"`
}

// SaveConsumption validates the session and creates the consumption record.
// Nothing is sent to the record store unless every raw-material code is known.
// A record store failure is returned as is and the session is kept for a retry.
func (s *Service) SaveConsumption(ctx context.Context, id, notes string) (*SaveResult, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	closingEntry, company, warehouse, postingDate := session.Meta()
	if closingEntry == "" || company == "" || warehouse == "" {
		return nil, ErrMissingInput
	}

	lines := session.Lines()
	if len(lines) == 0 {
		return nil, ErrNothingToSave
	}

	payload := BuildPayload(lines, Aggregate(lines))
	if len(payload.MenuSummaries) == 0 {
		return nil, ErrNothingToSave
	}

	if err := ValidateItems(ctx, s.erp, payload.RMBreakdown); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.logger.Warn("consumption blocked by unknown raw materials",
				zap.String("session_id", id),
				zap.Strings("item_codes", verr.Codes()))
		}
		return nil, err
	}

	result := &SaveResult{}
	if len(payload.RMBreakdown) == 0 {
		result.Warnings = append(result.Warnings, "raw-material breakdown is empty, saving menu summaries only")
	}

	recordID, err := s.erp.CreateConsumptionRecord(ctx, models.ConsumptionRequest{
		ClosingEntry:  closingEntry,
		Company:       company,
		Warehouse:     warehouse,
		Notes:         notes,
		MenuSummaries: payload.MenuSummaries,
		RMBreakdown:   payload.RMBreakdown,
	})
	if err != nil {
		s.logger.Error("create consumption record failed", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}

	session.MarkSaved(recordID)
	result.RecordID = recordID

	s.logger.Info("consumption saved",
		zap.String("session_id", id),
		zap.String("record_id", recordID),
		zap.Int("menus", len(payload.MenuSummaries)),
		zap.Int("raw_materials", len(payload.RMBreakdown)))

	s.publish(ctx, models.ConsumptionRecord{
		RecordID:      recordID,
		ClosingEntry:  closingEntry,
		Company:       company,
		Warehouse:     warehouse,
		PostingDate:   postingDate,
		MenuSummaries: payload.MenuSummaries,
		RMBreakdown:   payload.RMBreakdown,
		Totals:        Totals(lines),
		CreatedAt:     s.now().UTC(),
	})

	return result, nil
}

// publish hands a saved consumption to the archive, exporter and notifier.
// Every step is best effort.
func (s *Service) publish(ctx context.Context, record models.ConsumptionRecord) {
	if s.opts.Archive != nil {
		if err := s.opts.Archive.SaveConsumption(ctx, record); err != nil {
			s.logger.Error("archive consumption failed", zap.String("record_id", record.RecordID), zap.Error(err))
		}
	}
	if s.opts.Exporter != nil {
		if err := s.opts.Exporter.ExportConsumption(ctx, record); err != nil {
			s.logger.Error("export consumption failed", zap.String("record_id", record.RecordID), zap.Error(err))
		}
	}
	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.NotifyConsumption(ctx, record); err != nil {
			s.logger.Error("notify consumption failed", zap.String("record_id", record.RecordID), zap.Error(err))
		}
	}
}

// StockMovementItems flattens the per-menu rows into issue lines. Rows without
// a code or with a non-positive actual quantity are skipped; an empty row
// warehouse falls back to the session warehouse.
func StockMovementItems(lines []models.MenuSaleLine, warehouse string) []models.StockMovementItem {
	var items []models.StockMovementItem
	for _, line := range lines {
		for _, req := range line.Requirements {
			code := strings.TrimSpace(req.ItemCode)
			qty := num(req.ActualQty)
			if code == "" || qty <= 0 {
				continue
			}
			wh := req.Warehouse
			if wh == "" {
				wh = warehouse
			}
			remarks := req.Remarks
			if remarks == "" {
				remarks = req.ItemName
			}
			items = append(items, models.StockMovementItem{
				ItemCode:  code,
				ItemName:  req.ItemName,
				Qty:       qty,
				StockUOM:  req.UOM,
				Warehouse: wh,
				Remarks:   remarks,
			})
		}
	}
	return items
}

// CreateStockMovement posts the actual quantities of every per-menu row as a
// warehouse issue, bypassing the consumption record.
func (s *Service) CreateStockMovement(ctx context.Context, id, remarks string) (string, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return "", err
	}

	closingEntry, company, warehouse, postingDate := session.Meta()
	if closingEntry == "" || company == "" || warehouse == "" {
		return "", ErrMissingInput
	}

	items := StockMovementItems(session.Lines(), warehouse)
	if len(items) == 0 {
		return "", ErrNoStockItems
	}

	note := strings.TrimSpace(remarks + "\nGenerated from Stock Usage Tool for " + closingEntry)
	recordID, err := s.erp.CreateStockMovement(ctx, models.StockMovementRequest{
		ClosingEntry:    closingEntry,
		Company:         company,
		PostingDate:     postingDate.Format(dateLayout),
		StockEntryType:  s.opts.StockEntryType,
		SourceWarehouse: warehouse,
		Remarks:         note,
		Items:           items,
	})
	if err != nil {
		s.logger.Error("create stock movement failed", zap.String("session_id", id), zap.Error(err))
		return "", err
	}

	s.logger.Info("stock movement created",
		zap.String("session_id", id),
		zap.String("record_id", recordID),
		zap.Int("items", len(items)))
	return recordID, nil
}

// EvictIdle drops sessions untouched for longer than ttl.
func (s *Service) EvictIdle(ttl time.Duration) int {
	evicted := s.sessions.EvictIdle(s.now(), ttl)
	if len(evicted) > 0 {
		s.logger.Info("evicted idle usage sessions", zap.Strings("session_ids", evicted))
	}
	return len(evicted)
}
