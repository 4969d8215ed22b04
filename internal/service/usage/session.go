package usage

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mamadbah2/stockusage/internal/domain/models"
)

// DefaultNewRowPlannedQty is the planned quantity of a row added by hand.
const DefaultNewRowPlannedQty = 1

// rowState tracks lookup sequencing for one requirement row. IDs stay stable
// while rows are added and removed around them.
type rowState struct {
	id       uint64
	codeSeq  uint64
	stockSeq uint64
}

// RowRef identifies a lookup issued for a row. A lookup result is applied only
// while its sequence number is still the latest one for that row.
type RowRef struct {
	RowID    uint64
	Seq      uint64
	ItemCode string
	Location models.StockLocation
}

// RowPatch carries the user-editable fields of a requirement row. Nil fields are left untouched.
type RowPatch struct {
	ItemCode   *string  `json:"item_code"`
	PlannedQty *float64 `json:"planned_qty"`
	ActualQty  *float64 `json:"actual_qty"`
	Warehouse  *string  `json:"warehouse"`
	Remarks    *string  `json:"remarks"`
}

// ItemLookup is the enrichment fetched after an item code change. Nil fields failed or were skipped.
type ItemLookup struct {
	Metadata *models.ItemMetadata
	UnitCost *float64
}

// Session is one load cycle of a POS closing entry. The per-menu requirement
// rows are the single source of truth; the aggregate and every total are
// projections recomputed on read. All mutations go through Session methods.
type Session struct {
	mu sync.Mutex

	id           string
	closingEntry string
	company      string
	warehouse    string
	postingDate  time.Time

	lines   []models.MenuSaleLine
	rows    [][]rowState
	nextRow uint64

	savedRecordID string
	lastTouched   time.Time
}

// NewSession takes ownership of lines and refreshes every derived value.
func NewSession(id, closingEntry, company, warehouse string, postingDate time.Time, lines []models.MenuSaleLine) *Session {
	s := &Session{
		id:           id,
		closingEntry: closingEntry,
		company:      company,
		warehouse:    warehouse,
		postingDate:  postingDate,
		lines:        lines,
		rows:         make([][]rowState, len(lines)),
		lastTouched:  time.Now(),
	}

	for m := range s.lines {
		if s.lines[m].Requirements == nil {
			s.lines[m].Requirements = []models.RawMaterialRequirement{}
		}
		s.rows[m] = make([]rowState, len(s.lines[m].Requirements))
		for r := range s.rows[m] {
			s.rows[m][r] = s.newRowState()
		}
		RecalcMenu(&s.lines[m])
	}
	return s
}

func (s *Session) newRowState() rowState {
	s.nextRow++
	return rowState{id: s.nextRow}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// View is the read model of a session.
type View struct {
	ID            string                            `json:"id"`
	ClosingEntry  string                            `json:"closing_entry"`
	Company       string                            `json:"company"`
	Warehouse     string                            `json:"warehouse"`
	PostingDate   string                            `json:"posting_date"`
	SavedRecordID string                            `json:"saved_record_id,omitempty"`
	Menus         []MenuView                        `json:"menus"`
	Aggregate     []models.AggregatedRawMaterialRow `json:"aggregate"`
	Totals        models.SessionTotals              `json:"totals"`
}

// MenuView is one menu line with its cost roll-up and block footer.
type MenuView struct {
	Index   int                     `json:"index"`
	Line    models.MenuSaleLine     `json:"line"`
	Cost    models.MenuCost         `json:"cost"`
	Summary models.MenuBlockSummary `json:"summary"`
}

// Snapshot projects the current state into a View.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := cloneLines(s.lines)
	view := View{
		ID:            s.id,
		ClosingEntry:  s.closingEntry,
		Company:       s.company,
		Warehouse:     s.warehouse,
		PostingDate:   s.postingDate.Format(dateLayout),
		SavedRecordID: s.savedRecordID,
		Menus:         make([]MenuView, 0, len(lines)),
		Aggregate:     Aggregate(lines),
		Totals:        Totals(lines),
	}
	for i, line := range lines {
		view.Menus = append(view.Menus, MenuView{
			Index:   i,
			Line:    line,
			Cost:    MenuCostOf(line),
			Summary: BlockSummary(line),
		})
	}
	return view
}

// Lines returns a deep copy of the menu lines.
func (s *Session) Lines() []models.MenuSaleLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines)
}

// Meta returns the selection the session was loaded with.
func (s *Session) Meta() (closingEntry, company, warehouse string, postingDate time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closingEntry, s.company, s.warehouse, s.postingDate
}

// AddRow appends a blank editable row to a menu and returns its index.
func (s *Session) AddRow(menu int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMenu(menu); err != nil {
		return 0, err
	}

	req := models.RawMaterialRequirement{
		PlannedQty: DefaultNewRowPlannedQty,
		Warehouse:  s.warehouse,
	}
	RecalcRequirement(&req)

	s.lines[menu].Requirements = append(s.lines[menu].Requirements, req)
	s.rows[menu] = append(s.rows[menu], s.newRowState())
	s.touch()
	return len(s.lines[menu].Requirements) - 1, nil
}

// RemoveRows deletes the given zero-based rows of a menu. Duplicate and out of
// range indexes are ignored; it fails only when nothing usable was selected.
func (s *Session) RemoveRows(menu int, indexes []int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMenu(menu); err != nil {
		return 0, err
	}

	count := len(s.lines[menu].Requirements)
	selected := make(map[int]struct{}, len(indexes))
	for _, idx := range indexes {
		if idx >= 0 && idx < count {
			selected[idx] = struct{}{}
		}
	}
	if len(selected) == 0 {
		return 0, ErrNoRowsSelected
	}

	ordered := make([]int, 0, len(selected))
	for idx := range selected {
		ordered = append(ordered, idx)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))

	reqs := s.lines[menu].Requirements
	states := s.rows[menu]
	for _, idx := range ordered {
		reqs = append(reqs[:idx], reqs[idx+1:]...)
		states = append(states[:idx], states[idx+1:]...)
	}
	s.lines[menu].Requirements = reqs
	s.rows[menu] = states
	s.touch()
	return len(ordered), nil
}

// ParseRowNumbers turns a typed list of one-based row numbers ("2,3,5") into
// zero-based indexes. Tokens that are not numbers are skipped.
func ParseRowNumbers(input string) ([]int, error) {
	var out []int
	for _, token := range strings.Split(input, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil || n < 1 {
			continue
		}
		out = append(out, n-1)
	}
	if len(out) == 0 {
		return nil, ErrNoRowsSelected
	}
	return out, nil
}

// UpdateRow applies a patch to one requirement row. The returned refs are the
// lookups the caller must run: item enrichment when the code changed and an
// availability refresh when the code or warehouse changed.
func (s *Session) UpdateRow(menu, row int, patch RowPatch) (codeRef, stockRef *RowRef, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRow(menu, row); err != nil {
		return nil, nil, err
	}

	req := &s.lines[menu].Requirements[row]
	state := &s.rows[menu][row]

	if patch.PlannedQty != nil {
		req.PlannedQty = *patch.PlannedQty
	}
	if patch.ActualQty != nil {
		req.ActualQty = *patch.ActualQty
	}
	if patch.Remarks != nil {
		req.Remarks = *patch.Remarks
	}

	codeChanged := false
	if patch.ItemCode != nil {
		code := strings.TrimSpace(*patch.ItemCode)
		if code != req.ItemCode {
			req.ItemCode = code
			codeChanged = true
			if code == "" {
				req.ItemName, req.UOM = "", ""
				req.UnitCost, req.AvailableQty = 0, 0
			}
		}
	}

	stockChanged := codeChanged
	if patch.Warehouse != nil {
		wh := strings.TrimSpace(*patch.Warehouse)
		if wh != req.Warehouse {
			req.Warehouse = wh
			stockChanged = true
		}
	}

	if codeChanged {
		state.codeSeq++
		if req.ItemCode != "" {
			codeRef = &RowRef{RowID: state.id, Seq: state.codeSeq, ItemCode: req.ItemCode}
		}
	}
	if stockChanged {
		state.stockSeq++
		loc := s.locationOf(*req)
		if loc.ItemCode != "" && loc.Warehouse != "" {
			stockRef = &RowRef{RowID: state.id, Seq: state.stockSeq, ItemCode: loc.ItemCode, Location: loc}
		}
	}

	RecalcRequirement(req)
	s.touch()
	return codeRef, stockRef, nil
}

// ApplyItemLookup stores enrichment for a row if no newer code change happened
// since ref was issued. It reports whether the result was applied.
func (s *Session) ApplyItemLookup(ref RowRef, lookup ItemLookup) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, state := s.findRow(ref.RowID)
	if req == nil || state.codeSeq != ref.Seq {
		return false
	}

	if lookup.Metadata != nil {
		req.ItemName = lookup.Metadata.ItemName
		req.UOM = lookup.Metadata.StockUOM
	}
	if lookup.UnitCost != nil {
		req.UnitCost = *lookup.UnitCost
	}
	RecalcRequirement(req)
	return true
}

// ApplyAvailability stores a single-row availability if still current.
func (s *Session) ApplyAvailability(ref RowRef, qty float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, state := s.findRow(ref.RowID)
	if req == nil || state.stockSeq != ref.Seq {
		return false
	}
	req.AvailableQty = num(qty)
	return true
}

// SetAggregateActual distributes an aggregate actual quantity back to every
// contributing row in proportion to its planned quantity. When the planned
// total is zero every contributing row receives zero.
func (s *Session) SetAggregateActual(itemCode string, actual float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.TrimSpace(itemCode)
	if code == "" {
		return ErrItemNotInSession
	}

	var (
		contributors []*models.RawMaterialRequirement
		planned      float64
	)
	for m := range s.lines {
		for r := range s.lines[m].Requirements {
			req := &s.lines[m].Requirements[r]
			if strings.TrimSpace(req.ItemCode) != code {
				continue
			}
			contributors = append(contributors, req)
			planned += num(req.PlannedQty)
		}
	}
	if len(contributors) == 0 {
		return ErrItemNotInSession
	}

	actual = num(actual)
	for _, req := range contributors {
		req.ActualQty = 0
		if planned != 0 {
			req.ActualQty = num(req.PlannedQty) / planned * actual
		}
		RecalcRequirement(req)
	}
	s.touch()
	return nil
}

// Recalculate refreshes the derived values of one menu block, or of every
// block when menu is negative, without refetching anything.
func (s *Session) Recalculate(menu int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if menu < 0 {
		for m := range s.lines {
			RecalcMenu(&s.lines[m])
		}
		s.touch()
		return nil
	}
	if err := s.checkMenu(menu); err != nil {
		return err
	}
	RecalcMenu(&s.lines[menu])
	s.touch()
	return nil
}

// ChangeWarehouse switches the default source warehouse. Rows without their
// own warehouse, or still on the previous default, follow the new one.
func (s *Session) ChangeWarehouse(warehouse string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.warehouse
	s.warehouse = strings.TrimSpace(warehouse)
	for m := range s.lines {
		for r := range s.lines[m].Requirements {
			req := &s.lines[m].Requirements[r]
			if req.Warehouse == "" || req.Warehouse == previous {
				req.Warehouse = s.warehouse
				s.rows[m][r].stockSeq++
			}
		}
	}
	s.touch()
}

// AvailabilityBatch is a bulk availability request: the distinct pairs to ask
// for and one ref per row that was current when the batch was taken.
type AvailabilityBatch struct {
	Locations []models.StockLocation
	Rows      []RowRef
}

// Locations collects the distinct item/warehouse pairs of one menu, or of every
// menu when menu is negative. Rows without a code are skipped.
func (s *Session) Locations(menu int) (AvailabilityBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if menu >= 0 {
		if err := s.checkMenu(menu); err != nil {
			return AvailabilityBatch{}, err
		}
	}

	var batch AvailabilityBatch
	seen := make(map[string]struct{})
	for m := range s.lines {
		if menu >= 0 && m != menu {
			continue
		}
		for r, req := range s.lines[m].Requirements {
			loc := s.locationOf(req)
			if loc.ItemCode == "" || loc.Warehouse == "" {
				continue
			}
			state := s.rows[m][r]
			batch.Rows = append(batch.Rows, RowRef{RowID: state.id, Seq: state.stockSeq, ItemCode: loc.ItemCode, Location: loc})
			if _, ok := seen[loc.Key()]; ok {
				continue
			}
			seen[loc.Key()] = struct{}{}
			batch.Locations = append(batch.Locations, loc)
		}
	}
	return batch, nil
}

// ApplyAvailabilityBulk stores bulk availability keyed by "item_code::warehouse"
// on the rows of batch that have not moved since it was taken. Pairs missing
// from the map read as zero. It returns the number of rows updated.
func (s *Session) ApplyAvailabilityBulk(batch AvailabilityBatch, available map[string]float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, ref := range batch.Rows {
		req, state := s.findRow(ref.RowID)
		if req == nil || state.stockSeq != ref.Seq || s.locationOf(*req) != ref.Location {
			continue
		}
		req.AvailableQty = num(available[ref.Location.Key()])
		applied++
	}
	return applied
}

// MarkSaved records the persistence identifier of the last successful save.
func (s *Session) MarkSaved(recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedRecordID = recordID
	s.touch()
}

// IdleSince reports the last time the session was mutated.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

func (s *Session) touch() { s.lastTouched = time.Now() }

func (s *Session) locationOf(req models.RawMaterialRequirement) models.StockLocation {
	wh := req.Warehouse
	if wh == "" {
		wh = s.warehouse
	}
	return models.StockLocation{ItemCode: strings.TrimSpace(req.ItemCode), Warehouse: wh}
}

func (s *Session) findRow(id uint64) (*models.RawMaterialRequirement, *rowState) {
	for m := range s.rows {
		for r := range s.rows[m] {
			if s.rows[m][r].id == id {
				return &s.lines[m].Requirements[r], &s.rows[m][r]
			}
		}
	}
	return nil, nil
}

func (s *Session) checkMenu(menu int) error {
	if menu < 0 || menu >= len(s.lines) {
		return ErrMenuIndex
	}
	return nil
}

func (s *Session) checkRow(menu, row int) error {
	if err := s.checkMenu(menu); err != nil {
		return err
	}
	if row < 0 || row >= len(s.lines[menu].Requirements) {
		return ErrRowIndex
	}
	return nil
}

func cloneLines(lines []models.MenuSaleLine) []models.MenuSaleLine {
	out := make([]models.MenuSaleLine, len(lines))
	for i, line := range lines {
		out[i] = line
		out[i].Requirements = append([]models.RawMaterialRequirement{}, line.Requirements...)
	}
	return out
}
