package usage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingInput indicates the closing entry, company or warehouse was not selected.
	ErrMissingInput = errors.New("missing required input")

	// ErrSessionNotFound indicates no loaded session matches the identifier.
	ErrSessionNotFound = errors.New("usage session not found")

	// ErrNothingToSave indicates the session holds no menu lines.
	ErrNothingToSave = errors.New("nothing to save, load the POS closing entry first")

	// ErrMenuIndex indicates a menu index outside the loaded menu lines.
	ErrMenuIndex = errors.New("menu index out of range")

	// ErrRowIndex indicates a row index outside the menu's requirement rows.
	ErrRowIndex = errors.New("row index out of range")

	// ErrNoRowsSelected indicates a remove request without any usable row.
	ErrNoRowsSelected = errors.New("no rows selected")

	// ErrItemNotInSession indicates an aggregate edit for a code no menu requires.
	ErrItemNotInSession = errors.New("raw material not present in session")

	// ErrNoStockItems indicates no row has a positive actual quantity to issue.
	ErrNoStockItems = errors.New("no items to create stock movement")
)

// InvalidDisplayLimit caps how many unknown codes an error message lists.
const InvalidDisplayLimit = 10

// InvalidItem is a raw-material code the item master does not know.
type InvalidItem struct {
	ItemCode string `json:"item_code"`
	UOM      string `json:"uom"`
}

// ValidationError blocks a save and carries every unknown raw-material code.
type ValidationError struct {
	Invalid []InvalidItem
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Invalid) == 0 {
		return "raw material validation failed"
	}

	shown := e.Invalid
	if len(shown) > InvalidDisplayLimit {
		shown = shown[:InvalidDisplayLimit]
	}

	parts := make([]string, 0, len(shown))
	for _, item := range shown {
		parts = append(parts, fmt.Sprintf("%s (UOM: %s)", item.ItemCode, item.UOM))
	}

	msg := fmt.Sprintf("%d raw-material item code(s) not found: %s", len(e.Invalid), strings.Join(parts, ", "))
	if extra := len(e.Invalid) - len(shown); extra > 0 {
		msg += fmt.Sprintf(" ...and %d more", extra)
	}
	return msg
}

// Codes lists every offending item code.
func (e *ValidationError) Codes() []string {
	codes := make([]string, 0, len(e.Invalid))
	for _, item := range e.Invalid {
		codes = append(codes, item.ItemCode)
	}
	return codes
}
