package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/config"
	"github.com/mamadbah2/stockusage/internal/domain/models"
	"github.com/mamadbah2/stockusage/pkg/format"
)

// ErrItemNotFound is returned when the item master has no record for a code.
var ErrItemNotFound = errors.New("item not found")

// APIError is a failed ERP call. Message is the server message verbatim.
type APIError struct {
	StatusCode int
	Method     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("erp %s failed with status %d", e.Method, e.StatusCode)
	}
	return e.Message
}

// APIClient is a resty-backed client for the ERP whitelisted methods the stock
// usage tool relies on.
type APIClient struct {
	httpClient *resty.Client
	prefix     string
	logger     *zap.Logger
}

// NewClient builds an ERP client using the provided configuration values.
func NewClient(cfg config.ERPConfig, logger *zap.Logger) *APIClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		restyClient.SetHeader("Authorization", fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.APISecret))
	}

	return &APIClient{
		httpClient: restyClient,
		prefix:     strings.TrimSuffix(cfg.MethodPrefix, "."),
		logger:     logger,
	}
}

type envelope struct {
	Message json.RawMessage `json:"message"`
}

type errorBody struct {
	Exception      string `json:"exception"`
	ExcType        string `json:"exc_type"`
	ServerMessages string `json:"_server_messages"`
	Message        any    `json:"message"`
}

// call posts args to a whitelisted method and decodes the "message" field of
// the response into out. A nil out discards the result.
func (c *APIClient) call(ctx context.Context, method string, args any, out any) error {
	result := new(envelope)
	apiErr := new(errorBody)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(args).
		SetResult(result).
		SetError(apiErr).
		Post("/api/method/" + method)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode(), Method: method, Message: apiErr.text()}
	}

	if out == nil || len(result.Message) == 0 || string(result.Message) == "null" {
		return nil
	}
	if err := json.Unmarshal(result.Message, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func (c *APIClient) method(name string) string {
	return c.prefix + "." + name
}

// text picks the most readable server message out of an error body.
func (b *errorBody) text() string {
	if b == nil {
		return ""
	}

	if b.ServerMessages != "" {
		var raw []string
		if err := json.Unmarshal([]byte(b.ServerMessages), &raw); err == nil {
			var messages []string
			for _, item := range raw {
				var msg struct {
					Message string `json:"message"`
				}
				if err := json.Unmarshal([]byte(item), &msg); err == nil && msg.Message != "" {
					messages = append(messages, msg.Message)
				} else if item != "" {
					messages = append(messages, item)
				}
			}
			if len(messages) > 0 {
				return strings.Join(messages, "; ")
			}
		}
	}

	if b.Exception != "" {
		// "frappe.exceptions.ValidationError: message"
		if _, msg, ok := strings.Cut(b.Exception, ": "); ok {
			return msg
		}
		return b.Exception
	}

	if s, ok := b.Message.(string); ok {
		return s
	}
	return b.ExcType
}

type breakdownResponse struct {
	Items []breakdownItem `json:"items"`
}

type breakdownItem struct {
	ItemCode      string          `json:"item_code"`
	ItemName      string          `json:"item_name"`
	Menu          string          `json:"menu"`
	SellItem      string          `json:"sell_item"`
	Category      string          `json:"category"`
	StockUOM      string          `json:"stock_uom"`
	Qty           any             `json:"qty"`
	SellingRate   any             `json:"selling_rate"`
	SellingAmount any             `json:"selling_amount"`
	RMItems       []breakdownLine `json:"rm_items"`
}

type breakdownLine struct {
	ItemCode    string `json:"item_code"`
	ItemName    string `json:"item_name"`
	StockUOM    string `json:"stock_uom"`
	UOM         string `json:"uom"`
	RequiredQty any    `json:"required_qty"`
	UnitCost    any    `json:"unit_cost"`
	Warehouse   string `json:"warehouse"`
}

// GetBreakdown loads the sold menu items of a POS closing entry with their
// exploded raw-material requirements.
func (c *APIClient) GetBreakdown(ctx context.Context, closingEntry, company, warehouse string) ([]models.MenuSaleLine, error) {
	var resp breakdownResponse
	args := map[string]any{
		"pos_closing_entry": closingEntry,
		"company":           company,
		"warehouse":         warehouse,
	}
	if err := c.call(ctx, c.method("get_pos_breakdown"), args, &resp); err != nil {
		return nil, err
	}

	lines := make([]models.MenuSaleLine, 0, len(resp.Items))
	for _, item := range resp.Items {
		line := models.MenuSaleLine{
			ItemCode:      item.ItemCode,
			ItemName:      item.ItemName,
			Menu:          item.Menu,
			Category:      item.Category,
			StockUOM:      item.StockUOM,
			QtySold:       format.Flt(item.Qty),
			SellingRate:   format.Flt(item.SellingRate),
			SellingAmount: format.Flt(item.SellingAmount),
		}
		if line.Menu == "" {
			line.Menu = item.SellItem
		}
		for _, rm := range item.RMItems {
			uom := rm.StockUOM
			if uom == "" {
				uom = rm.UOM
			}
			line.Requirements = append(line.Requirements, models.RawMaterialRequirement{
				ItemCode:   rm.ItemCode,
				ItemName:   rm.ItemName,
				UOM:        uom,
				PlannedQty: format.Flt(rm.RequiredQty),
				UnitCost:   format.Flt(rm.UnitCost),
				Warehouse:  rm.Warehouse,
			})
		}
		lines = append(lines, line)
	}

	c.logger.Debug("breakdown loaded", zap.String("closing_entry", closingEntry), zap.Int("items", len(lines)))
	return lines, nil
}

// GetUnitCost returns the unit cost of one item.
func (c *APIClient) GetUnitCost(ctx context.Context, itemCode string) (float64, error) {
	var raw any
	if err := c.call(ctx, c.method("get_unit_cost"), map[string]any{"item_code": itemCode}, &raw); err != nil {
		return 0, err
	}
	return format.Flt(raw), nil
}

// GetUnitCostBulk returns unit costs keyed by item code. Codes missing from the
// result do not exist in the item master.
func (c *APIClient) GetUnitCostBulk(ctx context.Context, itemCodes []string) (map[string]float64, error) {
	raw := map[string]any{}
	if err := c.call(ctx, c.method("get_unit_cost_bulk"), map[string]any{"item_codes": itemCodes}, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(raw))
	for code, value := range raw {
		out[code] = format.Flt(value)
	}
	return out, nil
}

// GetAvailableQty returns the on-hand quantity of an item in a warehouse.
func (c *APIClient) GetAvailableQty(ctx context.Context, itemCode, warehouse string) (float64, error) {
	var raw any
	args := map[string]any{"item_code": itemCode, "warehouse": warehouse}
	if err := c.call(ctx, c.method("get_available_qty"), args, &raw); err != nil {
		return 0, err
	}
	return format.Flt(raw), nil
}

// GetAvailabilityBulk returns on-hand quantities keyed "item_code::warehouse".
// Every requested location is present in the result, defaulting to zero.
func (c *APIClient) GetAvailabilityBulk(ctx context.Context, locations []models.StockLocation) (map[string]float64, error) {
	out := make(map[string]float64, len(locations))
	if len(locations) == 0 {
		return out, nil
	}

	raw := map[string]any{}
	if err := c.call(ctx, c.method("get_availability_bulk"), map[string]any{"rows": locations}, &raw); err != nil {
		return nil, err
	}

	for _, loc := range locations {
		out[loc.Key()] = format.Flt(raw[loc.Key()])
	}
	return out, nil
}

// GetItemMetadata reads name, stock UOM and valuation rate from the item master.
func (c *APIClient) GetItemMetadata(ctx context.Context, itemCode string) (models.ItemMetadata, error) {
	var raw struct {
		ItemName      string `json:"item_name"`
		StockUOM      string `json:"stock_uom"`
		ValuationRate any    `json:"valuation_rate"`
	}
	args := map[string]any{
		"doctype":   "Item",
		"filters":   itemCode,
		"fieldname": []string{"item_name", "stock_uom", "valuation_rate"},
	}
	if err := c.call(ctx, "frappe.client.get_value", args, &raw); err != nil {
		return models.ItemMetadata{}, err
	}
	if raw.ItemName == "" && raw.StockUOM == "" {
		return models.ItemMetadata{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemCode)
	}

	return models.ItemMetadata{
		ItemName:      raw.ItemName,
		StockUOM:      raw.StockUOM,
		ValuationRate: format.Flt(raw.ValuationRate),
	}, nil
}

// CreateConsumptionRecord creates the POS consumption record and returns its name.
func (c *APIClient) CreateConsumptionRecord(ctx context.Context, req models.ConsumptionRequest) (string, error) {
	var name string
	if err := c.call(ctx, c.method("create_pos_consumption"), req, &name); err != nil {
		return "", err
	}
	c.logger.Info("consumption record created", zap.String("record_id", name), zap.String("closing_entry", req.ClosingEntry))
	return name, nil
}

// CreateStockMovement creates and submits a stock entry and returns its name.
func (c *APIClient) CreateStockMovement(ctx context.Context, req models.StockMovementRequest) (string, error) {
	var name string
	if err := c.call(ctx, c.method("create_stock_entry_from_usage"), req, &name); err != nil {
		return "", err
	}
	c.logger.Info("stock movement created", zap.String("record_id", name), zap.String("closing_entry", req.ClosingEntry))
	return name, nil
}
