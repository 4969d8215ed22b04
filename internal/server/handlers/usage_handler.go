package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/service/usage"
	"github.com/mamadbah2/stockusage/pkg/clients/erp"
)

// statusClientClosedRequest is the nginx convention for a client that went away.
const statusClientClosedRequest = 499

// UsageHandler exposes the stock usage workflow over HTTP.
type UsageHandler struct {
	svc    *usage.Service
	logger *zap.Logger
}

// NewUsageHandler constructs the HTTP handler adapter.
func NewUsageHandler(svc *usage.Service, logger *zap.Logger) *UsageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageHandler{svc: svc, logger: logger}
}

type warehouseRequest struct {
	Warehouse string `json:"warehouse" binding:"required"`
}

type aggregateRequest struct {
	ActualQty *float64 `json:"actual_qty" binding:"required"`
}

type removeRowsRequest struct {
	Rows       []int  `json:"rows"`
	RowNumbers string `json:"row_numbers"`
}

type saveRequest struct {
	Notes string `json:"notes"`
}

type stockMovementRequest struct {
	Remarks string `json:"remarks"`
}

// Load opens a working session for a POS closing entry.
func (h *UsageHandler) Load(c *gin.Context) {
	var req usage.LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.Load(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Get returns the current view of a session.
func (h *UsageHandler) Get(c *gin.Context) {
	view, err := h.svc.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}

// Clear discards a session.
func (h *UsageHandler) Clear(c *gin.Context) {
	if err := h.svc.Clear(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Recalculate refreshes every menu block of a session.
func (h *UsageHandler) Recalculate(c *gin.Context) {
	h.respondView(c)(h.svc.Recalculate(c.Request.Context(), c.Param("id"), -1))
}

// RecalculateMenu refreshes one menu block.
func (h *UsageHandler) RecalculateMenu(c *gin.Context) {
	menu, ok := h.intParam(c, "menu")
	if !ok {
		return
	}
	h.respondView(c)(h.svc.Recalculate(c.Request.Context(), c.Param("id"), menu))
}

// ChangeWarehouse switches the default source warehouse.
func (h *UsageHandler) ChangeWarehouse(c *gin.Context) {
	var req warehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.respondView(c)(h.svc.ChangeWarehouse(c.Request.Context(), c.Param("id"), req.Warehouse))
}

// SetAggregateActual distributes a session-wide actual quantity over the menus.
func (h *UsageHandler) SetAggregateActual(c *gin.Context) {
	var req aggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.respondView(c)(h.svc.SetAggregateActual(c.Param("id"), c.Param("code"), *req.ActualQty))
}

// AddRow appends a blank row to a menu block.
func (h *UsageHandler) AddRow(c *gin.Context) {
	menu, ok := h.intParam(c, "menu")
	if !ok {
		return
	}
	view, err := h.svc.AddRow(c.Param("id"), menu)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": view})
}

// RemoveRows deletes the selected rows of a menu block.
func (h *UsageHandler) RemoveRows(c *gin.Context) {
	menu, ok := h.intParam(c, "menu")
	if !ok {
		return
	}
	var req removeRowsRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.respondView(c)(h.svc.RemoveRows(c.Param("id"), menu, req.Rows, req.RowNumbers))
}

// UpdateRow edits one requirement row.
func (h *UsageHandler) UpdateRow(c *gin.Context) {
	menu, ok := h.intParam(c, "menu")
	if !ok {
		return
	}
	row, ok := h.intParam(c, "row")
	if !ok {
		return
	}
	var patch usage.RowPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, err)
		return
	}
	h.respondView(c)(h.svc.UpdateRow(c.Request.Context(), c.Param("id"), menu, row, patch))
}

// Payload previews what a save would send.
func (h *UsageHandler) Payload(c *gin.Context) {
	payload, err := h.svc.Payload(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// SaveConsumption validates the session and creates the consumption record.
func (h *UsageHandler) SaveConsumption(c *gin.Context) {
	var req saveRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.SaveConsumption(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// CreateStockMovement issues the actual quantities straight from the warehouse.
func (h *UsageHandler) CreateStockMovement(c *gin.Context) {
	var req stockMovementRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.badRequest(c, err)
		return
	}

	recordID, err := h.svc.CreateStockMovement(c.Request.Context(), c.Param("id"), req.Remarks)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record_id": recordID})
}

func (h *UsageHandler) respondView(c *gin.Context) func(usage.View, error) {
	return func(view usage.View, err error) {
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": view})
	}
}

func (h *UsageHandler) intParam(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		h.badRequest(c, fmt.Errorf("%s must be an integer", name))
		return 0, false
	}
	return value, true
}

func (h *UsageHandler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("invalid request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// fail maps service errors onto HTTP statuses.
func (h *UsageHandler) fail(c *gin.Context, err error) {
	var verr *usage.ValidationError
	var apiErr *erp.APIError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "invalid_items": verr.Invalid})
	case errors.Is(err, usage.ErrSessionNotFound), errors.Is(err, usage.ErrItemNotInSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, usage.ErrMissingInput),
		errors.Is(err, usage.ErrMenuIndex),
		errors.Is(err, usage.ErrRowIndex),
		errors.Is(err, usage.ErrNoRowsSelected),
		errors.Is(err, usage.ErrNothingToSave),
		errors.Is(err, usage.ErrNoStockItems):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		h.logger.Error("erp call failed", zap.String("method", apiErr.Method), zap.Int("status", apiErr.StatusCode), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("erp call timed out", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "erp did not answer in time, retry the action"})
	case errors.Is(err, context.Canceled):
		h.logger.Info("request canceled by client", zap.String("path", c.FullPath()))
		c.JSON(statusClientClosedRequest, gin.H{"error": "request canceled"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// bindOptionalJSON binds a JSON body when one was sent. An empty chunked body
// counts as no body.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
