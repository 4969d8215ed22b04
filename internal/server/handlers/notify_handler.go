package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/domain/models"
	"github.com/mamadbah2/stockusage/internal/service/notify"
	"github.com/mamadbah2/stockusage/pkg/clients/whatsapp"
)

// Messenger pushes operator messages.
type Messenger interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// DigestBuilder renders the daily variance digest.
type DigestBuilder interface {
	DailyDigest(ctx context.Context, day time.Time) (string, error)
}

// NotifyHandler serves the daily digest and manual notifications.
type NotifyHandler struct {
	messenger Messenger
	digest    DigestBuilder
	location  *time.Location
	logger    *zap.Logger
}

// NewNotifyHandler constructs the HTTP handler adapter. Either dependency may
// be nil, in which case its routes answer 503.
func NewNotifyHandler(messenger Messenger, digest DigestBuilder, location *time.Location, logger *zap.Logger) *NotifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}
	return &NotifyHandler{messenger: messenger, digest: digest, location: location, logger: logger}
}

// DailyDigest renders the digest for ?date=YYYY-MM-DD, today by default.
func (h *NotifyHandler) DailyDigest(c *gin.Context) {
	if h.digest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "consumption archive is not configured"})
		return
	}

	day := time.Now().In(h.location)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.location)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	message, err := h.digest.DailyDigest(c.Request.Context(), day)
	if err != nil {
		h.logger.Error("failed building daily digest", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to build digest"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"date": day.Format("2006-01-02"), "message": message})
}

// SendMessage lets operators push a manual notification.
func (h *NotifyHandler) SendMessage(c *gin.Context) {
	if h.messenger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifications are not configured"})
		return
	}

	var req models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid outbound payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.messenger.SendOutbound(c.Request.Context(), req); err != nil {
		var apiErr *whatsapp.APIError
		switch {
		case errors.Is(err, notify.ErrEmptyMessage), errors.Is(err, whatsapp.ErrNoRecipient):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &apiErr) && apiErr.Temporary():
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "messaging provider is throttling, retry later"})
		default:
			h.logger.Error("failed sending outbound", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "unable to send message"})
		}
		return
	}

	c.Status(http.StatusAccepted)
}
