package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/config"
	"github.com/mamadbah2/stockusage/internal/domain/models"
	client "github.com/mamadbah2/stockusage/pkg/clients/whatsapp"
	"github.com/mamadbah2/stockusage/pkg/format"
)

const sendTimeout = 10 * time.Second

// ErrEmptyMessage is returned for a notification without text.
var ErrEmptyMessage = errors.New("empty message body")

// MessagingService pushes operator notifications.
type MessagingService interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
	NotifyConsumption(ctx context.Context, record models.ConsumptionRecord) error
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	cfg      config.WhatsAppConfig
	client   client.Client
	currency string
	logger   *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, client client.Client, currency string, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		cfg:      cfg,
		client:   client,
		currency: currency,
		logger:   logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// SendOutbound pushes a text message to a recipient, the manager when none is given.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	if req.To == "" {
		req.To = s.cfg.ManagerID
	}
	if strings.TrimSpace(req.Message) == "" {
		return ErrEmptyMessage
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			fields := []zap.Field{
				zap.String("to", req.To),
				zap.Int("status", apiErr.StatusCode),
				zap.Int("code", apiErr.Code),
				zap.String("fbtrace_id", apiErr.TraceID),
			}
			switch {
			case apiErr.TokenRejected():
				s.logger.Error("whatsapp access token rejected, notifications are failing", fields...)
			case apiErr.Temporary():
				s.logger.Warn("whatsapp throttled notification", fields...)
			default:
				s.logger.Warn("whatsapp rejected notification", fields...)
			}
		}
		return fmt.Errorf("send notification: %w", err)
	}

	s.logger.Info("notification sent", zap.String("to", req.To), zap.String("message_id", resp.MessageID()))
	return nil
}

// NotifyConsumption tells the manager a consumption record was saved.
func (s *MetaWhatsAppService) NotifyConsumption(ctx context.Context, record models.ConsumptionRecord) error {
	return s.SendOutbound(ctx, models.OutboundMessageRequest{
		To:      s.cfg.ManagerID,
		Message: ConsumptionMessage(record, s.currency),
	})
}

// ConsumptionMessage renders a saved consumption as a chat message.
func ConsumptionMessage(record models.ConsumptionRecord, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "POS Consumption %s saved\n", record.RecordID)
	fmt.Fprintf(&b, "Closing entry: %s (%s)\n", record.ClosingEntry, record.PostingDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Warehouse: %s\n", record.Warehouse)
	fmt.Fprintf(&b, "Menus: %d, raw materials: %d\n", len(record.MenuSummaries), len(record.RMBreakdown))

	totals := record.Totals
	fmt.Fprintf(&b, "Sales: %s\n", format.Currency(totals.TotalSalesAmount, currency))
	fmt.Fprintf(&b, "RM cost: %s (%s)\n", format.Currency(totals.TotalCost, currency), format.Percent(totals.MarginPct))
	fmt.Fprintf(&b, "Margin: %s", format.Currency(totals.MarginAmount, currency))
	return b.String()
}
