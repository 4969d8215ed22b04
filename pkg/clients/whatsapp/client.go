package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/stockusage/internal/config"
)

// Graph API error codes with a dedicated meaning for notifications.
const (
	codeAccessTokenInvalid = 190
	codeThrottled          = 4
	codeRateLimited        = 130429
	codePairRateLimited    = 131056
)

const (
	requestTimeout = 15 * time.Second
	retryCount     = 2
)

// ErrNoRecipient is returned when a message has no usable phone number.
var ErrNoRecipient = errors.New("whatsapp: recipient is empty")

// Client sends notification messages through the WhatsApp Cloud API.
type Client interface {
	SendTextMessage(ctx context.Context, req SendTextMessageRequest) (*SendTextMessageResponse, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient    *resty.Client
	phoneNumberID string
}

var _ Client = (*APIClient)(nil)

// NewClient builds a client for the phone number in cfg. Throttled and
// server-side failures are retried twice before an *APIError is returned.
func NewClient(cfg config.WhatsAppConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	restyClient := resty.New().
		SetBaseURL(fmt.Sprintf("%s/%s", base, cfg.APIVersion)).
		SetAuthScheme("Bearer").
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(requestTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return false
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &APIClient{
		httpClient:    restyClient,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

// SendTextMessageRequest is a plain text message to one recipient.
type SendTextMessageRequest struct {
	To         string
	Body       string
	PreviewURL bool
}

// SendTextMessageResponse is the accepted-message answer of the Graph API.
type SendTextMessageResponse struct {
	Contacts []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the ID of the first accepted message, if any.
func (r *SendTextMessageResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// APIError is a message the Graph API refused.
type APIError struct {
	StatusCode int
	Code       int
	Type       string
	Message    string
	TraceID    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("whatsapp api error: status=%d code=%d: %s", e.StatusCode, e.Code, msg)
}

// TokenRejected reports an expired or revoked access token. Every further
// send fails until the token is replaced.
func (e *APIError) TokenRejected() bool {
	return e.Code == codeAccessTokenInvalid || (e.Type == "OAuthException" && e.StatusCode == http.StatusUnauthorized)
}

// Temporary reports throttling or a Meta-side failure that may pass later.
func (e *APIError) Temporary() bool {
	switch e.Code {
	case codeThrottled, codeRateLimited, codePairRateLimited:
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type graphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// SendTextMessage delivers req.Body to req.To. Phone numbers may carry a
// leading "+", spaces or dashes.
func (c *APIClient) SendTextMessage(ctx context.Context, req SendTextMessageRequest) (*SendTextMessageResponse, error) {
	to := NormalizeRecipient(req.To)
	if to == "" {
		return nil, ErrNoRecipient
	}

	result := new(SendTextMessageResponse)
	graphErr := new(graphError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(textMessage{
			MessagingProduct: "whatsapp",
			RecipientType:    "individual",
			To:               to,
			Type:             "text",
			Text:             textBody{Body: req.Body, PreviewURL: req.PreviewURL},
		}).
		SetResult(result).
		SetError(graphErr).
		Post(fmt.Sprintf("%s/messages", c.phoneNumberID))
	if err != nil {
		return nil, fmt.Errorf("send whatsapp message: %w", err)
	}

	if resp.IsError() {
		return nil, &APIError{
			StatusCode: resp.StatusCode(),
			Code:       graphErr.Error.Code,
			Type:       graphErr.Error.Type,
			Message:    graphErr.Error.Message,
			TraceID:    graphErr.Error.FBTraceID,
		}
	}

	return result, nil
}

// NormalizeRecipient strips everything but digits from a phone number.
func NormalizeRecipient(to string) string {
	var b strings.Builder
	for _, r := range to {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
