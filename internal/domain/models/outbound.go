package models

// OutboundMessageRequest is a text notification pushed to a WhatsApp recipient.
// An empty To addresses the manager.
type OutboundMessageRequest struct {
	To         string `json:"to"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}
