package whatsapp

// Delivery statuses reported by the provider in webhook callbacks.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// WebhookPayload is the body the provider POSTs to the webhook endpoint.
// Only the message-status portion of the payload is modeled; inbound user
// messages are not part of this service.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one WhatsApp business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is a single webhook event.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the status updates of a change.
type ChangeValue struct {
	MessagingProduct string         `json:"messaging_product"`
	Statuses         []StatusUpdate `json:"statuses"`
}

// StatusUpdate reports a delivery-state transition for one message,
// keyed by the provider-assigned message id.
type StatusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
