package model

import (
	"time"
)

// Known provider event types. Anything else is persisted as
// EventTypeUnknown and left for manual handling rather than auto-processed.
const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentPending   = "payment.pending"
	EventTypeAccountUpdated   = "account.updated"
	EventTypeUnknown          = "unknown"
)

// WebhookEvent is an inbound provider notification. ProviderEventID carries
// a uniqueness constraint in storage and is the primary defense against
// duplicate processing.
type WebhookEvent struct {
	ID              int64                  `json:"-"`
	EventID         string                 `json:"event_id"`
	ProviderEventID string                 `json:"provider_event_id"`
	EventType       string                 `json:"event_type"`
	ProviderTxnID   string                 `json:"provider_txn_id"`
	Payload         map[string]interface{} `json:"payload"`
	ReceivedAt      time.Time              `json:"received_at"`
	ProcessedAt     *time.Time             `json:"processed_at,omitempty"`
	TransactionID   string                 `json:"transaction_id,omitempty"`
}

// NormalizeEventType collapses unrecognized provider event types into the
// unknown variant.
func NormalizeEventType(eventType string) string {
	switch eventType {
	case EventTypePaymentCompleted, EventTypePaymentFailed, EventTypePaymentPending, EventTypeAccountUpdated:
		return eventType
	default:
		return EventTypeUnknown
	}
}

// TargetStatus maps a payment event type to the transaction status it
// drives. The bool is false for events that do not move the state machine.
func TargetStatus(eventType string) (string, bool) {
	switch eventType {
	case EventTypePaymentCompleted:
		return StatusCompleted, true
	case EventTypePaymentFailed:
		return StatusFailed, true
	case EventTypePaymentPending:
		return StatusProcessing, true
	default:
		return "", false
	}
}
