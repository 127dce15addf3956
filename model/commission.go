package model

import (
	"time"
)

// Commission statuses. PAID is set only by the webhook reconciler once the
// provider confirms the transfer that carries the commission.
const (
	CommissionStatusPending   = "PENDING"
	CommissionStatusApproved  = "APPROVED"
	CommissionStatusPaid      = "PAID"
	CommissionStatusCancelled = "CANCELLED"
)

// Commission is an amount owed to one affiliate for one sale. The engine
// never computes commission amounts; they arrive from the upstream
// commission calculator with an amount, a currency and a payee reference.
type Commission struct {
	ID           int64                  `json:"-"`
	CommissionID string                 `json:"commission_id"`
	AffiliateID  string                 `json:"affiliate_id"`
	Amount       int64                  `json:"amount"`
	Currency     string                 `json:"currency"`
	Status       string                 `json:"status"`
	BatchID      string                 `json:"batch_id,omitempty"`
	EarnedAt     time.Time              `json:"earned_at"`
	PaidAt       *time.Time             `json:"paid_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	MetaData     map[string]interface{} `json:"meta_data,omitempty"`
}

// Payable reports whether a commission can be claimed into a batch.
// A commission already attached to a batch is never payable again.
func (c *Commission) Payable() bool {
	if c.BatchID != "" {
		return false
	}
	return c.Status == CommissionStatusPending || c.Status == CommissionStatusApproved
}
