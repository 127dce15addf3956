package model

import (
	"time"
)

// Derived batch statuses. A batch has no stored status column; these values
// are computed from its transactions on read so the roll-up can never drift.
const (
	BatchStatusOpen      = "OPEN"
	BatchStatusCompleted = "COMPLETED"
	BatchStatusEmpty     = "EMPTY"
)

// PaymentBatch groups the disbursement transactions that were claimed
// together in one atomic operation.
type PaymentBatch struct {
	ID               int64                  `json:"-"`
	BatchID          string                 `json:"batch_id"`
	Currency         string                 `json:"currency"`
	TotalAmount      int64                  `json:"total_amount"`
	TransactionCount int                    `json:"transaction_count"`
	CreatedAt        time.Time              `json:"created_at"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`

	// Status is derived, never persisted.
	Status string `json:"status,omitempty"`
}

// BatchCandidate is the output of the eligibility pass: one affiliate, the
// commissions that would be claimed for them, and their total.
type BatchCandidate struct {
	Payee       *Payee        `json:"payee"`
	Commissions []*Commission `json:"commissions"`
	Total       int64         `json:"total"`
	Currency    string        `json:"currency"`
}

// DeriveBatchStatus computes a batch's status from its transactions'
// terminal-state count. A batch is complete once every transaction has
// reached COMPLETED, FAILED or CANCELLED.
func DeriveBatchStatus(total, terminal int) string {
	switch {
	case total == 0:
		return BatchStatusEmpty
	case terminal >= total:
		return BatchStatusCompleted
	default:
		return BatchStatusOpen
	}
}
