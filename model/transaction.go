package model

import (
	"encoding/json"
	"math/rand"
	"time"
)

// Disbursement transaction statuses. COMPLETED, FAILED and CANCELLED are
// terminal; no transition leads out of them.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// DisbursementTransaction is one money movement for one commission within
// one batch. Rows are never deleted; failed transactions are retained for
// audit. Status is mutated only through guarded transitions in the retry
// scheduler and the webhook reconciler.
type DisbursementTransaction struct {
	ID             int64                  `json:"-"`
	TransactionID  string                 `json:"transaction_id"`
	BatchID        string                 `json:"batch_id"`
	CommissionID   string                 `json:"commission_id"`
	IdempotencyKey string                 `json:"idempotency_key"`
	ProviderTxnID  string                 `json:"provider_txn_id,omitempty"`
	Provider       string                 `json:"provider"`
	PayeeRef       string                 `json:"payee_ref"`
	Amount         int64                  `json:"amount"`
	ProviderAmount string                 `json:"provider_amount"`
	Currency       string                 `json:"currency"`
	Status         string                 `json:"status"`
	RetryCount     int                    `json:"retry_count"`
	LastRetryAt    *time.Time             `json:"last_retry_at,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	FailedAt       *time.Time             `json:"failed_at,omitempty"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

func (t *DisbursementTransaction) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// legalTransitions is the full transition table of the transaction state
// machine. Anything not listed here is illegal; the reconciler treats an
// illegal transition as a duplicate delivery and no-ops.
var legalTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusPending, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusPending, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
// PENDING -> PENDING is the dispatch-error re-arm (retry count bump);
// PROCESSING -> PENDING is a retryable provider rejection.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the transaction may legally move to the
// given status from its current one.
func (t *DisbursementTransaction) CanTransitionTo(status string) bool {
	return CanTransition(t.Status, status)
}

// RetryDelay computes the backoff before retry attempt retryCount+1:
// base x 2^retryCount with +/-20% jitter, capped at max. Jitter keeps
// concurrent scheduler instances from re-dispatching a struggling payee's
// transfers in lockstep.
func RetryDelay(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if max > 0 && delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5+1) - int64(delay)/10)
	return delay + jitter
}
