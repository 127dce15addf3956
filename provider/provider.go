package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusCompleted PaymentStatus = "COMPLETED"
	StatusFailed    PaymentStatus = "FAILED"
)

// PaymentRequest is a single payout submission. IdempotencyKey is stable for
// the lifetime of the disbursement transaction, so a resubmission after an
// ambiguous failure cannot double-pay.
type PaymentRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	PayeeRef       string          `json:"payee_ref"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Reference      string          `json:"reference"`
}

type PaymentResult struct {
	ProviderTxnID string                 `json:"provider_txn_id"`
	Status        PaymentStatus          `json:"status"`
	RawData       map[string]interface{} `json:"raw_data"`
	Timestamp     time.Time              `json:"timestamp"`
}

type AccountStatus struct {
	ProviderRef string                 `json:"provider_ref"`
	KYCStatus   string                 `json:"kyc_status"`
	RawData     map[string]interface{} `json:"raw_data"`
}

// Client abstracts the payout provider API.
type Client interface {
	Name() string
	SubmitPayment(ctx context.Context, req *PaymentRequest) (*PaymentResult, error)
	GetPaymentStatus(ctx context.Context, providerTxnID string) (*PaymentResult, error)
	GetAccountStatus(ctx context.Context, providerRef string) (*AccountStatus, error)
}

// Error carries the provider's verdict on a failed call. Retryable failures
// (timeouts, rate limits, 5xx) feed the retry scheduler; permanent ones
// (validation, closed account) do not.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsRetryable reports whether a payment failure is worth another attempt.
// Unknown errors default to retryable; the retry ceiling bounds the damage.
func IsRetryable(err error) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Retryable
	}
	return true
}
