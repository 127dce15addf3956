package provider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient is an in-memory provider for tests and local development. It
// remembers idempotency keys, so resubmitting the same payment returns the
// original result instead of creating a second payout.
type MockClient struct {
	ShouldFail    bool
	FailRetryable bool
	Delay         time.Duration

	mu       sync.Mutex
	payments map[string]*PaymentResult // keyed by idempotency key
}

func NewMockClient() *MockClient {
	return &MockClient{
		payments: make(map[string]*PaymentResult),
	}
}

func (m *MockClient) Name() string {
	return "mock_provider"
}

func (m *MockClient) SubmitPayment(ctx context.Context, payment *PaymentRequest) (*PaymentResult, error) {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.payments[payment.IdempotencyKey]; ok {
		return existing, nil
	}

	if m.ShouldFail {
		return nil, &Error{
			Code:      "mock_failure",
			Message:   "Mock payment failure triggered",
			Retryable: m.FailRetryable,
		}
	}

	result := &PaymentResult{
		ProviderTxnID: "mock_" + uuid.New().String(),
		Status:        StatusPending,
		Timestamp:     time.Now(),
	}
	m.payments[payment.IdempotencyKey] = result
	return result, nil
}

func (m *MockClient) GetPaymentStatus(ctx context.Context, providerTxnID string) (*PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, result := range m.payments {
		if result.ProviderTxnID == providerTxnID {
			return result, nil
		}
	}
	return nil, &Error{
		Code:       "not_found",
		Message:    "Unknown payout " + providerTxnID,
		StatusCode: 404,
		Retryable:  false,
	}
}

func (m *MockClient) GetAccountStatus(ctx context.Context, providerRef string) (*AccountStatus, error) {
	return &AccountStatus{
		ProviderRef: providerRef,
		KYCStatus:   "approved",
	}, nil
}

// SettlePayment flips a stored payment into a terminal state, mimicking the
// provider finishing the payout asynchronously.
func (m *MockClient) SettlePayment(providerTxnID string, status PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, result := range m.payments {
		if result.ProviderTxnID == providerTxnID {
			result.Status = status
			return
		}
	}
}
