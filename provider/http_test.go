package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/paygrid/disburse/config"
)

func newTestClient() *HTTPClient {
	conf := &config.Configuration{}
	conf.Provider.Name = "mockpay"
	conf.Provider.BaseUrl = "http://provider.test"
	conf.Provider.ApiKey = "test-key"
	conf.Provider.TimeoutSec = 5
	return NewHTTPClient(conf)
}

func TestSubmitPayment_Success(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://provider.test/v1/payouts",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
			assert.NotEmpty(t, req.Header.Get("Idempotency-Key"))
			return httpmock.NewStringResponse(200, `{"id": "prov_123", "status": "pending"}`), nil
		})

	result, err := client.SubmitPayment(context.Background(), &PaymentRequest{
		IdempotencyKey: "idk_1",
		PayeeRef:       "acct_9",
		Amount:         decimal.NewFromFloat(25.00),
		Currency:       "USD",
		Reference:      "dtx_1",
	})
	assert.NoError(t, err)
	assert.Equal(t, "prov_123", result.ProviderTxnID)
	assert.Equal(t, StatusPending, result.Status)
}

func TestSubmitPayment_PermanentFailure(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://provider.test/v1/payouts",
		httpmock.NewStringResponder(422, `{"error": {"code": "account_closed", "message": "payee account is closed"}}`))

	_, err := client.SubmitPayment(context.Background(), &PaymentRequest{
		IdempotencyKey: "idk_2",
		PayeeRef:       "acct_closed",
		Amount:         decimal.NewFromFloat(10.00),
		Currency:       "USD",
	})
	assert.Error(t, err)
	assert.False(t, IsRetryable(err))

	var pErr *Error
	assert.ErrorAs(t, err, &pErr)
	assert.Equal(t, "account_closed", pErr.Code)
}

func TestSubmitPayment_RetryableFailure(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://provider.test/v1/payouts",
		httpmock.NewStringResponder(503, `{"error": {"code": "unavailable", "message": "try again"}}`))

	_, err := client.SubmitPayment(context.Background(), &PaymentRequest{
		IdempotencyKey: "idk_3",
		PayeeRef:       "acct_9",
		Amount:         decimal.NewFromFloat(10.00),
		Currency:       "USD",
	})
	assert.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestSubmitPayment_SingleAttempt(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://provider.test/v1/payouts",
		httpmock.NewStringResponder(503, `{"error": {"code": "unavailable", "message": "try again"}}`))

	_, _ = client.SubmitPayment(context.Background(), &PaymentRequest{
		IdempotencyKey: "idk_4",
		PayeeRef:       "acct_9",
		Amount:         decimal.NewFromFloat(10.00),
		Currency:       "USD",
	})

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST http://provider.test/v1/payouts"])
}

func TestGetPaymentStatus_RetriesTransientFailures(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("GET", "http://provider.test/v1/payouts/prov_123",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(500, `{}`), nil
			}
			return httpmock.NewStringResponse(200, `{"id": "prov_123", "status": "completed"}`), nil
		})

	result, err := client.GetPaymentStatus(context.Background(), "prov_123")
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 3, calls)
}

func TestGetAccountStatus(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "http://provider.test/v1/accounts/acct_9",
		httpmock.NewStringResponder(200, `{"ref": "acct_9", "kyc_status": "approved"}`))

	status, err := client.GetAccountStatus(context.Background(), "acct_9")
	assert.NoError(t, err)
	assert.Equal(t, "acct_9", status.ProviderRef)
	assert.Equal(t, "approved", status.KYCStatus)
}

func TestMapPaymentStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, mapPaymentStatus("Completed"))
	assert.Equal(t, StatusCompleted, mapPaymentStatus("succeeded"))
	assert.Equal(t, StatusFailed, mapPaymentStatus("rejected"))
	assert.Equal(t, StatusPending, mapPaymentStatus("processing"))
	assert.Equal(t, StatusPending, mapPaymentStatus(""))
}
