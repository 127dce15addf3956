package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/paygrid/disburse/config"
)

// HTTPClient talks to the payout provider's REST API.
type HTTPClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(conf *config.Configuration) *HTTPClient {
	return &HTTPClient{
		name:    conf.Provider.Name,
		baseURL: strings.TrimSuffix(conf.Provider.BaseUrl, "/"),
		apiKey:  conf.Provider.ApiKey,
		httpClient: &http.Client{
			Timeout: time.Duration(conf.Provider.TimeoutSec) * time.Second,
		},
	}
}

func (c *HTTPClient) Name() string {
	return c.name
}

type paymentResponse struct {
	ID     string                 `json:"id"`
	Status string                 `json:"status"`
	Error  *apiErrorBody          `json:"error,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

type accountResponse struct {
	Ref       string                 `json:"ref"`
	KYCStatus string                 `json:"kyc_status"`
	Error     *apiErrorBody          `json:"error,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitPayment posts a payout. It makes exactly one attempt: an ambiguous
// network failure leaves the provider-side outcome unknown, and the caller
// keeps the transaction PROCESSING until a webhook or status poll settles it.
// The Idempotency-Key header makes an eventual resubmission safe.
func (c *HTTPClient) SubmitPayment(ctx context.Context, payment *PaymentRequest) (*PaymentResult, error) {
	bodyBytes, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/payouts", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.addAuth(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payment.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment submission failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed paymentResponse
	if err := c.parseResponse(resp, &parsed); err != nil {
		return nil, err
	}
	return &PaymentResult{
		ProviderTxnID: parsed.ID,
		Status:        mapPaymentStatus(parsed.Status),
		RawData:       parsed.Data,
		Timestamp:     time.Now(),
	}, nil
}

// GetPaymentStatus polls the provider for a payout's current state. Reads
// are safe to repeat, so transient failures retry with exponential backoff.
func (c *HTTPClient) GetPaymentStatus(ctx context.Context, providerTxnID string) (*PaymentResult, error) {
	var parsed paymentResponse
	err := c.getWithRetry(ctx, "/v1/payouts/"+providerTxnID, &parsed)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{
		ProviderTxnID: parsed.ID,
		Status:        mapPaymentStatus(parsed.Status),
		RawData:       parsed.Data,
		Timestamp:     time.Now(),
	}, nil
}

func (c *HTTPClient) GetAccountStatus(ctx context.Context, providerRef string) (*AccountStatus, error) {
	var parsed accountResponse
	err := c.getWithRetry(ctx, "/v1/accounts/"+providerRef, &parsed)
	if err != nil {
		return nil, err
	}
	return &AccountStatus{
		ProviderRef: parsed.Ref,
		KYCStatus:   parsed.KYCStatus,
		RawData:     parsed.Data,
	}, nil
}

func (c *HTTPClient) getWithRetry(ctx context.Context, path string, out interface{}) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.addAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.parseResponse(resp, out); err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(operation, policy)
}

func (c *HTTPClient) addAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *HTTPClient) parseResponse(resp *http.Response, out interface{}) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		pErr := &Error{
			Code:       "provider_error",
			Message:    string(bodyBytes),
			StatusCode: resp.StatusCode,
			Retryable:  isRetryableStatus(resp.StatusCode),
		}
		var parsed struct {
			Error *apiErrorBody `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &parsed) == nil && parsed.Error != nil {
			pErr.Code = parsed.Error.Code
			pErr.Message = parsed.Error.Message
		}
		return pErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// isRetryableStatus treats request timeouts, rate limits and server faults as
// transient; every other 4xx is a permanent verdict on the payment itself.
func isRetryableStatus(statusCode int) bool {
	switch {
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

func mapPaymentStatus(status string) PaymentStatus {
	switch strings.ToLower(status) {
	case "completed", "succeeded", "paid":
		return StatusCompleted
	case "failed", "rejected", "returned":
		return StatusFailed
	default:
		return StatusPending
	}
}
