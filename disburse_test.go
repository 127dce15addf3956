/*
Copyright 2025 PayGrid Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package disburse

import (
	"log"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/database"
	"github.com/paygrid/disburse/model"
	"github.com/paygrid/disburse/provider"
)

func newTestDataSource() (database.IDataSource, sqlmock.Sqlmock, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		log.Printf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return &database.Datasource{Conn: db}, mock, nil
}

// newTestEngine wires a Disburse instance against sqlmock, miniredis and the
// in-memory provider.
func newTestEngine(t *testing.T) (*Disburse, sqlmock.Sqlmock, *provider.MockClient, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis:     config.RedisConfig{Dns: mr.Addr()},
		TypeSense: config.TypeSenseConfig{Dns: "http://typesense:8108"},
		Provider:  config.ProviderConfig{Name: "mockpay", Decimals: 2, MinorUnits: 2},
		Payout: config.PayoutConfig{
			MinimumAmount:          2500,
			MaxRetries:             5,
			RetryBaseDelaySec:      60,
			RetryMaxDelaySec:       3600,
			BatchLimit:             500,
			UnresolvedEventWaitSec: 120,
		},
		Queue: config.QueueConfig{
			PayoutQueue:    "new:payout",
			WebhookQueue:   "new:webhook",
			IndexQueue:     "new:index",
			NumberOfQueues: 2,
		},
	})

	datasource, mock, err := newTestDataSource()
	require.NoError(t, err)

	d, err := NewDisburse(datasource)
	require.NoError(t, err)

	mockProvider := provider.NewMockClient()
	d.provider = mockProvider
	return d, mock, mockProvider, mr
}

var txnColumns = []string{
	"transaction_id", "batch_id", "commission_id", "idempotency_key", "provider_txn_id",
	"provider", "payee_ref", "amount", "provider_amount", "currency", "status",
	"retry_count", "last_retry_at", "error_message", "created_at", "completed_at", "failed_at", "meta_data",
}

func txnRows(txns ...*model.DisbursementTransaction) *sqlmock.Rows {
	rows := sqlmock.NewRows(txnColumns)
	for _, txn := range txns {
		rows.AddRow(
			txn.TransactionID, txn.BatchID, txn.CommissionID, txn.IdempotencyKey, txn.ProviderTxnID,
			txn.Provider, txn.PayeeRef, txn.Amount, txn.ProviderAmount, txn.Currency, txn.Status,
			txn.RetryCount, txn.LastRetryAt, txn.ErrorMessage, txn.CreatedAt, txn.CompletedAt, txn.FailedAt, nil,
		)
	}
	return rows
}

func pendingTxn() *model.DisbursementTransaction {
	return &model.DisbursementTransaction{
		TransactionID:  "dtx_1",
		BatchID:        "bat_1",
		CommissionID:   "cms_1",
		IdempotencyKey: "idk_1",
		Provider:       "mockpay",
		PayeeRef:       "acct_1",
		Amount:         5000,
		ProviderAmount: "50",
		Currency:       "USD",
		Status:         model.StatusPending,
		CreatedAt:      time.Now(),
	}
}
