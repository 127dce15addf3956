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
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/paygrid/disburse/model"
	"github.com/paygrid/disburse/provider"
)

func TestDispatchTransaction_Accepted(t *testing.T) {
	d, mock, _, _ := newTestEngine(t)
	txn := pendingTxn()

	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(txn))
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WithArgs(txn.TransactionID, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// provider accepted; the provider txn id lands on the row
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WithArgs(txn.TransactionID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.DispatchTransaction(context.Background(), txn.TransactionID)
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDispatchTransaction_NotPendingIsNoOp(t *testing.T) {
	d, mock, _, _ := newTestEngine(t)
	txn := pendingTxn()

	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(txn))
	// the guard refuses: another worker already claimed the row
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WithArgs(txn.TransactionID, "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.DispatchTransaction(context.Background(), txn.TransactionID)
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDispatchTransaction_PermanentFailure(t *testing.T) {
	d, mock, mockProvider, _ := newTestEngine(t)
	mockProvider.ShouldFail = true
	mockProvider.FailRetryable = false
	txn := pendingTxn()

	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(txn))
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WithArgs(txn.TransactionID, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// terminal FAILED releases the commission for re-batching
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT commission_id, batch_id").
		WithArgs(txn.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"commission_id", "batch_id"}).AddRow(txn.CommissionID, txn.BatchID))
	mock.ExpectExec("UPDATE disburse.commissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	failed := pendingTxn()
	failed.Status = model.StatusFailed
	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(failed))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(txn.BatchID).
		WillReturnRows(sqlmock.NewRows([]string{"count", "terminal"}).AddRow(2, 1))

	err := d.DispatchTransaction(context.Background(), txn.TransactionID)
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDispatchTransaction_RetryableFailureRearms(t *testing.T) {
	d, mock, mockProvider, mr := newTestEngine(t)
	mockProvider.ShouldFail = true
	mockProvider.FailRetryable = true
	txn := pendingTxn()

	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(txn))
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WithArgs(txn.TransactionID, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// back to PENDING with retry_count+1
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := d.DispatchTransaction(context.Background(), txn.TransactionID)
	assert.NoError(t, err)

	// the delayed retry task made it into the queue
	assert.NotEmpty(t, mr.Keys())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDispatchTransaction_RetryCeilingStopsStaleTask(t *testing.T) {
	d, mock, _, mr := newTestEngine(t)
	txn := pendingTxn()
	txn.RetryCount = 5

	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(txn))

	// already at the ceiling: straight to terminal FAILED, no claim and no
	// submit attempt
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT commission_id, batch_id").
		WithArgs(txn.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"commission_id", "batch_id"}).AddRow(txn.CommissionID, txn.BatchID))
	mock.ExpectExec("UPDATE disburse.commissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	failed := pendingTxn()
	failed.Status = model.StatusFailed
	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(failed))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(txn.BatchID).
		WillReturnRows(sqlmock.NewRows([]string{"count", "terminal"}).AddRow(2, 1))

	err := d.DispatchTransaction(context.Background(), txn.TransactionID)
	assert.NoError(t, err)

	// no further attempt was scheduled
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "payout")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDispatchTransaction_LastRetryableFailureExhausts(t *testing.T) {
	d, mock, mockProvider, mr := newTestEngine(t)
	mockProvider.ShouldFail = true
	mockProvider.FailRetryable = true
	txn := pendingTxn()
	txn.RetryCount = 4

	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(txn))
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WithArgs(txn.TransactionID, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// the rearm lands the row on the ceiling
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// so the transaction fails now instead of getting another delayed task
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT commission_id, batch_id").
		WithArgs(txn.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"commission_id", "batch_id"}).AddRow(txn.CommissionID, txn.BatchID))
	mock.ExpectExec("UPDATE disburse.commissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	failed := pendingTxn()
	failed.Status = model.StatusFailed
	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(failed))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(txn.BatchID).
		WillReturnRows(sqlmock.NewRows([]string{"count", "terminal"}).AddRow(2, 1))

	err := d.DispatchTransaction(context.Background(), txn.TransactionID)
	assert.NoError(t, err)

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "payout")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

type ambiguousProvider struct {
	provider.Client
}

func (ambiguousProvider) SubmitPayment(ctx context.Context, req *provider.PaymentRequest) (*provider.PaymentResult, error) {
	return nil, errors.New("dial tcp 10.0.0.1:443: i/o timeout")
}

func TestDispatchTransaction_AmbiguousFailureStaysProcessing(t *testing.T) {
	d, mock, _, _ := newTestEngine(t)
	d.provider = ambiguousProvider{}
	txn := pendingTxn()

	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(txn))
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WithArgs(txn.TransactionID, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// no further writes: the row stays PROCESSING for the reconciler
	err := d.DispatchTransaction(context.Background(), txn.TransactionID)
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRunRetrySweep_ExhaustedRetriesFail(t *testing.T) {
	d, mock, _, _ := newTestEngine(t)
	txn := pendingTxn()
	txn.RetryCount = 5

	mock.ExpectQuery("retry_count < \\$1").
		WillReturnRows(txnRows())
	mock.ExpectQuery("retry_count >= \\$1").
		WillReturnRows(txnRows(txn))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disburse.disbursement_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT commission_id, batch_id").
		WithArgs(txn.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"commission_id", "batch_id"}).AddRow(txn.CommissionID, txn.BatchID))
	mock.ExpectExec("UPDATE disburse.commissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO disburse.audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	failed := pendingTxn()
	failed.Status = model.StatusFailed
	mock.ExpectQuery("SELECT (.+) FROM disburse.disbursement_transactions").
		WithArgs(txn.TransactionID).
		WillReturnRows(txnRows(failed))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(txn.BatchID).
		WillReturnRows(sqlmock.NewRows([]string{"count", "terminal"}).AddRow(3, 1))

	summary := &RunSummary{}
	err := d.RunRetrySweep(context.Background(), summary)
	assert.NoError(t, err)
	assert.Equal(t, 0, summary.RetriesQueued)
	assert.Equal(t, 1, summary.RetriesExhausted)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRunRetrySweep_QueuesDueRetries(t *testing.T) {
	d, mock, _, mr := newTestEngine(t)
	txn := pendingTxn()
	txn.RetryCount = 2

	mock.ExpectQuery("retry_count < \\$1").
		WillReturnRows(txnRows(txn))
	mock.ExpectQuery("retry_count >= \\$1").
		WillReturnRows(txnRows())

	summary := &RunSummary{}
	err := d.RunRetrySweep(context.Background(), summary)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.RetriesQueued)
	assert.NotEmpty(t, mr.Keys())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
