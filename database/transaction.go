package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/model"
)

const transactionColumns = `transaction_id, batch_id, commission_id, idempotency_key, COALESCE(provider_txn_id, ''), provider, payee_ref, amount, provider_amount, currency, status, retry_count, last_retry_at, COALESCE(error_message, ''), created_at, completed_at, failed_at, meta_data`

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.DisbursementTransaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM disburse.disbursement_transactions
		WHERE transaction_id = $1
	`, id)
	return scanTransaction(row, id)
}

func (d Datasource) GetTransactionByProviderTxnID(ctx context.Context, providerTxnID string) (*model.DisbursementTransaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM disburse.disbursement_transactions
		WHERE provider_txn_id = $1
	`, providerTxnID)
	return scanTransaction(row, providerTxnID)
}

func (d Datasource) GetTransactionsByStatus(ctx context.Context, status string, limit, offset int) ([]*model.DisbursementTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM disburse.disbursement_transactions
	`
	args := []interface{}{limit, offset}
	if status != "" {
		query += ` WHERE status = $3`
		args = append(args, status)
	}
	query += `
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (d Datasource) GetAllTransactions(ctx context.Context, limit, offset int) ([]*model.DisbursementTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM disburse.disbursement_transactions
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (d Datasource) GetBatchTransactions(ctx context.Context, batchID string) ([]*model.DisbursementTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM disburse.disbursement_transactions
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`, batchID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batch transactions", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (d Datasource) GetBatchTransactionCounts(ctx context.Context, batchID string) (int, int, error) {
	var total, terminal int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status IN ('COMPLETED', 'FAILED', 'CANCELLED'))
		FROM disburse.disbursement_transactions
		WHERE batch_id = $1
	`, batchID).Scan(&total, &terminal)
	if err != nil {
		return 0, 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count batch transactions", err)
	}
	return total, terminal, nil
}

// GetDueRetries returns PENDING transactions whose backoff window has
// elapsed. The window is computed in SQL from retry_count so concurrent
// sweeps see the same due set; the guarded PENDING -> PROCESSING update is
// what keeps two sweeps from dispatching the same row twice.
func (d Datasource) GetDueRetries(ctx context.Context, maxRetries int, baseDelay, maxDelay time.Duration, limit int) ([]*model.DisbursementTransaction, error) {
	ctx, span := otel.Tracer("disburse.database").Start(ctx, "Selecting due retries")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM disburse.disbursement_transactions
		WHERE status = 'PENDING'
		  AND retry_count < $1
		  AND (
			last_retry_at IS NULL
			OR last_retry_at + LEAST($2 * POWER(2, retry_count), $3) * INTERVAL '1 second' <= NOW()
		  )
		ORDER BY created_at ASC
		LIMIT $4
	`, maxRetries, int64(baseDelay.Seconds()), int64(maxDelay.Seconds()), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due retries", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (d Datasource) GetExhaustedRetries(ctx context.Context, maxRetries, limit int) ([]*model.DisbursementTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM disburse.disbursement_transactions
		WHERE status = 'PENDING' AND retry_count >= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, maxRetries, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve exhausted retries", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// MarkTransactionProcessing applies the guarded PENDING -> PROCESSING
// transition and records the provider's transaction id. Returns false when
// the row was not PENDING, which means another writer got there first.
func (d Datasource) MarkTransactionProcessing(ctx context.Context, id, providerTxnID string) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE disburse.disbursement_transactions
		SET status = 'PROCESSING', provider_txn_id = COALESCE(NULLIF($2, ''), provider_txn_id)
		WHERE transaction_id = $1 AND status = 'PENDING'
	`, id, providerTxnID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark transaction processing", err)
	}
	return d.applied(result, ctx, id, model.ActorScheduler, model.StatusPending, model.StatusProcessing, nil)
}

// AttachProviderTxnID records the provider's transaction id after a submit
// call returns. The id is written once; replayed submissions carry the same
// idempotency key and the provider echoes the same id back.
func (d Datasource) AttachProviderTxnID(ctx context.Context, id, providerTxnID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE disburse.disbursement_transactions
		SET provider_txn_id = $2
		WHERE transaction_id = $1 AND provider_txn_id IS NULL
	`, id, providerTxnID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to attach provider transaction id", err)
	}
	return nil
}

// RearmTransaction moves a transaction back to PENDING with an incremented
// retry count, recording the dispatch or provider error that caused it.
func (d Datasource) RearmTransaction(ctx context.Context, id, fromStatus, errMsg string) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE disburse.disbursement_transactions
		SET status = 'PENDING', retry_count = retry_count + 1, last_retry_at = NOW(), error_message = $3
		WHERE transaction_id = $1 AND status = $2
	`, id, fromStatus, errMsg)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to rearm transaction", err)
	}
	return d.applied(result, ctx, id, model.ActorScheduler, fromStatus, model.StatusPending, map[string]interface{}{"error": errMsg})
}

// ApplyTransactionCompleted performs the reconciler's terminal-success
// mutation in one database transaction: the guarded PROCESSING -> COMPLETED
// update, the commission's move to PAID, the payee's pending -> paid balance
// transfer, and the audit entries. Returns false without any change when the
// transaction was not PROCESSING (duplicate or out-of-order event).
func (d Datasource) ApplyTransactionCompleted(ctx context.Context, id, actor string) (bool, error) {
	ctx, span := otel.Tracer("disburse.database").Start(ctx, "Applying transaction completion")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE disburse.disbursement_transactions
		SET status = 'COMPLETED', completed_at = $2, error_message = NULL
		WHERE transaction_id = $1 AND status = 'PROCESSING'
	`, id, now)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete transaction", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return false, nil
	}

	var commissionID, batchID string
	var amount int64
	err = tx.QueryRowContext(ctx, `
		SELECT commission_id, batch_id, amount
		FROM disburse.disbursement_transactions
		WHERE transaction_id = $1
	`, id).Scan(&commissionID, &batchID, &amount)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load transaction row", err)
	}

	var affiliateID string
	err = tx.QueryRowContext(ctx, `
		UPDATE disburse.commissions
		SET status = 'PAID', paid_at = $2
		WHERE commission_id = $1
		RETURNING affiliate_id
	`, commissionID, now).Scan(&affiliateID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark commission paid", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE disburse.payees
		SET pending_balance = pending_balance - $2, paid_balance = paid_balance + $2
		WHERE affiliate_id = $1
	`, affiliateID, amount)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to move payee balance", err)
	}

	if err := appendAuditTx(ctx, tx, &model.AuditLogEntry{
		Actor: actor, Action: model.AuditTransactionState,
		TransactionID: id, BatchID: batchID,
		BeforeState: model.StatusProcessing, AfterState: model.StatusCompleted,
		CreatedAt: now,
	}); err != nil {
		return false, err
	}
	if err := appendAuditTx(ctx, tx, &model.AuditLogEntry{
		Actor: actor, Action: model.AuditCommissionPaid,
		TransactionID: id, BatchID: batchID,
		BeforeState: model.CommissionStatusPending, AfterState: model.CommissionStatusPaid,
		Details:   map[string]interface{}{"commission_id": commissionID, "affiliate_id": affiliateID, "amount": amount},
		CreatedAt: now,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit completion", err)
	}
	return true, nil
}

// ApplyTransactionFailed applies a guarded transition to terminal FAILED and
// releases the commission back to the unbatched pool so a future eligibility
// run can re-batch it once the underlying issue is resolved. The commission's
// own status is left untouched; the money is still owed.
func (d Datasource) ApplyTransactionFailed(ctx context.Context, id, fromStatus, reason, actor string) (bool, error) {
	ctx, span := otel.Tracer("disburse.database").Start(ctx, "Applying transaction failure")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE disburse.disbursement_transactions
		SET status = 'FAILED', failed_at = $2, error_message = $3
		WHERE transaction_id = $1 AND status = $4
	`, id, now, reason, fromStatus)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fail transaction", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return false, nil
	}

	var commissionID, batchID string
	err = tx.QueryRowContext(ctx, `
		SELECT commission_id, batch_id
		FROM disburse.disbursement_transactions
		WHERE transaction_id = $1
	`, id).Scan(&commissionID, &batchID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load transaction row", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE disburse.commissions
		SET batch_id = NULL
		WHERE commission_id = $1 AND status IN ('PENDING', 'APPROVED')
	`, commissionID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release commission", err)
	}

	if err := appendAuditTx(ctx, tx, &model.AuditLogEntry{
		Actor: actor, Action: model.AuditTransactionState,
		TransactionID: id, BatchID: batchID,
		BeforeState: fromStatus, AfterState: model.StatusFailed,
		Details:   map[string]interface{}{"reason": reason, "commission_id": commissionID},
		CreatedAt: now,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit failure", err)
	}
	return true, nil
}

// CancelTransaction applies the operator cancel: any non-terminal status
// moves to CANCELLED and the commission is released. Guarded the same way as
// every other transition.
func (d Datasource) CancelTransaction(ctx context.Context, id, actor string) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	var before string
	err = tx.QueryRowContext(ctx, `
		UPDATE disburse.disbursement_transactions t
		SET status = 'CANCELLED'
		FROM (SELECT transaction_id, status FROM disburse.disbursement_transactions WHERE transaction_id = $1 FOR UPDATE) prev
		WHERE t.transaction_id = prev.transaction_id AND prev.status IN ('PENDING', 'PROCESSING')
		RETURNING prev.status
	`, id).Scan(&before)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to cancel transaction", err)
	}

	var commissionID, batchID string
	err = tx.QueryRowContext(ctx, `
		SELECT commission_id, batch_id
		FROM disburse.disbursement_transactions
		WHERE transaction_id = $1
	`, id).Scan(&commissionID, &batchID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to load transaction row", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE disburse.commissions
		SET batch_id = NULL
		WHERE commission_id = $1 AND status IN ('PENDING', 'APPROVED')
	`, commissionID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release commission", err)
	}

	if err := appendAuditTx(ctx, tx, &model.AuditLogEntry{
		Actor: actor, Action: model.AuditTransactionState,
		TransactionID: id, BatchID: batchID,
		BeforeState: before, AfterState: model.StatusCancelled,
		CreatedAt: now,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit cancel", err)
	}
	return true, nil
}

// applied resolves a guarded single-row update, appending the audit entry
// when the transition took effect.
func (d Datasource) applied(result sql.Result, ctx context.Context, id, actor, before, after string, details map[string]interface{}) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return false, nil
	}
	err = d.RecordAuditLog(ctx, &model.AuditLogEntry{
		Actor: actor, Action: model.AuditTransactionState,
		TransactionID: id,
		BeforeState:   before, AfterState: after,
		Details:   details,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return true, err
	}
	return true, nil
}

func appendAuditTx(ctx context.Context, tx *sql.Tx, entry *model.AuditLogEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal audit details", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO disburse.audit_logs(audit_log_id,actor,action,transaction_id,batch_id,before_state,after_state,details,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		model.GenerateUUIDWithSuffix("aud"), entry.Actor, entry.Action, entry.TransactionID, entry.BatchID, entry.BeforeState, entry.AfterState, detailsJSON, entry.CreatedAt,
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append audit entry", err)
	}
	return nil
}

func scanTransaction(row rowScanner, ref string) (*model.DisbursementTransaction, error) {
	txn := &model.DisbursementTransaction{}
	var metaDataJSON []byte
	var lastRetryAt, completedAt, failedAt sql.NullTime
	err := row.Scan(
		&txn.TransactionID, &txn.BatchID, &txn.CommissionID, &txn.IdempotencyKey, &txn.ProviderTxnID,
		&txn.Provider, &txn.PayeeRef, &txn.Amount, &txn.ProviderAmount, &txn.Currency, &txn.Status,
		&txn.RetryCount, &lastRetryAt, &txn.ErrorMessage, &txn.CreatedAt, &completedAt, &failedAt, &metaDataJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction '%s' not found", ref), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	if lastRetryAt.Valid {
		t := lastRetryAt.Time
		txn.LastRetryAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		txn.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		txn.FailedAt = &t
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return txn, nil
}

func collectTransactions(rows *sql.Rows) ([]*model.DisbursementTransaction, error) {
	transactions := []*model.DisbursementTransaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows, "")
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transactions", err)
	}
	return transactions, nil
}
