package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/model"
)

// CreateBatchWithTransactions performs the atomic claim: one database
// transaction inserts the batch row, attaches every commission to it through
// a conditional update, inserts one PENDING disbursement transaction per
// commission, and appends the batch.created audit entry. If any commission
// was already claimed by a concurrent run the conditional update touches
// zero rows and the whole claim rolls back with a conflict error, so a
// candidate is either claimed in full or not at all.
func (d Datasource) CreateBatchWithTransactions(ctx context.Context, b *model.PaymentBatch, txns []*model.DisbursementTransaction) error {
	ctx, span := otel.Tracer("disburse.database").Start(ctx, "Claiming batch candidate")
	defer span.End()

	metaDataJSON, err := json.Marshal(b.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO disburse.payment_batches(batch_id,currency,total_amount,transaction_count,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6)`,
		b.BatchID, b.Currency, b.TotalAmount, b.TransactionCount, b.CreatedAt, metaDataJSON,
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create payment batch", err)
	}

	for _, txn := range txns {
		result, err := tx.ExecContext(ctx, `
			UPDATE disburse.commissions
			SET batch_id = $1
			WHERE commission_id = $2
			  AND batch_id IS NULL
			  AND status IN ('PENDING', 'APPROVED')
		`, b.BatchID, txn.CommissionID)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim commission", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
		}
		if rows == 0 {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Commission '%s' already claimed by another batch", txn.CommissionID), nil)
		}
	}

	for _, txn := range txns {
		txnMetaJSON, err := json.Marshal(txn.MetaData)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO disburse.disbursement_transactions(transaction_id,batch_id,commission_id,idempotency_key,provider,payee_ref,amount,provider_amount,currency,status,retry_count,created_at,meta_data)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			txn.TransactionID, txn.BatchID, txn.CommissionID, txn.IdempotencyKey, txn.Provider, txn.PayeeRef, txn.Amount, txn.ProviderAmount, txn.Currency, txn.Status, txn.RetryCount, txn.CreatedAt, txnMetaJSON,
		)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create disbursement transaction", err)
		}
	}

	detailsJSON, err := json.Marshal(map[string]interface{}{
		"total_amount":      b.TotalAmount,
		"transaction_count": b.TransactionCount,
		"currency":          b.Currency,
	})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal audit details", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO disburse.audit_logs(audit_log_id,actor,action,batch_id,after_state,details,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		model.GenerateUUIDWithSuffix("aud"), model.ActorOrchestrator, model.AuditBatchCreated, b.BatchID, model.BatchStatusOpen, detailsJSON, b.CreatedAt,
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append audit entry", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit batch claim", err)
	}
	return nil
}

// GetBatch retrieves a batch and derives its status from its transactions'
// terminal-state count; the status is computed on read, never stored.
func (d Datasource) GetBatch(ctx context.Context, id string) (*model.PaymentBatch, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT batch_id, currency, total_amount, transaction_count, created_at, completed_at, meta_data
		FROM disburse.payment_batches
		WHERE batch_id = $1
	`, id)

	b, err := scanBatch(row)
	if err != nil {
		return nil, err
	}

	total, terminal, err := d.GetBatchTransactionCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Status = model.DeriveBatchStatus(total, terminal)
	return b, nil
}

func (d Datasource) GetAllBatches(ctx context.Context, limit, offset int) ([]*model.PaymentBatch, error) {
	cacheKey := fmt.Sprintf("batches:paginated:%d:%d", limit, offset)
	var batches []*model.PaymentBatch
	if d.Cache != nil {
		if err := d.Cache.Get(ctx, cacheKey, &batches); err == nil && len(batches) > 0 {
			return batches, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT batch_id, currency, total_amount, transaction_count, created_at, completed_at, meta_data
		FROM disburse.payment_batches
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batches", err)
	}
	defer rows.Close()

	batches = []*model.PaymentBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over batches", err)
	}

	if d.Cache != nil && len(batches) > 0 {
		if err := d.Cache.Set(ctx, cacheKey, batches, 1*time.Minute); err != nil {
			log.Printf("Failed to cache batches: %v", err)
		}
	}
	return batches, nil
}

// MarkBatchCompleted stamps completed_at the first time every child reaches a
// terminal state. The stamp is informational; batch status stays derived.
func (d Datasource) MarkBatchCompleted(ctx context.Context, id string, completedAt time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE disburse.payment_batches
		SET completed_at = $2
		WHERE batch_id = $1 AND completed_at IS NULL
	`, id, completedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark batch completed", err)
	}
	return nil
}

func scanBatch(row rowScanner) (*model.PaymentBatch, error) {
	b := &model.PaymentBatch{}
	var metaDataJSON []byte
	var completedAt sql.NullTime
	err := row.Scan(&b.BatchID, &b.Currency, &b.TotalAmount, &b.TransactionCount, &b.CreatedAt, &completedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Batch not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batch", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &b.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return b, nil
}
