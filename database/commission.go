package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/lib/pq"
	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/model"
)

// RecordCommission inserts a commission and bumps the owed affiliate's
// pending balance in the same database transaction, keeping the balance
// invariant (pending == sum of unpaid commissions) intact from the moment a
// commission exists.
func (d Datasource) RecordCommission(ctx context.Context, cms *model.Commission) (*model.Commission, error) {
	ctx, span := otel.Tracer("disburse.database").Start(ctx, "Recording commission")
	defer span.End()

	metaDataJSON, err := json.Marshal(cms.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO disburse.commissions(commission_id,affiliate_id,amount,currency,status,earned_at,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		cms.CommissionID, cms.AffiliateID, cms.Amount, cms.Currency, cms.Status, cms.EarnedAt, cms.CreatedAt, metaDataJSON,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Commission with ID '%s' already exists", cms.CommissionID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record commission", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE disburse.payees SET pending_balance = pending_balance + $2 WHERE affiliate_id = $1`,
		cms.AffiliateID, cms.Amount,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update pending balance", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No payee registered for affiliate '%s'", cms.AffiliateID), nil)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit commission", err)
	}

	return cms, nil
}

func (d Datasource) GetCommission(ctx context.Context, id string) (*model.Commission, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT commission_id, affiliate_id, amount, currency, status, COALESCE(batch_id, ''), earned_at, paid_at, created_at, meta_data
		FROM disburse.commissions
		WHERE commission_id = $1
	`, id)

	return scanCommission(row)
}

func (d Datasource) GetCommissionsByBatch(ctx context.Context, batchID string) ([]*model.Commission, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT commission_id, affiliate_id, amount, currency, status, COALESCE(batch_id, ''), earned_at, paid_at, created_at, meta_data
		FROM disburse.commissions
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`, batchID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve commissions", err)
	}
	defer rows.Close()

	var commissions []*model.Commission
	for rows.Next() {
		cms, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		commissions = append(commissions, cms)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over commissions", err)
	}
	return commissions, nil
}

func (d Datasource) GetAllCommissions(ctx context.Context, limit, offset int) ([]*model.Commission, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT commission_id, affiliate_id, amount, currency, status, COALESCE(batch_id, ''), earned_at, paid_at, created_at, meta_data
		FROM disburse.commissions
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve commissions", err)
	}
	defer rows.Close()

	commissions := []*model.Commission{}
	for rows.Next() {
		cms, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		commissions = append(commissions, cms)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over commissions", err)
	}
	return commissions, nil
}

// GetBatchCandidates runs the eligibility pass: for every KYC-approved payee
// it sums unbatched commissions in {PENDING, APPROVED} and keeps payees at or
// above the minimum payout threshold. Every eligibility filter applies inside
// the limited pick, so an ineligible payee never consumes a slot. Read-only;
// a failure aborts the run with no partial output, so the pass is safely
// re-runnable.
func (d Datasource) GetBatchCandidates(ctx context.Context, minPayout int64, limit int) ([]*model.BatchCandidate, error) {
	ctx, span := otel.Tracer("disburse.database").Start(ctx, "Selecting batch candidates")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT p.payee_account_id, p.affiliate_id, p.name, p.provider_ref, p.kyc_status, p.pending_balance, p.paid_balance, p.currency,
		       c.commission_id, c.amount, c.currency, c.status, c.earned_at, c.created_at
		FROM disburse.payees p
		JOIN disburse.commissions c ON c.affiliate_id = p.affiliate_id
		WHERE p.kyc_status = 'APPROVED'
		  AND p.provider_ref <> ''
		  AND c.batch_id IS NULL
		  AND c.status IN ('PENDING', 'APPROVED')
		  AND p.affiliate_id IN (
			SELECT c2.affiliate_id
			FROM disburse.commissions c2
			JOIN disburse.payees p2 ON p2.affiliate_id = c2.affiliate_id
			WHERE c2.batch_id IS NULL AND c2.status IN ('PENDING', 'APPROVED')
			  AND p2.kyc_status = 'APPROVED' AND p2.provider_ref <> ''
			GROUP BY c2.affiliate_id
			HAVING SUM(c2.amount) >= $1
			ORDER BY MIN(c2.earned_at) ASC
			LIMIT $2
		  )
		ORDER BY p.affiliate_id, c.earned_at ASC
	`, minPayout, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to select batch candidates", err)
	}
	defer rows.Close()

	candidates := []*model.BatchCandidate{}
	var current *model.BatchCandidate
	for rows.Next() {
		p := model.Payee{}
		c := model.Commission{}
		err = rows.Scan(
			&p.PayeeAccountID, &p.AffiliateID, &p.Name, &p.ProviderRef, &p.KYCStatus, &p.PendingBalance, &p.PaidBalance, &p.Currency,
			&c.CommissionID, &c.Amount, &c.Currency, &c.Status, &c.EarnedAt, &c.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan batch candidate", err)
		}
		c.AffiliateID = p.AffiliateID

		if current == nil || current.Payee.AffiliateID != p.AffiliateID {
			current = &model.BatchCandidate{Payee: &p, Currency: p.Currency}
			candidates = append(candidates, current)
		}
		current.Commissions = append(current.Commissions, &c)
		current.Total += c.Amount
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over batch candidates", err)
	}

	return candidates, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommission(row rowScanner) (*model.Commission, error) {
	cms := &model.Commission{}
	var metaDataJSON []byte
	var paidAt sql.NullTime
	err := row.Scan(&cms.CommissionID, &cms.AffiliateID, &cms.Amount, &cms.Currency, &cms.Status, &cms.BatchID, &cms.EarnedAt, &paidAt, &cms.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Commission not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve commission", err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		cms.PaidAt = &t
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &cms.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return cms, nil
}
