package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/model"
)

func (d Datasource) CreatePayee(ctx context.Context, p *model.Payee) (*model.Payee, error) {
	metaDataJSON, err := json.Marshal(p.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO disburse.payees(payee_account_id,affiliate_id,name,email,provider_ref,kyc_status,pending_balance,paid_balance,currency,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.PayeeAccountID, p.AffiliateID, p.Name, p.Email, p.ProviderRef, p.KYCStatus, p.PendingBalance, p.PaidBalance, p.Currency, p.CreatedAt, metaDataJSON,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Payee for affiliate '%s' already exists", p.AffiliateID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create payee", err)
	}
	return p, nil
}

func (d Datasource) GetPayee(ctx context.Context, id string) (*model.Payee, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT payee_account_id, affiliate_id, name, COALESCE(email, ''), COALESCE(provider_ref, ''), kyc_status, pending_balance, paid_balance, currency, created_at, meta_data
		FROM disburse.payees
		WHERE payee_account_id = $1
	`, id)
	return scanPayee(row, id)
}

func (d Datasource) GetPayeeByAffiliate(ctx context.Context, affiliateID string) (*model.Payee, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT payee_account_id, affiliate_id, name, COALESCE(email, ''), COALESCE(provider_ref, ''), kyc_status, pending_balance, paid_balance, currency, created_at, meta_data
		FROM disburse.payees
		WHERE affiliate_id = $1
	`, affiliateID)
	return scanPayee(row, affiliateID)
}

// UpdatePayeeKYCStatus mirrors the provider's KYC verdict. The provider owns
// the KYC flow; locally the status only gates batch eligibility.
func (d Datasource) UpdatePayeeKYCStatus(ctx context.Context, affiliateID, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE disburse.payees
		SET kyc_status = $2
		WHERE affiliate_id = $1
	`, affiliateID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update KYC status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payee for affiliate '%s' not found", affiliateID), nil)
	}
	return nil
}

func (d Datasource) GetAllPayees(ctx context.Context, limit, offset int) ([]*model.Payee, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT payee_account_id, affiliate_id, name, COALESCE(email, ''), COALESCE(provider_ref, ''), kyc_status, pending_balance, paid_balance, currency, created_at, meta_data
		FROM disburse.payees
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payees", err)
	}
	defer rows.Close()

	payees := []*model.Payee{}
	for rows.Next() {
		p, err := scanPayee(rows, "")
		if err != nil {
			return nil, err
		}
		payees = append(payees, p)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over payees", err)
	}
	return payees, nil
}

func scanPayee(row rowScanner, ref string) (*model.Payee, error) {
	p := &model.Payee{}
	var metaDataJSON []byte
	err := row.Scan(&p.PayeeAccountID, &p.AffiliateID, &p.Name, &p.Email, &p.ProviderRef, &p.KYCStatus, &p.PendingBalance, &p.PaidBalance, &p.Currency, &p.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payee '%s' not found", ref), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payee", err)
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &p.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return p, nil
}
