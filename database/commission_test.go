package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var candidateColumns = []string{
	"payee_account_id", "affiliate_id", "name", "provider_ref", "kyc_status",
	"pending_balance", "paid_balance", "currency",
	"commission_id", "amount", "c_currency", "status", "earned_at", "created_at",
}

func TestGetBatchCandidates(t *testing.T) {
	d, mock := newTestDatasource(t)
	now := time.Now()

	rows := sqlmock.NewRows(candidateColumns).
		AddRow("pay_1", "aff_1", "Ada Eze", "acct_1", "APPROVED", int64(5000), int64(0), "USD",
			"cms_1", int64(3000), "USD", "PENDING", now, now).
		AddRow("pay_1", "aff_1", "Ada Eze", "acct_1", "APPROVED", int64(5000), int64(0), "USD",
			"cms_2", int64(2000), "USD", "APPROVED", now, now).
		AddRow("pay_2", "aff_2", "Bola Ayo", "acct_2", "APPROVED", int64(2500), int64(0), "USD",
			"cms_3", int64(2500), "USD", "PENDING", now, now)

	// the pick itself must screen on payee eligibility so an ineligible
	// affiliate never takes a limit slot away from an eligible one
	mock.ExpectQuery(`(?s)JOIN disburse.payees p2 ON p2.affiliate_id = c2.affiliate_id.+p2.kyc_status = 'APPROVED' AND p2.provider_ref <> ''`).
		WithArgs(int64(2500), 500).
		WillReturnRows(rows)

	candidates, err := d.GetBatchCandidates(context.Background(), 2500, 500)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "aff_1", candidates[0].Payee.AffiliateID)
	assert.Equal(t, int64(5000), candidates[0].Total)
	assert.Len(t, candidates[0].Commissions, 2)
	assert.Equal(t, "aff_2", candidates[1].Payee.AffiliateID)
	assert.Equal(t, int64(2500), candidates[1].Total)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestGetBatchCandidates_Empty(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectQuery("FROM disburse.payees p").
		WithArgs(int64(2500), 500).
		WillReturnRows(sqlmock.NewRows(candidateColumns))

	candidates, err := d.GetBatchCandidates(context.Background(), 2500, 500)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
