package model

import (
	"time"
)

// KYC statuses mirrored from the provider. Only APPROVED payees are eligible
// for batching.
const (
	KYCStatusPending   = "PENDING"
	KYCStatusSubmitted = "SUBMITTED"
	KYCStatusApproved  = "APPROVED"
	KYCStatusRejected  = "REJECTED"
	KYCStatusExpired   = "EXPIRED"
)

// Payee is an affiliate's registered payout destination at the provider,
// together with the affiliate's aggregate balances. PendingBalance tracks
// commissions in {PENDING, APPROVED}; PaidBalance tracks commissions the
// reconciler has marked PAID. Balances move only inside the same database
// transaction that flips the corresponding disbursement transaction.
type Payee struct {
	ID             int64                  `json:"-"`
	PayeeAccountID string                 `json:"payee_account_id"`
	AffiliateID    string                 `json:"affiliate_id"`
	Name           string                 `json:"name"`
	Email          string                 `json:"email"`
	ProviderRef    string                 `json:"provider_ref"`
	KYCStatus      string                 `json:"kyc_status"`
	PendingBalance int64                  `json:"pending_balance"`
	PaidBalance    int64                  `json:"paid_balance"`
	Currency       string                 `json:"currency"`
	CreatedAt      time.Time              `json:"created_at"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

// Eligible reports whether the payee may receive funds.
func (p *Payee) Eligible() bool {
	return p.KYCStatus == KYCStatusApproved && p.ProviderRef != ""
}
