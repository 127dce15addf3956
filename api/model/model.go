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
package model

import (
	"time"

	"github.com/paygrid/disburse/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RecordCommission is the request body for ingesting a commission. Amounts
// arrive in minor units; the engine never computes them.
type RecordCommission struct {
	AffiliateID string                 `json:"affiliate_id"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Status      string                 `json:"status"`
	EarnedAt    time.Time              `json:"earned_at"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

// CreatePayee is the request body for registering a payout destination.
type CreatePayee struct {
	AffiliateID string                 `json:"affiliate_id"`
	Name        string                 `json:"name"`
	Email       string                 `json:"email"`
	ProviderRef string                 `json:"provider_ref"`
	Currency    string                 `json:"currency"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

func (r *RecordCommission) ValidateRecordCommission() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AffiliateID, validation.Required),
		validation.Field(&r.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Currency, validation.Required),
		validation.Field(&r.Status, validation.In(model.CommissionStatusPending, model.CommissionStatusApproved)),
	)
}

func (r *RecordCommission) ToCommission() *model.Commission {
	return &model.Commission{
		AffiliateID: r.AffiliateID,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Status:      r.Status,
		EarnedAt:    r.EarnedAt,
		MetaData:    r.MetaData,
	}
}

func (p *CreatePayee) ValidateCreatePayee() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.AffiliateID, validation.Required),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Currency, validation.Required),
	)
}

func (p *CreatePayee) ToPayee() *model.Payee {
	return &model.Payee{
		AffiliateID: p.AffiliateID,
		Name:        p.Name,
		Email:       p.Email,
		ProviderRef: p.ProviderRef,
		Currency:    p.Currency,
		MetaData:    p.MetaData,
	}
}
