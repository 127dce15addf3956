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
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/internal/notification"
	"github.com/paygrid/disburse/internal/search"
	"github.com/paygrid/disburse/model"
)

// CreatePayee registers an affiliate's payout destination. KYC starts at
// PENDING; the provider owns the verification flow and the local status is
// refreshed from it.
func (d *Disburse) CreatePayee(ctx context.Context, payee *model.Payee) (*model.Payee, error) {
	ctx, span := tracer.Start(ctx, "Creating payee")
	defer span.End()

	if payee.AffiliateID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Affiliate ID is required", nil)
	}
	if payee.Name == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Payee name is required", nil)
	}
	if payee.Currency == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Currency is required", nil)
	}

	payee.PayeeAccountID = model.GenerateUUIDWithSuffix("pay")
	if payee.KYCStatus == "" {
		payee.KYCStatus = model.KYCStatusPending
	}
	payee.CreatedAt = time.Now()

	created, err := d.datasource.CreatePayee(ctx, payee)
	if err != nil {
		return nil, err
	}

	if err := d.queue.queueIndexData(created.PayeeAccountID, search.CollectionPayees, created); err != nil {
		notification.NotifyError(err)
	}
	return created, nil
}

// GetPayee retrieves a payee by its account id.
func (d *Disburse) GetPayee(ctx context.Context, id string) (*model.Payee, error) {
	return d.datasource.GetPayee(ctx, id)
}

// GetAllPayees retrieves a paginated payee listing.
func (d *Disburse) GetAllPayees(ctx context.Context, limit, offset int) ([]*model.Payee, error) {
	return d.datasource.GetAllPayees(ctx, limit, offset)
}

// GetPayeeByAffiliate retrieves a payee by its affiliate id.
func (d *Disburse) GetPayeeByAffiliate(ctx context.Context, affiliateID string) (*model.Payee, error) {
	return d.datasource.GetPayeeByAffiliate(ctx, affiliateID)
}

// RefreshPayeeKYC pulls the provider's current KYC verdict for a payee and
// mirrors it locally. The local status only gates batch eligibility; the
// provider remains the source of truth.
func (d *Disburse) RefreshPayeeKYC(ctx context.Context, affiliateID string) (*model.Payee, error) {
	ctx, span := tracer.Start(ctx, "Refreshing payee KYC")
	defer span.End()

	payee, err := d.datasource.GetPayeeByAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if payee.ProviderRef == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Payee has no provider reference", nil)
	}

	account, err := d.provider.GetAccountStatus(ctx, payee.ProviderRef)
	if err != nil {
		return nil, err
	}

	status := mapKYCStatus(account.KYCStatus)
	if status == "" {
		logrus.WithFields(logrus.Fields{
			"affiliate_id": affiliateID,
			"kyc_status":   account.KYCStatus,
		}).Warn("Provider returned an unrecognized KYC status, keeping local value")
		return payee, nil
	}

	if status != payee.KYCStatus {
		if err := d.datasource.UpdatePayeeKYCStatus(ctx, affiliateID, status); err != nil {
			return nil, err
		}
		payee.KYCStatus = status
		if err := d.queue.queueIndexData(payee.PayeeAccountID, search.CollectionPayees, payee); err != nil {
			notification.NotifyError(err)
		}
	}
	return payee, nil
}

func mapKYCStatus(providerStatus string) string {
	switch strings.ToUpper(providerStatus) {
	case model.KYCStatusPending, model.KYCStatusSubmitted, model.KYCStatusApproved, model.KYCStatusRejected, model.KYCStatusExpired:
		return strings.ToUpper(providerStatus)
	default:
		return ""
	}
}
