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
	"fmt"
	"time"

	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/internal/notification"
	"github.com/paygrid/disburse/internal/search"
	"github.com/paygrid/disburse/model"
)

// RecordCommission ingests a commission from the upstream calculator. The
// engine never computes commission amounts; it validates, assigns an id, and
// records the row together with the payee's pending-balance bump in one
// database transaction.
func (d *Disburse) RecordCommission(ctx context.Context, cms *model.Commission) (*model.Commission, error) {
	ctx, span := tracer.Start(ctx, "Recording commission")
	defer span.End()

	if err := validateCommission(cms); err != nil {
		return nil, err
	}

	// aggregation sums commissions per payee, so a commission in a currency
	// other than the payee's would corrupt the balance; reject it up front
	payee, err := d.datasource.GetPayeeByAffiliate(ctx, cms.AffiliateID)
	if err != nil {
		return nil, err
	}
	if cms.Currency != payee.Currency {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("Commission currency '%s' does not match payee currency '%s'", cms.Currency, payee.Currency), nil)
	}

	cms.CommissionID = model.GenerateUUIDWithSuffix("cms")
	if cms.Status == "" {
		cms.Status = model.CommissionStatusPending
	}
	if cms.EarnedAt.IsZero() {
		cms.EarnedAt = time.Now()
	}
	cms.CreatedAt = time.Now()

	recorded, err := d.datasource.RecordCommission(ctx, cms)
	if err != nil {
		return nil, err
	}

	if err := d.queue.queueIndexData(recorded.CommissionID, search.CollectionCommissions, recorded); err != nil {
		notification.NotifyError(err)
	}
	return recorded, nil
}

// GetCommission retrieves a commission by its id.
func (d *Disburse) GetCommission(ctx context.Context, id string) (*model.Commission, error) {
	return d.datasource.GetCommission(ctx, id)
}

// GetAllCommissions retrieves a paginated commission listing.
func (d *Disburse) GetAllCommissions(ctx context.Context, limit, offset int) ([]*model.Commission, error) {
	return d.datasource.GetAllCommissions(ctx, limit, offset)
}

// GetCommissionsByBatch retrieves the commissions claimed into a batch.
func (d *Disburse) GetCommissionsByBatch(ctx context.Context, batchID string) ([]*model.Commission, error) {
	return d.datasource.GetCommissionsByBatch(ctx, batchID)
}

func validateCommission(cms *model.Commission) error {
	if cms.AffiliateID == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Affiliate ID is required", nil)
	}
	if cms.Amount <= 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Commission amount must be positive", nil)
	}
	if cms.Currency == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Currency is required", nil)
	}
	if cms.Status != "" && cms.Status != model.CommissionStatusPending && cms.Status != model.CommissionStatusApproved {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Commissions can only be recorded as PENDING or APPROVED", nil)
	}
	return nil
}
