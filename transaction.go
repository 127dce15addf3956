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
	"strings"

	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/model"
)

// GetTransaction retrieves a disbursement transaction by its id.
func (d *Disburse) GetTransaction(ctx context.Context, id string) (*model.DisbursementTransaction, error) {
	return d.datasource.GetTransaction(ctx, id)
}

// GetTransactionsByStatus retrieves a paginated, optionally status-filtered
// transaction listing.
func (d *Disburse) GetTransactionsByStatus(ctx context.Context, status string, limit, offset int) ([]*model.DisbursementTransaction, error) {
	if status != "" {
		status = strings.ToUpper(status)
		switch status {
		case model.StatusPending, model.StatusProcessing, model.StatusCompleted, model.StatusFailed, model.StatusCancelled:
		default:
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown transaction status '%s'", status), nil)
		}
	}
	return d.datasource.GetTransactionsByStatus(ctx, status, limit, offset)
}

// GetAllTransactions retrieves a paginated listing across all batches.
func (d *Disburse) GetAllTransactions(ctx context.Context, limit, offset int) ([]*model.DisbursementTransaction, error) {
	return d.datasource.GetAllTransactions(ctx, limit, offset)
}

// CancelTransaction is the operator cancel. The guarded transition refuses
// terminal rows; cancelling one is reported as a conflict rather than
// silently ignored, since the operator needs to know the money already moved
// or failed.
func (d *Disburse) CancelTransaction(ctx context.Context, id string) (*model.DisbursementTransaction, error) {
	ctx, span := tracer.Start(ctx, "Cancelling transaction")
	defer span.End()

	applied, err := d.datasource.CancelTransaction(ctx, id, model.ActorOperator)
	if err != nil {
		return nil, err
	}
	txn, err := d.datasource.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is already %s", id, strings.ToLower(txn.Status)), nil)
	}

	d.announceTransaction(ctx, txn.TransactionID)
	d.maybeCompleteBatch(ctx, txn.BatchID)
	return txn, nil
}

// GetAuditLogs retrieves audit entries for compliance reporting, filtered by
// transaction or batch.
func (d *Disburse) GetAuditLogs(ctx context.Context, transactionID, batchID string, limit, offset int) ([]*model.AuditLogEntry, error) {
	return d.datasource.GetAuditLogs(ctx, transactionID, batchID, limit, offset)
}
