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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/internal/apierror"
	redlock "github.com/paygrid/disburse/internal/lock"
	"github.com/paygrid/disburse/internal/notification"
	"github.com/paygrid/disburse/internal/search"
	"github.com/paygrid/disburse/model"
)

// runLockKey guards the scheduled trigger. The lock is advisory; correctness
// never depends on it, the conditional claim updates in the database do the
// real fencing. It only keeps two overlapping cron fires from doing the same
// work twice.
const runLockKey = "disburse:run-lock"

// RunSummary reports what one disbursement cycle did.
type RunSummary struct {
	BatchesCreated       int `json:"batches_created"`
	CandidatesSkipped    int `json:"candidates_skipped"`
	TransactionsQueued   int `json:"transactions_queued"`
	RetriesQueued        int `json:"retries_queued"`
	RetriesExhausted     int `json:"retries_exhausted"`
	EventsResolved       int `json:"events_resolved"`
	ProcessingReconciled int `json:"processing_reconciled"`
}

// RunDisbursementCycle is the scheduled trigger: eligibility pass, batch
// claims, dispatch enqueue, retry sweep, and the reconciliation sweeps, all
// under the advisory run lock. Safe to over-invoke; a cycle that finds
// nothing to do changes nothing.
func (d *Disburse) RunDisbursementCycle(ctx context.Context) (*RunSummary, error) {
	ctx, span := tracer.Start(ctx, "Running disbursement cycle")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(d.redis, runLockKey, model.GenerateUUIDWithSuffix("lock"))
	if err := locker.Lock(ctx, 10*time.Minute); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "A disbursement run is already in progress", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.WithError(err).Error("Failed to release run lock")
		}
	}()

	summary := &RunSummary{}
	if err := d.claimCandidates(ctx, conf, summary); err != nil {
		return summary, err
	}
	if err := d.RunRetrySweep(ctx, summary); err != nil {
		return summary, err
	}

	resolved, err := d.ResolveUnmatchedEvents(ctx)
	if err != nil {
		notification.NotifyError(err)
	}
	summary.EventsResolved = resolved

	reconciled, err := d.ReconcileStaleProcessing(ctx)
	if err != nil {
		notification.NotifyError(err)
	}
	summary.ProcessingReconciled = reconciled

	logrus.WithFields(logrus.Fields{
		"batches_created":    summary.BatchesCreated,
		"candidates_skipped": summary.CandidatesSkipped,
		"retries_queued":     summary.RetriesQueued,
	}).Info("Disbursement cycle finished")
	return summary, nil
}

// claimCandidates runs the eligibility pass and claims each candidate
// atomically. A conflict means a concurrent run got there first; the
// candidate is skipped and the cycle continues with the rest.
func (d *Disburse) claimCandidates(ctx context.Context, conf *config.Configuration, summary *RunSummary) error {
	candidates, err := d.datasource.GetBatchCandidates(ctx, conf.Payout.MinimumAmount, conf.Payout.BatchLimit)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		batch, txns := buildBatch(conf, candidate)
		if err := d.datasource.CreateBatchWithTransactions(ctx, batch, txns); err != nil {
			if apierror.IsConflict(err) {
				logrus.WithField("affiliate_id", candidate.Payee.AffiliateID).Info("Candidate already claimed by a concurrent run, skipping")
				summary.CandidatesSkipped++
				continue
			}
			return err
		}
		summary.BatchesCreated++

		if err := d.queue.queueIndexData(batch.BatchID, search.CollectionBatches, batch); err != nil {
			notification.NotifyError(err)
		}

		// dispatch is best effort; anything that fails to enqueue stays
		// PENDING and the next retry sweep picks it up
		for _, txn := range txns {
			if err := d.queue.EnqueuePayout(ctx, txn, 0); err != nil {
				notification.NotifyError(err)
				continue
			}
			summary.TransactionsQueued++
		}
	}
	return nil
}

// buildBatch turns one eligibility candidate into a batch row plus one
// PENDING transaction per commission, each with a fresh idempotency key.
func buildBatch(conf *config.Configuration, candidate *model.BatchCandidate) (*model.PaymentBatch, []*model.DisbursementTransaction) {
	now := time.Now()
	batch := &model.PaymentBatch{
		BatchID:          model.GenerateUUIDWithSuffix("bat"),
		Currency:         candidate.Currency,
		TotalAmount:      candidate.Total,
		TransactionCount: len(candidate.Commissions),
		CreatedAt:        now,
	}

	txns := make([]*model.DisbursementTransaction, 0, len(candidate.Commissions))
	for _, cms := range candidate.Commissions {
		txns = append(txns, &model.DisbursementTransaction{
			TransactionID:  model.GenerateUUIDWithSuffix("dtx"),
			BatchID:        batch.BatchID,
			CommissionID:   cms.CommissionID,
			IdempotencyKey: model.GenerateUUIDWithSuffix("idk"),
			Provider:       conf.Provider.Name,
			PayeeRef:       candidate.Payee.ProviderRef,
			Amount:         cms.Amount,
			ProviderAmount: model.ProviderAmount(cms.Amount, conf.Provider.MinorUnits, conf.Provider.Decimals).String(),
			Currency:       cms.Currency,
			Status:         model.StatusPending,
			CreatedAt:      now,
		})
	}
	return batch, txns
}

// GetBatch retrieves a batch with its derived status.
func (d *Disburse) GetBatch(ctx context.Context, id string) (*model.PaymentBatch, error) {
	return d.datasource.GetBatch(ctx, id)
}

// GetAllBatches retrieves a paginated batch listing.
func (d *Disburse) GetAllBatches(ctx context.Context, limit, offset int) ([]*model.PaymentBatch, error) {
	return d.datasource.GetAllBatches(ctx, limit, offset)
}

// GetBatchTransactions retrieves all transactions of one batch.
func (d *Disburse) GetBatchTransactions(ctx context.Context, batchID string) ([]*model.DisbursementTransaction, error) {
	return d.datasource.GetBatchTransactions(ctx, batchID)
}

// maybeCompleteBatch stamps completed_at and announces completion once every
// child transaction is terminal. Status stays derived; a racing duplicate
// announcement is harmless under the at-least-once delivery contract.
func (d *Disburse) maybeCompleteBatch(ctx context.Context, batchID string) {
	if batchID == "" {
		return
	}
	total, terminal, err := d.datasource.GetBatchTransactionCounts(ctx, batchID)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	if model.DeriveBatchStatus(total, terminal) != model.BatchStatusCompleted {
		return
	}
	if err := d.datasource.MarkBatchCompleted(ctx, batchID, time.Now()); err != nil {
		notification.NotifyError(err)
		return
	}
	batch, err := d.datasource.GetBatch(ctx, batchID)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	if err := SendWebhook(NewWebhook{Event: "batch.completed", Payload: batch}); err != nil {
		logrus.WithError(err).Error("Failed to enqueue batch.completed webhook")
	}
	if err := d.queue.queueIndexData(batchID, search.CollectionBatches, batch); err != nil {
		notification.NotifyError(err)
	}
}
