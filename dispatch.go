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
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/internal/notification"
	"github.com/paygrid/disburse/internal/search"
	"github.com/paygrid/disburse/model"
	"github.com/paygrid/disburse/provider"
)

// DispatchTransaction submits one transaction to the payout provider. The
// guarded PENDING -> PROCESSING update is the claim: whichever worker wins it
// performs the single submit attempt, everyone else no-ops. The submit itself
// is never retried in place; transient failures re-arm the row and the
// backoff schedule decides when the next attempt runs.
func (d *Disburse) DispatchTransaction(ctx context.Context, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Dispatching transaction")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	txn, err := d.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		if apierror.IsNotFound(err) {
			logrus.WithField("transaction_id", transactionID).Warn("Queued payout no longer exists")
			return nil
		}
		return err
	}

	// a delayed task may fire for a row already at the ceiling; the ceiling
	// holds here too, not only in the sweep
	if txn.Status == model.StatusPending && txn.RetryCount >= conf.Payout.MaxRetries {
		_, err := d.failRetryExhausted(ctx, txn)
		return err
	}

	claimed, err := d.datasource.MarkTransactionProcessing(ctx, txn.TransactionID, "")
	if err != nil {
		return err
	}
	if !claimed {
		// cancelled, already terminal, or a concurrent worker won the claim
		return nil
	}

	result, err := d.provider.SubmitPayment(ctx, &provider.PaymentRequest{
		IdempotencyKey: txn.IdempotencyKey,
		PayeeRef:       txn.PayeeRef,
		Amount:         model.ProviderAmount(txn.Amount, conf.Provider.MinorUnits, conf.Provider.Decimals),
		Currency:       txn.Currency,
		Reference:      txn.TransactionID,
	})
	if err != nil {
		return d.handleSubmitError(ctx, conf, txn, err)
	}

	if result.ProviderTxnID != "" {
		if err := d.datasource.AttachProviderTxnID(ctx, txn.TransactionID, result.ProviderTxnID); err != nil {
			notification.NotifyError(err)
		}
	}

	switch result.Status {
	case provider.StatusCompleted:
		applied, err := d.datasource.ApplyTransactionCompleted(ctx, txn.TransactionID, model.ActorScheduler)
		if err != nil {
			return err
		}
		if applied {
			d.announceTransaction(ctx, txn.TransactionID)
			d.maybeCompleteBatch(ctx, txn.BatchID)
		}
	case provider.StatusFailed:
		applied, err := d.datasource.ApplyTransactionFailed(ctx, txn.TransactionID, model.StatusProcessing, "rejected by provider", model.ActorScheduler)
		if err != nil {
			return err
		}
		if applied {
			d.announceTransaction(ctx, txn.TransactionID)
			d.maybeCompleteBatch(ctx, txn.BatchID)
		}
	default:
		// accepted; the webhook reconciler finishes the job
	}
	return nil
}

// handleSubmitError sorts a failed submit into the three possible outcomes:
// permanent rejection terminates the transaction, a retryable rejection
// re-arms it with backoff, and an ambiguous transport failure leaves it
// PROCESSING because the provider may have accepted the payment. In the
// ambiguous case the webhook reconciler or the stale-processing sweep settles
// it; the stable idempotency key is what makes an eventual resubmission safe.
func (d *Disburse) handleSubmitError(ctx context.Context, conf *config.Configuration, txn *model.DisbursementTransaction, submitErr error) error {
	var pErr *provider.Error
	if !errors.As(submitErr, &pErr) {
		logrus.WithError(submitErr).WithField("transaction_id", txn.TransactionID).
			Warn("Ambiguous submit failure, leaving transaction in PROCESSING for reconciliation")
		return nil
	}

	if !pErr.Retryable {
		applied, err := d.datasource.ApplyTransactionFailed(ctx, txn.TransactionID, model.StatusProcessing, pErr.Message, model.ActorScheduler)
		if err != nil {
			return err
		}
		if applied {
			d.announceTransaction(ctx, txn.TransactionID)
			d.maybeCompleteBatch(ctx, txn.BatchID)
		}
		return nil
	}

	rearmed, err := d.datasource.RearmTransaction(ctx, txn.TransactionID, model.StatusProcessing, pErr.Message)
	if err != nil {
		return err
	}
	if !rearmed {
		return nil
	}
	txn.RetryCount++
	if txn.RetryCount >= conf.Payout.MaxRetries {
		// no attempts left; park it now instead of scheduling one past the
		// ceiling and waiting for the sweep to notice
		_, err := d.failRetryExhausted(ctx, txn)
		return err
	}
	base := time.Duration(conf.Payout.RetryBaseDelaySec) * time.Second
	max := time.Duration(conf.Payout.RetryMaxDelaySec) * time.Second
	delay := model.RetryDelay(txn.RetryCount, base, max)
	if err := d.queue.EnqueuePayout(ctx, txn, delay); err != nil {
		// the retry sweep re-queues anything left behind
		logrus.WithError(err).WithField("transaction_id", txn.TransactionID).Error("Failed to enqueue retry")
	}
	return nil
}

// failRetryExhausted terminates a PENDING transaction that crossed the retry
// ceiling and flags it for manual review. The guarded update keeps a
// concurrent sweep and dispatcher from both applying it.
func (d *Disburse) failRetryExhausted(ctx context.Context, txn *model.DisbursementTransaction) (bool, error) {
	applied, err := d.datasource.ApplyTransactionFailed(ctx, txn.TransactionID, model.StatusPending, "retry limit reached, flagged for manual review", model.ActorScheduler)
	if err != nil {
		return false, err
	}
	if applied {
		notification.NotifyRetryExhausted(txn.TransactionID, txn.PayeeRef, txn.Amount, txn.Currency)
		d.announceTransaction(ctx, txn.TransactionID)
		d.maybeCompleteBatch(ctx, txn.BatchID)
	}
	return applied, nil
}

// RunRetrySweep re-queues PENDING transactions whose backoff has elapsed and
// terminates the ones that crossed the retry ceiling, flagging them for
// manual review.
func (d *Disburse) RunRetrySweep(ctx context.Context, summary *RunSummary) error {
	ctx, span := tracer.Start(ctx, "Running retry sweep")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	base := time.Duration(conf.Payout.RetryBaseDelaySec) * time.Second
	max := time.Duration(conf.Payout.RetryMaxDelaySec) * time.Second

	due, err := d.datasource.GetDueRetries(ctx, conf.Payout.MaxRetries, base, max, conf.Payout.BatchLimit)
	if err != nil {
		return err
	}
	for _, txn := range due {
		if err := d.queue.EnqueuePayout(ctx, txn, 0); err != nil {
			notification.NotifyError(err)
			continue
		}
		summary.RetriesQueued++
	}

	exhausted, err := d.datasource.GetExhaustedRetries(ctx, conf.Payout.MaxRetries, conf.Payout.BatchLimit)
	if err != nil {
		return err
	}
	for _, txn := range exhausted {
		applied, err := d.failRetryExhausted(ctx, txn)
		if err != nil {
			notification.NotifyError(err)
			continue
		}
		if applied {
			summary.RetriesExhausted++
		}
	}
	return nil
}

// announceTransaction pushes the transaction's new state to the operator
// webhook and the search index. Best effort on both counts.
func (d *Disburse) announceTransaction(ctx context.Context, transactionID string) {
	txn, err := d.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	if err := SendWebhook(NewWebhook{Event: getEventFromStatus(txn.Status), Payload: txn}); err != nil {
		logrus.WithError(err).Error("Failed to enqueue transaction webhook")
	}
	if err := d.queue.queueIndexData(txn.TransactionID, search.CollectionTransactions, txn); err != nil {
		notification.NotifyError(err)
	}
}
