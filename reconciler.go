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
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/internal/notification"
	"github.com/paygrid/disburse/model"
	"github.com/paygrid/disburse/provider"
)

// providerEvent is the wire shape of an inbound provider notification.
type providerEvent struct {
	ID   string            `json:"id"`
	Type string            `json:"type"`
	Data providerEventData `json:"data"`
}

type providerEventData struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

// ProcessProviderEvent is the webhook reconciler's entry point. It durably
// records the event first; only a recorded event is ever acknowledged. The
// unique provider event id makes a replayed delivery a recorded no-op. The
// state transition itself is best effort here: if it cannot be applied yet
// the event stays unprocessed and the unresolved-event sweep finishes it.
func (d *Disburse) ProcessProviderEvent(ctx context.Context, body []byte) (*model.WebhookEvent, error) {
	ctx, span := tracer.Start(ctx, "Reconciling provider event")
	defer span.End()

	var incoming providerEvent
	if err := json.Unmarshal(body, &incoming); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Malformed provider event payload", err)
	}
	if incoming.ID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Provider event is missing an id", nil)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Malformed provider event payload", err)
	}

	event := &model.WebhookEvent{
		EventID:         model.GenerateUUIDWithSuffix("evt"),
		ProviderEventID: incoming.ID,
		EventType:       model.NormalizeEventType(incoming.Type),
		ProviderTxnID:   incoming.Data.TransactionID,
		Payload:         payload,
		ReceivedAt:      time.Now(),
	}

	inserted, err := d.datasource.InsertWebhookEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		logrus.WithField("provider_event_id", incoming.ID).Info("Duplicate provider event, acknowledging without reprocessing")
		return event, nil
	}

	if _, err := d.applyProviderEvent(ctx, event, incoming.Data.Reason); err != nil {
		notification.NotifyError(err)
	}
	return event, nil
}

// applyProviderEvent resolves an event to its transaction and applies the
// guarded transition it calls for. Returns false when the event could not be
// settled yet, which leaves it for the unresolved-event sweep. An illegal
// transition is treated as a duplicate or out-of-order delivery and settles
// the event without changing anything.
func (d *Disburse) applyProviderEvent(ctx context.Context, event *model.WebhookEvent, reason string) (bool, error) {
	target, moves := model.TargetStatus(event.EventType)
	if !moves {
		// account.updated and unknown types never move the state machine
		if err := d.datasource.MarkWebhookEventProcessed(ctx, event.EventID); err != nil {
			return false, err
		}
		return true, nil
	}

	if event.ProviderTxnID == "" {
		// can never be resolved; settle it so the sweep stays clean
		logrus.WithField("provider_event_id", event.ProviderEventID).Warn("Payment event carries no provider transaction id")
		if err := d.datasource.MarkWebhookEventProcessed(ctx, event.EventID); err != nil {
			return false, err
		}
		return true, nil
	}

	txn, err := d.datasource.GetTransactionByProviderTxnID(ctx, event.ProviderTxnID)
	if err != nil {
		if apierror.IsNotFound(err) {
			// likely raced ahead of the dispatcher's provider id write;
			// re-resolved after a delay instead of dropped
			logrus.WithField("provider_event_id", event.ProviderEventID).Info("Provider event does not match any transaction yet")
			return false, nil
		}
		return false, err
	}

	if err := d.datasource.ResolveWebhookEvent(ctx, event.EventID, txn.TransactionID); err != nil {
		return false, err
	}
	if err := d.transitionFromEvent(ctx, txn, target, event.ProviderTxnID, reason); err != nil {
		return false, err
	}
	if err := d.datasource.MarkWebhookEventProcessed(ctx, event.EventID); err != nil {
		return false, err
	}
	return true, nil
}

// transitionFromEvent applies the guarded transition an event calls for. A
// refused guard means the row was not in the expected state, which under
// at-least-once delivery is a duplicate or out-of-order event, and the
// correct response is to do nothing.
func (d *Disburse) transitionFromEvent(ctx context.Context, txn *model.DisbursementTransaction, target, providerTxnID, reason string) error {
	var applied bool
	var err error

	switch target {
	case model.StatusCompleted:
		applied, err = d.datasource.ApplyTransactionCompleted(ctx, txn.TransactionID, model.ActorReconciler)
	case model.StatusFailed:
		if reason == "" {
			reason = "payment failed at provider"
		}
		applied, err = d.datasource.ApplyTransactionFailed(ctx, txn.TransactionID, model.StatusProcessing, reason, model.ActorReconciler)
	case model.StatusProcessing:
		// payment.pending only confirms the provider has the payment
		_, err = d.datasource.MarkTransactionProcessing(ctx, txn.TransactionID, providerTxnID)
		return err
	}
	if err != nil {
		return err
	}
	if !applied {
		logrus.WithFields(logrus.Fields{
			"transaction_id": txn.TransactionID,
			"target":         target,
		}).Info("Transition refused by guard, treating event as duplicate")
		return nil
	}

	d.announceTransaction(ctx, txn.TransactionID)
	d.maybeCompleteBatch(ctx, txn.BatchID)
	return nil
}

// ResolveUnmatchedEvents retries events that arrived before their
// transaction carried a provider id. Waiting out the configured delay gives
// the dispatcher time to land its write.
func (d *Disburse) ResolveUnmatchedEvents(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Resolving unmatched provider events")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}

	wait := time.Duration(conf.Payout.UnresolvedEventWaitSec) * time.Second
	events, err := d.datasource.GetUnresolvedWebhookEvents(ctx, wait, conf.Payout.BatchLimit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, event := range events {
		settled, err := d.applyProviderEvent(ctx, event, eventReason(event.Payload))
		if err != nil {
			notification.NotifyError(err)
			continue
		}
		if settled {
			resolved++
		}
	}
	return resolved, nil
}

// ReconcileStaleProcessing polls the provider for transactions that have sat
// in PROCESSING past the unresolved-event wait with no webhook verdict. The
// poll is the fallback path for lost webhooks; it applies the same guarded
// transitions the reconciler does.
func (d *Disburse) ReconcileStaleProcessing(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Reconciling stale processing transactions")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	wait := time.Duration(conf.Payout.UnresolvedEventWaitSec) * time.Second

	txns, err := d.datasource.GetTransactionsByStatus(ctx, model.StatusProcessing, conf.Payout.BatchLimit, 0)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, txn := range txns {
		if txn.ProviderTxnID == "" {
			continue
		}
		age := time.Since(txn.CreatedAt)
		if txn.LastRetryAt != nil {
			age = time.Since(*txn.LastRetryAt)
		}
		if age < wait {
			continue
		}

		result, err := d.provider.GetPaymentStatus(ctx, txn.ProviderTxnID)
		if err != nil {
			logrus.WithError(err).WithField("transaction_id", txn.TransactionID).Warn("Status poll failed")
			continue
		}

		switch result.Status {
		case provider.StatusCompleted:
			applied, err := d.datasource.ApplyTransactionCompleted(ctx, txn.TransactionID, model.ActorReconciler)
			if err != nil {
				notification.NotifyError(err)
				continue
			}
			if applied {
				settled++
				d.announceTransaction(ctx, txn.TransactionID)
				d.maybeCompleteBatch(ctx, txn.BatchID)
			}
		case provider.StatusFailed:
			applied, err := d.datasource.ApplyTransactionFailed(ctx, txn.TransactionID, model.StatusProcessing, "payment failed at provider", model.ActorReconciler)
			if err != nil {
				notification.NotifyError(err)
				continue
			}
			if applied {
				settled++
				d.announceTransaction(ctx, txn.TransactionID)
				d.maybeCompleteBatch(ctx, txn.BatchID)
			}
		}
	}
	return settled, nil
}

// eventReason digs the failure reason out of a stored event payload.
func eventReason(payload map[string]interface{}) string {
	data, ok := payload["data"].(map[string]interface{})
	if !ok {
		return ""
	}
	reason, _ := data["reason"].(string)
	return reason
}
