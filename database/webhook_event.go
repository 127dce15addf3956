package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/model"
)

// InsertWebhookEvent durably records an inbound provider event. The unique
// constraint on provider_event_id is the primary defense against duplicate
// processing: a replayed delivery hits ON CONFLICT DO NOTHING and returns
// false, and the caller acknowledges without reprocessing.
func (d Datasource) InsertWebhookEvent(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	ctx, span := otel.Tracer("disburse.database").Start(ctx, "Recording webhook event")
	defer span.End()

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal payload", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO disburse.webhook_events(event_id,provider_event_id,event_type,provider_txn_id,payload,received_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (provider_event_id) DO NOTHING
	`, event.EventID, event.ProviderEventID, event.EventType, event.ProviderTxnID, payloadJSON, event.ReceivedAt)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record webhook event", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rows > 0, nil
}

func (d Datasource) GetWebhookEvent(ctx context.Context, providerEventID string) (*model.WebhookEvent, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT event_id, provider_event_id, event_type, COALESCE(provider_txn_id, ''), payload, received_at, processed_at, COALESCE(transaction_id, '')
		FROM disburse.webhook_events
		WHERE provider_event_id = $1
	`, providerEventID)

	return scanWebhookEvent(row, providerEventID)
}

func (d Datasource) ResolveWebhookEvent(ctx context.Context, eventID, transactionID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE disburse.webhook_events
		SET transaction_id = $2
		WHERE event_id = $1
	`, eventID, transactionID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to resolve webhook event", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook event '%s' not found", eventID), nil)
	}
	return nil
}

func (d Datasource) MarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE disburse.webhook_events
		SET processed_at = NOW()
		WHERE event_id = $1 AND processed_at IS NULL
	`, eventID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark webhook event processed", err)
	}
	return nil
}

// GetUnresolvedWebhookEvents returns events that could not yet be matched to
// a local transaction, e.g. a webhook that raced ahead of the dispatcher's
// PROCESSING write. They are re-resolved on a delay instead of dropped.
func (d Datasource) GetUnresolvedWebhookEvents(ctx context.Context, olderThan time.Duration, limit int) ([]*model.WebhookEvent, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, provider_event_id, event_type, COALESCE(provider_txn_id, ''), payload, received_at, processed_at, COALESCE(transaction_id, '')
		FROM disburse.webhook_events
		WHERE processed_at IS NULL
		  AND transaction_id IS NULL
		  AND provider_txn_id IS NOT NULL
		  AND received_at <= NOW() - $1 * INTERVAL '1 second'
		ORDER BY received_at ASC
		LIMIT $2
	`, int64(olderThan.Seconds()), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unresolved webhook events", err)
	}
	defer rows.Close()

	events := []*model.WebhookEvent{}
	for rows.Next() {
		event, err := scanWebhookEvent(rows, "")
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over webhook events", err)
	}
	return events, nil
}

func scanWebhookEvent(row rowScanner, ref string) (*model.WebhookEvent, error) {
	event := &model.WebhookEvent{}
	var payloadJSON []byte
	var processedAt sql.NullTime
	err := row.Scan(&event.EventID, &event.ProviderEventID, &event.EventType, &event.ProviderTxnID, &payloadJSON, &event.ReceivedAt, &processedAt, &event.TransactionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook event '%s' not found", ref), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve webhook event", err)
	}
	if processedAt.Valid {
		t := processedAt.Time
		event.ProcessedAt = &t
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &event.Payload); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal payload", err)
		}
	}
	return event, nil
}
