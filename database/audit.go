package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paygrid/disburse/internal/apierror"
	"github.com/paygrid/disburse/model"
)

// RecordAuditLog appends one audit ledger entry. There is deliberately no
// update or delete counterpart; the ledger is insert-only.
func (d Datasource) RecordAuditLog(ctx context.Context, entry *model.AuditLogEntry) error {
	if entry.AuditLogID == "" {
		entry.AuditLogID = model.GenerateUUIDWithSuffix("aud")
	}
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal audit details", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO disburse.audit_logs(audit_log_id,actor,action,transaction_id,batch_id,before_state,after_state,details,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.AuditLogID, entry.Actor, entry.Action, entry.TransactionID, entry.BatchID, entry.BeforeState, entry.AfterState, detailsJSON, entry.CreatedAt,
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append audit entry", err)
	}
	return nil
}

func (d Datasource) GetAuditLogs(ctx context.Context, transactionID, batchID string, limit, offset int) ([]*model.AuditLogEntry, error) {
	query := `
		SELECT audit_log_id, actor, action, COALESCE(transaction_id, ''), COALESCE(batch_id, ''), COALESCE(before_state, ''), COALESCE(after_state, ''), details, created_at
		FROM disburse.audit_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1
	if transactionID != "" {
		query += ` AND transaction_id = $1`
		args = append(args, transactionID)
		argIndex++
	}
	if batchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIndex)
		args = append(args, batchID)
		argIndex++
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC LIMIT $%d OFFSET $%d`, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve audit logs", err)
	}
	defer rows.Close()

	entries := []*model.AuditLogEntry{}
	for rows.Next() {
		entry := &model.AuditLogEntry{}
		var detailsJSON []byte
		err = rows.Scan(&entry.AuditLogID, &entry.Actor, &entry.Action, &entry.TransactionID, &entry.BatchID, &entry.BeforeState, &entry.AfterState, &detailsJSON, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan audit entry", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal audit details", err)
			}
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over audit logs", err)
	}
	return entries, nil
}
