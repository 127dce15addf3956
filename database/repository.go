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

package database

import (
	"context"
	"time"

	"github.com/paygrid/disburse/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	commission   // Commission ingestion and eligibility reads
	payee        // Payee account and balance operations
	batch        // Payment batch creation and reads
	transaction  // Disbursement transaction lifecycle operations
	webhookEvent // Inbound provider event storage
	auditLog     // Append-only audit ledger
}

// commission defines methods for handling commissions.
type commission interface {
	RecordCommission(ctx context.Context, cms *model.Commission) (*model.Commission, error)        // Records a commission and bumps the payee's pending balance atomically
	GetCommission(ctx context.Context, id string) (*model.Commission, error)                       // Retrieves a commission by ID
	GetCommissionsByBatch(ctx context.Context, batchID string) ([]*model.Commission, error)        // Retrieves the commissions claimed into a batch
	GetBatchCandidates(ctx context.Context, minPayout int64, limit int) ([]*model.BatchCandidate, error) // Read-only eligibility pass
	GetAllCommissions(ctx context.Context, limit, offset int) ([]*model.Commission, error)         // Paginated commission listing, used by search reindexing
}

// payee defines methods for handling payee accounts.
type payee interface {
	CreatePayee(ctx context.Context, p *model.Payee) (*model.Payee, error)            // Registers a payee account
	GetPayee(ctx context.Context, id string) (*model.Payee, error)                    // Retrieves a payee by account ID
	GetPayeeByAffiliate(ctx context.Context, affiliateID string) (*model.Payee, error) // Retrieves a payee by affiliate ID
	UpdatePayeeKYCStatus(ctx context.Context, affiliateID, status string) error       // Mirrors the provider's KYC verdict locally
	GetAllPayees(ctx context.Context, limit, offset int) ([]*model.Payee, error)      // Paginated payee listing, used by search reindexing
}

// batch defines methods for handling payment batches.
type batch interface {
	CreateBatchWithTransactions(ctx context.Context, b *model.PaymentBatch, txns []*model.DisbursementTransaction) error // Atomic claim: batch row, transaction rows, commission attachment
	GetBatch(ctx context.Context, id string) (*model.PaymentBatch, error)                                               // Retrieves a batch with its derived status
	GetAllBatches(ctx context.Context, limit, offset int) ([]*model.PaymentBatch, error)                                // Paginated batch listing
	MarkBatchCompleted(ctx context.Context, id string, completedAt time.Time) error                                     // Stamps completed_at once all children are terminal
}

// transaction defines methods for handling disbursement transactions. Status
// mutations are conditional updates guarded by the expected current status;
// a false return means the row was not in that status and nothing changed.
type transaction interface {
	GetTransaction(ctx context.Context, id string) (*model.DisbursementTransaction, error)                         // Retrieves a transaction by ID
	GetTransactionByProviderTxnID(ctx context.Context, providerTxnID string) (*model.DisbursementTransaction, error) // Resolves a provider event to a transaction
	GetTransactionsByStatus(ctx context.Context, status string, limit, offset int) ([]*model.DisbursementTransaction, error) // Paginated status-filtered listing
	GetAllTransactions(ctx context.Context, limit, offset int) ([]*model.DisbursementTransaction, error)           // Paginated transaction listing, used by search reindexing
	GetBatchTransactions(ctx context.Context, batchID string) ([]*model.DisbursementTransaction, error)            // All transactions of one batch
	GetBatchTransactionCounts(ctx context.Context, batchID string) (total int, terminal int, err error)            // Inputs to the derived batch status
	GetDueRetries(ctx context.Context, maxRetries int, baseDelay, maxDelay time.Duration, limit int) ([]*model.DisbursementTransaction, error) // PENDING rows whose backoff has elapsed
	GetExhaustedRetries(ctx context.Context, maxRetries, limit int) ([]*model.DisbursementTransaction, error)      // PENDING rows past the retry ceiling
	MarkTransactionProcessing(ctx context.Context, id, providerTxnID string) (bool, error)                         // PENDING -> PROCESSING with provider txn id
	AttachProviderTxnID(ctx context.Context, id, providerTxnID string) error                                       // Records the provider's id once the submit call returns
	RearmTransaction(ctx context.Context, id, fromStatus, errMsg string) (bool, error)                             // -> PENDING with retry_count+1 and last_retry_at
	ApplyTransactionCompleted(ctx context.Context, id, actor string) (bool, error)                                 // PROCESSING -> COMPLETED + commission PAID + balance move + audit, one tx
	ApplyTransactionFailed(ctx context.Context, id, fromStatus, reason, actor string) (bool, error)                // -> FAILED, commission released for re-batching, audit
	CancelTransaction(ctx context.Context, id, actor string) (bool, error)                                         // non-terminal -> CANCELLED, commission released, audit
}

// webhookEvent defines methods for handling inbound provider events.
type webhookEvent interface {
	InsertWebhookEvent(ctx context.Context, event *model.WebhookEvent) (bool, error)   // Durable insert; false when provider_event_id already exists
	GetWebhookEvent(ctx context.Context, providerEventID string) (*model.WebhookEvent, error) // Retrieves an event by provider event ID
	ResolveWebhookEvent(ctx context.Context, eventID, transactionID string) error      // Attaches a resolved transaction to an event
	MarkWebhookEventProcessed(ctx context.Context, eventID string) error               // Stamps processed_at
	GetUnresolvedWebhookEvents(ctx context.Context, olderThan time.Duration, limit int) ([]*model.WebhookEvent, error) // Events still awaiting resolution
}

// auditLog defines methods for the append-only audit ledger.
type auditLog interface {
	RecordAuditLog(ctx context.Context, entry *model.AuditLogEntry) error                                  // Appends one entry; entries are never updated or deleted
	GetAuditLogs(ctx context.Context, transactionID, batchID string, limit, offset int) ([]*model.AuditLogEntry, error) // Paginated audit reads for compliance reporting
}
