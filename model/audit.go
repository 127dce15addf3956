package model

import (
	"time"
)

// Audit actors.
const (
	ActorOrchestrator = "batch_orchestrator"
	ActorScheduler    = "retry_scheduler"
	ActorReconciler   = "webhook_reconciler"
	ActorOperator     = "operator"
)

// Audit actions.
const (
	AuditBatchCreated      = "batch.created"
	AuditTransactionState  = "transaction.state_changed"
	AuditCommissionClaimed = "commission.claimed"
	AuditCommissionPaid    = "commission.paid"
	AuditBalanceMoved      = "balance.moved"
)

// AuditLogEntry is one append-only record of a balance-affecting mutation.
// Entries are never updated or deleted; they exist for compliance reporting
// and for reconstructing why a balance changed, not as authoritative state.
type AuditLogEntry struct {
	ID            int64                  `json:"-"`
	AuditLogID    string                 `json:"audit_log_id"`
	Actor         string                 `json:"actor"`
	Action        string                 `json:"action"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	BatchID       string                 `json:"batch_id,omitempty"`
	BeforeState   string                 `json:"before_state,omitempty"`
	AfterState    string                 `json:"after_state,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
