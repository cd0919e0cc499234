/*
audit.go - Append-only audit trail

PURPOSE:
  Every mutating operation across the workflow, realization, and ledger
  engines emits one audit entry. The trail is part of the invariant set:
  a failed audit write aborts the whole transaction. Entries are never
  read back to make decisions, never mutated, never deleted.
*/
package npd

import (
	"context"
	"time"
)

type AuditAction string

const (
	AuditCreated      AuditAction = "created"
	AuditUpdated      AuditAction = "updated"
	AuditDeleted      AuditAction = "deleted"
	AuditSubmitted    AuditAction = "submitted"
	AuditVerified     AuditAction = "verified"
	AuditRejected     AuditAction = "rejected"
	AuditFinalized    AuditAction = "finalized"
	AuditLocked       AuditAction = "locked"
	AuditUnlocked     AuditAction = "unlocked"
	AuditAutoUnlocked AuditAction = "auto_unlocked"
	AuditSoftDeleted  AuditAction = "soft_deleted"
	AuditRestored     AuditAction = "restored"
	AuditImported     AuditAction = "imported"
)

// AuditEntry is an immutable append-only record of one mutating action.
type AuditEntry struct {
	ID             string
	Action         AuditAction
	EntityTable    string // "npd_documents", "npd_lines", "sp2d_refs", "budget_nodes"
	EntityID       string
	ActorUserID    string
	OrganizationID OrgID
	EntityData     map[string]any // optional before/after snapshot
	CreatedAt      time.Time
}

type AuditFilter struct {
	OrganizationID OrgID
	EntityTable    string
	EntityID       string
	ActorUserID    string
	Actions        []AuditAction
	From           *time.Time
	To             *time.Time
	Limit          int
}

// AuditLog stores audit entries. Append-only: no update, no delete.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
