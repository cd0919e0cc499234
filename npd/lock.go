/*
lock.go - Advisory verification lock

PURPOSE:
  A time-boxed advisory lock serializes verification edits on one NPD.
  It is a soft hint, not transactional isolation: Verify and Finalize
  check it as a precondition (ConflictError when held by someone else),
  but data-layer atomicity comes from the store transaction, never from
  this lock.

EXPIRY:
  Locks carry a TTL (default 30 minutes). CleanupExpired force-unlocks
  anything past its expiry and writes an auto_unlocked audit entry; the
  api package runs it on a ticker at least once per TTL window.
*/
package npd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sipd/npd-tracker/auth"
)

const DefaultLockTTL = 30 * time.Minute

// Lock acquires the advisory lock on an NPD for the actor. Fails with
// ConflictError if another actor holds a live lock.
func (w *Workflow) Lock(ctx context.Context, actor auth.Actor, npdID DocumentID, reason string, ttl time.Duration) (*Document, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	var doc *Document
	err := w.Store.WithTx(ctx, func(s Store) error {
		var err error
		doc, err = w.loadDocument(ctx, s, actor, npdID)
		if err != nil {
			return err
		}
		now := w.now()
		if doc.LockHeldBy(now, actor.UserID) {
			return &ConflictError{Reason: fmt.Sprintf("npd %s is already locked by %s", doc.DocumentNumber, doc.LockedBy)}
		}

		expires := now.Add(ttl)
		doc.IsLocked = true
		doc.LockedBy = actor.UserID
		doc.LockedAt = &now
		doc.LockExpiresAt = &expires
		doc.LockReason = reason
		doc.UpdatedAt = now

		if err := s.SaveDocument(ctx, *doc); err != nil {
			return err
		}
		return w.audit(ctx, s, actor, AuditLocked, "npd_documents", string(doc.ID), map[string]any{
			"reason":     reason,
			"expires_at": expires.Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Unlock releases the lock. Permitted for an admin, the original locker,
// or a verifier while the document sits in diverifikasi.
func (w *Workflow) Unlock(ctx context.Context, actor auth.Actor, npdID DocumentID) (*Document, error) {
	var doc *Document
	err := w.Store.WithTx(ctx, func(s Store) error {
		var err error
		doc, err = w.loadDocument(ctx, s, actor, npdID)
		if err != nil {
			return err
		}
		if !doc.IsLocked {
			return &ValidationError{Field: "lock", Message: "npd is not locked"}
		}
		if !w.mayUnlock(actor, *doc) {
			return &PermissionError{Role: string(actor.Role), Capability: string(auth.CapUnlockNPD)}
		}

		clearLock(doc)
		doc.UpdatedAt = w.now()
		if err := s.SaveDocument(ctx, *doc); err != nil {
			return err
		}
		return w.audit(ctx, s, actor, AuditUnlocked, "npd_documents", string(doc.ID), nil)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (w *Workflow) mayUnlock(actor auth.Actor, doc Document) bool {
	if auth.HasPermission(actor.Role, auth.CapUnlockNPD) {
		return true
	}
	if doc.LockedBy == actor.UserID {
		return true
	}
	return actor.Role == auth.RoleVerifikator && doc.Status == StatusDiverifikasi
}

// CleanupExpired force-unlocks every NPD whose lock expired before now.
// Returns the number of documents unlocked.
func (w *Workflow) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	unlocked := 0
	err := w.Store.WithTx(ctx, func(s Store) error {
		docs, err := s.ListExpiredLocks(ctx, now)
		if err != nil {
			return err
		}
		for i := range docs {
			doc := docs[i]
			holder := doc.LockedBy
			clearLock(&doc)
			doc.UpdatedAt = now
			if err := s.SaveDocument(ctx, doc); err != nil {
				return err
			}
			if err := s.AppendAudit(ctx, AuditEntry{
				ID:             uuid.NewString(),
				Action:         AuditAutoUnlocked,
				EntityTable:    "npd_documents",
				EntityID:       string(doc.ID),
				ActorUserID:    "system",
				OrganizationID: doc.OrganizationID,
				EntityData:     map[string]any{"previous_holder": holder},
				CreatedAt:      now,
			}); err != nil {
				return err
			}
			unlocked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return unlocked, nil
}

func clearLock(doc *Document) {
	doc.IsLocked = false
	doc.LockedBy = ""
	doc.LockedAt = nil
	doc.LockExpiresAt = nil
	doc.LockReason = ""
}
