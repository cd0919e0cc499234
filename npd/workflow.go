/*
workflow.go - NPD document lifecycle operations

PURPOSE:
  Orchestrates the full lifecycle of a disbursement request:
  1. Create: allocate document number, insert in draft
  2. Lines: add/update/remove with dual budget validation and eager
     commitment reservation in the ledger
  3. Submit -> Verify -> Finalize: forward transitions
  4. Reject: back to draft, clearing verification metadata

OPERATION SHAPE:
  Every operation runs as one store transaction: permission check, state
  check, validation reads, writes, and the audit entry all commit or roll
  back together. Notifications fire only after a successful commit and
  never fail the operation.

EAGER RESERVATION:
  Adding a line immediately moves the account's committed figure (and so
  shrinks sisaPagu). Disbursement through SP2D later moves the separate
  disbursed figure. Validation always reads headroom from committed;
  reporting reads realization from disbursed.

SEE ALSO:
  - validator.go: the two pure budget checks
  - lock.go: advisory verification lock operations
  - realization.go: what happens after finalize
*/
package npd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sipd/npd-tracker/auth"
)

// Workflow drives NPD documents through their state machine.
type Workflow struct {
	Store    Store
	Notifier Notifier
	Clock    func() time.Time
}

func NewWorkflow(store Store, notifier Notifier) *Workflow {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Workflow{Store: store, Notifier: notifier, Clock: time.Now}
}

func (w *Workflow) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

// =============================================================================
// CREATE
// =============================================================================

// Create inserts a new draft NPD against a subkegiatan. The document
// number is allocated from the per-(organization, year) sequence inside
// the same transaction as the insert.
func (w *Workflow) Create(ctx context.Context, actor auth.Actor, subkegiatanID NodeID, jenis Jenis, tahun int) (*Document, error) {
	if !auth.HasPermission(actor.Role, auth.CapCreateNPD) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapCreateNPD)}
	}
	if !ValidJenis(jenis) {
		return nil, &ValidationError{Field: "jenis", Message: fmt.Sprintf("unknown jenis %q", jenis)}
	}

	var doc *Document
	err := w.Store.WithTx(ctx, func(s Store) error {
		sub, err := w.loadNode(ctx, s, actor, subkegiatanID)
		if err != nil {
			return err
		}
		if sub.Kind != KindSubkegiatan {
			return &ValidationError{Field: "subkegiatanId", Message: "node is not a subkegiatan"}
		}
		if sub.FiscalYear != tahun {
			return &ValidationError{
				Field:   "tahun",
				Message: fmt.Sprintf("subkegiatan fiscal year %d does not match %d", sub.FiscalYear, tahun),
			}
		}

		seq, err := s.NextDocumentNumber(ctx, OrgID(actor.OrganizationID), tahun)
		if err != nil {
			return err
		}

		now := w.now()
		doc = &Document{
			ID:             DocumentID(uuid.NewString()),
			DocumentNumber: fmt.Sprintf("NPD-%d-%03d", tahun, seq),
			Jenis:          jenis,
			SubkegiatanID:  subkegiatanID,
			Status:         StatusDraft,
			OrganizationID: OrgID(actor.OrganizationID),
			Tahun:          tahun,
			CreatedBy:      actor.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.SaveDocument(ctx, *doc); err != nil {
			return err
		}
		return w.audit(ctx, s, actor, AuditCreated, "npd_documents", string(doc.ID), map[string]any{
			"document_number": doc.DocumentNumber,
			"jenis":           string(jenis),
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// =============================================================================
// LINES
// =============================================================================

// AddLine validates and inserts a line, eagerly reserving its jumlah
// against the account's committed figure.
func (w *Workflow) AddLine(ctx context.Context, actor auth.Actor, npdID DocumentID, accountID NodeID, uraian string, jumlah Amount) (*Line, error) {
	if !auth.HasPermission(actor.Role, auth.CapUpdateNPD) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapUpdateNPD)}
	}
	if !jumlah.IsPositive() {
		return nil, &ValidationError{Field: "jumlah", Message: "amount must be positive"}
	}

	var line *Line
	err := w.Store.WithTx(ctx, func(s Store) error {
		doc, err := w.loadDocument(ctx, s, actor, npdID)
		if err != nil {
			return err
		}
		if !doc.Editable() {
			return &StateTransitionError{DocumentID: doc.ID, From: doc.Status, To: doc.Status}
		}

		account, err := w.loadNode(ctx, s, actor, accountID)
		if err != nil {
			return err
		}
		if account.Kind != KindAkun {
			return &ValidationError{Field: "accountId", Message: "node is not an akun"}
		}

		sameNPDTotal, err := w.linesTotalForAccount(ctx, s, npdID, accountID, LineID(""))
		if err != nil {
			return err
		}
		if err := w.checkBudget(ctx, s, *doc, *account, sameNPDTotal.Add(jumlah), jumlah); err != nil {
			return err
		}

		now := w.now()
		line = &Line{
			ID:        LineID(uuid.NewString()),
			NPDID:     npdID,
			AccountID: accountID,
			Uraian:    uraian,
			Jumlah:    jumlah,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.SaveLine(ctx, *line); err != nil {
			return err
		}
		if err := s.ApplyDelta(ctx, accountID, DeltaCommitted, jumlah); err != nil {
			return err
		}
		return w.audit(ctx, s, actor, AuditCreated, "npd_lines", string(line.ID), map[string]any{
			"npd_id": string(npdID),
			"jumlah": jumlah.Value.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLine re-validates with the signed delta applied and moves the
// ledger by exactly newJumlah - oldJumlah.
func (w *Workflow) UpdateLine(ctx context.Context, actor auth.Actor, lineID LineID, newJumlah Amount) (*Line, error) {
	if !auth.HasPermission(actor.Role, auth.CapUpdateNPD) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapUpdateNPD)}
	}
	if !newJumlah.IsPositive() {
		return nil, &ValidationError{Field: "jumlah", Message: "amount must be positive"}
	}

	var updated *Line
	err := w.Store.WithTx(ctx, func(s Store) error {
		line, doc, err := w.loadLine(ctx, s, actor, lineID)
		if err != nil {
			return err
		}
		if !doc.Editable() {
			return &StateTransitionError{DocumentID: doc.ID, From: doc.Status, To: doc.Status}
		}

		account, err := w.loadNode(ctx, s, actor, line.AccountID)
		if err != nil {
			return err
		}

		delta := newJumlah.Sub(line.Jumlah)
		otherLines, err := w.linesTotalForAccount(ctx, s, line.NPDID, line.AccountID, line.ID)
		if err != nil {
			return err
		}
		// The old jumlah is already reserved, so only the delta competes
		// for headroom.
		if err := w.checkBudget(ctx, s, *doc, *account, otherLines.Add(newJumlah), delta); err != nil {
			return err
		}

		before := line.Jumlah
		line.Jumlah = newJumlah
		line.UpdatedAt = w.now()
		if err := s.SaveLine(ctx, *line); err != nil {
			return err
		}
		if err := s.ApplyDelta(ctx, line.AccountID, DeltaCommitted, delta); err != nil {
			return err
		}
		updated = line
		return w.audit(ctx, s, actor, AuditUpdated, "npd_lines", string(line.ID), map[string]any{
			"jumlah_before": before.Value.String(),
			"jumlah_after":  newJumlah.Value.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveLine deletes a line and releases its reservation back to the
// account's headroom.
func (w *Workflow) RemoveLine(ctx context.Context, actor auth.Actor, lineID LineID) error {
	if !auth.HasPermission(actor.Role, auth.CapUpdateNPD) {
		return &PermissionError{Role: string(actor.Role), Capability: string(auth.CapUpdateNPD)}
	}

	return w.Store.WithTx(ctx, func(s Store) error {
		line, doc, err := w.loadLine(ctx, s, actor, lineID)
		if err != nil {
			return err
		}
		if !doc.Editable() {
			return &StateTransitionError{DocumentID: doc.ID, From: doc.Status, To: doc.Status}
		}

		if err := s.DeleteLine(ctx, line.ID); err != nil {
			return err
		}
		if err := s.ApplyDelta(ctx, line.AccountID, DeltaCommitted, line.Jumlah.Neg()); err != nil {
			return err
		}
		return w.audit(ctx, s, actor, AuditDeleted, "npd_lines", string(line.ID), map[string]any{
			"jumlah": line.Jumlah.Value.String(),
		})
	})
}

// =============================================================================
// STATE TRANSITIONS
// =============================================================================

// Submit moves draft -> diajukan. Requires at least one line.
func (w *Workflow) Submit(ctx context.Context, actor auth.Actor, npdID DocumentID) (*Document, error) {
	doc, err := w.transition(ctx, actor, npdID, auth.CapSubmitNPD, StatusDraft, StatusDiajukan,
		func(ctx context.Context, s Store, doc *Document) error {
			lines, err := s.ListLines(ctx, doc.ID)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return &ValidationError{Field: "lines", Message: "npd must have at least one line"}
			}
			return nil
		}, AuditSubmitted)
	if err != nil {
		return nil, err
	}
	w.Notifier.Notify(NotificationEvent{
		Type:           "npd_submitted",
		OrganizationID: doc.OrganizationID,
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		ActorUserID:    actor.UserID,
	})
	return doc, nil
}

// Verify moves diajukan -> diverifikasi and records the verifier.
// Fails with ConflictError if another actor holds a live lock.
func (w *Workflow) Verify(ctx context.Context, actor auth.Actor, npdID DocumentID, notes string) (*Document, error) {
	doc, err := w.transition(ctx, actor, npdID, auth.CapVerifyNPD, StatusDiajukan, StatusDiverifikasi,
		func(ctx context.Context, s Store, doc *Document) error {
			if doc.LockHeldBy(w.now(), actor.UserID) {
				return &ConflictError{Reason: fmt.Sprintf("npd %s is locked by %s", doc.DocumentNumber, doc.LockedBy)}
			}
			now := w.now()
			doc.VerifiedBy = actor.UserID
			doc.VerifiedAt = &now
			if notes != "" {
				doc.Catatan = notes
			}
			return nil
		}, AuditVerified)
	if err != nil {
		return nil, err
	}
	w.Notifier.Notify(NotificationEvent{
		Type:           "npd_verified",
		OrganizationID: doc.OrganizationID,
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		ActorUserID:    actor.UserID,
	})
	return doc, nil
}

// Reject moves diajukan/diverifikasi back to draft, clears verification
// metadata, and prefixes the rejection reason to the document notes.
func (w *Workflow) Reject(ctx context.Context, actor auth.Actor, npdID DocumentID, reason string) (*Document, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "rejection reason is required"}
	}

	if !auth.HasPermission(actor.Role, auth.CapVerifyNPD) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapVerifyNPD)}
	}

	var doc *Document
	err := w.Store.WithTx(ctx, func(s Store) error {
		var err error
		doc, err = w.loadDocument(ctx, s, actor, npdID)
		if err != nil {
			return err
		}
		if !CanTransition(doc.Status, StatusDraft) {
			return &StateTransitionError{DocumentID: doc.ID, From: doc.Status, To: StatusDraft}
		}

		doc.Status = StatusDraft
		doc.VerifiedBy = ""
		doc.VerifiedAt = nil
		doc.FinalizedBy = ""
		doc.FinalizedAt = nil
		marker := fmt.Sprintf("DITOLAK: %s", reason)
		if doc.Catatan != "" {
			doc.Catatan = marker + "\n" + doc.Catatan
		} else {
			doc.Catatan = marker
		}
		doc.UpdatedAt = w.now()

		if err := s.SaveDocument(ctx, *doc); err != nil {
			return err
		}
		return w.audit(ctx, s, actor, AuditRejected, "npd_documents", string(doc.ID), map[string]any{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	w.Notifier.Notify(NotificationEvent{
		Type:           "npd_rejected",
		OrganizationID: doc.OrganizationID,
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		ActorUserID:    actor.UserID,
		Detail:         reason,
	})
	return doc, nil
}

// Finalize moves diverifikasi -> final. The document becomes immutable;
// only SP2D warrants may reference it afterwards.
func (w *Workflow) Finalize(ctx context.Context, actor auth.Actor, npdID DocumentID) (*Document, error) {
	doc, err := w.transition(ctx, actor, npdID, auth.CapApproveNPD, StatusDiverifikasi, StatusFinal,
		func(ctx context.Context, s Store, doc *Document) error {
			if doc.LockHeldBy(w.now(), actor.UserID) {
				return &ConflictError{Reason: fmt.Sprintf("npd %s is locked by %s", doc.DocumentNumber, doc.LockedBy)}
			}
			now := w.now()
			doc.FinalizedBy = actor.UserID
			doc.FinalizedAt = &now
			return nil
		}, AuditFinalized)
	if err != nil {
		return nil, err
	}
	w.Notifier.Notify(NotificationEvent{
		Type:           "npd_finalized",
		OrganizationID: doc.OrganizationID,
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		ActorUserID:    actor.UserID,
	})
	return doc, nil
}

// transition is the shared shape of the forward transitions: permission,
// state check, optional extra precondition, save, audit.
func (w *Workflow) transition(
	ctx context.Context,
	actor auth.Actor,
	npdID DocumentID,
	cap auth.Capability,
	from, to Status,
	prepare func(context.Context, Store, *Document) error,
	action AuditAction,
) (*Document, error) {
	if !auth.HasPermission(actor.Role, cap) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(cap)}
	}

	var doc *Document
	err := w.Store.WithTx(ctx, func(s Store) error {
		var err error
		doc, err = w.loadDocument(ctx, s, actor, npdID)
		if err != nil {
			return err
		}
		if doc.Status != from || !CanTransition(doc.Status, to) {
			return &StateTransitionError{DocumentID: doc.ID, From: doc.Status, To: to}
		}
		if prepare != nil {
			if err := prepare(ctx, s, doc); err != nil {
				return err
			}
		}
		doc.Status = to
		doc.UpdatedAt = w.now()
		if err := s.SaveDocument(ctx, *doc); err != nil {
			return err
		}
		return w.audit(ctx, s, actor, action, "npd_documents", string(doc.ID), map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// checkBudget runs both validator checks; the stricter failing result wins.
func (w *Workflow) checkBudget(ctx context.Context, s Store, doc Document, account BudgetAccount, proposedTotalForAccount, headroomDelta Amount) error {
	committedElsewhere, err := s.SumCommittedForAccount(ctx, doc.OrganizationID, account.ID, doc.ID)
	if err != nil {
		return err
	}

	if res := ValidateCumulativePerAccount(account, committedElsewhere, proposedTotalForAccount); !res.Valid {
		return &BudgetExceededError{
			AccountKode: account.Kode,
			Requested:   proposedTotalForAccount,
			Available:   res.Available,
		}
	}
	// Reservations for this NPD's existing lines are already in the ledger,
	// so only the new delta competes for headroom.
	if headroomDelta.IsPositive() {
		if res := ValidateImmediateBudget(account, ZeroAmount(), headroomDelta); !res.Valid {
			return &BudgetExceededError{
				AccountKode: account.Kode,
				Requested:   headroomDelta,
				Available:   res.Available,
			}
		}
	}
	return nil
}

func (w *Workflow) linesTotalForAccount(ctx context.Context, s Store, npdID DocumentID, accountID NodeID, exclude LineID) (Amount, error) {
	lines, err := s.ListLines(ctx, npdID)
	if err != nil {
		return Amount{}, err
	}
	total := ZeroAmount()
	for _, l := range lines {
		if l.AccountID == accountID && l.ID != exclude {
			total = total.Add(l.Jumlah)
		}
	}
	return total, nil
}

// loadDocument fetches a document scoped to the actor's organization.
// Cross-tenant lookups are indistinguishable from not-found.
func (w *Workflow) loadDocument(ctx context.Context, s Store, actor auth.Actor, id DocumentID) (*Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.OrganizationID != OrgID(actor.OrganizationID) {
		return nil, &NotFoundError{Entity: "npd", ID: string(id)}
	}
	return doc, nil
}

func (w *Workflow) loadLine(ctx context.Context, s Store, actor auth.Actor, id LineID) (*Line, *Document, error) {
	line, err := s.GetLine(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if line == nil {
		return nil, nil, &NotFoundError{Entity: "line", ID: string(id)}
	}
	doc, err := w.loadDocument(ctx, s, actor, line.NPDID)
	if err != nil {
		return nil, nil, err
	}
	return line, doc, nil
}

func (w *Workflow) loadNode(ctx context.Context, s Store, actor auth.Actor, id NodeID) (*BudgetAccount, error) {
	node, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil || node.OrganizationID != OrgID(actor.OrganizationID) {
		return nil, &NotFoundError{Entity: "account", ID: string(id)}
	}
	return node, nil
}

func (w *Workflow) audit(ctx context.Context, s Store, actor auth.Actor, action AuditAction, table, id string, data map[string]any) error {
	return s.AppendAudit(ctx, AuditEntry{
		ID:             uuid.NewString(),
		Action:         action,
		EntityTable:    table,
		EntityID:       id,
		ActorUserID:    actor.UserID,
		OrganizationID: OrgID(actor.OrganizationID),
		EntityData:     data,
		CreatedAt:      w.now(),
	})
}
