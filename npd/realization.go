/*
realization.go - SP2D disbursement lifecycle

PURPOSE:
  Converts a single disbursed amount (nilaiCair) against a finalized NPD
  into exact, reversible per-account realizations:

  Create:     distribute shares, store them, apply +share disbursed deltas
  Update:     reverse the stored shares, redistribute, apply new shares
  SoftDelete: reverse the stored shares, flag the warrant deleted
  Restore:    re-apply the stored shares, clear the flag

REVERSAL RULE:
  A reversal always replays the exact shares recorded at application
  time. Proportions are never recomputed at delete time, so the reversal
  is correct even if the NPD's line set could have drifted since.

CUMULATIVE CAP:
  The sum of nilaiCair across all non-deleted warrants of one NPD never
  exceeds the NPD's line total. Violations fail with BudgetExceeded and
  leave every ledger figure unchanged (all-or-nothing).
*/
package npd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sipd/npd-tracker/auth"
)

// RealizationService records SP2D warrants and drives their ledger effect.
type RealizationService struct {
	Store    Store
	Notifier Notifier
	Clock    func() time.Time
}

func NewRealizationService(store Store, notifier Notifier) *RealizationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RealizationService{Store: store, Notifier: notifier, Clock: time.Now}
}

func (r *RealizationService) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// =============================================================================
// CREATE
// =============================================================================

func (r *RealizationService) Create(ctx context.Context, actor auth.Actor, npdID DocumentID, noSP2D string, tglSP2D time.Time, nilaiCair Amount) (*SP2DRef, error) {
	if !auth.HasPermission(actor.Role, auth.CapCreateSP2D) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapCreateSP2D)}
	}
	if noSP2D == "" {
		return nil, &ValidationError{Field: "noSP2D", Message: "sp2d number is required"}
	}

	var ref *SP2DRef
	err := r.Store.WithTx(ctx, func(s Store) error {
		doc, err := r.loadFinalDocument(ctx, s, actor, npdID)
		if err != nil {
			return err
		}

		existing, err := s.GetSP2DByNumber(ctx, doc.OrganizationID, noSP2D)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{Reason: fmt.Sprintf("sp2d number %s already exists", noSP2D)}
		}

		lines, err := s.ListLines(ctx, npdID)
		if err != nil {
			return err
		}
		if err := r.checkCumulativeCap(ctx, s, *doc, lines, nilaiCair, SP2DID("")); err != nil {
			return err
		}

		shares, err := DistributeShares(lines, nilaiCair)
		if err != nil {
			return err
		}

		now := r.now()
		ref = &SP2DRef{
			ID:             SP2DID(uuid.NewString()),
			NPDID:          npdID,
			OrganizationID: doc.OrganizationID,
			NoSP2D:         noSP2D,
			TglSP2D:        tglSP2D,
			NilaiCair:      nilaiCair,
			CreatedBy:      actor.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.SaveSP2D(ctx, *ref); err != nil {
			return err
		}
		if err := r.applyShares(ctx, s, *ref, shares, now, false); err != nil {
			return err
		}
		return r.audit(ctx, s, actor, AuditCreated, string(ref.ID), map[string]any{
			"no_sp2d":    noSP2D,
			"nilai_cair": nilaiCair.Value.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	r.Notifier.Notify(NotificationEvent{
		Type:           "sp2d_created",
		OrganizationID: ref.OrganizationID,
		DocumentID:     npdID,
		ActorUserID:    actor.UserID,
		Detail:         noSP2D,
	})
	return ref, nil
}

// =============================================================================
// UPDATE - Full reverse and reapply
// =============================================================================

// Update edits a warrant's disbursed amount. Implemented as a full
// reversal of the stored shares followed by a fresh distribution, so it
// stays correct under any line-set change on the NPD.
func (r *RealizationService) Update(ctx context.Context, actor auth.Actor, sp2dID SP2DID, newNilaiCair Amount, tglSP2D *time.Time) (*SP2DRef, error) {
	if !auth.HasPermission(actor.Role, auth.CapCreateSP2D) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapCreateSP2D)}
	}

	var ref *SP2DRef
	err := r.Store.WithTx(ctx, func(s Store) error {
		var err error
		ref, err = r.loadSP2D(ctx, s, actor, sp2dID)
		if err != nil {
			return err
		}
		if ref.Deleted() {
			return &ValidationError{Field: "sp2d", Message: "cannot edit a deleted sp2d"}
		}

		doc, err := r.loadFinalDocument(ctx, s, actor, ref.NPDID)
		if err != nil {
			return err
		}
		lines, err := s.ListLines(ctx, ref.NPDID)
		if err != nil {
			return err
		}
		if err := r.checkCumulativeCap(ctx, s, *doc, lines, newNilaiCair, ref.ID); err != nil {
			return err
		}

		// Reverse exactly what was applied, then redistribute.
		if err := r.reverseStoredShares(ctx, s, ref.ID); err != nil {
			return err
		}
		shares, err := DistributeShares(lines, newNilaiCair)
		if err != nil {
			return err
		}

		now := r.now()
		before := ref.NilaiCair
		ref.NilaiCair = newNilaiCair
		if tglSP2D != nil {
			ref.TglSP2D = *tglSP2D
		}
		ref.UpdatedAt = now
		if err := s.SaveSP2D(ctx, *ref); err != nil {
			return err
		}
		if err := r.applyShares(ctx, s, *ref, shares, now, true); err != nil {
			return err
		}
		return r.audit(ctx, s, actor, AuditUpdated, string(ref.ID), map[string]any{
			"nilai_cair_before": before.Value.String(),
			"nilai_cair_after":  newNilaiCair.Value.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// =============================================================================
// SOFT DELETE AND RESTORE
// =============================================================================

// SoftDelete reverses the warrant's ledger effect and flags it deleted.
// Realization rows are kept for audit. Requires elevated permission.
func (r *RealizationService) SoftDelete(ctx context.Context, actor auth.Actor, sp2dID SP2DID, reason string) (*SP2DRef, error) {
	if !auth.HasPermission(actor.Role, auth.CapDeleteSP2D) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapDeleteSP2D)}
	}

	var ref *SP2DRef
	err := r.Store.WithTx(ctx, func(s Store) error {
		var err error
		ref, err = r.loadSP2D(ctx, s, actor, sp2dID)
		if err != nil {
			return err
		}
		if ref.Deleted() {
			return &ValidationError{Field: "sp2d", Message: "sp2d is already deleted"}
		}

		if err := r.reverseStoredShares(ctx, s, ref.ID); err != nil {
			return err
		}

		now := r.now()
		ref.DeletedAt = &now
		ref.DeletedBy = actor.UserID
		ref.UpdatedAt = now
		if err := s.SaveSP2D(ctx, *ref); err != nil {
			return err
		}
		return r.audit(ctx, s, actor, AuditSoftDeleted, string(ref.ID), map[string]any{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Restore re-applies the stored shares of a soft-deleted warrant and
// clears the deletion flag. The cumulative cap is re-checked: another
// warrant may have taken the room in the meantime.
func (r *RealizationService) Restore(ctx context.Context, actor auth.Actor, sp2dID SP2DID) (*SP2DRef, error) {
	if !auth.HasPermission(actor.Role, auth.CapRestoreSP2D) {
		return nil, &PermissionError{Role: string(actor.Role), Capability: string(auth.CapRestoreSP2D)}
	}

	var ref *SP2DRef
	err := r.Store.WithTx(ctx, func(s Store) error {
		var err error
		ref, err = r.loadSP2D(ctx, s, actor, sp2dID)
		if err != nil {
			return err
		}
		if !ref.Deleted() {
			return &ValidationError{Field: "sp2d", Message: "sp2d is not deleted"}
		}

		doc, err := r.loadFinalDocument(ctx, s, actor, ref.NPDID)
		if err != nil {
			return err
		}
		lines, err := s.ListLines(ctx, ref.NPDID)
		if err != nil {
			return err
		}
		if err := r.checkCumulativeCap(ctx, s, *doc, lines, ref.NilaiCair, ref.ID); err != nil {
			return err
		}

		// Replay the exact shares recorded at application time.
		rows, err := s.ListRealizations(ctx, ref.ID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := s.ApplyDelta(ctx, row.AccountID, DeltaDisbursed, row.Jumlah); err != nil {
				return err
			}
		}

		ref.DeletedAt = nil
		ref.DeletedBy = ""
		ref.UpdatedAt = r.now()
		if err := s.SaveSP2D(ctx, *ref); err != nil {
			return err
		}
		return r.audit(ctx, s, actor, AuditRestored, string(ref.ID), nil)
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// applyShares stores realization rows and applies their disbursed deltas.
// replace swaps this warrant's existing rows instead of appending.
func (r *RealizationService) applyShares(ctx context.Context, s Store, ref SP2DRef, shares []LineShare, now time.Time, replace bool) error {
	rows := make([]Realization, len(shares))
	for i, share := range shares {
		rows[i] = Realization{
			ID:        uuid.NewString(),
			SP2DID:    ref.ID,
			NPDID:     ref.NPDID,
			AccountID: share.AccountID,
			LineID:    share.LineID,
			Jumlah:    share.Share,
			CreatedAt: now,
		}
	}
	var err error
	if replace {
		err = s.ReplaceRealizations(ctx, ref.ID, rows)
	} else {
		err = s.SaveRealizations(ctx, rows)
	}
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.ApplyDelta(ctx, row.AccountID, DeltaDisbursed, row.Jumlah); err != nil {
			return err
		}
	}
	return nil
}

// reverseStoredShares applies the negative of every stored share.
func (r *RealizationService) reverseStoredShares(ctx context.Context, s Store, sp2dID SP2DID) error {
	rows, err := s.ListRealizations(ctx, sp2dID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.ApplyDelta(ctx, row.AccountID, DeltaDisbursed, row.Jumlah.Neg()); err != nil {
			return err
		}
	}
	return nil
}

// checkCumulativeCap verifies the NPD-wide cap with the proposal included,
// ignoring soft-deleted warrants and the warrant being edited.
func (r *RealizationService) checkCumulativeCap(ctx context.Context, s Store, doc Document, lines []Line, proposed Amount, exclude SP2DID) error {
	if !proposed.IsPositive() {
		return &ValidationError{Field: "nilaiCair", Message: "disbursed amount must be positive"}
	}
	npdTotal := LinesTotal(lines)

	existing, err := s.ListSP2DByNPD(ctx, doc.ID)
	if err != nil {
		return err
	}
	cumulated := ZeroAmount()
	for _, e := range existing {
		if e.Deleted() || e.ID == exclude {
			continue
		}
		cumulated = cumulated.Add(e.NilaiCair)
	}

	if cumulated.Add(proposed).GreaterThan(npdTotal) {
		return &BudgetExceededError{
			AccountKode: doc.DocumentNumber,
			Requested:   proposed,
			Available:   npdTotal.Sub(cumulated),
		}
	}
	return nil
}

func (r *RealizationService) loadFinalDocument(ctx context.Context, s Store, actor auth.Actor, id DocumentID) (*Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.OrganizationID != OrgID(actor.OrganizationID) {
		return nil, &NotFoundError{Entity: "npd", ID: string(id)}
	}
	if doc.Status != StatusFinal {
		return nil, &StateTransitionError{DocumentID: doc.ID, From: doc.Status, To: StatusFinal}
	}
	return doc, nil
}

func (r *RealizationService) loadSP2D(ctx context.Context, s Store, actor auth.Actor, id SP2DID) (*SP2DRef, error) {
	ref, err := s.GetSP2D(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref == nil || ref.OrganizationID != OrgID(actor.OrganizationID) {
		return nil, &NotFoundError{Entity: "sp2d", ID: string(id)}
	}
	return ref, nil
}

func (r *RealizationService) audit(ctx context.Context, s Store, actor auth.Actor, action AuditAction, id string, data map[string]any) error {
	return s.AppendAudit(ctx, AuditEntry{
		ID:             uuid.NewString(),
		Action:         action,
		EntityTable:    "sp2d_refs",
		EntityID:       id,
		ActorUserID:    actor.UserID,
		OrganizationID: OrgID(actor.OrganizationID),
		EntityData:     data,
		CreatedAt:      r.now(),
	})
}
