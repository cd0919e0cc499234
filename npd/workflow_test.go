package npd_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipd/npd-tracker/auth"
	"github.com/sipd/npd-tracker/npd"
	"github.com/sipd/npd-tracker/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testOrg = "dinas-a"

var (
	pptk        = auth.Actor{UserID: "user-pptk", Role: auth.RolePPTK, OrganizationID: testOrg}
	verifikator = auth.Actor{UserID: "user-verif", Role: auth.RoleVerifikator, OrganizationID: testOrg}
	bendahara   = auth.Actor{UserID: "user-bend", Role: auth.RoleBendahara, OrganizationID: testOrg}
	admin       = auth.Actor{UserID: "user-admin", Role: auth.RoleAdmin, OrganizationID: testOrg}
	viewer      = auth.Actor{UserID: "user-view", Role: auth.RoleViewer, OrganizationID: testOrg}
	outsider    = auth.Actor{UserID: "user-out", Role: auth.RoleAdmin, OrganizationID: "dinas-b"}
)

type testTree struct {
	Program     npd.NodeID
	Kegiatan    npd.NodeID
	Subkegiatan npd.NodeID
	Akun1       npd.NodeID // pagu 10M
	Akun2       npd.NodeID // pagu 5M
}

func newTestWorkflow(t *testing.T) (*npd.Workflow, *sqlite.Store, testTree) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tree := seedTree(t, store)
	return npd.NewWorkflow(store, nil), store, tree
}

func seedTree(t *testing.T, store *sqlite.Store) testTree {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	tree := testTree{
		Program:     npd.NodeID(uuid.NewString()),
		Kegiatan:    npd.NodeID(uuid.NewString()),
		Subkegiatan: npd.NodeID(uuid.NewString()),
		Akun1:       npd.NodeID(uuid.NewString()),
		Akun2:       npd.NodeID(uuid.NewString()),
	}

	nodes := []npd.BudgetAccount{
		{ID: tree.Program, Kode: "1.01", Nama: "Program Pendidikan", Kind: npd.KindProgram},
		{ID: tree.Kegiatan, Kode: "1.01.01", Nama: "Kegiatan Sekolah", Kind: npd.KindKegiatan, ParentID: tree.Program},
		{ID: tree.Subkegiatan, Kode: "1.01.01.001", Nama: "Subkegiatan Gedung", Kind: npd.KindSubkegiatan, ParentID: tree.Kegiatan},
		{ID: tree.Akun1, Kode: "5.1.02.01", Nama: "Belanja Bahan", Kind: npd.KindAkun, ParentID: tree.Subkegiatan, Pagu: npd.NewAmount(10_000_000)},
		{ID: tree.Akun2, Kode: "5.1.02.02", Nama: "Belanja Jasa", Kind: npd.KindAkun, ParentID: tree.Subkegiatan, Pagu: npd.NewAmount(5_000_000)},
	}
	for _, n := range nodes {
		n.OrganizationID = testOrg
		n.FiscalYear = 2026
		n.Status = npd.NodeActive
		n.CreatedAt = now
		n.UpdatedAt = now
		require.NoError(t, store.SaveAccount(ctx, n))
	}
	return tree
}

func mustAccount(t *testing.T, store *sqlite.Store, id npd.NodeID) npd.BudgetAccount {
	t.Helper()
	acct, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return *acct
}

// =============================================================================
// CREATE
// =============================================================================

func TestWorkflow_Create_SequentialDocumentNumbers(t *testing.T) {
	// GIVEN: An empty organization
	// WHEN: Creating three documents in the same year
	// THEN: Numbers are NPD-2026-001, -002, -003

	w, _, tree := newTestWorkflow(t)
	ctx := context.Background()

	for i, want := range []string{"NPD-2026-001", "NPD-2026-002", "NPD-2026-003"} {
		doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
		require.NoError(t, err, "create %d", i)
		assert.Equal(t, want, doc.DocumentNumber)
		assert.Equal(t, npd.StatusDraft, doc.Status)
	}
}

func TestWorkflow_Create_ViewerDenied(t *testing.T) {
	w, _, tree := newTestWorkflow(t)

	_, err := w.Create(context.Background(), viewer, tree.Subkegiatan, npd.JenisUP, 2026)
	assert.ErrorIs(t, err, npd.ErrPermissionDenied)
}

func TestWorkflow_Create_WrongNodeKind_Rejected(t *testing.T) {
	// An NPD must point at a subkegiatan, not an akun or program.
	w, _, tree := newTestWorkflow(t)

	_, err := w.Create(context.Background(), pptk, tree.Akun1, npd.JenisUP, 2026)
	assert.ErrorIs(t, err, npd.ErrValidation)
}

func TestWorkflow_Create_CrossTenant_NotFound(t *testing.T) {
	// Another organization's subkegiatan looks like it does not exist.
	w, _, tree := newTestWorkflow(t)

	_, err := w.Create(context.Background(), outsider, tree.Subkegiatan, npd.JenisUP, 2026)
	assert.ErrorIs(t, err, npd.ErrNotFound)
}

// =============================================================================
// LINES AND EAGER RESERVATION
// =============================================================================

func TestWorkflow_AddLine_ReservesCommitted(t *testing.T) {
	// GIVEN: A draft NPD against an account with 10M pagu
	// WHEN: Adding a 4M line
	// THEN: committed becomes 4M and sisaPagu 6M

	w, store, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)

	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "ATK", npd.NewAmount(4_000_000))
	require.NoError(t, err)

	acct := mustAccount(t, store, tree.Akun1)
	assert.Equal(t, int64(4_000_000), acct.Committed.Int64())
	assert.Equal(t, int64(6_000_000), acct.SisaPagu().Int64())
	assert.Equal(t, int64(0), acct.Disbursed.Int64())
}

func TestWorkflow_AddLine_ExceedsHeadroom_RejectedWithFigures(t *testing.T) {
	w, store, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)

	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(7_000_000))
	require.NoError(t, err)

	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(3_000_001))
	require.ErrorIs(t, err, npd.ErrBudgetExceeded)

	var budgetErr *npd.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "5.1.02.01", budgetErr.AccountKode)
	assert.Equal(t, int64(10_000_001), budgetErr.Requested.Int64())
	assert.Equal(t, int64(10_000_000), budgetErr.Available.Int64())

	// Nothing moved.
	acct := mustAccount(t, store, tree.Akun1)
	assert.Equal(t, int64(7_000_000), acct.Committed.Int64())
}

func TestWorkflow_AddLine_CountsOtherDocuments(t *testing.T) {
	// GIVEN: A submitted NPD holding 6M on the account
	// WHEN: A second NPD proposes 5M on the same account
	// THEN: The add fails; pagu is 10M

	w, _, tree := newTestWorkflow(t)
	ctx := context.Background()

	first, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	_, err = w.AddLine(ctx, pptk, first.ID, tree.Akun1, "", npd.NewAmount(6_000_000))
	require.NoError(t, err)
	_, err = w.Submit(ctx, pptk, first.ID)
	require.NoError(t, err)

	second, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisGU, 2026)
	require.NoError(t, err)
	_, err = w.AddLine(ctx, pptk, second.ID, tree.Akun1, "", npd.NewAmount(5_000_000))
	assert.ErrorIs(t, err, npd.ErrBudgetExceeded)
}

func TestWorkflow_UpdateLine_MovesOnlyTheDelta(t *testing.T) {
	w, store, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	line, err := w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(4_000_000))
	require.NoError(t, err)

	// Raise 4M -> 9M: delta +5M fits the remaining 6M headroom.
	_, err = w.UpdateLine(ctx, pptk, line.ID, npd.NewAmount(9_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(9_000_000), mustAccount(t, store, tree.Akun1).Committed.Int64())

	// Lower 9M -> 2M releases 7M.
	_, err = w.UpdateLine(ctx, pptk, line.ID, npd.NewAmount(2_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), mustAccount(t, store, tree.Akun1).Committed.Int64())
}

func TestWorkflow_RemoveLine_ReleasesReservation(t *testing.T) {
	w, store, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	line, err := w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(4_000_000))
	require.NoError(t, err)

	require.NoError(t, w.RemoveLine(ctx, pptk, line.ID))

	acct := mustAccount(t, store, tree.Akun1)
	assert.Equal(t, int64(0), acct.Committed.Int64())
	assert.Equal(t, int64(10_000_000), acct.SisaPagu().Int64())
}

// =============================================================================
// STATE TRANSITIONS
// =============================================================================

func TestWorkflow_Submit_RequiresLines(t *testing.T) {
	w, _, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)

	_, err = w.Submit(ctx, pptk, doc.ID)
	assert.ErrorIs(t, err, npd.ErrValidation)
}

func TestWorkflow_FullLifecycle(t *testing.T) {
	// GIVEN: A draft with one line
	// WHEN: submit -> verify -> finalize
	// THEN: Each step records its actor and timestamp

	w, _, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(4_000_000))
	require.NoError(t, err)

	doc, err = w.Submit(ctx, pptk, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, npd.StatusDiajukan, doc.Status)

	doc, err = w.Verify(ctx, verifikator, doc.ID, "dokumen lengkap")
	require.NoError(t, err)
	assert.Equal(t, npd.StatusDiverifikasi, doc.Status)
	assert.Equal(t, verifikator.UserID, doc.VerifiedBy)
	assert.NotNil(t, doc.VerifiedAt)
	assert.Equal(t, "dokumen lengkap", doc.Catatan)

	doc, err = w.Finalize(ctx, bendahara, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, npd.StatusFinal, doc.Status)
	assert.Equal(t, bendahara.UserID, doc.FinalizedBy)
	assert.NotNil(t, doc.FinalizedAt)
}

func TestWorkflow_IllegalTransition_Rejected(t *testing.T) {
	w, store, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)

	// Skipping diajukan and diverifikasi is not allowed.
	_, err = w.Finalize(ctx, bendahara, doc.ID)
	require.ErrorIs(t, err, npd.ErrStateTransition)
	_, err = w.Verify(ctx, verifikator, doc.ID, "")
	require.ErrorIs(t, err, npd.ErrStateTransition)

	// Status unchanged on disk.
	stored, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, npd.StatusDraft, stored.Status)
}

func TestWorkflow_Verify_WrongRole_Denied(t *testing.T) {
	w, _, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(1_000_000))
	require.NoError(t, err)
	_, err = w.Submit(ctx, pptk, doc.ID)
	require.NoError(t, err)

	_, err = w.Verify(ctx, pptk, doc.ID, "")
	assert.ErrorIs(t, err, npd.ErrPermissionDenied)
}

func TestWorkflow_Reject_ReturnsToDraftAndKeepsNotes(t *testing.T) {
	// GIVEN: A verified document carrying notes
	// WHEN: The verifier rejects it
	// THEN: It returns to draft, metadata cleared, reason prefixed to notes

	w, _, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(1_000_000))
	require.NoError(t, err)
	_, err = w.Submit(ctx, pptk, doc.ID)
	require.NoError(t, err)
	_, err = w.Verify(ctx, verifikator, doc.ID, "catatan lama")
	require.NoError(t, err)

	doc, err = w.Reject(ctx, verifikator, doc.ID, "bukti kurang")
	require.NoError(t, err)

	assert.Equal(t, npd.StatusDraft, doc.Status)
	assert.Empty(t, doc.VerifiedBy)
	assert.Nil(t, doc.VerifiedAt)
	assert.Equal(t, "DITOLAK: bukti kurang\ncatatan lama", doc.Catatan)
}

func TestWorkflow_Reject_RequiresReason(t *testing.T) {
	w, _, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)

	_, err = w.Reject(ctx, verifikator, doc.ID, "")
	assert.ErrorIs(t, err, npd.ErrValidation)
}

func TestWorkflow_AddLine_OnFinalDocument_NoLedgerEffect(t *testing.T) {
	w, store, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc := finalizedNPD(t, w, tree, 4_000_000)
	before := mustAccount(t, store, tree.Akun1).Committed

	_, err := w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(1_000_000))
	require.ErrorIs(t, err, npd.ErrStateTransition)

	assert.Equal(t, before.Int64(), mustAccount(t, store, tree.Akun1).Committed.Int64())
}

// finalizedNPD drives a fresh document with one Akun1 line to final.
func finalizedNPD(t *testing.T, w *npd.Workflow, tree testTree, jumlah int64) *npd.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(jumlah))
	require.NoError(t, err)
	_, err = w.Submit(ctx, pptk, doc.ID)
	require.NoError(t, err)
	_, err = w.Verify(ctx, verifikator, doc.ID, "")
	require.NoError(t, err)
	doc, err = w.Finalize(ctx, bendahara, doc.ID)
	require.NoError(t, err)
	return doc
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestWorkflow_OperationsLeaveAuditTrail(t *testing.T) {
	w, store, tree := newTestWorkflow(t)
	ctx := context.Background()

	doc, err := w.Create(ctx, pptk, tree.Subkegiatan, npd.JenisUP, 2026)
	require.NoError(t, err)
	_, err = w.AddLine(ctx, pptk, doc.ID, tree.Akun1, "", npd.NewAmount(1_000_000))
	require.NoError(t, err)
	_, err = w.Submit(ctx, pptk, doc.ID)
	require.NoError(t, err)

	entries, err := store.QueryAudit(ctx, npd.AuditFilter{
		OrganizationID: testOrg,
		EntityTable:    "npd_documents",
		EntityID:       string(doc.ID),
	})
	require.NoError(t, err)

	actions := make([]npd.AuditAction, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	assert.Contains(t, actions, npd.AuditCreated)
	assert.Contains(t, actions, npd.AuditSubmitted)
}
