/*
handlers.go - HTTP API handlers for the NPD tracker

PURPOSE:
  Exposes the budget ledger, NPD workflow, and SP2D realization engines
  via REST. Handles HTTP request/response, JSON serialization, actor
  resolution, and maps domain errors to status codes.

ENDPOINTS are listed in server.go next to their routes.

ACTOR RESOLUTION:
  Every request carries the acting user in headers set by the upstream
  gateway after authentication:
    X-User-ID           stable user identifier
    X-User-Role         one of the five domain roles
    X-Organization-ID   tenant scope
  Handlers never re-check tenancy themselves: all scoping happens in the
  engines, where a cross-tenant id is indistinguishable from not-found.

ERROR HANDLING:
  Domain errors map by kind:
  - 400: validation errors, malformed input
  - 403: permission denied
  - 404: not found (including cross-tenant lookups)
  - 409: conflicts (duplicate numbers, held locks)
  - 422: budget exceeded, illegal state transitions
  - 500: everything else

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sipd/npd-tracker/auth"
	"github.com/sipd/npd-tracker/npd"
	"github.com/sipd/npd-tracker/rka"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        npd.Store
	Workflow     *npd.Workflow
	Realizations *npd.RealizationService
	Ledger       *npd.Ledger
	Importer     *rka.Importer
	Log          *logrus.Logger

	validate *validator.Validate
}

// NewHandler wires the engines over one store.
func NewHandler(store npd.Store, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	notifier := NewLogNotifier(log)
	return &Handler{
		Store:        store,
		Workflow:     npd.NewWorkflow(store, notifier),
		Realizations: npd.NewRealizationService(store, notifier),
		Ledger:       npd.NewLedger(store),
		Importer:     rka.NewImporter(store),
		Log:          log,
		validate:     validator.New(),
	}
}

// actorFrom resolves the acting user from gateway headers.
func actorFrom(r *http.Request) (auth.Actor, error) {
	actor := auth.Actor{
		UserID:         r.Header.Get("X-User-ID"),
		Role:           auth.Role(r.Header.Get("X-User-Role")),
		OrganizationID: r.Header.Get("X-Organization-ID"),
	}
	if actor.UserID == "" || actor.OrganizationID == "" {
		return auth.Actor{}, errors.New("missing X-User-ID or X-Organization-ID header")
	}
	if !auth.ValidRole(actor.Role) {
		return auth.Actor{}, errors.New("unknown role in X-User-Role header")
	}
	return actor, nil
}

func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the organization's budget tree for one fiscal year.
// GET /api/accounts?tahun=2026
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	tahun, err := yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tahun", err)
		return
	}

	nodes, err := h.Store.ListNodes(r.Context(), npd.OrgID(actor.OrganizationID), tahun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(nodes))
	for i, n := range nodes {
		dtos[i] = toAccountDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns a single budget node.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}

	acct, err := h.Store.GetAccount(r.Context(), npd.NodeID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if acct == nil || acct.OrganizationID != npd.OrgID(actor.OrganizationID) {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// AggregateAccounts rolls up akun figures into the parent levels.
// POST /api/accounts/aggregate?tahun=2026
func (h *Handler) AggregateAccounts(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	tahun, err := yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tahun", err)
		return
	}

	var nodes []npd.BudgetAccount
	err = h.Store.WithTx(r.Context(), func(s npd.Store) error {
		nodes, err = npd.NewLedger(s).AggregateTree(r.Context(), npd.OrgID(actor.OrganizationID), tahun)
		return err
	})
	if err != nil {
		h.writeDomainError(w, "Failed to aggregate", err)
		return
	}

	dtos := make([]AccountDTO, len(nodes))
	for i, n := range nodes {
		dtos[i] = toAccountDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// NPD HANDLERS
// =============================================================================

// CreateNPD creates a draft document against a subkegiatan.
// POST /api/npd
func (h *Handler) CreateNPD(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	var req CreateNPDRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	doc, err := h.Workflow.Create(r.Context(), actor, npd.NodeID(req.SubkegiatanID), npd.Jenis(req.Jenis), req.Tahun)
	if err != nil {
		h.writeDomainError(w, "Failed to create npd", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentDTO(*doc))
}

// ListNPD returns the organization's documents for one year.
// GET /api/npd?tahun=2026
func (h *Handler) ListNPD(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	tahun, err := yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tahun", err)
		return
	}

	docs, err := h.Store.ListDocuments(r.Context(), npd.OrgID(actor.OrganizationID), tahun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list npd", err)
		return
	}
	dtos := make([]DocumentDTO, len(docs))
	for i, d := range docs {
		dtos[i] = toDocumentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetNPD returns one document with its lines.
// GET /api/npd/{id}
func (h *Handler) GetNPD(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	id := npd.DocumentID(chi.URLParam(r, "id"))

	doc, err := h.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get npd", err)
		return
	}
	if doc == nil || doc.OrganizationID != npd.OrgID(actor.OrganizationID) {
		writeError(w, http.StatusNotFound, "NPD not found", nil)
		return
	}

	lines, err := h.Store.ListLines(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lines", err)
		return
	}

	dto := toDocumentDTO(*doc)
	dto.Lines = make([]LineDTO, len(lines))
	for i, l := range lines {
		dto.Lines[i] = toLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dto)
}

// AddLine appends a validated line to a draft document.
// POST /api/npd/{id}/lines
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	var req AddLineRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	line, err := h.Workflow.AddLine(r.Context(), actor,
		npd.DocumentID(chi.URLParam(r, "id")),
		npd.NodeID(req.AccountID), req.Uraian, npd.NewAmount(req.Jumlah))
	if err != nil {
		h.writeDomainError(w, "Failed to add line", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineDTO(*line))
}

// UpdateLine changes a line's amount.
// PUT /api/npd/lines/{lineId}
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	var req UpdateLineRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	line, err := h.Workflow.UpdateLine(r.Context(), actor,
		npd.LineID(chi.URLParam(r, "lineId")), npd.NewAmount(req.Jumlah))
	if err != nil {
		h.writeDomainError(w, "Failed to update line", err)
		return
	}
	writeJSON(w, http.StatusOK, toLineDTO(*line))
}

// RemoveLine deletes a line and releases its reservation.
// DELETE /api/npd/lines/{lineId}
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}

	if err := h.Workflow.RemoveLine(r.Context(), actor, npd.LineID(chi.URLParam(r, "lineId"))); err != nil {
		h.writeDomainError(w, "Failed to remove line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitNPD moves draft -> diajukan.
// POST /api/npd/{id}/submit
func (h *Handler) SubmitNPD(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor auth.Actor, id npd.DocumentID) (*npd.Document, error) {
		return h.Workflow.Submit(r.Context(), actor, id)
	})
}

// VerifyNPD moves diajukan -> diverifikasi.
// POST /api/npd/{id}/verify
func (h *Handler) VerifyNPD(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if r.ContentLength > 0 {
		if err := h.decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err)
			return
		}
	}
	h.transition(w, r, func(actor auth.Actor, id npd.DocumentID) (*npd.Document, error) {
		return h.Workflow.Verify(r.Context(), actor, id, req.Notes)
	})
}

// RejectNPD sends a document back to draft with a reason.
// POST /api/npd/{id}/reject
func (h *Handler) RejectNPD(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	h.transition(w, r, func(actor auth.Actor, id npd.DocumentID) (*npd.Document, error) {
		return h.Workflow.Reject(r.Context(), actor, id, req.Reason)
	})
}

// FinalizeNPD moves diverifikasi -> final.
// POST /api/npd/{id}/finalize
func (h *Handler) FinalizeNPD(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor auth.Actor, id npd.DocumentID) (*npd.Document, error) {
		return h.Workflow.Finalize(r.Context(), actor, id)
	})
}

// LockNPD takes the advisory verification lock.
// POST /api/npd/{id}/lock
func (h *Handler) LockNPD(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	if r.ContentLength > 0 {
		if err := h.decodeAndValidate(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err)
			return
		}
	}
	ttl := npd.DefaultLockTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}
	h.transition(w, r, func(actor auth.Actor, id npd.DocumentID) (*npd.Document, error) {
		return h.Workflow.Lock(r.Context(), actor, id, req.Reason, ttl)
	})
}

// UnlockNPD releases the advisory lock.
// POST /api/npd/{id}/unlock
func (h *Handler) UnlockNPD(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor auth.Actor, id npd.DocumentID) (*npd.Document, error) {
		return h.Workflow.Unlock(r.Context(), actor, id)
	})
}

// transition is the shared shape of the document-level POST handlers.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(auth.Actor, npd.DocumentID) (*npd.Document, error)) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	doc, err := op(actor, npd.DocumentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Operation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(*doc))
}

// =============================================================================
// SP2D HANDLERS
// =============================================================================

// CreateSP2D records a warrant against a final NPD and distributes its
// amount across the document's lines.
// POST /api/sp2d
func (h *Handler) CreateSP2D(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	var req CreateSP2DRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	tgl, _ := time.Parse("2006-01-02", req.TglSP2D)

	ref, err := h.Realizations.Create(r.Context(), actor,
		npd.DocumentID(req.NPDID), req.NoSP2D, tgl, npd.NewAmount(req.NilaiCair))
	if err != nil {
		h.writeDomainError(w, "Failed to create sp2d", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSP2DDTO(*ref))
}

// ListSP2D returns the warrants of one document, deleted ones included.
// GET /api/sp2d?npdId=...
func (h *Handler) ListSP2D(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	npdID := npd.DocumentID(r.URL.Query().Get("npdId"))
	if npdID == "" {
		writeError(w, http.StatusBadRequest, "npdId query parameter is required", nil)
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), npdID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get npd", err)
		return
	}
	if doc == nil || doc.OrganizationID != npd.OrgID(actor.OrganizationID) {
		writeError(w, http.StatusNotFound, "NPD not found", nil)
		return
	}

	refs, err := h.Store.ListSP2DByNPD(r.Context(), npdID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sp2d", err)
		return
	}
	dtos := make([]SP2DDTO, len(refs))
	for i, ref := range refs {
		dtos[i] = toSP2DDTO(ref)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSP2DRealizations returns the stored per-line shares of one warrant.
// GET /api/sp2d/{id}/realizations
func (h *Handler) GetSP2DRealizations(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	id := npd.SP2DID(chi.URLParam(r, "id"))

	ref, err := h.Store.GetSP2D(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get sp2d", err)
		return
	}
	if ref == nil || ref.OrganizationID != npd.OrgID(actor.OrganizationID) {
		writeError(w, http.StatusNotFound, "SP2D not found", nil)
		return
	}

	rows, err := h.Store.ListRealizations(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list realizations", err)
		return
	}
	dtos := make([]RealizationDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toRealizationDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateSP2D edits a warrant's disbursed amount.
// PUT /api/sp2d/{id}
func (h *Handler) UpdateSP2D(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	var req UpdateSP2DRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	var tgl *time.Time
	if req.TglSP2D != nil {
		t, _ := time.Parse("2006-01-02", *req.TglSP2D)
		tgl = &t
	}

	ref, err := h.Realizations.Update(r.Context(), actor,
		npd.SP2DID(chi.URLParam(r, "id")), npd.NewAmount(req.NilaiCair), tgl)
	if err != nil {
		h.writeDomainError(w, "Failed to update sp2d", err)
		return
	}
	writeJSON(w, http.StatusOK, toSP2DDTO(*ref))
}

// SoftDeleteSP2D reverses a warrant's ledger effect and flags it deleted.
// DELETE /api/sp2d/{id}
func (h *Handler) SoftDeleteSP2D(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	var req SoftDeleteSP2DRequest
	if r.ContentLength > 0 {
		json.NewDecoder(r.Body).Decode(&req)
	}

	ref, err := h.Realizations.SoftDelete(r.Context(), actor,
		npd.SP2DID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to delete sp2d", err)
		return
	}
	writeJSON(w, http.StatusOK, toSP2DDTO(*ref))
}

// RestoreSP2D re-applies a soft-deleted warrant.
// POST /api/sp2d/{id}/restore
func (h *Handler) RestoreSP2D(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}

	ref, err := h.Realizations.Restore(r.Context(), actor, npd.SP2DID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to restore sp2d", err)
		return
	}
	writeJSON(w, http.StatusOK, toSP2DDTO(*ref))
}

// =============================================================================
// RKA IMPORT
// =============================================================================

// ImportRKA loads pre-parsed budget rows into the tree.
// POST /api/rka/import
func (h *Handler) ImportRKA(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	var req ImportRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	rows := make([]rka.Row, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = rka.Row{
			ProgramKode:     row.ProgramKode,
			ProgramNama:     row.ProgramNama,
			KegiatanKode:    row.KegiatanKode,
			KegiatanNama:    row.KegiatanNama,
			SubkegiatanKode: row.SubkegiatanKode,
			SubkegiatanNama: row.SubkegiatanNama,
			AkunKode:        row.AkunKode,
			AkunNama:        row.AkunNama,
			PaguTahun:       npd.NewAmount(row.PaguTahun),
		}
	}

	result, err := h.Importer.Apply(r.Context(), actor, req.Tahun, rows)
	if err != nil {
		h.writeDomainError(w, "Import failed", err)
		return
	}

	dto := ImportResultDTO{Applied: result.Applied, Rejected: make([]ImportErrorDTO, len(result.Rejected))}
	for i, re := range result.Rejected {
		dto.Rejected[i] = ImportErrorDTO{Index: re.Index, Reason: re.Reason}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// AUDIT AND DASHBOARD
// =============================================================================

// QueryAudit returns audit entries filtered by query parameters.
// GET /api/audit?entityTable=npd_documents&entityId=...&limit=50
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	if !auth.HasPermission(actor.Role, auth.CapViewAudit) {
		writeError(w, http.StatusForbidden, "Permission denied", nil)
		return
	}

	q := r.URL.Query()
	filter := npd.AuditFilter{
		OrganizationID: npd.OrgID(actor.OrganizationID),
		EntityTable:    q.Get("entityTable"),
		EntityID:       q.Get("entityId"),
		ActorUserID:    q.Get("actorUserId"),
		Limit:          100,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			filter.Limit = n
		}
	}
	if v := q.Get("action"); v != "" {
		filter.Actions = []npd.AuditAction{npd.AuditAction(v)}
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Dashboard summarizes the fiscal year: totals plus per-program rows.
// GET /api/dashboard?tahun=2026
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}
	tahun, err := yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tahun", err)
		return
	}

	nodes, err := h.Store.ListNodes(r.Context(), npd.OrgID(actor.OrganizationID), tahun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dto := DashboardDTO{Tahun: tahun, Programs: []DashboardRow{}}
	for _, n := range nodes {
		switch n.Kind {
		case npd.KindAkun:
			// Totals come from leaves so they stay correct even when the
			// parents have not been re-aggregated.
			dto.TotalPagu += n.Pagu.Int64()
			dto.TotalCommitted += n.Committed.Int64()
			dto.TotalDisbursed += n.Disbursed.Int64()
		case npd.KindProgram:
			dto.Programs = append(dto.Programs, DashboardRow{
				Kode:      n.Kode,
				Nama:      n.Nama,
				Pagu:      n.Pagu.Int64(),
				Committed: n.Committed.Int64(),
				Disbursed: n.Disbursed.Int64(),
			})
		}
	}
	dto.TotalSisaPagu = dto.TotalPagu - dto.TotalCommitted
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func yearParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("tahun")
	if v == "" {
		return 0, errors.New("tahun query parameter is required")
	}
	return strconv.Atoi(v)
}

// writeDomainError maps domain error kinds to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, npd.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, npd.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, npd.ErrConflict):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, npd.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, npd.ErrBudgetExceeded), errors.Is(err, npd.ErrStateTransition):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
