/*
dto.go - Request and response data structures

PURPOSE:
  Wire-level types for the REST API. Request bodies carry validation tags
  checked by go-playground/validator before any domain call; response
  types flatten domain structs into JSON-friendly shapes with string
  amounts (integer rupiah, no fractional digits).

SEE ALSO:
  - handlers.go: where these are decoded, validated, and produced
*/
package api

import (
	"time"

	"github.com/sipd/npd-tracker/npd"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateNPDRequest struct {
	SubkegiatanID string `json:"subkegiatanId" validate:"required"`
	Jenis         string `json:"jenis" validate:"required,oneof=UP GU TU LS"`
	Tahun         int    `json:"tahun" validate:"required,min=2000,max=2100"`
}

type AddLineRequest struct {
	AccountID string `json:"accountId" validate:"required"`
	Uraian    string `json:"uraian"`
	Jumlah    int64  `json:"jumlah" validate:"required,gt=0"`
}

type UpdateLineRequest struct {
	Jumlah int64 `json:"jumlah" validate:"required,gt=0"`
}

type VerifyRequest struct {
	Notes string `json:"notes"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type LockRequest struct {
	Reason     string `json:"reason"`
	TTLMinutes int    `json:"ttlMinutes" validate:"omitempty,min=1,max=1440"`
}

type CreateSP2DRequest struct {
	NPDID     string `json:"npdId" validate:"required"`
	NoSP2D    string `json:"noSp2d" validate:"required"`
	TglSP2D   string `json:"tglSp2d" validate:"required,datetime=2006-01-02"`
	NilaiCair int64  `json:"nilaiCair" validate:"required,gt=0"`
}

type UpdateSP2DRequest struct {
	NilaiCair int64   `json:"nilaiCair" validate:"required,gt=0"`
	TglSP2D   *string `json:"tglSp2d" validate:"omitempty,datetime=2006-01-02"`
}

type SoftDeleteSP2DRequest struct {
	Reason string `json:"reason"`
}

type ImportRowRequest struct {
	ProgramKode     string `json:"programKode" validate:"required"`
	ProgramNama     string `json:"programNama"`
	KegiatanKode    string `json:"kegiatanKode" validate:"required"`
	KegiatanNama    string `json:"kegiatanNama"`
	SubkegiatanKode string `json:"subkegiatanKode" validate:"required"`
	SubkegiatanNama string `json:"subkegiatanNama"`
	AkunKode        string `json:"akunKode" validate:"required"`
	AkunNama        string `json:"akunNama"`
	PaguTahun       int64  `json:"paguTahun" validate:"min=0"`
}

type ImportRequest struct {
	Tahun int                `json:"tahun" validate:"required,min=2000,max=2100"`
	Rows  []ImportRowRequest `json:"rows" validate:"required,min=1,dive"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type AccountDTO struct {
	ID         string `json:"id"`
	Kode       string `json:"kode"`
	Nama       string `json:"nama"`
	Kind       string `json:"kind"`
	ParentID   string `json:"parentId,omitempty"`
	FiscalYear int    `json:"fiscalYear"`
	Status     string `json:"status"`
	Pagu       int64  `json:"pagu"`
	Committed  int64  `json:"committed"`
	Disbursed  int64  `json:"disbursed"`
	SisaPagu   int64  `json:"sisaPagu"`
}

func toAccountDTO(a npd.BudgetAccount) AccountDTO {
	return AccountDTO{
		ID:         string(a.ID),
		Kode:       a.Kode,
		Nama:       a.Nama,
		Kind:       string(a.Kind),
		ParentID:   string(a.ParentID),
		FiscalYear: a.FiscalYear,
		Status:     string(a.Status),
		Pagu:       a.Pagu.Int64(),
		Committed:  a.Committed.Int64(),
		Disbursed:  a.Disbursed.Int64(),
		SisaPagu:   a.SisaPagu().Int64(),
	}
}

type LineDTO struct {
	ID        string `json:"id"`
	NPDID     string `json:"npdId"`
	AccountID string `json:"accountId"`
	Uraian    string `json:"uraian"`
	Jumlah    int64  `json:"jumlah"`
}

func toLineDTO(l npd.Line) LineDTO {
	return LineDTO{
		ID:        string(l.ID),
		NPDID:     string(l.NPDID),
		AccountID: string(l.AccountID),
		Uraian:    l.Uraian,
		Jumlah:    l.Jumlah.Int64(),
	}
}

type DocumentDTO struct {
	ID             string    `json:"id"`
	DocumentNumber string    `json:"documentNumber"`
	Jenis          string    `json:"jenis"`
	SubkegiatanID  string    `json:"subkegiatanId"`
	Status         string    `json:"status"`
	Tahun          int       `json:"tahun"`
	Catatan        string    `json:"catatan,omitempty"`
	CreatedBy      string    `json:"createdBy"`
	VerifiedBy     string    `json:"verifiedBy,omitempty"`
	VerifiedAt     *string   `json:"verifiedAt,omitempty"`
	FinalizedBy    string    `json:"finalizedBy,omitempty"`
	FinalizedAt    *string   `json:"finalizedAt,omitempty"`
	IsLocked       bool      `json:"isLocked"`
	LockedBy       string    `json:"lockedBy,omitempty"`
	LockExpiresAt  *string   `json:"lockExpiresAt,omitempty"`
	CreatedAt      string    `json:"createdAt"`
	Lines          []LineDTO `json:"lines,omitempty"`
}

func toDocumentDTO(d npd.Document) DocumentDTO {
	return DocumentDTO{
		ID:             string(d.ID),
		DocumentNumber: d.DocumentNumber,
		Jenis:          string(d.Jenis),
		SubkegiatanID:  string(d.SubkegiatanID),
		Status:         string(d.Status),
		Tahun:          d.Tahun,
		Catatan:        d.Catatan,
		CreatedBy:      d.CreatedBy,
		VerifiedBy:     d.VerifiedBy,
		VerifiedAt:     formatTimePtr(d.VerifiedAt),
		FinalizedBy:    d.FinalizedBy,
		FinalizedAt:    formatTimePtr(d.FinalizedAt),
		IsLocked:       d.IsLocked,
		LockedBy:       d.LockedBy,
		LockExpiresAt:  formatTimePtr(d.LockExpiresAt),
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
	}
}

type SP2DDTO struct {
	ID        string  `json:"id"`
	NPDID     string  `json:"npdId"`
	NoSP2D    string  `json:"noSp2d"`
	TglSP2D   string  `json:"tglSp2d"`
	NilaiCair int64   `json:"nilaiCair"`
	Deleted   bool    `json:"deleted"`
	DeletedAt *string `json:"deletedAt,omitempty"`
	CreatedBy string  `json:"createdBy"`
	CreatedAt string  `json:"createdAt"`
}

func toSP2DDTO(ref npd.SP2DRef) SP2DDTO {
	return SP2DDTO{
		ID:        string(ref.ID),
		NPDID:     string(ref.NPDID),
		NoSP2D:    ref.NoSP2D,
		TglSP2D:   ref.TglSP2D.Format("2006-01-02"),
		NilaiCair: ref.NilaiCair.Int64(),
		Deleted:   ref.Deleted(),
		DeletedAt: formatTimePtr(ref.DeletedAt),
		CreatedBy: ref.CreatedBy,
		CreatedAt: ref.CreatedAt.Format(time.RFC3339),
	}
}

type RealizationDTO struct {
	ID        string `json:"id"`
	SP2DID    string `json:"sp2dId"`
	LineID    string `json:"lineId"`
	AccountID string `json:"accountId"`
	Jumlah    int64  `json:"jumlah"`
}

func toRealizationDTO(row npd.Realization) RealizationDTO {
	return RealizationDTO{
		ID:        row.ID,
		SP2DID:    string(row.SP2DID),
		LineID:    string(row.LineID),
		AccountID: string(row.AccountID),
		Jumlah:    row.Jumlah.Int64(),
	}
}

type AuditEntryDTO struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	EntityTable string         `json:"entityTable"`
	EntityID    string         `json:"entityId"`
	ActorUserID string         `json:"actorUserId"`
	EntityData  map[string]any `json:"entityData,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

func toAuditEntryDTO(e npd.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:          e.ID,
		Action:      string(e.Action),
		EntityTable: e.EntityTable,
		EntityID:    e.EntityID,
		ActorUserID: e.ActorUserID,
		EntityData:  e.EntityData,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

type ImportResultDTO struct {
	Applied  int              `json:"applied"`
	Rejected []ImportErrorDTO `json:"rejected"`
}

type ImportErrorDTO struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// DashboardDTO summarizes one organization's fiscal year at a glance.
type DashboardDTO struct {
	Tahun          int            `json:"tahun"`
	TotalPagu      int64          `json:"totalPagu"`
	TotalCommitted int64          `json:"totalCommitted"`
	TotalDisbursed int64          `json:"totalDisbursed"`
	TotalSisaPagu  int64          `json:"totalSisaPagu"`
	Programs       []DashboardRow `json:"programs"`
}

type DashboardRow struct {
	Kode      string `json:"kode"`
	Nama      string `json:"nama"`
	Pagu      int64  `json:"pagu"`
	Committed int64  `json:"committed"`
	Disbursed int64  `json:"disbursed"`
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
