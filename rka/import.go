/*
Package rka ingests pre-parsed budget allocation rows.

PURPOSE:
  RKA (budget work plan) setup feeds the budget tree. The CSV parsing
  itself happens upstream; this package receives rows already mapped to
  hierarchy codes plus a pagu figure, upserts the four node levels, and
  reports what was applied and what was rejected.

RULES:
  - All four codes are required; amounts must not be negative.
  - Nodes are created on first sight, keyed by (organization, year, kode).
  - An existing akun's pagu may be raised or lowered, but never below its
    current committed amount - shrinking an account under its live NPD
    reservations would break the headroom invariant.
  - One import runs as one transaction; a storage failure aborts it, but
    per-row rule violations only skip the row.
*/
package rka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sipd/npd-tracker/auth"
	"github.com/sipd/npd-tracker/npd"
)

// Row is one pre-parsed allocation record.
type Row struct {
	ProgramKode     string
	ProgramNama     string
	KegiatanKode    string
	KegiatanNama    string
	SubkegiatanKode string
	SubkegiatanNama string
	AkunKode        string
	AkunNama        string
	PaguTahun       npd.Amount
}

// RowError ties a rejected row to its reason.
type RowError struct {
	Index  int
	Reason string
}

// Result reports the outcome of one import.
type Result struct {
	Applied  int
	Rejected []RowError
}

// Importer applies allocation rows to the budget tree.
type Importer struct {
	Store npd.Store
	Clock func() time.Time
}

func NewImporter(store npd.Store) *Importer {
	return &Importer{Store: store, Clock: time.Now}
}

func (im *Importer) now() time.Time {
	if im.Clock != nil {
		return im.Clock()
	}
	return time.Now()
}

// Apply upserts the budget nodes described by rows for the actor's
// organization and the given fiscal year.
func (im *Importer) Apply(ctx context.Context, actor auth.Actor, year int, rows []Row) (*Result, error) {
	if !auth.HasPermission(actor.Role, auth.CapImportRKA) {
		return nil, &npd.PermissionError{Role: string(actor.Role), Capability: string(auth.CapImportRKA)}
	}

	result := &Result{}
	org := npd.OrgID(actor.OrganizationID)

	err := im.Store.WithTx(ctx, func(s npd.Store) error {
		for i, row := range rows {
			if reason := validateRow(row); reason != "" {
				result.Rejected = append(result.Rejected, RowError{Index: i, Reason: reason})
				continue
			}

			program, err := im.upsertNode(ctx, s, org, year, row.ProgramKode, row.ProgramNama, npd.KindProgram, npd.NodeID(""))
			if err != nil {
				return err
			}
			kegiatan, err := im.upsertNode(ctx, s, org, year, row.KegiatanKode, row.KegiatanNama, npd.KindKegiatan, program.ID)
			if err != nil {
				return err
			}
			sub, err := im.upsertNode(ctx, s, org, year, row.SubkegiatanKode, row.SubkegiatanNama, npd.KindSubkegiatan, kegiatan.ID)
			if err != nil {
				return err
			}

			if reason, err := im.upsertAkun(ctx, s, org, year, row, sub.ID); err != nil {
				return err
			} else if reason != "" {
				result.Rejected = append(result.Rejected, RowError{Index: i, Reason: reason})
				continue
			}
			result.Applied++
		}

		return s.AppendAudit(ctx, npd.AuditEntry{
			ID:             uuid.NewString(),
			Action:         npd.AuditImported,
			EntityTable:    "budget_nodes",
			EntityID:       fmt.Sprintf("rka-%d", year),
			ActorUserID:    actor.UserID,
			OrganizationID: org,
			EntityData: map[string]any{
				"applied":  result.Applied,
				"rejected": len(result.Rejected),
			},
			CreatedAt: im.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateRow(row Row) string {
	switch {
	case row.ProgramKode == "":
		return "program kode is required"
	case row.KegiatanKode == "":
		return "kegiatan kode is required"
	case row.SubkegiatanKode == "":
		return "subkegiatan kode is required"
	case row.AkunKode == "":
		return "akun kode is required"
	case row.PaguTahun.IsNegative():
		return "pagu must not be negative"
	}
	return ""
}

// upsertNode returns the existing node for (org, year, kode) or creates it.
// Parent aggregates carry no authoritative figures of their own.
func (im *Importer) upsertNode(ctx context.Context, s npd.Store, org npd.OrgID, year int, kode, nama string, kind npd.NodeKind, parentID npd.NodeID) (*npd.BudgetAccount, error) {
	existing, err := s.GetAccountByKode(ctx, org, year, kode)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := im.now()
	node := npd.BudgetAccount{
		ID:             npd.NodeID(uuid.NewString()),
		Kode:           kode,
		Nama:           nama,
		Kind:           kind,
		ParentID:       parentID,
		OrganizationID: org,
		FiscalYear:     year,
		Status:         npd.NodeActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.SaveAccount(ctx, node); err != nil {
		return nil, err
	}
	return &node, nil
}

// upsertAkun creates or re-baselines a leaf account. Returns a non-empty
// reason string when the row violates a rule (skipped, not fatal).
func (im *Importer) upsertAkun(ctx context.Context, s npd.Store, org npd.OrgID, year int, row Row, parentID npd.NodeID) (string, error) {
	existing, err := s.GetAccountByKode(ctx, org, year, row.AkunKode)
	if err != nil {
		return "", err
	}

	now := im.now()
	if existing == nil {
		node := npd.BudgetAccount{
			ID:             npd.NodeID(uuid.NewString()),
			Kode:           row.AkunKode,
			Nama:           row.AkunNama,
			Kind:           npd.KindAkun,
			ParentID:       parentID,
			OrganizationID: org,
			FiscalYear:     year,
			Status:         npd.NodeActive,
			Pagu:           row.PaguTahun,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return "", s.SaveAccount(ctx, node)
	}

	if row.PaguTahun.LessThan(existing.Committed) {
		return fmt.Sprintf("pagu %s below committed %s on %s",
			row.PaguTahun.Value, existing.Committed.Value, row.AkunKode), nil
	}

	existing.Nama = row.AkunNama
	existing.Pagu = row.PaguTahun
	existing.UpdatedAt = now
	return "", s.SaveAccount(ctx, *existing)
}
