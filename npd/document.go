/*
document.go - NPD disbursement-request document and its state machine

PURPOSE:
  An NPD (Nota Pencairan Dana) requests money against one subkegiatan's
  budget accounts. The document moves through a four-state approval
  pipeline; its line items reserve budget while it is alive.

STATE MACHINE:

  draft ──▶ diajukan ──▶ diverifikasi ──▶ final
    ▲          │              │
    └──────────┴──────────────┘  (rejection, clears verification metadata)

  final has no outgoing edges. All other edges fail with
  StateTransitionError, and the stored status stays unchanged.

LINES:
  Lines are owned exclusively by their document. They can only be mutated
  while the document is not final, and every mutation goes through the
  workflow so that the budget commitment stays reconciled.

SEE ALSO:
  - workflow.go: operations that drive these transitions
  - lock.go: advisory verification lock
*/
package npd

import "time"

// =============================================================================
// STATUS - Document lifecycle states
// =============================================================================

type Status string

const (
	StatusDraft        Status = "draft"
	StatusDiajukan     Status = "diajukan"
	StatusDiverifikasi Status = "diverifikasi"
	StatusFinal        Status = "final"
)

// transitions is the authoritative edge table. Kept as data so legality
// checks stay a lookup, not code branching.
var transitions = map[Status][]Status{
	StatusDraft:        {StatusDiajukan},
	StatusDiajukan:     {StatusDiverifikasi, StatusDraft},
	StatusDiverifikasi: {StatusFinal, StatusDraft},
	StatusFinal:        {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// JENIS - Disbursement mechanism
// =============================================================================

type Jenis string

const (
	JenisUP Jenis = "UP" // uang persediaan
	JenisGU Jenis = "GU" // ganti uang
	JenisTU Jenis = "TU" // tambahan uang
	JenisLS Jenis = "LS" // langsung
)

func ValidJenis(j Jenis) bool {
	switch j {
	case JenisUP, JenisGU, JenisTU, JenisLS:
		return true
	}
	return false
}

// =============================================================================
// DOCUMENT
// =============================================================================

type Document struct {
	ID             DocumentID
	DocumentNumber string // NPD-{year}-{seq:3}, unique per organization+year
	Jenis          Jenis
	SubkegiatanID  NodeID
	Status         Status
	OrganizationID OrgID
	Tahun          int
	Catatan        string

	CreatedBy   string
	VerifiedBy  string
	VerifiedAt  *time.Time
	FinalizedBy string
	FinalizedAt *time.Time

	// Advisory verification lock (see lock.go)
	IsLocked      bool
	LockedBy      string
	LockedAt      *time.Time
	LockExpiresAt *time.Time
	LockReason    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Editable reports whether line mutations are allowed.
func (d Document) Editable() bool {
	return d.Status != StatusFinal
}

// LockHeldBy reports whether another actor currently holds a live lock.
func (d Document) LockHeldBy(now time.Time, userID string) bool {
	if !d.IsLocked || d.LockExpiresAt == nil {
		return false
	}
	if now.After(*d.LockExpiresAt) {
		return false
	}
	return d.LockedBy != userID
}

// =============================================================================
// LINE - Budget reservation owned by a document
// =============================================================================

type Line struct {
	ID        LineID
	NPDID     DocumentID
	AccountID NodeID
	Uraian    string
	Jumlah    Amount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinesTotal sums the requested amounts of a document's lines.
func LinesTotal(lines []Line) Amount {
	total := ZeroAmount()
	for _, l := range lines {
		total = total.Add(l.Jumlah)
	}
	return total
}
