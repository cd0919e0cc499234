/*
sp2d.go - Payment warrant (SP2D) types and proportional distribution

PURPOSE:
  An SP2D records a disbursed amount (nilaiCair) against a finalized NPD.
  The amount is split across the NPD's lines proportionally to each line's
  requested jumlah, and every per-line share is stored so that a later
  reversal replays exactly what was applied.

DISTRIBUTION EXACTNESS:
  share_i = round(nilaiCair * jumlah_i / npdTotal)   for i = 1..n-1
  share_n = nilaiCair - sum(share_1..n-1)            (remainder to last line)

  The remainder assignment guarantees sum(share_i) == nilaiCair exactly,
  for all rational proportions including repeating-decimal cases.

SEE ALSO:
  - realization.go: applies and reverses the shares against the ledger
*/
package npd

import "time"

// =============================================================================
// SP2D REFERENCE
// =============================================================================

type SP2DRef struct {
	ID             SP2DID
	NPDID          DocumentID
	OrganizationID OrgID
	NoSP2D         string // unique per organization
	TglSP2D        time.Time
	NilaiCair      Amount

	// Soft delete: the row is never removed, only flagged. Realization rows
	// are kept for audit; their ledger effect is reversed.
	DeletedAt *time.Time
	DeletedBy string

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s SP2DRef) Deleted() bool { return s.DeletedAt != nil }

// =============================================================================
// REALIZATION - One SP2D's share of one account
// =============================================================================

type Realization struct {
	ID        string
	SP2DID    SP2DID
	NPDID     DocumentID
	AccountID NodeID
	LineID    LineID
	Jumlah    Amount
	CreatedAt time.Time
}

// =============================================================================
// DISTRIBUTION
// =============================================================================

// LineShare pairs a line with its computed share of a disbursement.
type LineShare struct {
	LineID    LineID
	AccountID NodeID
	Share     Amount
}

// DistributeShares splits nilaiCair across lines proportionally to their
// jumlah. The last line receives the remainder so the shares always sum to
// nilaiCair exactly. Pure function; no ledger access.
//
// Fails with ValidationError when there are no lines, when the line total
// is zero (no denominator), or when nilaiCair is not positive.
func DistributeShares(lines []Line, nilaiCair Amount) ([]LineShare, error) {
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "lines", Message: "cannot distribute over zero lines"}
	}
	if !nilaiCair.IsPositive() {
		return nil, &ValidationError{Field: "nilaiCair", Message: "disbursed amount must be positive"}
	}

	total := LinesTotal(lines)
	if total.IsZero() {
		return nil, &ValidationError{Field: "lines", Message: "line total is zero"}
	}

	shares := make([]LineShare, len(lines))
	distributed := ZeroAmount()
	for i, l := range lines {
		var share Amount
		if i == len(lines)-1 {
			share = nilaiCair.Sub(distributed)
		} else {
			share = nilaiCair.ProRata(l.Jumlah, total)
			distributed = distributed.Add(share)
		}
		shares[i] = LineShare{LineID: l.ID, AccountID: l.AccountID, Share: share}
	}
	return shares, nil
}
