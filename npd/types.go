/*
Package npd provides the budget-tracking core engine.

PURPOSE:
  This package contains the types and algorithms for hierarchical budget
  accounting and disbursement-request (NPD) workflows. It covers the full
  money path: allocation (pagu) on a budget account, commitment reserved by
  NPD line items, and disbursement realized by payment warrants (SP2D).

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: An exact currency quantity (integer rupiah, decimal-backed)
  - BudgetAccount: A node of the Program/Kegiatan/Subkegiatan/Akun tree
  - DeltaKind: Which accumulator a ledger mutation targets
  - Identifiers: Type-safe IDs for nodes, documents, lines, warrants

DESIGN PRINCIPLES:
  1. Exactness: decimal.Decimal everywhere, never float64
  2. Single mutation path: account figures change only via Ledger.ApplyDelta
  3. Reversibility: every applied figure can be reversed from stored data
  4. Auditability: every mutating operation emits an audit entry

SEE ALSO:
  - account.go: Ledger primitive and tree aggregation
  - document.go: NPD document and its state machine
  - sp2d.go: Payment warrants and proportional distribution
*/
package npd

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Exact currency quantity (integer rupiah)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(v int64) Amount {
	return Amount{Value: decimal.NewFromInt(v)}
}

func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount{Value: d}
}

func MustParseAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{Value: decimal.Zero}
	}
	return Amount{Value: d}
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) Int64() int64              { return a.Value.IntPart() }

// ProRata returns this amount scaled by part/total, rounded to whole rupiah.
// Caller is responsible for total != 0.
func (a Amount) ProRata(part, total Amount) Amount {
	return Amount{Value: a.Value.Mul(part.Value).Div(total.Value).Round(0)}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type NodeID string
type DocumentID string
type LineID string
type SP2DID string
type OrgID string

// =============================================================================
// BUDGET ACCOUNT - Node of the allocation tree
// =============================================================================

// NodeKind distinguishes the four levels of the budget hierarchy.
// Only akun nodes are authoritative; parents hold recomputed aggregates.
type NodeKind string

const (
	KindProgram     NodeKind = "program"
	KindKegiatan    NodeKind = "kegiatan"
	KindSubkegiatan NodeKind = "subkegiatan"
	KindAkun        NodeKind = "akun"
)

type NodeStatus string

const (
	NodeActive NodeStatus = "active"
	NodeClosed NodeStatus = "closed"
)

// BudgetAccount is one node of the Program > Kegiatan > Subkegiatan > Akun
// tree. The three money figures are:
//
//	Pagu      - allocated budget for the fiscal year
//	Committed - reserved by NPD line items (draft and later)
//	Disbursed - actually paid out through SP2D warrants
//
// Validation headroom is SisaPagu = Pagu - Committed; reporting realization
// is RealisasiTahun = Disbursed. The two figures are deliberately separate
// so that a pending request and an executed payment never share a field.
type BudgetAccount struct {
	ID             NodeID
	Kode           string
	Nama           string
	Kind           NodeKind
	ParentID       NodeID
	OrganizationID OrgID
	FiscalYear     int
	Status         NodeStatus

	Pagu      Amount
	Committed Amount
	Disbursed Amount

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SisaPagu is the remaining headroom available for new commitments.
func (a BudgetAccount) SisaPagu() Amount {
	return a.Pagu.Sub(a.Committed)
}

// RealisasiTahun is the cumulative disbursed amount for the fiscal year.
func (a BudgetAccount) RealisasiTahun() Amount {
	return a.Disbursed
}

// DeltaKind selects which accumulator a ledger delta targets.
type DeltaKind string

const (
	DeltaCommitted DeltaKind = "committed"
	DeltaDisbursed DeltaKind = "disbursed"
)

// =============================================================================
// NOTIFICATIONS - Fire-and-forget side effects of state transitions
// =============================================================================

type NotificationEvent struct {
	Type           string // npd_submitted, npd_verified, npd_rejected, npd_finalized, sp2d_created
	OrganizationID OrgID
	DocumentID     DocumentID
	DocumentNumber string
	ActorUserID    string
	Detail         string
}

// Notifier dispatches a notification. Implementations must not block the
// calling mutation; failures are logged, never returned.
type Notifier interface {
	Notify(event NotificationEvent)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(NotificationEvent) {}
