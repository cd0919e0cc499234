/*
store.go - Persistence interfaces for the core engine

PURPOSE:
  Defines the boundary between the engines and the database. One concrete
  store (store/sqlite) implements everything; the engines only ever see
  these interfaces.

TRANSACTIONAL CONTRACT:
  Every engine operation runs inside WithTx. Checks and writes happen
  against the same transaction, so a validation read can never be
  invalidated by a concurrent writer between check and write. If the
  closure returns an error, nothing is persisted - including audit rows.

DELTA PATH:
  Account money figures change ONLY through ApplyDelta. There is no
  UPDATE path that sets committed/disbursed directly; this keeps the
  ledger invariant centrally enforced and auditable.

SEE ALSO:
  - store/sqlite/: the concrete implementation
  - account.go: Ledger wrapper over ApplyDelta
*/
package npd

import (
	"context"
	"time"
)

// =============================================================================
// ACCOUNT STORE - Budget tree nodes
// =============================================================================

type AccountStore interface {
	// GetAccount returns nil, nil when the node does not exist.
	GetAccount(ctx context.Context, id NodeID) (*BudgetAccount, error)
	GetAccountByKode(ctx context.Context, org OrgID, year int, kode string) (*BudgetAccount, error)
	SaveAccount(ctx context.Context, acct BudgetAccount) error

	// ApplyDelta atomically adds delta to the selected accumulator.
	// Fails with NotFoundError if the node is missing. Performs no
	// non-negativity check: that is the caller's responsibility.
	ApplyDelta(ctx context.Context, id NodeID, kind DeltaKind, delta Amount) error

	ListChildren(ctx context.Context, parentID NodeID) ([]BudgetAccount, error)
	ListNodes(ctx context.Context, org OrgID, year int) ([]BudgetAccount, error)
}

// =============================================================================
// DOCUMENT STORE - NPD documents and lines
// =============================================================================

type DocumentStore interface {
	GetDocument(ctx context.Context, id DocumentID) (*Document, error)
	SaveDocument(ctx context.Context, doc Document) error
	ListDocuments(ctx context.Context, org OrgID, year int) ([]Document, error)

	// NextDocumentNumber increments and returns the per-(organization, year)
	// sequence. Implementations must use a transactional increment, never a
	// scan over existing numbers.
	NextDocumentNumber(ctx context.Context, org OrgID, year int) (int, error)

	GetLine(ctx context.Context, id LineID) (*Line, error)
	SaveLine(ctx context.Context, line Line) error
	DeleteLine(ctx context.Context, id LineID) error
	ListLines(ctx context.Context, npdID DocumentID) ([]Line, error)

	// SumCommittedForAccount sums line jumlah across all non-draft documents
	// of the organization for the given account, excluding excludeNPD.
	SumCommittedForAccount(ctx context.Context, org OrgID, accountID NodeID, excludeNPD DocumentID) (Amount, error)

	// ListExpiredLocks returns documents whose advisory lock has expired.
	ListExpiredLocks(ctx context.Context, now time.Time) ([]Document, error)
}

// =============================================================================
// SP2D STORE - Warrants and stored realizations
// =============================================================================

type SP2DStore interface {
	GetSP2D(ctx context.Context, id SP2DID) (*SP2DRef, error)
	GetSP2DByNumber(ctx context.Context, org OrgID, noSP2D string) (*SP2DRef, error)
	SaveSP2D(ctx context.Context, ref SP2DRef) error
	ListSP2DByNPD(ctx context.Context, npdID DocumentID) ([]SP2DRef, error)

	SaveRealizations(ctx context.Context, rows []Realization) error
	// ReplaceRealizations swaps the stored shares of one SP2D (used when the
	// disbursed amount is edited and the split is recomputed).
	ReplaceRealizations(ctx context.Context, sp2dID SP2DID, rows []Realization) error
	ListRealizations(ctx context.Context, sp2dID SP2DID) ([]Realization, error)
}

// =============================================================================
// STORE - The full persistence surface
// =============================================================================

type Store interface {
	AccountStore
	DocumentStore
	SP2DStore
	AuditLog

	// WithTx executes fn within a single database transaction. The Store
	// handed to fn is transaction-bound; nested calls reuse the outer
	// transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
