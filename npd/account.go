/*
account.go - Budget ledger primitive and tree aggregation

PURPOSE:
  The Ledger is the single mutation path for account money figures. It is
  a pure accumulator: it does not enforce non-negativity, because the
  validator has already run inside the same transaction. Keeping the two
  concerns separate keeps the ledger trivially auditable.

INVARIANT:
  SisaPagu + Committed == Pagu for every account at the end of every
  top-level operation. SisaPagu is derived, so the invariant reduces to
  the accumulators only ever moving through ApplyDelta.

AGGREGATION:
  Parent nodes (Subkegiatan/Kegiatan/Program) are never independently
  authoritative: Aggregate recomputes a parent as the sum over its direct
  children and is idempotent between mutations.
*/
package npd

import "context"

// Ledger wraps the account store's delta primitive with existence checks
// and parent aggregation.
type Ledger struct {
	Store AccountStore
}

func NewLedger(store AccountStore) *Ledger {
	return &Ledger{Store: store}
}

// ApplyDelta adds delta to the selected accumulator of an akun node.
// Fails with NotFoundError if the account is missing.
func (l *Ledger) ApplyDelta(ctx context.Context, id NodeID, kind DeltaKind, delta Amount) error {
	return l.Store.ApplyDelta(ctx, id, kind, delta)
}

// Aggregate recomputes a parent node's pagu/committed/disbursed as the sum
// over its direct children, persists the result, and returns it.
func (l *Ledger) Aggregate(ctx context.Context, parentID NodeID) (*BudgetAccount, error) {
	parent, err := l.Store.GetAccount(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, &NotFoundError{Entity: "account", ID: string(parentID)}
	}

	children, err := l.Store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}

	pagu, committed, disbursed := ZeroAmount(), ZeroAmount(), ZeroAmount()
	for _, c := range children {
		pagu = pagu.Add(c.Pagu)
		committed = committed.Add(c.Committed)
		disbursed = disbursed.Add(c.Disbursed)
	}

	parent.Pagu = pagu
	parent.Committed = committed
	parent.Disbursed = disbursed
	if err := l.Store.SaveAccount(ctx, *parent); err != nil {
		return nil, err
	}
	return parent, nil
}

// AggregateTree recomputes every parent bottom-up (akun -> subkegiatan ->
// kegiatan -> program) for one organization and fiscal year. Used by the
// dashboard read path; cheap enough to run on demand.
func (l *Ledger) AggregateTree(ctx context.Context, org OrgID, year int) ([]BudgetAccount, error) {
	nodes, err := l.Store.ListNodes(ctx, org, year)
	if err != nil {
		return nil, err
	}

	// Children grouped by parent; akun figures are authoritative.
	byParent := make(map[NodeID][]BudgetAccount)
	for _, n := range nodes {
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}

	for _, kind := range []NodeKind{KindSubkegiatan, KindKegiatan, KindProgram} {
		for i, n := range nodes {
			if n.Kind != kind {
				continue
			}
			pagu, committed, disbursed := ZeroAmount(), ZeroAmount(), ZeroAmount()
			for _, c := range byParent[n.ID] {
				pagu = pagu.Add(c.Pagu)
				committed = committed.Add(c.Committed)
				disbursed = disbursed.Add(c.Disbursed)
			}
			nodes[i].Pagu = pagu
			nodes[i].Committed = committed
			nodes[i].Disbursed = disbursed
			if err := l.Store.SaveAccount(ctx, nodes[i]); err != nil {
				return nil, err
			}
			// Refresh the parent map so the next level sums updated figures.
			byParent[n.ParentID] = replaceNode(byParent[n.ParentID], nodes[i])
		}
	}
	return nodes, nil
}

func replaceNode(list []BudgetAccount, node BudgetAccount) []BudgetAccount {
	for i, n := range list {
		if n.ID == node.ID {
			list[i] = node
			return list
		}
	}
	return append(list, node)
}
