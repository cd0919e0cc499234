/*
validator.go - Pure budget validation

PURPOSE:
  Side-effect-free checks consulted before any ledger-affecting mutation.
  Both checks run on every line add/update; a line is accepted only if it
  passes both:

  1. Cumulative ceiling: the sum of all active (non-draft) NPD commitments
     for the account, plus the proposal, must not exceed the nominal pagu.
     This guards the ceiling independently of what has been disbursed.

  2. Immediate headroom: the proposal (plus any same-document lines not
     yet reflected in the ledger) must fit in the account's current
     sisaPagu - the tighter, headroom-wide check.

  The functions are pure comparisons; the caller gathers the figures from
  the store inside the same transaction that performs the write.
*/
package npd

// ValidationResult reports whether a proposal fits and how much room the
// account actually has, so error messages can carry both figures.
type ValidationResult struct {
	Valid     bool
	Available Amount
}

// ValidateCumulativePerAccount checks committedElsewhere + proposedTotal
// against the account's nominal pagu. committedElsewhere is the sum of
// line jumlah across all non-draft NPDs of the organization for this
// account, excluding the NPD being edited; proposedTotal is that NPD's
// proposed total for the account.
func ValidateCumulativePerAccount(account BudgetAccount, committedElsewhere, proposedTotal Amount) ValidationResult {
	available := account.Pagu.Sub(committedElsewhere)
	return ValidationResult{
		Valid:     !committedElsewhere.Add(proposedTotal).GreaterThan(account.Pagu),
		Available: available,
	}
}

// ValidateImmediateBudget checks pendingSameNPD + proposedJumlah against
// the account's current sisaPagu. pendingSameNPD covers same-document
// amounts not yet reserved in the ledger; with eager reservation it is
// zero for adds and the signed delta for edits.
func ValidateImmediateBudget(account BudgetAccount, pendingSameNPD, proposedJumlah Amount) ValidationResult {
	available := account.SisaPagu()
	return ValidationResult{
		Valid:     !pendingSameNPD.Add(proposedJumlah).GreaterThan(available),
		Available: available,
	}
}
