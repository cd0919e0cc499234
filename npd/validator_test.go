package npd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sipd/npd-tracker/npd"
)

func akun(pagu, committed, disbursed int64) npd.BudgetAccount {
	return npd.BudgetAccount{
		ID:        "akun-1",
		Kode:      "5.1.02.01",
		Kind:      npd.KindAkun,
		Pagu:      npd.NewAmount(pagu),
		Committed: npd.NewAmount(committed),
		Disbursed: npd.NewAmount(disbursed),
	}
}

// =============================================================================
// CUMULATIVE CEILING
// =============================================================================

func TestValidateCumulative_WithinPagu_Valid(t *testing.T) {
	// 6M elsewhere + 4M proposed == 10M pagu: exactly at the ceiling is fine
	res := npd.ValidateCumulativePerAccount(akun(10_000_000, 0, 0),
		npd.NewAmount(6_000_000), npd.NewAmount(4_000_000))

	assert.True(t, res.Valid)
	assert.Equal(t, int64(4_000_000), res.Available.Int64())
}

func TestValidateCumulative_OverPagu_Invalid(t *testing.T) {
	res := npd.ValidateCumulativePerAccount(akun(10_000_000, 0, 0),
		npd.NewAmount(6_000_000), npd.NewAmount(4_000_001))

	assert.False(t, res.Valid)
	assert.Equal(t, int64(4_000_000), res.Available.Int64())
}

func TestValidateCumulative_IgnoresDisbursed(t *testing.T) {
	// The ceiling check runs against pagu, independent of what was paid out.
	res := npd.ValidateCumulativePerAccount(akun(10_000_000, 8_000_000, 7_000_000),
		npd.NewAmount(5_000_000), npd.NewAmount(5_000_000))

	assert.True(t, res.Valid)
}

// =============================================================================
// IMMEDIATE HEADROOM
// =============================================================================

func TestValidateImmediate_FitsHeadroom_Valid(t *testing.T) {
	// pagu 10M, committed 7M -> sisaPagu 3M
	res := npd.ValidateImmediateBudget(akun(10_000_000, 7_000_000, 0),
		npd.ZeroAmount(), npd.NewAmount(3_000_000))

	assert.True(t, res.Valid)
	assert.Equal(t, int64(3_000_000), res.Available.Int64())
}

func TestValidateImmediate_ExceedsHeadroom_Invalid(t *testing.T) {
	res := npd.ValidateImmediateBudget(akun(10_000_000, 7_000_000, 0),
		npd.ZeroAmount(), npd.NewAmount(3_000_001))

	assert.False(t, res.Valid)
	assert.Equal(t, int64(3_000_000), res.Available.Int64())
}

func TestValidateImmediate_PendingCountsAgainstHeadroom(t *testing.T) {
	// 2M pending in the same document + 2M proposed > 3M headroom
	res := npd.ValidateImmediateBudget(akun(10_000_000, 7_000_000, 0),
		npd.NewAmount(2_000_000), npd.NewAmount(2_000_000))

	assert.False(t, res.Valid)
}

// =============================================================================
// STATE MACHINE EDGES
// =============================================================================

func TestCanTransition_LegalEdges(t *testing.T) {
	legal := []struct{ from, to npd.Status }{
		{npd.StatusDraft, npd.StatusDiajukan},
		{npd.StatusDiajukan, npd.StatusDiverifikasi},
		{npd.StatusDiajukan, npd.StatusDraft},
		{npd.StatusDiverifikasi, npd.StatusFinal},
		{npd.StatusDiverifikasi, npd.StatusDraft},
	}
	for _, e := range legal {
		assert.True(t, npd.CanTransition(e.from, e.to), "%s -> %s should be legal", e.from, e.to)
	}
}

func TestCanTransition_IllegalEdges(t *testing.T) {
	illegal := []struct{ from, to npd.Status }{
		{npd.StatusDraft, npd.StatusDiverifikasi},
		{npd.StatusDraft, npd.StatusFinal},
		{npd.StatusDiajukan, npd.StatusFinal},
		{npd.StatusFinal, npd.StatusDraft},
		{npd.StatusFinal, npd.StatusDiajukan},
		{npd.StatusFinal, npd.StatusDiverifikasi},
	}
	for _, e := range illegal {
		assert.False(t, npd.CanTransition(e.from, e.to), "%s -> %s should be illegal", e.from, e.to)
	}
}
