package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestGovernor() *Governor {
	return NewGovernor(nil, zap.NewNop())
}

func TestSelectTier_ExplicitHint(t *testing.T) {
	g := newTestGovernor()

	// 显式提示优先于关键词
	tier := g.SelectTier(Request{Goal: "a comprehensive study", TierHint: TierQuick})
	assert.Equal(t, TierQuick, tier)
}

func TestSelectTier_Keywords(t *testing.T) {
	g := newTestGovernor()

	tests := []struct {
		goal string
		want Tier
	}{
		{"quick price check for item X", TierQuick},
		{"do a Price Check on these laptops", TierQuick},
		{"comprehensive review of the market", TierDeep},
		{"an in-depth analysis of suppliers", TierDeep},
		{"find hotels in Lisbon", TierStandard},
		{"", TierStandard},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.SelectTier(Request{Goal: tt.goal}), "goal=%q", tt.goal)
	}
}

func TestReserve_Approved(t *testing.T) {
	g := newTestGovernor()

	res := g.Reserve(TierStandard, 5000)
	assert.True(t, res.Approved)
	assert.Equal(t, TierStandard, res.Tier)
	assert.Equal(t, 4000, res.Reserved)
	assert.Equal(t, 1000, res.Remaining)
	assert.Empty(t, res.DowngradedFrom)
	assert.Equal(t, 2400, res.Allocation.Phases[PhaseSearch])
}

func TestReserve_DowngradeOneStep(t *testing.T) {
	g := newTestGovernor()

	res := g.Reserve(TierDeep, 5000)
	assert.True(t, res.Approved)
	assert.Equal(t, TierStandard, res.Tier)
	assert.Equal(t, TierDeep, res.DowngradedFrom)
	assert.Equal(t, 4000, res.Reserved)
}

func TestReserve_DowngradeToCheapest(t *testing.T) {
	g := newTestGovernor()

	res := g.Reserve(TierDeep, 2500)
	assert.True(t, res.Approved)
	assert.Equal(t, TierQuick, res.Tier)
	assert.Equal(t, TierDeep, res.DowngradedFrom)
	assert.Equal(t, 2000, res.Reserved)
	assert.Equal(t, 500, res.Remaining)
}

func TestReserve_Insufficient(t *testing.T) {
	g := newTestGovernor()

	res := g.Reserve(TierDeep, 1999)
	assert.False(t, res.Approved)
	assert.Equal(t, 0, res.Reserved)
	assert.Equal(t, "insufficient_budget", res.Reason)
}

func TestReserve_ExactBoundaryInclusive(t *testing.T) {
	g := newTestGovernor()

	// 预算恰好等于档位总额时应批准（阈值为 ≥ 语义）
	res := g.Reserve(TierDeep, 8000)
	assert.True(t, res.Approved)
	assert.Equal(t, TierDeep, res.Tier)
	assert.Equal(t, 0, res.Remaining)
}

func TestReserve_UnknownTier(t *testing.T) {
	g := newTestGovernor()

	res := g.Reserve(Tier("MEGA"), 100000)
	assert.False(t, res.Approved)
	assert.Equal(t, "unknown_tier", res.Reason)
}

func TestReserve_NeverSkipsAffordableTier(t *testing.T) {
	g := newTestGovernor()

	// STANDARD 放得下时绝不能直接落到 QUICK
	res := g.Reserve(TierDeep, 4000)
	assert.True(t, res.Approved)
	assert.Equal(t, TierStandard, res.Tier)
}
