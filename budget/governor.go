// 一揽子预算治理：在任何工作开始之前决定一次运行能花多少资源，
// 预算不足时自动向更便宜的档位降级。
package budget

import (
	"strings"

	"go.uber.org/zap"
)

// Request 描述档位选择的输入。
type Request struct {
	// Goal 自由文本目标，用于关键词启发式。
	Goal string `json:"goal"`
	// TierHint 上游直接指定的档位（优先于启发式）。
	TierHint Tier `json:"tier_hint,omitempty"`
}

// Reservation 一次运行的预算预留结果。创建后不再修改；
// 需要重新评估时创建新的 Reservation。
type Reservation struct {
	Tier           Tier       `json:"tier"`
	Reserved       int        `json:"reserved"`
	Remaining      int        `json:"remaining"`
	Approved       bool       `json:"approved"`
	DowngradedFrom Tier       `json:"downgraded_from,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Allocation     Allocation `json:"allocation"`
}

// quickTokens / deepTokens 目标文本中触发对应档位的关键词。
var (
	quickTokens = []string{"quick", "price check", "fast check", "just check"}
	deepTokens  = []string{"comprehensive", "thorough", "in-depth", "exhaustive", "deep dive"}
)

// Governor 预算治理器。无副作用，可用不同输入反复调用。
type Governor struct {
	allocations map[Tier]Allocation
	logger      *zap.Logger
}

// NewGovernor 创建预算治理器。allocations 为 nil 时使用默认预算表。
func NewGovernor(allocations map[Tier]Allocation, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if allocations == nil {
		allocations = DefaultAllocations()
	}
	return &Governor{
		allocations: allocations,
		logger:      logger.With(zap.String("component", "budget_governor")),
	}
}

// Allocation 返回某档位的预算拆分。
func (g *Governor) Allocation(t Tier) (Allocation, bool) {
	a, ok := g.allocations[t]
	return a, ok
}

// SelectTier 选择档位：显式提示 → 关键词启发式 → 默认 STANDARD。
func (g *Governor) SelectTier(req Request) Tier {
	if req.TierHint.Valid() {
		g.logger.Debug("tier selected by explicit hint",
			zap.String("tier", string(req.TierHint)))
		return req.TierHint
	}

	goal := strings.ToLower(req.Goal)
	for _, token := range quickTokens {
		if strings.Contains(goal, token) {
			g.logger.Debug("tier selected by keyword", zap.String("token", token),
				zap.String("tier", string(TierQuick)))
			return TierQuick
		}
	}
	for _, token := range deepTokens {
		if strings.Contains(goal, token) {
			g.logger.Debug("tier selected by keyword", zap.String("token", token),
				zap.String("tier", string(TierDeep)))
			return TierDeep
		}
	}
	return TierStandard
}

// Reserve 尝试为档位预留预算。
// 放不下时沿 DEEP→STANDARD→QUICK 逐级降级，每一级都要先检查；
// 最便宜的档位也放不下时返回 Approved=false。
func (g *Governor) Reserve(tier Tier, availableBudget int) Reservation {
	if !tier.Valid() {
		return Reservation{
			Tier:     tier,
			Approved: false,
			Reason:   "unknown_tier",
		}
	}

	original := tier
	for _, candidate := range downgradeOrder {
		// 只考虑 <= 请求档位的候选，保证降级严格向便宜方向。
		if candidate.rank() > tier.rank() {
			continue
		}
		alloc := g.allocations[candidate]
		if alloc.Total <= 0 || alloc.Total > availableBudget {
			continue
		}

		res := Reservation{
			Tier:       candidate,
			Reserved:   alloc.Total,
			Remaining:  availableBudget - alloc.Total,
			Approved:   true,
			Allocation: alloc,
		}
		if candidate != original {
			res.DowngradedFrom = original
			g.logger.Info("budget tier downgraded",
				zap.String("from", string(original)),
				zap.String("to", string(candidate)),
				zap.Int("available", availableBudget))
		} else {
			g.logger.Debug("budget reserved",
				zap.String("tier", string(candidate)),
				zap.Int("reserved", alloc.Total),
				zap.Int("remaining", res.Remaining))
		}
		return res
	}

	g.logger.Warn("budget insufficient for any tier",
		zap.String("requested", string(original)),
		zap.Int("available", availableBudget))
	return Reservation{
		Tier:      original,
		Reserved:  0,
		Remaining: availableBudget,
		Approved:  false,
		Reason:    "insufficient_budget",
	}
}
