package budget

// Tier 表示一次运行的资源档位。
type Tier string

const (
	// TierQuick 用于快速查证类任务（如价格核对）。
	TierQuick Tier = "QUICK"
	// TierStandard 默认档位，覆盖大多数调研任务。
	TierStandard Tier = "STANDARD"
	// TierDeep 用于全面、深入的调研任务。
	TierDeep Tier = "DEEP"
)

// Valid 返回该档位是否为已知值。
func (t Tier) Valid() bool {
	switch t {
	case TierQuick, TierStandard, TierDeep:
		return true
	default:
		return false
	}
}

// rank 返回档位的序号，用于降级比较（DEEP > STANDARD > QUICK）。
func (t Tier) rank() int {
	switch t {
	case TierQuick:
		return 0
	case TierStandard:
		return 1
	case TierDeep:
		return 2
	default:
		return -1
	}
}

// CheaperThan 返回 t 是否严格便宜于 other。
func (t Tier) CheaperThan(other Tier) bool {
	return t.rank() < other.rank()
}

// downgradeOrder 从贵到便宜的降级顺序。
var downgradeOrder = []Tier{TierDeep, TierStandard, TierQuick}

// Allocation 描述一个档位的总预算及各子阶段的预算拆分。
// 进程启动时定义，之后不可变。
type Allocation struct {
	Total  int            `json:"total" yaml:"total"`
	Phases map[string]int `json:"phases" yaml:"phases"`
}

// 子阶段名称。
const (
	PhaseDiscovery = "discovery"
	PhaseSearch    = "search"
	PhaseSummarize = "summarize"
)

// AllocationsFromTotals 按 20/60/20 的阶段拆分从各档位总预算构建预算表。
func AllocationsFromTotals(quick, standard, deep int) map[Tier]Allocation {
	split := func(total int) Allocation {
		discovery := total / 5
		summarize := total / 5
		return Allocation{
			Total: total,
			Phases: map[string]int{
				PhaseDiscovery: discovery,
				PhaseSearch:    total - discovery - summarize,
				PhaseSummarize: summarize,
			},
		}
	}
	return map[Tier]Allocation{
		TierQuick:    split(quick),
		TierStandard: split(standard),
		TierDeep:     split(deep),
	}
}

// DefaultAllocations 返回默认的档位预算表。
// QUICK=2000 / STANDARD=4000 / DEEP=8000，可通过配置覆盖。
func DefaultAllocations() map[Tier]Allocation {
	return map[Tier]Allocation{
		TierQuick: {
			Total: 2000,
			Phases: map[string]int{
				PhaseDiscovery: 400,
				PhaseSearch:    1200,
				PhaseSummarize: 400,
			},
		},
		TierStandard: {
			Total: 4000,
			Phases: map[string]int{
				PhaseDiscovery: 800,
				PhaseSearch:    2400,
				PhaseSummarize: 800,
			},
		},
		TierDeep: {
			Total: 8000,
			Phases: map[string]int{
				PhaseDiscovery: 1600,
				PhaseSearch:    4800,
				PhaseSummarize: 1600,
			},
		},
	}
}
