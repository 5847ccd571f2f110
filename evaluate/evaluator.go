package evaluate

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// 满意度评估框架
// ============================================================================
//
// 每个 pass 结束后，用四个相互独立的质量信号判断证据是否足够：
//
//   - 覆盖度 (coverage)：累计检视的独立来源数是否达标
//   - 质量 (quality)：聚合置信度（调用方提供，0.0-1.0）是否达标
//   - 完整性 (completeness)：必填字段是否都在采样条目上出现
//   - 矛盾 (contradictions)：合成结果中是否还有未解决的冲突
//
// 评估器从不因为"不满意"而报错——CONTINUE 是数据，不是错误。
// ============================================================================

// Decision 一个 pass 的终局判定。
type Decision string

const (
	DecisionComplete Decision = "COMPLETE"
	DecisionContinue Decision = "CONTINUE"
)

// Criterion 评估准则名称。
type Criterion string

const (
	CriterionCoverage       Criterion = "coverage"
	CriterionQuality        Criterion = "quality"
	CriterionCompleteness   Criterion = "completeness"
	CriterionContradictions Criterion = "contradictions"
)

// Item 一条已收集的证据条目。
type Item struct {
	Source             string            `json:"source"`
	Domain             string            `json:"domain,omitempty"`
	Fields             map[string]string `json:"fields,omitempty"`
	CredibilitySignals []string          `json:"credibility_signals,omitempty"`
}

// Evidence 截至当前 pass 的累计证据。
type Evidence struct {
	Items []Item `json:"items"`
	// Confidence 调用方提供的聚合置信度，范围 0.0-1.0。
	Confidence float64 `json:"confidence"`
	// Contradictions 合成结果中未解决的冲突描述。
	Contradictions []string `json:"contradictions,omitempty"`
}

// CriterionResult 单个准则的评估结果，每个 pass 重新计算，不单独持久化。
type CriterionResult struct {
	Met       bool    `json:"met"`
	Measured  float64 `json:"measured"`
	Threshold float64 `json:"threshold"`
	Note      string  `json:"note"`
}

// PassResult 一轮评估的完整结果，按 pass 编号保留用于审计。
type PassResult struct {
	Pass     int                           `json:"pass"`
	Decision Decision                      `json:"decision"`
	Criteria map[Criterion]CriterionResult `json:"criteria"`
	// Missing 每个未满足准则一条，带量化缺口。
	Missing []string `json:"missing,omitempty"`
	// NextActions 指导下一个 pass 选择工作单元的具体建议。
	NextActions []string `json:"next_actions,omitempty"`
	Reasoning   string   `json:"reasoning"`
	// Forced 是否因达到 pass 上限而强制完成（"尽力而为"）。
	Forced bool `json:"forced"`
	// AllMet 四个准则是否全部满足。强制完成时调用方用它区分
	// "强制完成且满意" 与 "强制完成但降级"。
	AllMet      bool      `json:"all_met"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Config 评估器配置。
type Config struct {
	// MinSources 覆盖度准则要求的最少独立来源数。
	MinSources int `json:"min_sources" yaml:"min_sources"`
	// MinConfidence 质量准则要求的最低聚合置信度。
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	// MaxPasses pass 上限，到达后强制完成。
	MaxPasses int `json:"max_passes" yaml:"max_passes"`
	// SampleSize 完整性准则采样的条目数（取前 N 条）。
	SampleSize int `json:"sample_size" yaml:"sample_size"`
}

// DefaultConfig 返回默认评估配置。
func DefaultConfig() Config {
	return Config{
		MinSources:    8,
		MinConfidence: 0.75,
		MaxPasses:     3,
		SampleSize:    3,
	}
}

// Evaluator 满意度评估器。无内部状态，可并发使用。
type Evaluator struct {
	config Config
	logger *zap.Logger
}

// NewEvaluator 创建评估器。非法配置字段回退到默认值。
func NewEvaluator(config Config, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MinSources <= 0 {
		config.MinSources = 8
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = 0.75
	}
	if config.MaxPasses <= 0 {
		config.MaxPasses = 3
	}
	if config.SampleSize <= 0 {
		config.SampleSize = 3
	}
	return &Evaluator{
		config: config,
		logger: logger.With(zap.String("component", "satisfaction_evaluator")),
	}
}

// MaxPasses 返回配置的 pass 上限。
func (e *Evaluator) MaxPasses() int { return e.config.MaxPasses }

// Evaluate 对当前 pass 的累计证据做一次完整评估。
// 阈值比较一律为 ≥（含边界）；强制完成检查先于四准则短路，
// 保证无论数据质量如何，运行都在有界时间内终止。
func (e *Evaluator) Evaluate(passNumber int, evidence Evidence, requiredFields []string, domainHint string) *PassResult {
	result := &PassResult{
		Pass:        passNumber,
		Criteria:    make(map[Criterion]CriterionResult, 4),
		EvaluatedAt: time.Now(),
	}

	coverage := e.checkCoverage(evidence)
	quality := e.checkQuality(evidence)
	completeness, missingFields := e.checkCompleteness(evidence, requiredFields)
	contradictions := e.checkContradictions(evidence)

	result.Criteria[CriterionCoverage] = coverage
	result.Criteria[CriterionQuality] = quality
	result.Criteria[CriterionCompleteness] = completeness
	result.Criteria[CriterionContradictions] = contradictions

	result.AllMet = coverage.Met && quality.Met && completeness.Met && contradictions.Met

	// pass 上限强制完成，先于准则判定
	if passNumber >= e.config.MaxPasses {
		result.Decision = DecisionComplete
		result.Forced = !result.AllMet
		if result.Forced {
			result.Reasoning = fmt.Sprintf("pass limit %d reached, completing as best effort with unmet criteria", e.config.MaxPasses)
			e.logger.Info("forced completion at pass limit (best effort)",
				zap.Int("pass", passNumber),
				zap.Bool("all_met", result.AllMet))
		} else {
			result.Reasoning = "all criteria met at final pass"
		}
		return result
	}

	if result.AllMet {
		result.Decision = DecisionComplete
		result.Reasoning = "all criteria met"
		e.logger.Info("evaluation complete",
			zap.Int("pass", passNumber),
			zap.Int("sources", len(distinctSources(evidence.Items))))
		return result
	}

	result.Decision = DecisionContinue
	e.fillGuidance(result, evidence, missingFields, domainHint)
	e.logger.Info("evaluation continues",
		zap.Int("pass", passNumber),
		zap.Strings("missing", result.Missing))
	return result
}

// ============================================================================
// 四准则实现
// ============================================================================

func distinctSources(items []Item) map[string]struct{} {
	sources := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Source != "" {
			sources[item.Source] = struct{}{}
		}
	}
	return sources
}

func distinctDomains(items []Item) map[string]struct{} {
	domains := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Domain != "" {
			domains[item.Domain] = struct{}{}
		}
	}
	return domains
}

// checkCoverage 覆盖度：独立来源数 ≥ MinSources。
// 域名多样性只进诊断信息，不做硬门槛。
func (e *Evaluator) checkCoverage(evidence Evidence) CriterionResult {
	sources := len(distinctSources(evidence.Items))
	domains := len(distinctDomains(evidence.Items))
	return CriterionResult{
		Met:       sources >= e.config.MinSources,
		Measured:  float64(sources),
		Threshold: float64(e.config.MinSources),
		Note:      fmt.Sprintf("%d distinct sources across %d domains", sources, domains),
	}
}

// checkQuality 质量：聚合置信度 ≥ MinConfidence。
// 带独立可信度标记（认证/资质等）的条目数只进诊断信息。
func (e *Evaluator) checkQuality(evidence Evidence) CriterionResult {
	credible := 0
	for _, item := range evidence.Items {
		if len(item.CredibilitySignals) > 0 {
			credible++
		}
	}
	return CriterionResult{
		Met:       evidence.Confidence >= e.config.MinConfidence,
		Measured:  evidence.Confidence,
		Threshold: e.config.MinConfidence,
		Note:      fmt.Sprintf("confidence %.2f, %d items carry credibility signals", evidence.Confidence, credible),
	}
}

// checkCompleteness 完整性：每个必填字段都要在前 SampleSize 条
// 采样条目中的至少一条上非空出现；缺失字段逐个点名。
func (e *Evaluator) checkCompleteness(evidence Evidence, requiredFields []string) (CriterionResult, []string) {
	sample := evidence.Items
	if len(sample) > e.config.SampleSize {
		sample = sample[:e.config.SampleSize]
	}

	var missing []string
	for _, field := range requiredFields {
		found := false
		for _, item := range sample {
			if strings.TrimSpace(item.Fields[field]) != "" {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, field)
		}
	}

	present := len(requiredFields) - len(missing)
	note := fmt.Sprintf("%d/%d required fields present in sample of %d", present, len(requiredFields), len(sample))
	if len(missing) > 0 {
		note += ": missing " + strings.Join(missing, ", ")
	}
	return CriterionResult{
		Met:       len(missing) == 0,
		Measured:  float64(present),
		Threshold: float64(len(requiredFields)),
		Note:      note,
	}, missing
}

// checkContradictions 矛盾：未解决冲突列表必须为空。
func (e *Evaluator) checkContradictions(evidence Evidence) CriterionResult {
	return CriterionResult{
		Met:       len(evidence.Contradictions) == 0,
		Measured:  float64(len(evidence.Contradictions)),
		Threshold: 0,
		Note:      fmt.Sprintf("%d unresolved contradictions", len(evidence.Contradictions)),
	}
}

// ============================================================================
// CONTINUE 时的缺口量化与下一步建议
// ============================================================================

// fillGuidance 为每个未满足的准则生成量化缺口和可执行的下一步建议，
// 让调度下一个 pass 的调用方可以直接使用，评估器自己不安排任何工作。
func (e *Evaluator) fillGuidance(result *PassResult, evidence Evidence, missingFields []string, domainHint string) {
	if c := result.Criteria[CriterionCoverage]; !c.Met {
		gap := int(c.Threshold - c.Measured)
		result.Missing = append(result.Missing, fmt.Sprintf("need %d more sources", gap))
		action := "broaden the search with more general queries"
		if domainHint != "" {
			action += " within " + domainHint
		}
		result.NextActions = append(result.NextActions, action)
	}

	if q := result.Criteria[CriterionQuality]; !q.Met {
		result.Missing = append(result.Missing,
			fmt.Sprintf("confidence %.2f below threshold %.2f", q.Measured, q.Threshold))
		result.NextActions = append(result.NextActions,
			"target higher-credibility sources (official, licensed, or certified)")
	}

	for _, field := range missingFields {
		result.Missing = append(result.Missing,
			fmt.Sprintf("required field %q missing from sampled items", field))
		result.NextActions = append(result.NextActions,
			fmt.Sprintf("search explicitly for %q", field))
	}

	if c := result.Criteria[CriterionContradictions]; !c.Met {
		result.Missing = append(result.Missing,
			fmt.Sprintf("%d unresolved contradictions", len(evidence.Contradictions)))
		result.NextActions = append(result.NextActions,
			"revisit the conflicting sources to resolve: "+strings.Join(evidence.Contradictions, "; "))
	}

	result.Reasoning = fmt.Sprintf("%d of 4 criteria unmet", 4-metCount(result.Criteria))
}

func metCount(criteria map[Criterion]CriterionResult) int {
	met := 0
	for _, c := range criteria {
		if c.Met {
			met++
		}
	}
	return met
}
