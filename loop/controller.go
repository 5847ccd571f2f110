// 多 pass 研究运行的控制回路：预算预留 → 流式处理 → 证据组装 →
// 满意度评估，直到 COMPLETE 或到达 pass 上限。
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/breaker"
	"github.com/BaSui01/researchflow/budget"
	"github.com/BaSui01/researchflow/evaluate"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/stream"
	"github.com/BaSui01/researchflow/types"
)

// 内置的操作类别名称
const (
	BreakerExternalFetch = "external-fetch"
	BreakerRunSynthesis  = "run-synthesis"
)

// Request 一次完整研究运行的输入。
type Request struct {
	// Goal 自由文本目标，用于档位启发式。
	Goal string `json:"goal"`
	// TierHint 显式指定档位（可选）。
	TierHint budget.Tier `json:"tier_hint,omitempty"`
	// AvailableBudget 当前可用的 token 预算。
	AvailableBudget int `json:"available_budget"`
	// RequiredFields 完整性准则要求的必填字段。
	RequiredFields []string `json:"required_fields,omitempty"`
	// DomainHint 领域提示，用于下一步建议（可选）。
	DomainHint string `json:"domain_hint,omitempty"`
	// RunID 显式运行标识（可选）。传入同一 RunID 可以让重启后的
	// 运行从同一 pass 的检查点恢复；为空时自动生成。
	RunID string `json:"run_id,omitempty"`
}

// RunReport 一次运行的完整审计结果。
type RunReport struct {
	RunID       string                 `json:"run_id"`
	Goal        string                 `json:"goal"`
	Reservation budget.Reservation     `json:"reservation"`
	Passes      []*evaluate.PassResult `json:"passes"`
	Outcomes    []stream.Status        `json:"outcomes"`
	// UnitsProcessed 所有 pass 累计处理成功的工作单元数。
	UnitsProcessed int `json:"units_processed"`
	Completed      bool `json:"completed"`
	// Forced 是否因 pass 上限而强制完成。
	Forced       bool                     `json:"forced"`
	Duration     time.Duration            `json:"duration"`
	BreakerStats map[string]breaker.Stats `json:"breaker_stats,omitempty"`
}

// Planner 为每个 pass 产出工作单元。prev 是上一个 pass 的评估结果
// （第一个 pass 为 nil），调用方用其中的 NextActions 决定补什么。
type Planner[U any] func(ctx context.Context, pass int, prev *evaluate.PassResult) ([]U, error)

// Worker 处理单个工作单元。控制器会把它包进熔断器执行。
type Worker[U, R any] func(ctx context.Context, unit U) (R, error)

// Assembler 把累计结果折叠成可评估的证据。
type Assembler[R any] func(ctx context.Context, results []R) (evaluate.Evidence, error)

// ControllerConfig 控制器的运行逻辑配置。
type ControllerConfig[U, R any] struct {
	// Planner 必填。
	Planner Planner[U]
	// Worker 必填。
	Worker Worker[U, R]
	// Assembler 必填。
	Assembler Assembler[R]
	// UnitID 工作单元命名函数（可选，默认用位置索引）。
	UnitID func(unit U) string
	// WorkerBreaker 包装 Worker 的熔断器类别，默认 external-fetch。
	WorkerBreaker string
	// SynthesisBreaker 包装 Assembler 的熔断器类别，默认 run-synthesis。
	SynthesisBreaker string
}

// Deps 控制器的共享依赖。零值字段回退到合理默认。
type Deps struct {
	Governor  *budget.Governor
	Breakers  *breaker.Registry
	Store     stream.Store
	Evaluator *evaluate.Evaluator
	// Metrics 可选的指标接收端，nil 表示不上报。
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Controller 把四个组件编排成一个有界的控制回路。
// 运行之间无共享可变状态，可并发发起多个 Run。
type Controller[U, R any] struct {
	config    ControllerConfig[U, R]
	governor  *budget.Governor
	breakers  *breaker.Registry
	store     stream.Store
	evaluator *evaluate.Evaluator
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewController 创建运行控制器。Planner/Worker/Assembler 缺一不可。
func NewController[U, R any](deps Deps, config ControllerConfig[U, R]) (*Controller[U, R], error) {
	if config.Planner == nil || config.Worker == nil || config.Assembler == nil {
		return nil, types.NewError(types.ErrInvalidConfig,
			"planner, worker and assembler are all required")
	}
	if config.WorkerBreaker == "" {
		config.WorkerBreaker = BreakerExternalFetch
	}
	if config.SynthesisBreaker == "" {
		config.SynthesisBreaker = BreakerRunSynthesis
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Governor == nil {
		deps.Governor = budget.NewGovernor(nil, logger)
	}
	if deps.Breakers == nil {
		deps.Breakers = breaker.NewRegistry(nil, breaker.DefaultConfig(), logger)
	}
	if deps.Store == nil {
		deps.Store = stream.NewMemoryStore()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = evaluate.NewEvaluator(evaluate.DefaultConfig(), logger)
	}

	return &Controller[U, R]{
		config:    config,
		governor:  deps.Governor,
		breakers:  deps.Breakers,
		store:     deps.Store,
		evaluator: deps.Evaluator,
		metrics:   deps.Metrics,
		logger:    logger.With(zap.String("component", "run_controller")),
	}, nil
}

// Run 执行一次完整的研究运行。
//
// 预算预留失败时立刻返回 BUDGET_INSUFFICIENT，不做任何工作。
// 之后每个 pass 依次：规划工作单元 → 带检查点地逐个处理（每个单元
// 经过熔断器）→ 组装证据 → 评估。部分成功（partial）是数据而不是
// 错误，照常进入评估；全军覆没（total_failure）终止运行。
func (c *Controller[U, R]) Run(ctx context.Context, req Request) (*RunReport, error) {
	start := time.Now()

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := c.logger.With(zap.String("run_id", runID))

	tier := c.governor.SelectTier(budget.Request{Goal: req.Goal, TierHint: req.TierHint})
	reservation := c.governor.Reserve(tier, req.AvailableBudget)

	report := &RunReport{
		RunID:       runID,
		Goal:        req.Goal,
		Reservation: reservation,
	}

	c.recordReservation(tier, reservation)
	if !reservation.Approved {
		logger.Warn("run rejected before any work",
			zap.String("tier", string(tier)),
			zap.Int("available", req.AvailableBudget))
		report.Duration = time.Since(start)
		return report, types.NewError(types.ErrBudgetInsufficient,
			fmt.Sprintf("available budget %d cannot fund any tier", req.AvailableBudget))
	}

	logger.Info("run started",
		zap.String("tier", string(reservation.Tier)),
		zap.Int("reserved", reservation.Reserved))

	workerBreaker := c.breakers.GetOrCreate(c.config.WorkerBreaker)
	synthBreaker := c.breakers.GetOrCreate(c.config.SynthesisBreaker)
	statsBefore := c.breakers.Snapshot()

	var (
		results []R
		prev    *evaluate.PassResult
	)

	for pass := 1; pass <= c.evaluator.MaxPasses(); pass++ {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, types.NewError(types.ErrRunCancelled, "run abandoned between passes").
				WithCause(err)
		}

		units, err := c.config.Planner(ctx, pass, prev)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("planning pass %d: %w", pass, err)
		}

		outcome, err := c.runPass(ctx, runID, pass, units, workerBreaker, logger)
		if outcome != nil {
			report.Outcomes = append(report.Outcomes, outcome.Status)
			report.UnitsProcessed += outcome.UnitsProcessed
			c.recordStream(outcome)
		}
		if err != nil {
			report.Duration = time.Since(start)
			c.recordRun(reservation.Tier, "failed", report.Duration)
			return report, err
		}
		results = append(results, outcome.Results...)

		evidence, err := breaker.Execute(ctx, synthBreaker, func(ctx context.Context) (evaluate.Evidence, error) {
			return c.config.Assembler(ctx, results)
		}, nil)
		if err != nil {
			report.Duration = time.Since(start)
			c.recordRun(reservation.Tier, "failed", report.Duration)
			return report, fmt.Errorf("assembling evidence after pass %d: %w", pass, err)
		}

		passResult := c.evaluator.Evaluate(pass, evidence, req.RequiredFields, req.DomainHint)
		report.Passes = append(report.Passes, passResult)
		c.recordEvaluation(passResult)
		prev = passResult

		if passResult.Decision == evaluate.DecisionComplete {
			report.Completed = true
			report.Forced = passResult.Forced
			break
		}
	}

	report.Duration = time.Since(start)
	report.BreakerStats = c.breakers.Snapshot()
	c.recordBreakerDeltas(statsBefore, report.BreakerStats)
	c.recordRun(reservation.Tier, runStatus(report), report.Duration)

	logger.Info("run finished",
		zap.Int("passes", len(report.Passes)),
		zap.Bool("completed", report.Completed),
		zap.Bool("forced", report.Forced),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// runPass 用带检查点的流处理器执行一个 pass 的所有工作单元。
// 每个 pass 有自己的检查点（runID + pass 编号），重启后同一 pass
// 可以从上次成功的单元继续。
func (c *Controller[U, R]) runPass(ctx context.Context, runID string, pass int, units []U, br *breaker.Breaker, logger *zap.Logger) (*stream.Outcome[R], error) {
	streamConfig := stream.ProcessorConfig[U, R]{
		StreamID: fmt.Sprintf("%s/pass-%d", runID, pass),
		OwnerTag: runID,
		UnitID:   c.config.UnitID,
	}
	if c.metrics != nil {
		storeName := c.store.Name()
		streamConfig.OnCheckpointSave = func() { c.metrics.RecordCheckpointSave(storeName) }
		streamConfig.OnCheckpointDelete = func() { c.metrics.RecordCheckpointDelete(storeName) }
	}
	processor := stream.NewProcessor[U, R](streamConfig, c.store, logger)

	return processor.Process(ctx, units, func(ctx context.Context, unit U) (R, error) {
		return breaker.Execute(ctx, br, func(ctx context.Context) (R, error) {
			return c.config.Worker(ctx, unit)
		}, nil)
	})
}

// runStatus 正常结束的运行只有两种状态：pass 上限处评估器必定给出
// COMPLETE（强制与否），所以 Completed 恒为真。
func runStatus(report *RunReport) string {
	if report.Forced {
		return "forced"
	}
	return "complete"
}

// =============================================================================
// 指标上报（Metrics 为 nil 时全部跳过）
// =============================================================================

func (c *Controller[U, R]) recordReservation(requested budget.Tier, res budget.Reservation) {
	if c.metrics == nil {
		return
	}
	switch {
	case !res.Approved:
		c.metrics.RecordReservation(string(requested), "rejected")
	case res.DowngradedFrom != "":
		c.metrics.RecordReservation(string(requested), "downgraded")
		c.metrics.RecordDowngrade(string(res.DowngradedFrom), string(res.Tier))
	default:
		c.metrics.RecordReservation(string(requested), "approved")
	}
	if res.Approved {
		c.metrics.SetTokensHeld(string(res.Tier), res.Reserved)
	}
}

// recordStream 以工作负载类别（熔断器名）为标签，运行标识只进日志，
// 不进时间序列。
func (c *Controller[U, R]) recordStream(outcome *stream.Outcome[R]) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordStreamOutcome(c.config.WorkerBreaker, string(outcome.Status))
	c.metrics.RecordStreamUnits(c.config.WorkerBreaker, "success", outcome.UnitsProcessed)
	if outcome.FailedUnit != "" {
		c.metrics.RecordStreamUnits(c.config.WorkerBreaker, "failure", 1)
	}
}

func (c *Controller[U, R]) recordEvaluation(result *evaluate.PassResult) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordEvaluationPass(string(result.Decision), result.Forced)
}

func (c *Controller[U, R]) recordBreakerDeltas(before, after map[string]breaker.Stats) {
	if c.metrics == nil {
		return
	}
	for name, stats := range after {
		prev := before[name]
		c.metrics.RecordBreakerCalls(name, "success", stats.Successes-prev.Successes)
		c.metrics.RecordBreakerCalls(name, "timeout", stats.Timeouts-prev.Timeouts)
		c.metrics.RecordBreakerCalls(name, "failure", stats.Failures-prev.Failures)
		c.metrics.RecordBreakerRetries(name, stats.Retries-prev.Retries)
	}
}

func (c *Controller[U, R]) recordRun(tier budget.Tier, status string, duration time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRunDuration(string(tier), status, duration)
}
