// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 预算指标
	budgetReservations *prometheus.CounterVec
	budgetDowngrades   *prometheus.CounterVec
	budgetTokensHeld   *prometheus.GaugeVec

	// 熔断指标
	breakerCalls   *prometheus.CounterVec
	breakerRetries *prometheus.CounterVec

	// 流处理指标
	streamUnits       *prometheus.CounterVec
	streamOutcomes    *prometheus.CounterVec
	checkpointSaves   *prometheus.CounterVec
	checkpointDeletes *prometheus.CounterVec

	// 评估指标
	evaluationPasses *prometheus.CounterVec

	// 运行指标
	runDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 预算指标
	c.budgetReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_reservations_total",
			Help:      "Total number of budget reservation requests",
		},
		[]string{"tier", "result"}, // result: approved, downgraded, rejected
	)

	c.budgetDowngrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_downgrades_total",
			Help:      "Total number of tier downgrades at reservation time",
		},
		[]string{"from_tier", "to_tier"},
	)

	c.budgetTokensHeld = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_tokens_held",
			Help:      "Tokens currently reserved by active runs",
		},
		[]string{"tier"},
	)

	// 熔断指标
	c.breakerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_calls_total",
			Help:      "Total number of breaker-guarded calls",
		},
		[]string{"breaker", "result"}, // result: success, timeout, failure, fallback
	)

	c.breakerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_retries_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"breaker"},
	)

	// 流处理指标
	// operation 是有界的工作负载类别（熔断器名），不是运行标识；
	// 运行标识基数无上界，只能进日志。
	c.streamUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_units_total",
			Help:      "Total number of processed work units by workload class",
		},
		[]string{"operation", "result"}, // result: success, failure
	)

	c.streamOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_outcomes_total",
			Help:      "Total number of stream passes by workload class and final status",
		},
		[]string{"operation", "status"}, // status: complete, partial, total_failure
	)

	c.checkpointSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Total number of checkpoint writes",
		},
		[]string{"store"},
	)

	c.checkpointDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_deletes_total",
			Help:      "Total number of checkpoint deletions after completion",
		},
		[]string{"store"},
	)

	// 评估指标
	c.evaluationPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_passes_total",
			Help:      "Total number of evaluation passes by decision",
		},
		[]string{"decision", "forced"},
	)

	// 运行指标
	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end research run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tier", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 💰 预算指标记录
// =============================================================================

// RecordReservation 记录一次预算预留请求
func (c *Collector) RecordReservation(tier, result string) {
	c.budgetReservations.WithLabelValues(tier, result).Inc()
}

// RecordDowngrade 记录一次档位降级
func (c *Collector) RecordDowngrade(fromTier, toTier string) {
	c.budgetDowngrades.WithLabelValues(fromTier, toTier).Inc()
}

// SetTokensHeld 记录当前持有的预留 token 数
func (c *Collector) SetTokensHeld(tier string, tokens int) {
	c.budgetTokensHeld.WithLabelValues(tier).Set(float64(tokens))
}

// =============================================================================
// 🔌 熔断指标记录
// =============================================================================

// RecordBreakerCalls 记录受保护调用的最终结果（按结果类别累加）
func (c *Collector) RecordBreakerCalls(breaker, result string, count int64) {
	if count > 0 {
		c.breakerCalls.WithLabelValues(breaker, result).Add(float64(count))
	}
}

// RecordBreakerRetries 记录重试次数
func (c *Collector) RecordBreakerRetries(breaker string, retries int64) {
	if retries > 0 {
		c.breakerRetries.WithLabelValues(breaker).Add(float64(retries))
	}
}

// =============================================================================
// 🌊 流处理指标记录
// =============================================================================

// RecordStreamUnits 记录工作单元的处理结果（按结果类别累加）
func (c *Collector) RecordStreamUnits(operation, result string, count int) {
	if count > 0 {
		c.streamUnits.WithLabelValues(operation, result).Add(float64(count))
	}
}

// RecordStreamOutcome 记录一轮流处理的最终状态
func (c *Collector) RecordStreamOutcome(operation, status string) {
	c.streamOutcomes.WithLabelValues(operation, status).Inc()
}

// RecordCheckpointSave 记录一次检查点写入
func (c *Collector) RecordCheckpointSave(store string) {
	c.checkpointSaves.WithLabelValues(store).Inc()
}

// RecordCheckpointDelete 记录一次检查点删除
func (c *Collector) RecordCheckpointDelete(store string) {
	c.checkpointDeletes.WithLabelValues(store).Inc()
}

// =============================================================================
// ✅ 评估指标记录
// =============================================================================

// RecordEvaluationPass 记录一次评估 pass
func (c *Collector) RecordEvaluationPass(decision string, forced bool) {
	c.evaluationPasses.WithLabelValues(decision, boolLabel(forced)).Inc()
}

// =============================================================================
// 🏃 运行指标记录
// =============================================================================

// RecordRunDuration 记录一次端到端运行耗时
func (c *Collector) RecordRunDuration(tier, status string, duration time.Duration) {
	c.runDuration.WithLabelValues(tier, status).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
