package breaker

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/types"
)

// Config 单个操作类的重试熔断配置。
type Config struct {
	// BaseTimeout 第一次尝试的超时时间。
	BaseTimeout time.Duration `json:"base_timeout" yaml:"base_timeout"`
	// MaxRetries 最大尝试次数（1 表示只尝试一次、不重试）。
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// BackoffFactor 超时与重试间隔的递增因子，默认 2.0。
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor"`
	// RetryDelay 重试间隔的基准单位；第 k 次失败后睡眠
	// RetryDelay × BackoffFactor^(k-1)。生产默认 1 秒，
	// 测试中可缩短。
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// DefaultConfig 返回网络/模型调用类操作的默认配置。
func DefaultConfig() Config {
	return Config{
		BaseTimeout:   30 * time.Second,
		MaxRetries:    3,
		BackoffFactor: 2.0,
		RetryDelay:    time.Second,
	}
}

// SingleAttemptConfig 返回昂贵的整轮操作的配置：只尝试一次，
// 失败立即走 fallback 或报错，避免重复昂贵的副作用。
func SingleAttemptConfig() Config {
	c := DefaultConfig()
	c.MaxRetries = 1
	return c
}

// Stats 熔断器累计计数快照。
type Stats struct {
	TotalCalls int64 `json:"total_calls"`
	Successes  int64 `json:"successes"`
	Timeouts   int64 `json:"timeouts"`
	Failures   int64 `json:"failures"`
	Retries    int64 `json:"retries"`
}

// Breaker 包装一类外部调用：逐次递增的超时、有界重试、
// 退避睡眠和一次性 fallback。实例随进程长期存活，
// 计数器只在显式 Reset 时清零。
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger

	// 原子计数器，多个运行可并发共享同一实例
	totalCalls int64
	successes  int64
	timeouts   int64
	failures   int64
	retries    int64
}

// New 创建熔断器。非法配置字段回退到默认值。
func New(name string, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseTimeout <= 0 {
		config.BaseTimeout = 30 * time.Second
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.BackoffFactor < 1.0 {
		config.BackoffFactor = 2.0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	return &Breaker{
		name:   name,
		config: config,
		logger: logger.With(zap.String("breaker", name)),
	}
}

// Name 返回操作类名称。
func (b *Breaker) Name() string { return b.name }

// Config 返回熔断器配置副本。
func (b *Breaker) Config() Config { return b.config }

// Stats 返回计数器快照。
func (b *Breaker) Stats() Stats {
	return Stats{
		TotalCalls: atomic.LoadInt64(&b.totalCalls),
		Successes:  atomic.LoadInt64(&b.successes),
		Timeouts:   atomic.LoadInt64(&b.timeouts),
		Failures:   atomic.LoadInt64(&b.failures),
		Retries:    atomic.LoadInt64(&b.retries),
	}
}

// Reset 清零所有计数器（用于测试隔离）。
func (b *Breaker) Reset() {
	atomic.StoreInt64(&b.totalCalls, 0)
	atomic.StoreInt64(&b.successes, 0)
	atomic.StoreInt64(&b.timeouts, 0)
	atomic.StoreInt64(&b.failures, 0)
	atomic.StoreInt64(&b.retries, 0)
}

// AttemptTimeout 返回第 attempt 次（1-indexed）尝试的超时时间：
// BaseTimeout × BackoffFactor^(attempt-1)。
func (b *Breaker) AttemptTimeout(attempt int) time.Duration {
	scale := math.Pow(b.config.BackoffFactor, float64(attempt-1))
	return time.Duration(float64(b.config.BaseTimeout) * scale)
}

// retrySleep 返回第 attempt 次失败后的睡眠时间。
func (b *Breaker) retrySleep(attempt int) time.Duration {
	scale := math.Pow(b.config.BackoffFactor, float64(attempt-1))
	return time.Duration(float64(b.config.RetryDelay) * scale)
}

// Execute 通过熔断器执行一次外部调用。
//
// 每次尝试在自己的超时内运行；失败且还有剩余次数时按退避睡眠后重试。
// 全部尝试耗尽后若提供了 fallback 则调用一次（fallback 自身的失败只记录、
// 不重试）；fallback 也失败或未提供时返回 BREAKER_EXHAUSTED，
// 携带最后一次观察到的错误。
func Execute[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error), fallback func(context.Context) (T, error)) (T, error) {
	var zero T
	atomic.AddInt64(&b.totalCalls, 1)

	var lastErr error
	for attempt := 1; attempt <= b.config.MaxRetries; attempt++ {
		if attempt > 1 {
			atomic.AddInt64(&b.retries, 1)
		}

		result, err := runAttempt(ctx, b, attempt, op)
		if err == nil {
			atomic.AddInt64(&b.successes, 1)
			if attempt > 1 {
				b.logger.Info("call succeeded after retry",
					zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		// 父 context 已取消：调用方放弃，不计入超时/失败计数
		if ctx.Err() != nil {
			return zero, types.NewError(types.ErrRunCancelled, "call abandoned by caller").
				WithOperation(b.name).WithCause(ctx.Err())
		}

		// op 自己透传 DeadlineExceeded 与熔断器判定的超时同等对待
		if types.IsCode(err, types.ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
			atomic.AddInt64(&b.timeouts, 1)
		} else {
			atomic.AddInt64(&b.failures, 1)
		}

		if attempt < b.config.MaxRetries {
			delay := b.retrySleep(attempt)
			b.logger.Debug("attempt failed, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return zero, types.NewError(types.ErrRunCancelled, "call abandoned during backoff").
					WithOperation(b.name).WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	if fallback != nil {
		b.logger.Warn("retries exhausted, invoking fallback",
			zap.Int("attempts", b.config.MaxRetries),
			zap.Error(lastErr))
		result, err := fallback(ctx)
		if err == nil {
			atomic.AddInt64(&b.successes, 1)
			return result, nil
		}
		b.logger.Warn("fallback failed", zap.Error(err))
	}

	b.logger.Error("breaker exhausted",
		zap.Int("attempts", b.config.MaxRetries),
		zap.Error(lastErr))
	return zero, types.NewError(types.ErrBreakerExhausted, "all retries and fallback failed").
		WithOperation(b.name).WithCause(lastErr)
}

// Do 无返回值调用的便捷封装。
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error, fallback func(context.Context) error) error {
	wrap := func(fn func(context.Context) error) func(context.Context) (struct{}, error) {
		if fn == nil {
			return nil
		}
		return func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		}
	}
	_, err := Execute(ctx, b, wrap(op), wrap(fallback))
	return err
}

// runAttempt 在独立的超时内运行一次尝试。
// op 在子 goroutine 中执行，超时后本调用立即返回，
// 不会被一个挂死的外部调用拖住。
func runAttempt[T any](ctx context.Context, b *Breaker, attempt int, op func(context.Context) (T, error)) (T, error) {
	var zero T
	timeout := b.AttemptTimeout(attempt)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := op(attemptCtx)
		ch <- outcome{result: result, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return zero, out.err
		}
		return out.result, nil
	case <-attemptCtx.Done():
		// 父 context 取消同样会触发 attemptCtx.Done，与尝试超时区分开
		if ctx.Err() != nil {
			return zero, types.NewError(types.ErrRunCancelled, "attempt abandoned by caller").
				WithOperation(b.name).WithCause(ctx.Err())
		}
		return zero, types.NewError(types.ErrAttemptTimeout, "attempt deadline exceeded").
			WithOperation(b.name).WithRetryable(true).WithCause(attemptCtx.Err())
	}
}
