package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/types"
)

func fastConfig(maxRetries int) Config {
	return Config{
		BaseTimeout:   50 * time.Millisecond,
		MaxRetries:    maxRetries,
		BackoffFactor: 2.0,
		RetryDelay:    time.Millisecond,
	}
}

func TestExecute_FirstAttemptSuccess(t *testing.T) {
	b := New("external-fetch", fastConfig(3), zap.NewNop())
	ctx := context.Background()

	calls := 0
	result, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)

	stats := b.Stats()
	assert.Equal(t, int64(1), stats.TotalCalls)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Equal(t, int64(0), stats.Retries)
}

func TestExecute_RetryThenSuccess(t *testing.T) {
	b := New("external-fetch", fastConfig(3), zap.NewNop())
	ctx := context.Background()

	calls := 0
	result, err := Execute(ctx, b, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)

	stats := b.Stats()
	assert.Equal(t, int64(2), stats.Failures)
	assert.Equal(t, int64(2), stats.Retries)
	assert.Equal(t, int64(1), stats.Successes)
}

func TestExecute_ExhaustionWithFallback(t *testing.T) {
	b := New("external-fetch", fastConfig(2), zap.NewNop())
	ctx := context.Background()

	opCalls, fbCalls := 0, 0
	result, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		opCalls++
		return "", errors.New("always fails")
	}, func(ctx context.Context) (string, error) {
		fbCalls++
		return "fallback value", nil
	})

	// maxRetries=2 意味着 op 恰好调用两次，然后 fallback 恰好一次
	require.NoError(t, err)
	assert.Equal(t, "fallback value", result)
	assert.Equal(t, 2, opCalls)
	assert.Equal(t, 1, fbCalls)
}

func TestExecute_ExhaustionFallbackAlsoFails(t *testing.T) {
	b := New("model-call", fastConfig(2), zap.NewNop())
	ctx := context.Background()

	lastErr := errors.New("upstream 503")
	_, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		return "", lastErr
	}, func(ctx context.Context) (string, error) {
		return "", errors.New("fallback down too")
	})

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrBreakerExhausted))
	// 携带的是最后一次 op 错误，不是 fallback 错误
	assert.ErrorIs(t, err, lastErr)
}

func TestExecute_ExhaustionNoFallback(t *testing.T) {
	b := New("model-call", fastConfig(2), zap.NewNop())
	ctx := context.Background()

	_, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		return "", errors.New("nope")
	}, nil)

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrBreakerExhausted))
	assert.Equal(t, int64(2), b.Stats().Failures)
}

func TestExecute_SingleAttemptPolicy(t *testing.T) {
	// MaxRetries=1：严格一次尝试、不睡眠、失败立即 fallback-or-raise
	b := New("run-synthesis", fastConfig(1), zap.NewNop())
	ctx := context.Background()

	start := time.Now()
	calls := 0
	_, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("expensive op failed")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(0), b.Stats().Retries)
	assert.Less(t, time.Since(start), 40*time.Millisecond, "no backoff sleep expected")
}

func TestExecute_TimeoutCountsAsTimeout(t *testing.T) {
	b := New("external-fetch", Config{
		BaseTimeout:   10 * time.Millisecond,
		MaxRetries:    2,
		BackoffFactor: 2.0,
		RetryDelay:    time.Millisecond,
	}, zap.NewNop())
	ctx := context.Background()

	_, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		<-ctx.Done() // 挂住直到超时
		return "", ctx.Err()
	}, nil)

	require.Error(t, err)
	stats := b.Stats()
	assert.Equal(t, int64(2), stats.Timeouts)
	assert.Equal(t, int64(0), stats.Failures)
}

func TestAttemptTimeout_EscalatingGrowth(t *testing.T) {
	b := New("external-fetch", Config{
		BaseTimeout:   10 * time.Second,
		MaxRetries:    3,
		BackoffFactor: 2.0,
		RetryDelay:    time.Second,
	}, zap.NewNop())

	// backoffFactor=2.0, baseTimeout=10s → 10, 20, 40
	assert.Equal(t, 10*time.Second, b.AttemptTimeout(1))
	assert.Equal(t, 20*time.Second, b.AttemptTimeout(2))
	assert.Equal(t, 40*time.Second, b.AttemptTimeout(3))
}

func TestExecute_ParentCancellation(t *testing.T) {
	b := New("external-fetch", fastConfig(3), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		return "", errors.New("fail")
	}, nil)

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRunCancelled))
}

func TestExecute_MidAttemptCancellationNotCountedAsTimeout(t *testing.T) {
	b := New("external-fetch", Config{
		BaseTimeout:   time.Minute, // 尝试远未到期
		MaxRetries:    3,
		BackoffFactor: 2.0,
		RetryDelay:    time.Millisecond,
	}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	_, err := Execute(ctx, b, func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done() // 被调用方取消挂断
		return "", ctx.Err()
	}, nil)

	// 调用方放弃不是超时，也不是失败
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRunCancelled))
	stats := b.Stats()
	assert.Equal(t, int64(0), stats.Timeouts)
	assert.Equal(t, int64(0), stats.Failures)
	assert.Equal(t, int64(0), stats.Retries)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("external-fetch", fastConfig(1), zap.NewNop())
	_, _ = Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "", errors.New("fail")
	}, nil)

	require.NotEqual(t, Stats{}, b.Stats())
	b.Reset()
	assert.Equal(t, Stats{}, b.Stats())
}

func TestBreaker_Do(t *testing.T) {
	b := New("external-fetch", fastConfig(2), zap.NewNop())

	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"run-synthesis": fastConfig(1),
	}, fastConfig(3), zap.NewNop())

	a := r.GetOrCreate("external-fetch")
	b := r.GetOrCreate("external-fetch")
	assert.Same(t, a, b, "same name must return same instance")
	assert.Equal(t, 3, a.Config().MaxRetries)

	s := r.GetOrCreate("run-synthesis")
	assert.Equal(t, 1, s.Config().MaxRetries)
}

func TestRegistry_SnapshotAndResetAll(t *testing.T) {
	r := NewRegistry(nil, fastConfig(1), zap.NewNop())
	b := r.GetOrCreate("external-fetch")

	_, _ = Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "ok", nil
	}, nil)

	snap := r.Snapshot()
	require.Contains(t, snap, "external-fetch")
	assert.Equal(t, int64(1), snap["external-fetch"].TotalCalls)

	r.ResetAll()
	assert.Equal(t, int64(0), r.GetOrCreate("external-fetch").Stats().TotalCalls)
}
