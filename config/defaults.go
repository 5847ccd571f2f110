// =============================================================================
// 📦 ResearchFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 内置的操作类别名称
const (
	BreakerExternalFetch = "external-fetch"
	BreakerModelCall     = "model-call"
	BreakerRunSynthesis  = "run-synthesis"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Budget:     DefaultBudgetConfig(),
		Breakers:   DefaultBreakerConfigs(),
		Evaluator:  DefaultEvaluatorConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Redis:      DefaultRedisConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultBudgetConfig 返回默认预算配置
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		QuickTokens:    2000,
		StandardTokens: 4000,
		DeepTokens:     8000,
	}
}

// DefaultBreakerConfigs 返回内置操作类别的熔断配置
func DefaultBreakerConfigs() map[string]BreakerConfig {
	return map[string]BreakerConfig{
		BreakerExternalFetch: {
			BaseTimeout:   30 * time.Second,
			MaxRetries:    3,
			BackoffFactor: 2.0,
			RetryDelay:    1 * time.Second,
		},
		BreakerModelCall: {
			BaseTimeout:   60 * time.Second,
			MaxRetries:    3,
			BackoffFactor: 2.0,
			RetryDelay:    2 * time.Second,
		},
		// 合成整轮结果代价太高，不值得重试
		BreakerRunSynthesis: {
			BaseTimeout:   120 * time.Second,
			MaxRetries:    1,
			BackoffFactor: 2.0,
			RetryDelay:    0,
		},
	}
}

// DefaultEvaluatorConfig 返回默认评估配置
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		MinSources:    8,
		MinConfidence: 0.75,
		MaxPasses:     3,
		SampleSize:    3,
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Store:      "memory",
		SQLitePath: "researchflow.db",
		KeyPrefix:  "researchflow",
		TTL:        24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
