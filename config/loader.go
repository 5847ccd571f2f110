// =============================================================================
// 📦 ResearchFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("RESEARCHFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 ResearchFlow 的完整配置结构
type Config struct {
	// Budget token 预算配置
	Budget BudgetConfig `yaml:"budget" env:"BUDGET"`

	// Breakers 按操作类别划分的重试熔断配置（覆盖默认类别）
	Breakers map[string]BreakerConfig `yaml:"breakers" env:"-"`

	// Evaluator 满意度评估配置
	Evaluator EvaluatorConfig `yaml:"evaluator" env:"EVALUATOR"`

	// Checkpoint 检查点存储配置
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Redis 缓存 / 检查点后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// BudgetConfig 预算配置（与 budget.Allocation 兼容）
type BudgetConfig struct {
	// QUICK 档总预算
	QuickTokens int `yaml:"quick_tokens" env:"QUICK_TOKENS"`
	// STANDARD 档总预算
	StandardTokens int `yaml:"standard_tokens" env:"STANDARD_TOKENS"`
	// DEEP 档总预算
	DeepTokens int `yaml:"deep_tokens" env:"DEEP_TOKENS"`
}

// BreakerConfig 单个操作类别的重试熔断配置（与 breaker.Config 兼容）
type BreakerConfig struct {
	// 首次尝试超时
	BaseTimeout time.Duration `yaml:"base_timeout" env:"BASE_TIMEOUT"`
	// 总尝试次数上限（1 = 单次尝试）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 超时与退避的递增因子
	BackoffFactor float64 `yaml:"backoff_factor" env:"BACKOFF_FACTOR"`
	// 首次重试前的等待时间
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// EvaluatorConfig 评估配置（与 evaluate.Config 兼容）
type EvaluatorConfig struct {
	// 最少独立来源数
	MinSources int `yaml:"min_sources" env:"MIN_SOURCES"`
	// 最低聚合置信度
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	// pass 上限
	MaxPasses int `yaml:"max_passes" env:"MAX_PASSES"`
	// 完整性采样条目数
	SampleSize int `yaml:"sample_size" env:"SAMPLE_SIZE"`
}

// CheckpointConfig 检查点存储配置
type CheckpointConfig struct {
	// 存储类型: memory, redis, sqlite
	Store string `yaml:"store" env:"STORE"`
	// SQLite 文件路径（store=sqlite 时使用）
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	// Redis key 前缀（store=redis 时使用）
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// Redis 检查点过期时间，0 表示永不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RESEARCHFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证预算配置
	if c.Budget.QuickTokens <= 0 || c.Budget.StandardTokens <= 0 || c.Budget.DeepTokens <= 0 {
		errs = append(errs, "tier budgets must be positive")
	}
	if !(c.Budget.QuickTokens <= c.Budget.StandardTokens && c.Budget.StandardTokens <= c.Budget.DeepTokens) {
		errs = append(errs, "tier budgets must be non-decreasing from quick to deep")
	}

	// 验证熔断配置
	for name, b := range c.Breakers {
		if b.MaxRetries < 1 {
			errs = append(errs, fmt.Sprintf("breaker %q: max_retries must be at least 1", name))
		}
		if b.BackoffFactor < 1 {
			errs = append(errs, fmt.Sprintf("breaker %q: backoff_factor must be at least 1", name))
		}
		if b.BaseTimeout <= 0 {
			errs = append(errs, fmt.Sprintf("breaker %q: base_timeout must be positive", name))
		}
	}

	// 验证评估配置
	if c.Evaluator.MaxPasses <= 0 {
		errs = append(errs, "max_passes must be positive")
	}
	if c.Evaluator.MinConfidence <= 0 || c.Evaluator.MinConfidence > 1 {
		errs = append(errs, "min_confidence must be in (0, 1]")
	}

	// 验证检查点配置
	switch c.Checkpoint.Store {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown checkpoint store %q", c.Checkpoint.Store))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
