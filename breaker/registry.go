package breaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry 按操作类名称管理熔断器实例。
// 由进程生命周期持有并显式传递到调用点，而不是隐式全局状态。
type Registry struct {
	breakers      map[string]*Breaker
	configs       map[string]Config
	defaultConfig Config
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewRegistry 创建熔断器注册表。configs 中为具名操作类的专属配置，
// 未命名的操作类使用 defaultConfig。
func NewRegistry(configs map[string]Config, defaultConfig Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configs == nil {
		configs = make(map[string]Config)
	}
	return &Registry{
		breakers:      make(map[string]*Breaker),
		configs:       configs,
		defaultConfig: defaultConfig,
		logger:        logger,
	}
}

// GetOrCreate 获取或创建指定操作类的熔断器。
func (r *Registry) GetOrCreate(name string) *Breaker {
	r.mu.RLock()
	if b, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return b
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// 双重检查
	if b, ok := r.breakers[name]; ok {
		return b
	}

	config, ok := r.configs[name]
	if !ok {
		config = r.defaultConfig
	}
	b := New(name, config, r.logger)
	r.breakers[name] = b
	return b
}

// Snapshot 返回所有熔断器的计数快照。
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for name, b := range r.breakers {
		stats[name] = b.Stats()
	}
	return stats
}

// ResetAll 清零所有熔断器计数（用于测试）。
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}
