package breaker

import (
	"sync"

	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"go.uber.org/zap"
)

// Registry owns the per-key breaker instances. It is constructed once at
// startup and injected into callers; there is no package-level state.
type Registry struct {
	kv         kvstore.Store
	defaultCfg *Config
	logger     *zap.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(kv kvstore.Store, defaultCfg *Config, l *zap.Logger) *Registry {
	return &Registry{
		kv:         kv,
		defaultCfg: defaultCfg,
		logger:     l,
		breakers:   make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it with the registry defaults on
// first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := NewBreaker(key, r.defaultCfg, r.kv, r.logger)
	r.breakers[key] = b
	return b
}

// GetWithConfig creates the breaker for key with a non-default config. The
// config of an already-created breaker is not changed.
func (r *Registry) GetWithConfig(key string, cfg *Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := NewBreaker(key, cfg, r.kv, r.logger)
	r.breakers[key] = b
	return b
}
