package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
)

// LastUsed looks up the backend an identity used last
type LastUsed interface {
	LastBackend(ctx context.Context, id uuid.UUID) (string, bool, error)
}

// Router picks backends for players among the two configured ones
type Router struct {
	mu       sync.RWMutex
	backends config.BackendsConfig
	// addresses found by service discovery, by backend name
	discovered map[string]string

	last LastUsed
}

// NewRouter creates a router over cfg
func NewRouter(cfg config.BackendsConfig, last LastUsed) *Router {
	return &Router{backends: cfg, last: last}
}

// Update replaces the backend configuration (hot reload)
func (r *Router) Update(cfg config.BackendsConfig) {
	r.mu.Lock()
	r.backends = cfg
	r.mu.Unlock()
}

// SetDiscovered overrides backend addresses with ones found by service
// discovery. Backends missing from addrs keep their configured address.
func (r *Router) SetDiscovered(addrs map[string]string) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(addrs) == len(r.discovered) {
		same := true
		for name, addr := range addrs {
			if r.discovered[name] != addr {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	r.discovered = addrs
	return true
}

// current returns the backends with discovered addresses applied. Callers hold r.mu.
func (r *Router) current() config.BackendsConfig {
	b := r.backends
	if addr, ok := r.discovered[b.Primary.Name]; ok {
		b.Primary.Addr = addr
	}
	if addr, ok := r.discovered[b.Secondary.Name]; ok {
		b.Secondary.Addr = addr
	}
	return b
}

// Lookup resolves a backend by name
func (r *Router) Lookup(name string) (config.BackendConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := r.current()
	return b.Lookup(name)
}

// Default returns the configured default backend
func (r *Router) Default() config.BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := r.current()
	be, _ := b.Lookup(b.Default)
	return be
}

// Route selects the initial backend for id: the last one it used if that
// still exists, else the default. Store failures fall back to the default.
func (r *Router) Route(ctx context.Context, id uuid.UUID) config.BackendConfig {
	if r.last != nil {
		name, ok, err := r.last.LastBackend(ctx, id)
		if err != nil {
			logger.L.Warn("Last backend lookup failed, using default",
				zap.String("uuid", id.String()),
				zap.Error(err))
		} else if ok {
			if be, found := r.Lookup(name); found {
				return be
			}
		}
	}
	return r.Default()
}

// Other returns the backend that is not current
func (r *Router) Other(current string) (config.BackendConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := r.current()
	switch current {
	case b.Primary.Name:
		return b.Secondary, nil
	case b.Secondary.Name:
		return b.Primary, nil
	default:
		return config.BackendConfig{}, fmt.Errorf("unknown backend: %s", current)
	}
}

// All returns both backends
func (r *Router) All() []config.BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := r.current()
	return b.All()
}
