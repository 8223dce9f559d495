package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 200 * time.Millisecond

// Watcher holds the live configuration and reloads it when the file changes
type Watcher struct {
	path    string
	current atomic.Pointer[Config]

	mu         sync.Mutex
	reloadFunc func(*Config) error
	reloading  atomic.Bool
}

// NewWatcher creates a watcher serving initial until the file changes.
// reloadFunc is called with every accepted configuration before it becomes current.
func NewWatcher(path string, initial *Config, reloadFunc func(*Config) error) *Watcher {
	w := &Watcher{path: path, reloadFunc: reloadFunc}
	w.current.Store(initial)
	return w
}

// GetConfig returns the current configuration (thread-safe)
func (w *Watcher) GetConfig() *Config {
	return w.current.Load()
}

// UpdateConfig validates and applies a new configuration (thread-safe)
func (w *Watcher) UpdateConfig(newConfig *Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := validateConfig(newConfig); err != nil {
		return err
	}
	if err := validateTransition(w.current.Load(), newConfig); err != nil {
		return err
	}

	if w.reloadFunc != nil {
		if err := w.reloadFunc(newConfig); err != nil {
			return err
		}
	}

	w.current.Store(newConfig)
	return nil
}

// Reload re-reads the file and applies it
func (w *Watcher) Reload() error {
	if !w.reloading.CompareAndSwap(false, true) {
		return fmt.Errorf("reload already in progress")
	}
	defer w.reloading.Store(false)

	newConfig, err := Load(w.path)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		return err
	}
	if err := w.UpdateConfig(newConfig); err != nil {
		metrics.ConfigReloads.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.ConfigReloads.WithLabelValues("success").Inc()
	return nil
}

// Watch reloads the configuration on file changes until ctx is done.
// The parent directory is watched so atomic rename-on-save is seen.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	name := filepath.Clean(w.path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				debounce = time.After(reloadDebounce)
			}

		case <-debounce:
			debounce = nil
			if err := w.Reload(); err != nil {
				logger.L.Warn("Config reload failed, keeping current configuration",
					zap.String("path", w.path),
					zap.Error(err))
				continue
			}
			logger.L.Info("Configuration reloaded", zap.String("path", w.path))

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.L.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// validateTransition rejects changes that only take effect after a restart
func validateTransition(old, next *Config) error {
	if old == nil {
		return nil
	}
	if old.Server.ListenAddr != next.Server.ListenAddr {
		return fmt.Errorf("server.listen_addr cannot change without a restart")
	}
	if old.Server.HealthCheckPort != next.Server.HealthCheckPort {
		return fmt.Errorf("server.health_check_port cannot change without a restart")
	}
	if old.Auth.IsOnlineMode() != next.Auth.IsOnlineMode() {
		return fmt.Errorf("auth.online_mode cannot change without a restart")
	}
	if old.Backends.Discovery != next.Backends.Discovery {
		return fmt.Errorf("backends.discovery cannot change without a restart")
	}
	if old.Redis.Enabled != next.Redis.Enabled || old.Redis.Addr != next.Redis.Addr {
		return fmt.Errorf("redis settings cannot change without a restart")
	}
	return nil
}
