// Package proxy is the proxy core: it accepts game clients, authenticates them,
// relays them to one of the two backends and moves them between backends.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SkynetNext/mc-proxy/internal/auth"
	"github.com/SkynetNext/mc-proxy/internal/cipher"
	"github.com/SkynetNext/mc-proxy/internal/circuitbreaker"
	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/consul"
	"github.com/SkynetNext/mc-proxy/internal/handler"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/middleware"
	"github.com/SkynetNext/mc-proxy/internal/playerdata"
	"github.com/SkynetNext/mc-proxy/internal/presence"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/ratelimit"
	"github.com/SkynetNext/mc-proxy/internal/redis"
	"github.com/SkynetNext/mc-proxy/internal/retry"
	"github.com/SkynetNext/mc-proxy/internal/router"
	"github.com/SkynetNext/mc-proxy/internal/session"
	"github.com/SkynetNext/mc-proxy/internal/status"
	"github.com/SkynetNext/mc-proxy/internal/tracing"
)

// Proxy represents the proxy service
type Proxy struct {
	config   *config.Config
	configMu sync.RWMutex // Protects config and the swappable collaborators below

	// Components
	sessions *session.Manager
	presence *presence.Registry
	router   *router.Router
	redis    *redis.Client // nil when redis is disabled
	status   *status.Provider
	handlers *handler.Registry
	hooks    *handler.Hooks
	remap    *auth.StaticRemapper
	syncer   *playerdata.Syncer
	session  *auth.SessionClient

	keys       *auth.KeyPair
	cipherImpl cipher.Impl

	// Rate limiting and circuit breaking
	rateLimiter *ratelimit.Limiter
	ipLimiter   *ratelimit.IPLimiter
	breakers    *circuitbreaker.Set

	// Network
	listener    net.Listener
	adminServer *http.Server

	sessionSeq atomic.Int64

	// State
	draining atomic.Bool
	cancel   context.CancelFunc
	group    *errgroup.Group // background loops
	wg       sync.WaitGroup  // client connections and their backend pumps
}

// New creates a new proxy instance
func New(cfg *config.Config) (*Proxy, error) {
	impl, err := cipher.ParseImpl(cfg.Protocol.Cipher)
	if err != nil {
		return nil, err
	}

	var store presence.BackendStore
	var redisCli *redis.Client
	if cfg.Redis.Enabled {
		redisCli = redis.NewClient(&cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := retry.Do(ctx, retry.Config{MaxRetries: 3, RetryDelay: 500 * time.Millisecond}, redisCli.Ping)
		if err != nil {
			redisCli.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		store = redisCli
	}

	var keys *auth.KeyPair
	if cfg.Auth.IsOnlineMode() {
		if keys, err = auth.DefaultKeyPair(); err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
	}

	reg := presence.NewRegistry(store)
	hooks := handler.NewHooks()

	return &Proxy{
		config:      cfg,
		sessions:    session.NewManager(),
		presence:    reg,
		router:      router.NewRouter(cfg.Backends, reg),
		redis:       redisCli,
		status:      status.NewProvider(cfg, reg, hooks),
		handlers:    handler.NewRegistry(),
		hooks:       hooks,
		remap:       auth.NewStaticRemapper(cfg.Remap),
		syncer:      playerdata.NewSyncer(cfg.Sync),
		session:     auth.NewSessionClient(&cfg.Auth),
		keys:        keys,
		cipherImpl:  impl,
		rateLimiter: ratelimit.NewLimiter(int64(cfg.Server.MaxConnections)),
		ipLimiter:   ratelimit.NewIPLimiter(cfg.Security.MaxConnectionsPerIP, cfg.Security.ConnectionRateLimit),
		breakers:    circuitbreaker.NewSet(cfg.Backends.BreakerMaxFailures, cfg.Backends.BreakerTimeout),
	}, nil
}

// Handlers returns the packet handler registry for collaborators
func (p *Proxy) Handlers() *handler.Registry { return p.handlers }

// Hooks returns the event hook table for collaborators
func (p *Proxy) Hooks() *handler.Hooks { return p.hooks }

// Presence returns the global presence registry
func (p *Proxy) Presence() *presence.Registry { return p.presence }

// Sessions returns the live session registry
func (p *Proxy) Sessions() *session.Manager { return p.sessions }

// Start starts the proxy service
func (p *Proxy) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p.group = g

	// 1. Reset the shared online mirror left over from a previous run
	if p.redis != nil {
		if err := p.redis.ClearOnline(ctx); err != nil {
			logger.L.Warn("Failed to clear online players", zap.Error(err))
		}
		g.Go(func() error {
			p.watchSwitchRequests(gctx)
			return nil
		})
	}

	// 2. Start session cleanup
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := p.sessions.CleanupIdle(p.getConfig().Server.LoginTimeout); n > 0 {
					logger.L.Info("Closed idle sessions", zap.Int("count", n))
				}
			}
		}
	})

	// 3. Resolve backend addresses from Consul when configured
	if d := p.getConfig().Backends.Discovery; d.Enabled() {
		discovery := consul.NewDiscovery(d.ConsulAddress, d.RefreshInterval)
		g.Go(func() error {
			discovery.Watch(gctx, d.Service, p.applyDiscovered)
			return nil
		})
	}

	// 4. Initialize access logger with batching
	middleware.InitAccessLogger(100, 5*time.Second)

	// 5. Start admin and metrics server
	if err := p.startAdminServer(); err != nil {
		return fmt.Errorf("failed to start admin server: %w", err)
	}

	// 6. Start game listener
	if err := p.startListener(gctx, g); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	return nil
}

// Addr returns the game listener address once started
func (p *Proxy) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Shutdown stops accepting clients, disconnects the online ones and waits
// for their connections to finish, bounded by ctx
func (p *Proxy) Shutdown(ctx context.Context) error {
	// 1. Enter drain mode
	p.draining.Store(true)

	// 2. Stop accepting new connections
	if p.listener != nil {
		p.listener.Close()
	}
	if p.cancel != nil {
		p.cancel()
	}

	// 3. Kick everyone still connected
	for _, s := range p.sessions.GetAll() {
		if c, ok := s.Conn().(*clientConn); ok {
			c.kick(protocol.ColoredText("Proxy is restarting", "yellow"))
		} else if conn := s.Conn(); conn != nil {
			conn.Close()
		}
	}

	// 4. Wait for connections and background loops (with timeout)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		if p.group != nil {
			_ = p.group.Wait()
		}
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("connections still open: %w", ctx.Err()))
	}

	// 5. Shutdown admin server
	if p.adminServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.adminServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown admin server: %w", err))
		}
	}

	// 6. Close Redis connection
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis connection: %w", err))
		}
	}

	// 7. Shutdown access logger
	middleware.ShutdownAccessLogger()

	return errors.Join(errs...)
}

// applyDiscovered points the router at backend addresses found in Consul
func (p *Proxy) applyDiscovered(addrs map[string]string) {
	if !p.router.SetDiscovered(addrs) {
		return
	}
	fields := make([]zap.Field, 0, len(addrs))
	for name, addr := range addrs {
		fields = append(fields, zap.String(name, addr))
	}
	logger.L.Info("Backend addresses discovered", fields...)
}

// watchSwitchRequests applies switch requests published through redis until ctx is done
func (p *Proxy) watchSwitchRequests(ctx context.Context) {
	for {
		err := p.redis.WatchSwitchRequests(ctx, p.onSwitchRequest)
		if ctx.Err() != nil {
			return
		}
		logger.L.Warn("Switch request subscription ended, resubscribing", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (p *Proxy) onSwitchRequest(req redis.SwitchRequest) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.sessions.RequestSwitch(ctx, req.UUID, req.Backend); err != nil {
			logger.L.Info("Switch request not applied",
				zap.String("uuid", req.UUID.String()),
				zap.String("backend", req.Backend),
				zap.Error(err))
		}
	}()
}

// startListener starts the game listener
func (p *Proxy) startListener(ctx context.Context, g *errgroup.Group) error {
	var err error
	p.listener, err = net.Listen("tcp", p.getConfig().Server.ListenAddr)
	if err != nil {
		return err
	}

	logger.L.Info("Proxy listening",
		zap.String("addr", p.listener.Addr().String()),
		zap.Bool("online_mode", p.getConfig().Auth.IsOnlineMode()))

	g.Go(func() error {
		p.acceptLoop(ctx)
		return nil
	})
	return nil
}

// acceptLoop accepts incoming connections
func (p *Proxy) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Set accept timeout to allow context cancellation check
		if tcpListener, ok := p.listener.(*net.TCPListener); ok {
			tcpListener.SetDeadline(time.Now().Add(1 * time.Second))
		}

		conn, err := p.listener.Accept()
		if err != nil {
			// Listener closed during shutdown
			if p.draining.Load() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			logger.L.Warn("Accept connection error", zap.Error(err))
			continue
		}

		// Handshake and login must finish within the login timeout
		if err := conn.SetReadDeadline(time.Now().Add(p.getConfig().Server.LoginTimeout)); err != nil {
			conn.Close()
			logger.L.Debug("Failed to set initial read deadline", zap.Error(err))
			continue
		}

		p.wg.Add(1)
		go func(c net.Conn) {
			defer p.wg.Done()
			p.handleConnection(ctx, c)
		}(conn)
	}
}

// handleConnection handles a client connection from accept to teardown
func (p *Proxy) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	startTime := time.Now()

	ctx, span := tracing.StartConnection(ctx, remoteAddr)
	defer span.End()

	ip := extractIP(remoteAddr)

	if !p.ipLimiter.Allow(ip) {
		logger.Ctx(ctx).Warn("IP rate limit exceeded",
			zap.String("remote_addr", remoteAddr),
			zap.String("ip", ip))
		metrics.IncConnectionRejected("ip_limit")
		middleware.LogAccess(ctx, &middleware.AccessLogEntry{
			RemoteAddr: remoteAddr,
			DurationMs: time.Since(startTime).Milliseconds(),
			Status:     middleware.StatusRejected,
			Error:      "IP rate limit exceeded",
		})
		return
	}
	defer p.ipLimiter.Release(ip)

	if !p.rateLimiter.Allow() {
		logger.Ctx(ctx).Warn("Connection limit exceeded",
			zap.String("remote_addr", remoteAddr),
			zap.Int64("max_connections", p.rateLimiter.Max()),
			zap.Int64("current_connections", p.rateLimiter.Current()))
		metrics.IncConnectionRejected("max_connections")
		middleware.LogAccess(ctx, &middleware.AccessLogEntry{
			RemoteAddr: remoteAddr,
			DurationMs: time.Since(startTime).Milliseconds(),
			Status:     middleware.StatusRejected,
			Error:      "connection limit exceeded",
		})
		return
	}
	defer p.rateLimiter.Release()

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	sniffConn := protocol.NewSniffConn(conn)
	kind, err := sniffConn.Sniff()
	if err != nil {
		logger.Ctx(ctx).Debug("Failed to sniff protocol",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err))
		return
	}
	metrics.TotalConnections.WithLabelValues(kind.String()).Inc()

	entry := &middleware.AccessLogEntry{RemoteAddr: remoteAddr, Kind: kind.String(), Status: middleware.StatusSuccess}
	switch kind {
	case protocol.KindLegacyPing:
		_ = conn.SetWriteDeadline(time.Now().Add(p.getConfig().Server.WriteTimeout))
		if _, err := conn.Write(status.LegacyKick(p.status.Build(remoteAddr))); err != nil {
			entry.Status, entry.Error = middleware.StatusError, err.Error()
		}
	case protocol.KindHTTP:
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"))
		entry.Status = middleware.StatusRejected
	default:
		c := newClientConn(ctx, p, p.sessionSeq.Add(1), sniffConn)
		err := c.serve(ctx)
		c.fillAccessLog(entry)
		if err != nil {
			entry.Status, entry.Error = middleware.StatusError, err.Error()
			logger.Ctx(ctx).Debug("Connection ended with error",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err))
		} else {
			entry.Status = middleware.StatusClosed
		}
	}

	entry.DurationMs = time.Since(startTime).Milliseconds()
	middleware.LogAccess(ctx, entry)
}

// UpdateConfig applies a reloaded configuration (hot reload). Listen
// addresses and the online mode are fixed for the lifetime of the process.
func (p *Proxy) UpdateConfig(newConfig *config.Config) error {
	if err := config.ValidateConfig(newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	p.configMu.Lock()
	defer p.configMu.Unlock()

	if newConfig.Server.MaxConnections != p.config.Server.MaxConnections {
		p.rateLimiter.SetMax(int64(newConfig.Server.MaxConnections))
		logger.L.Info("Connection limiter updated",
			zap.Int("old_max", p.config.Server.MaxConnections),
			zap.Int("new_max", newConfig.Server.MaxConnections))
	}

	if newConfig.Security.MaxConnectionsPerIP != p.config.Security.MaxConnectionsPerIP ||
		newConfig.Security.ConnectionRateLimit != p.config.Security.ConnectionRateLimit {
		p.ipLimiter.SetLimits(newConfig.Security.MaxConnectionsPerIP, newConfig.Security.ConnectionRateLimit)
		logger.L.Info("IP limiter updated",
			zap.Int("max_per_ip", newConfig.Security.MaxConnectionsPerIP),
			zap.Int("rate_limit", newConfig.Security.ConnectionRateLimit))
	}

	p.router.Update(newConfig.Backends)
	p.remap.Update(newConfig.Remap)
	p.status.Update(newConfig)
	p.syncer = playerdata.NewSyncer(newConfig.Sync)
	p.session = auth.NewSessionClient(&newConfig.Auth)
	p.config = newConfig

	logger.L.Info("Configuration updated")
	return nil
}

// getConfig returns the current configuration (thread-safe)
func (p *Proxy) getConfig() *config.Config {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	return p.config
}

func (p *Proxy) sessionClient() *auth.SessionClient {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	return p.session
}

func (p *Proxy) playerSyncer() *playerdata.Syncer {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	return p.syncer
}

// extractIP extracts IP address from remote address (format: "IP:port")
func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
