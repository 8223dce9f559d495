package proxy

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// backendConn is the proxy's connection to one backend server. Backends run
// in offline mode, so the link is never encrypted or compressed.
type backendConn struct {
	cfg   config.BackendConfig
	conn  net.Conn
	queue *protocol.Queue

	// phase is owned by the backend's pump goroutine
	phase protocol.State
	// switchTarget marks a connection opened by a switch; its login and
	// configuration are answered by the proxy instead of the client
	switchTarget bool

	wmu       sync.Mutex
	closeOnce sync.Once
}

func (b *backendConn) write(frame []byte, timeout time.Duration) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(timeout))
	_, err := b.conn.Write(frame)
	return err
}

func (b *backendConn) send(p protocol.Packet, timeout time.Duration) error {
	frame, err := protocol.Marshal(p)
	if err != nil {
		return err
	}
	return b.write(frame, timeout)
}

func (b *backendConn) Close() error {
	var err error
	b.closeOnce.Do(func() { err = b.conn.Close() })
	return err
}

// port returns the backend's port, used in the handshake of a switch
func (b *backendConn) port() uint16 {
	_, p, err := net.SplitHostPort(b.cfg.Addr)
	if err != nil {
		return 25565
	}
	n, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return 25565
	}
	return uint16(n)
}

// dialBackend connects to a backend through its circuit breaker. Failed
// dials are never retried: the player is told to try again.
func (p *Proxy) dialBackend(ctx context.Context, be config.BackendConfig) (*backendConn, error) {
	cfg := p.getConfig()
	dialer := net.Dialer{Timeout: cfg.Backends.DialTimeout}

	var conn net.Conn
	err := p.breakers.Get(be.Name).Call(func() error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", be.Addr)
		return err
	})
	if err != nil {
		metrics.BackendDialErrors.WithLabelValues(be.Name).Inc()
		logger.Ctx(ctx).Warn("Backend dial failed",
			zap.String("backend", be.Name),
			zap.String("addr", be.Addr),
			zap.Error(err))
		return nil, fmt.Errorf("dial backend %s: %w", be.Name, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	return &backendConn{
		cfg:   be,
		conn:  conn,
		queue: protocol.NewQueue(conn, cfg.Security.MaxPacketSize),
		phase: protocol.StateLogin,
	}, nil
}
