package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/auth"
	"github.com/SkynetNext/mc-proxy/internal/cipher"
	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/middleware"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
	"github.com/SkynetNext/mc-proxy/internal/session"
)

var (
	// errDetached stops the pump of a backend that is no longer the current one
	errDetached = errors.New("backend detached")

	errBackendCompression = errors.New("backend enabled compression; set network-compression-threshold=-1")
)

// clientConn is one client connection. It is the handler.Player handed to
// collaborators, the presence.Sender used for broadcasts and the
// session.Conn used for switch requests.
type clientConn struct {
	proxy      *Proxy
	id         int64
	conn       *protocol.SniffConn
	remoteAddr string
	queue      *protocol.Queue
	log        *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	wmu sync.Mutex
	out net.Conn // conn, or its encrypting wrapper once online login succeeded

	// owned by the client read loop
	handshake packet.Handshake
	kind      string
	profile   []packet.Property
	lastPos   [3]float64
	hasPos    bool

	mu          sync.Mutex
	state       protocol.State
	identity    auth.Identity
	offlineUUID uuid.UUID
	premium     bool
	tracked     bool
	ready       bool
	backend     *backendConn
	backendCfg  config.BackendConfig
	switching   bool
	switchStart time.Time
	switches    int
	// configuration packets replayed to a new backend during a switch
	clientInfo []byte
	knownPacks []byte
}

func newClientConn(ctx context.Context, p *Proxy, id int64, conn *protocol.SniffConn) *clientConn {
	ctx, cancel := context.WithCancel(ctx)
	c := &clientConn{
		proxy:      p,
		id:         id,
		conn:       conn,
		out:        conn,
		remoteAddr: conn.RemoteAddr().String(),
		queue:      protocol.NewQueue(conn, p.getConfig().Security.MaxPacketSize),
		ctx:        ctx,
		cancel:     cancel,
		state:      protocol.StateHandshake,
	}
	c.log = logger.Connection(id, c.remoteAddr)

	now := time.Now()
	p.sessions.Add(session.Session{
		ID:           id,
		RemoteAddr:   c.remoteAddr,
		State:        protocol.StateHandshake,
		CreatedAt:    now,
		LastActiveAt: now,
	}, c)
	return c
}

// handler.Player

func (c *clientConn) UUID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity.UUID
}

func (c *clientConn) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity.Username
}

func (c *clientConn) OfflineUUID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offlineUUID
}

func (c *clientConn) Backend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backendCfg.Name
}

func (c *clientConn) Premium() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.premium
}

// SendMessage shows a plain system message to the player
func (c *clientConn) SendMessage(text string) {
	c.sendPlay(&packet.SystemChat{Content: protocol.Text(text)})
}

// SendPacket writes a play packet to the client. Packets sent before the
// client reached play state are dropped.
func (c *clientConn) SendPacket(id int32, payload []byte) {
	c.mu.Lock()
	inPlay := c.state == protocol.StatePlay
	c.mu.Unlock()
	if !inPlay {
		return
	}
	c.writeRaw(protocol.EncodeFrame(id, payload))
}

func (c *clientConn) sendPlay(p protocol.Packet) {
	b, err := protocol.MarshalPayload(p)
	if err != nil {
		c.log.Warn("Failed to encode packet", zap.Int32("packet_id", p.ID()), zap.Error(err))
		return
	}
	c.SendPacket(p.ID(), b)
}

// send writes a packet regardless of state
func (c *clientConn) send(p protocol.Packet) {
	b, err := protocol.Marshal(p)
	if err != nil {
		c.log.Warn("Failed to encode packet", zap.Int32("packet_id", p.ID()), zap.Error(err))
		return
	}
	c.writeRaw(b)
}

// writeRaw writes one encoded frame. Writes are fire-and-forget: a failure
// is logged and the read loop notices the dead socket.
func (c *clientConn) writeRaw(b []byte) {
	timeout := c.proxy.getConfig().Server.WriteTimeout

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.out.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := c.out.Write(b); err != nil {
		c.log.Debug("Client write failed", zap.Error(err))
	}
}

// enableEncryption switches both directions of the client link to AES/CFB-8
func (c *clientConn) enableEncryption(secret []byte) error {
	cc, err := cipher.Wrap(c.conn, secret, c.proxy.cipherImpl)
	if err != nil {
		return fmt.Errorf("enable encryption: %w", err)
	}
	c.queue.Rebind(cc, cc.DecryptInPlace)

	c.wmu.Lock()
	c.out = cc
	c.wmu.Unlock()
	return nil
}

func (c *clientConn) setState(s protocol.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.proxy.sessions.Update(c.id, func(sess *session.Session) { sess.State = s })
}

func (c *clientConn) currentState() protocol.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// serve runs the connection until either side closes
func (c *clientConn) serve(ctx context.Context) error {
	defer c.Close()

	var hs packet.Handshake
	if err := c.queue.ExpectPacket(ctx, &hs); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	c.handshake = hs

	switch hs.NextState {
	case packet.NextStateStatus:
		c.kind = "status"
		return c.serveStatus(ctx)
	case packet.NextStateLogin, packet.NextStateTransfer:
		c.kind = "login"
		if err := c.login(ctx); err != nil {
			return err
		}
		return c.clientLoop(ctx)
	default:
		return fmt.Errorf("handshake: unknown next state %d", hs.NextState)
	}
}

func (c *clientConn) serveStatus(ctx context.Context) error {
	c.setState(protocol.StateStatus)
	for {
		f, err := c.queue.Next(ctx)
		if err != nil {
			if protocol.IsClosed(err) {
				return nil
			}
			return err
		}
		switch f.ID {
		case packet.IDStatusRequest:
			doc, err := c.proxy.status.Build(c.remoteAddr).JSON()
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			c.send(&packet.StatusResponse{Response: doc})
		case packet.IDPing:
			c.writeRaw(f.Bytes())
			return nil
		default:
			return fmt.Errorf("status: unexpected packet 0x%02x", f.ID)
		}
	}
}

// clientLoop relays client packets to the current backend
func (c *clientConn) clientLoop(ctx context.Context) error {
	err := c.queue.OnPacket(ctx, func(f protocol.Frame) error {
		c.proxy.sessions.Touch(c.id)

		c.mu.Lock()
		state, switching, b := c.state, c.switching, c.backend
		if state == protocol.StateConfiguration {
			switch f.ID {
			case packet.IDConfigClientInformation:
				c.clientInfo = append([]byte(nil), f.Payload...)
			case packet.IDConfigKnownPacks:
				c.knownPacks = append([]byte(nil), f.Payload...)
			}
		}
		c.mu.Unlock()

		metrics.Packets.WithLabelValues("serverbound", state.String()).Inc()
		if switching || b == nil {
			return nil
		}
		if state == protocol.StatePlay && !c.handleClientPlay(f) {
			return nil
		}
		if err := b.write(f.Bytes(), c.proxy.getConfig().Server.WriteTimeout); err != nil {
			c.log.Debug("Backend write failed", zap.String("backend", b.cfg.Name), zap.Error(err))
		}
		return nil
	})
	if err != nil && (protocol.IsClosed(err) || c.ctx.Err() != nil) {
		return nil
	}
	return err
}

// attachBackend makes b the current backend and starts its pump
func (c *clientConn) attachBackend(b *backendConn) {
	c.mu.Lock()
	c.backend = b
	if !b.switchTarget {
		c.backendCfg = b.cfg
	}
	c.mu.Unlock()

	c.proxy.wg.Add(1)
	go func() {
		defer c.proxy.wg.Done()
		err := b.queue.OnPacket(c.ctx, func(f protocol.Frame) error {
			return c.handleBackendFrame(b, f)
		})
		c.backendClosed(b, err)
	}()
}

func (c *clientConn) handleBackendFrame(b *backendConn, f protocol.Frame) error {
	c.mu.Lock()
	current, switching := c.backend == b, c.switching
	c.mu.Unlock()
	if !current {
		return errDetached
	}
	if switching {
		if b.switchTarget {
			return c.handleSwitchFrame(b, f)
		}
		// the old backend during the settle window
		return nil
	}

	metrics.Packets.WithLabelValues("clientbound", b.phase.String()).Inc()

	switch b.phase {
	case protocol.StateLogin:
		return c.handleBackendLogin(b, f)
	case protocol.StateConfiguration:
		c.writeRaw(f.Bytes())
		if f.ID == packet.IDConfigFinish {
			b.phase = protocol.StatePlay
			c.enterPlay()
		}
		return nil
	default:
		c.handleServerPlay(f)
		return nil
	}
}

// enterPlay marks the client as in play. The login deadline no longer applies.
func (c *clientConn) enterPlay() {
	c.setState(protocol.StatePlay)
	_ = c.conn.SetReadDeadline(time.Time{})
}

// backendClosed runs when a backend pump ends
func (c *clientConn) backendClosed(b *backendConn, err error) {
	b.Close()
	if errors.Is(err, errDetached) {
		return
	}

	c.mu.Lock()
	current, switching := c.backend == b, c.switching
	c.mu.Unlock()
	if !current {
		return
	}
	if switching {
		if b.switchTarget {
			c.failSwitch(fmt.Errorf("backend %s closed during switch: %w", b.cfg.Name, errOrEOF(err)))
		}
		return
	}
	if err != nil && c.ctx.Err() == nil {
		c.log.Info("Backend connection failed", zap.String("backend", b.cfg.Name), zap.Error(err))
	}
	c.Close()
}

func errOrEOF(err error) error {
	if err == nil {
		return errors.New("connection closed")
	}
	return err
}

// kick disconnects the client with reason, using the packet that fits its state
func (c *clientConn) kick(reason map[string]any) {
	switch c.currentState() {
	case protocol.StateLogin:
		c.send(packet.NewLoginDisconnect(reason))
	case protocol.StatePlay:
		c.send(&packet.PlayDisconnect{Reason: reason})
	}
	c.Close()
}

// Close tears the connection down once: untrack the player, notify
// collaborators and the other players, close the backend
func (c *clientConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		c.proxy.sessions.Remove(c.id)

		c.mu.Lock()
		b, tracked := c.backend, c.tracked
		c.mu.Unlock()

		if tracked {
			c.proxy.playerLeft(c)
		}
		if b != nil {
			b.Close()
		}
	})
	return nil
}

func (c *clientConn) fillAccessLog(e *middleware.AccessLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.SessionID = c.id
	if c.kind != "" {
		e.Kind = c.kind
	}
	e.Username = c.identity.Username
	if c.identity.UUID != uuid.Nil {
		e.UUID = c.identity.UUID.String()
	}
	e.Backend = c.backendCfg.Name
	e.Switches = c.switches
}
