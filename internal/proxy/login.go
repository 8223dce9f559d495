package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/auth"
	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/presence"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
	"github.com/SkynetNext/mc-proxy/internal/redis"
	"github.com/SkynetNext/mc-proxy/internal/session"
	"github.com/SkynetNext/mc-proxy/internal/tracing"
)

var (
	errEncryption   = errors.New("encryption handshake failed")
	errUnverified   = errors.New("session not verified")
	errVersion      = errors.New("unsupported protocol version")
	errBackendLogin = errors.New("backend unavailable")
)

func startingUp() map[string]any {
	return protocol.ColoredText("Server is starting up. Please try again in a moment.", "red")
}

// login runs the login phase up to the point where the backend takes over
func (c *clientConn) login(ctx context.Context) (err error) {
	ctx, span := tracing.StartLogin(ctx)
	defer func() { tracing.Finish(span, err) }()

	c.setState(protocol.StateLogin)
	cfg := c.proxy.getConfig()

	var start packet.LoginStart
	if err := c.queue.ExpectPacket(ctx, &start); err != nil {
		return fmt.Errorf("login start: %w", err)
	}
	span.SetAttributes(tracing.Username.String(start.Username))

	if int(c.handshake.ProtocolVersion) != cfg.Protocol.Version {
		c.send(packet.NewLoginDisconnect(protocol.ColoredText(
			fmt.Sprintf("Unsupported client version. Please use %s.", cfg.Protocol.VersionName), "red")))
		return fmt.Errorf("%w: %d", errVersion, c.handshake.ProtocolVersion)
	}

	if cfg.Auth.IsOnlineMode() {
		return c.loginOnline(ctx, &start)
	}
	return c.loginOffline(ctx, &start)
}

func (c *clientConn) loginOnline(ctx context.Context, start *packet.LoginStart) error {
	keys := c.proxy.keys
	token, err := auth.NewVerifyToken()
	if err != nil {
		return err
	}
	c.send(&packet.EncryptionRequest{
		ServerID:           "",
		PublicKey:          keys.PublicDER(),
		VerifyToken:        token,
		ShouldAuthenticate: true,
	})

	var resp packet.EncryptionResponse
	if err := c.queue.ExpectPacket(ctx, &resp); err != nil {
		return fmt.Errorf("encryption response: %w", err)
	}
	secret, err := keys.Decrypt(resp.SharedSecret)
	if err != nil {
		metrics.Auth.WithLabelValues("encryption_error").Inc()
		return fmt.Errorf("%w: %v", errEncryption, err)
	}
	// the client encrypts everything after its response, including our disconnects
	if err := c.enableEncryption(secret); err != nil {
		return err
	}
	echoed, err := keys.Decrypt(resp.VerifyToken)
	if err != nil || !bytes.Equal(echoed, token) {
		metrics.Auth.WithLabelValues("encryption_error").Inc()
		c.send(packet.NewLoginDisconnect(protocol.ColoredText("Encryption error!", "red")))
		return errEncryption
	}

	serverID := auth.ServerIDHash(secret, keys.PublicDER())
	// HasJoined records the auth outcome and latency
	profile, err := c.proxy.sessionClient().HasJoined(ctx, start.Username, serverID, extractIP(c.remoteAddr))
	switch {
	case errors.Is(err, auth.ErrSessionRejected):
		c.send(packet.NewLoginDisconnect(
			protocol.ColoredText("Failed to verify username!", "red"),
			protocol.ColoredText("\n\nYour Minecraft session could not be verified.\nPlease restart your client and try again.", "gray"),
		))
		return fmt.Errorf("%w: %s", errUnverified, start.Username)
	case err != nil:
		c.send(packet.NewLoginDisconnect(protocol.ColoredText("Authentication failed", "red")))
		return fmt.Errorf("session check: %w", err)
	}

	id, err := profile.UUID()
	if err != nil {
		c.send(packet.NewLoginDisconnect(protocol.ColoredText("Authentication failed", "red")))
		return fmt.Errorf("session profile id: %w", err)
	}
	identity := auth.Identity{Username: profile.Name, UUID: id}
	if remapped, ok := c.proxy.remap.Remap(profile.Name); ok {
		c.log.Info("Remapped identity",
			zap.String("username", profile.Name),
			zap.String("target", remapped.Username))
		identity = remapped
	}
	c.profile = profile.Properties

	c.mu.Lock()
	c.identity = identity
	c.premium = true
	c.mu.Unlock()

	be := c.proxy.router.Route(ctx, identity.UUID)
	return c.connectBackend(ctx, be, &packet.LoginStart{Username: identity.Username, UUID: identity.UUID})
}

func (c *clientConn) loginOffline(ctx context.Context, start *packet.LoginStart) error {
	identity := auth.Identity{Username: start.Username, UUID: auth.OfflineUUID(start.Username)}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	be := c.proxy.router.Route(ctx, identity.UUID)
	return c.connectBackend(ctx, be, start)
}

// connectBackend dials be and replays the client's handshake and login start.
// The backend's answer is handled by its pump.
func (c *clientConn) connectBackend(ctx context.Context, be config.BackendConfig, start *packet.LoginStart) error {
	b, err := c.proxy.dialBackend(ctx, be)
	if err != nil {
		c.send(packet.NewLoginDisconnect(startingUp()))
		return fmt.Errorf("%w: %v", errBackendLogin, err)
	}

	timeout := c.proxy.getConfig().Server.WriteTimeout
	hs := c.handshake
	hs.NextState = packet.NextStateLogin
	if err := b.send(&hs, timeout); err != nil {
		b.Close()
		c.send(packet.NewLoginDisconnect(startingUp()))
		return fmt.Errorf("%w: %v", errBackendLogin, err)
	}
	if err := b.send(start, timeout); err != nil {
		b.Close()
		c.send(packet.NewLoginDisconnect(startingUp()))
		return fmt.Errorf("%w: %v", errBackendLogin, err)
	}

	c.proxy.sessions.Update(c.id, func(s *session.Session) {
		s.Username = start.Username
		s.Backend = be.Name
	})
	c.attachBackend(b)
	return nil
}

// handleBackendLogin handles the backend's login phase of the initial connection
func (c *clientConn) handleBackendLogin(b *backendConn, f protocol.Frame) error {
	switch f.ID {
	case packet.IDLoginSuccess:
		var ls packet.LoginSuccess
		if err := protocol.Unmarshal(f, &ls); err != nil {
			return fmt.Errorf("backend login success: %w", err)
		}
		c.onBackendLogin(b, f, &ls)
		b.phase = protocol.StateConfiguration
		return nil
	case packet.IDSetCompression:
		c.kick(startingUp())
		return errBackendCompression
	default:
		// disconnects, plugin and cookie requests
		c.writeRaw(f.Bytes())
		return nil
	}
}

// onBackendLogin completes login once the backend accepted the player
func (c *clientConn) onBackendLogin(b *backendConn, f protocol.Frame, ls *packet.LoginSuccess) {
	c.mu.Lock()
	c.offlineUUID = ls.UUID
	if !c.premium {
		c.identity.UUID = ls.UUID
		c.identity.Username = ls.Username
	}
	identity, premium := c.identity, c.premium
	c.mu.Unlock()

	p := c.proxy
	p.replaceExisting(c, identity.UUID)

	if premium {
		p.presence.SetProfile(identity.UUID, c.profile)
	}
	p.presence.Track(presence.Player{
		UUID:        identity.UUID,
		Username:    identity.Username,
		OfflineUUID: ls.UUID,
		Backend:     b.cfg.Name,
		Premium:     premium,
	}, c)
	c.mu.Lock()
	c.tracked = true
	c.mu.Unlock()

	if err := p.presence.SetLastBackend(c.ctx, identity.UUID, b.cfg.Name); err != nil {
		c.log.Warn("Failed to store last backend", zap.Error(err))
	}
	p.sessions.Update(c.id, func(s *session.Session) {
		s.UUID = identity.UUID
		s.Username = identity.Username
		s.Backend = b.cfg.Name
	})
	p.mirrorOnline(c.ctx, identity, b.cfg.Name)
	p.handlers.Joined(c)

	// before login success, so the client's first configuration packets are cached
	c.setState(protocol.StateConfiguration)
	p.presence.DeferJoin(identity.UUID)
	if premium {
		c.send(&packet.LoginSuccess{UUID: identity.UUID, Username: identity.Username, Properties: c.profile})
	} else {
		c.writeRaw(f.Bytes())
	}

	c.log.Info("Player logged in",
		append(logger.Player(identity.Username, identity.UUID, b.cfg.Name), zap.Bool("premium", premium))...)
}

// replaceExisting disconnects an older connection of the same identity
func (p *Proxy) replaceExisting(c *clientConn, id uuid.UUID) {
	s, ok := p.sessions.FindByUUID(id)
	if !ok || s.ID == c.id {
		return
	}
	if old, ok := s.Conn().(*clientConn); ok {
		old.kick(protocol.ColoredText("You logged in from another location", "red"))
	}
}

func (p *Proxy) mirrorOnline(ctx context.Context, identity auth.Identity, backend string) {
	if p.redis == nil {
		return
	}
	err := p.redis.MarkOnline(ctx, redis.OnlinePlayer{
		UUID:     identity.UUID.String(),
		Username: identity.Username,
		Backend:  backend,
		Since:    time.Now(),
	})
	if err != nil {
		logger.Ctx(ctx).Warn("Failed to mirror online player",
			append(logger.Player(identity.Username, identity.UUID, backend), zap.Error(err))...)
	}
}
