package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/handler"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
	"github.com/SkynetNext/mc-proxy/internal/session"
	"github.com/SkynetNext/mc-proxy/internal/tracing"
)

// Errors returned by Switch
var (
	ErrSwitchInProgress = errors.New("switch already in progress")
	ErrNotInPlay        = errors.New("player is not in play state")
	ErrSameBackend      = errors.New("player is already on that backend")
	ErrUnknownBackend   = errors.New("unknown backend")
)

// Switch moves the player to another backend without disconnecting the
// client. It returns once the new backend accepted the connection; the
// switch completes when that backend sends join game. Client packets are
// dropped in between.
func (c *clientConn) Switch(ctx context.Context, backend string) (err error) {
	p := c.proxy
	target, ok := p.router.Lookup(backend)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}

	c.mu.Lock()
	switch {
	case c.switching:
		c.mu.Unlock()
		return ErrSwitchInProgress
	case c.state != protocol.StatePlay || c.backend == nil:
		c.mu.Unlock()
		return ErrNotInPlay
	case c.backendCfg.Name == target.Name:
		c.mu.Unlock()
		return ErrSameBackend
	}
	c.switching = true
	c.switchStart = time.Now()
	old, from, identity, offline := c.backend, c.backendCfg, c.identity, c.offlineUUID
	c.mu.Unlock()
	p.sessions.Update(c.id, func(s *session.Session) { s.Switching = true })

	ctx, span := tracing.StartSwitch(ctx, identity.Username, from.Name, target.Name)
	defer func() { tracing.Finish(span, err) }()

	logger.Ctx(ctx).Info("Switching backend",
		append(logger.Player(identity.Username, identity.UUID, from.Name), zap.String("to", target.Name))...)

	p.presence.RemoveTabEntry(identity.UUID)
	p.hooks.Dispatch(handler.ClearProtection, handler.PlayerEvent{Player: c})
	old.Close()

	// Heuristic: the old server writes the player file some time after the disconnect
	cfg := p.getConfig()
	select {
	case <-time.After(cfg.Backends.SettleDelay):
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-ctx.Done():
		c.failSwitch(ctx.Err())
		return ctx.Err()
	}

	// backends know the player by its offline uuid
	if err := p.playerSyncer().Sync(ctx, offline, from, target); err != nil {
		logger.Ctx(ctx).Warn("Player data sync failed",
			append(logger.Player(identity.Username, offline, target.Name), zap.Error(err))...)
	}

	b, err := p.dialBackend(ctx, target)
	if err != nil {
		c.failSwitch(err)
		return err
	}
	b.switchTarget = true

	timeout := cfg.Server.WriteTimeout
	hs := &packet.Handshake{
		ProtocolVersion: int32(cfg.Protocol.Version),
		ServerHost:      "localhost",
		ServerPort:      b.port(),
		NextState:       packet.NextStateLogin,
	}
	if err := b.send(hs, timeout); err != nil {
		b.Close()
		c.failSwitch(err)
		return err
	}
	if err := b.send(&packet.LoginStart{Username: identity.Username, UUID: identity.UUID}, timeout); err != nil {
		b.Close()
		c.failSwitch(err)
		return err
	}

	c.attachBackend(b)
	return nil
}

// handleSwitchFrame answers the new backend's login and configuration on the
// client's behalf and finishes the switch at join game
func (c *clientConn) handleSwitchFrame(b *backendConn, f protocol.Frame) error {
	timeout := c.proxy.getConfig().Server.WriteTimeout

	switch b.phase {
	case protocol.StateLogin:
		switch f.ID {
		case packet.IDLoginSuccess:
			c.switchLoggedIn(b)
			if err := b.send(&packet.Empty{PacketID: packet.IDLoginAcknowledged}, timeout); err != nil {
				return err
			}
			b.phase = protocol.StateConfiguration

			c.mu.Lock()
			info, packs := c.clientInfo, c.knownPacks
			c.mu.Unlock()
			if info != nil {
				if err := b.write(protocol.EncodeFrame(packet.IDConfigClientInformation, info), timeout); err != nil {
					return err
				}
			}
			if packs != nil {
				if err := b.write(protocol.EncodeFrame(packet.IDConfigKnownPacks, packs), timeout); err != nil {
					return err
				}
			}
		case packet.IDLoginDisconnect:
			var d packet.LoginDisconnect
			_ = protocol.Unmarshal(f, &d)
			c.log.Warn("Backend refused switch login", zap.String("backend", b.cfg.Name), zap.String("reason", d.Reason))
		case packet.IDSetCompression:
			return errBackendCompression
		}

	case protocol.StateConfiguration:
		switch f.ID {
		case packet.IDConfigFinish:
			if err := b.send(&packet.Empty{PacketID: packet.IDConfigFinish}, timeout); err != nil {
				return err
			}
			b.phase = protocol.StatePlay
			c.mu.Lock()
			c.backendCfg = b.cfg
			c.mu.Unlock()
		case packet.IDConfigKeepAlive:
			if err := b.write(f.Bytes(), timeout); err != nil {
				return err
			}
		}

	case protocol.StatePlay:
		switch f.ID {
		case packet.IDJoinGame:
			c.completeSwitch(b, f)
		case packet.IDKeepAliveClientbound:
			ka := packet.KeepAlive{PacketID: packet.IDKeepAliveClientbound}
			if err := protocol.Unmarshal(f, &ka); err != nil {
				return nil
			}
			return b.send(&packet.KeepAlive{PacketID: packet.IDKeepAliveServerbound, Value: ka.Value}, timeout)
		}
	}
	return nil
}

// switchLoggedIn records the new backend once it accepted the player
func (c *clientConn) switchLoggedIn(b *backendConn) {
	p := c.proxy
	id := c.UUID()
	p.presence.SetBackend(id, b.cfg.Name)
	if err := p.presence.SetLastBackend(c.ctx, id, b.cfg.Name); err != nil {
		c.log.Warn("Failed to store last backend", zap.Error(err))
	}
	p.sessions.Update(c.id, func(s *session.Session) { s.Backend = b.cfg.Name })
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()
	p.mirrorOnline(c.ctx, identity, b.cfg.Name)
}

// completeSwitch moves the client into the new backend's world. The client
// only reloads its world on a respawn into a different dimension type, so it
// first joins a neighbouring dimension type and then respawns into the real one.
func (c *clientConn) completeSwitch(b *backendConn, f protocol.Frame) {
	result := "success"
	var jg packet.JoinGame
	if err := protocol.Unmarshal(f, &jg); err != nil {
		c.log.Warn("Failed to parse join game, forwarding unchanged", zap.Error(err))
		c.writeRaw(f.Bytes())
		result = "fallback"
	} else {
		alt := int32(0)
		if jg.Spawn.DimensionType == 0 {
			alt = 1
		}
		c.send(jg.WithDimensionType(alt))
		c.send(&packet.Respawn{Spawn: jg.Spawn, CopyMetadata: 0})
		c.trackSpawn(jg.Spawn)
	}

	c.mu.Lock()
	c.switching = false
	c.switches++
	began := c.switchStart
	c.mu.Unlock()
	c.proxy.sessions.Update(c.id, func(s *session.Session) { s.Switching = false })

	c.syncTabList()

	metrics.Switches.WithLabelValues(result).Inc()
	metrics.SwitchDuration.Observe(time.Since(began).Seconds())
	c.log.Info("Backend switch complete",
		append(logger.Player(c.Username(), c.UUID(), b.cfg.Name), zap.Duration("duration", time.Since(began)))...)
}

// failSwitch disconnects a client whose switch cannot complete
func (c *clientConn) failSwitch(err error) {
	metrics.Switches.WithLabelValues("failed").Inc()
	c.log.Warn("Backend switch failed", zap.String("username", c.Username()), zap.Error(err))
	c.kick(startingUp())
}
