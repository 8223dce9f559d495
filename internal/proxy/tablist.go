package proxy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/handler"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/presence"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
)

// joinedWorld runs after the client received join game from its initial backend
func (c *clientConn) joinedWorld() {
	p := c.proxy
	id := c.UUID()

	c.syncTabList()

	if p.presence.TakeJoin(id) {
		p.announce(handler.PlayerJoinedMessage, c, "multiplayer.player.joined")
	}

	c.mu.Lock()
	first := !c.ready
	c.ready = true
	c.mu.Unlock()
	if first {
		p.handlers.Ready(c)
	}
}

// syncTabList sends the player its own entry, everyone else's entries and the
// header and footer, then announces the player to the others
func (c *clientConn) syncTabList() {
	p := c.proxy
	id := c.UUID()

	if self, ok := p.presence.BuildPlayerInfo(id); ok {
		c.SendPacket(packet.IDPlayerInfoUpdate, self)
		p.presence.Broadcast(packet.IDPlayerInfoUpdate, self, id)
	}
	if others, ok := p.presence.BuildTabList(id); ok {
		c.SendPacket(packet.IDPlayerInfoUpdate, others)
	}
	c.sendHeaderFooter()
}

// sendHeaderFooter sends the hook provided texts, falling back to the configured ones
func (c *clientConn) sendHeaderFooter() {
	cfg := c.proxy.getConfig().TabList
	req := handler.TabListRequest{Player: c}

	header, ok := c.proxy.hooks.FirstText(handler.TabListHeaderRequest, req)
	if !ok {
		header = cfg.Header
	}
	footer, ok := c.proxy.hooks.FirstText(handler.TabListFooterRequest, req)
	if !ok {
		footer = cfg.Footer
	}
	if header == "" && footer == "" {
		return
	}
	c.sendPlay(&packet.TabListHeaderFooter{Header: protocol.Text(header), Footer: protocol.Text(footer)})
}

// announce broadcasts a join or leave message. A hook may replace the text
// or return false to stay silent.
func (p *Proxy) announce(ev handler.Event, c *clientConn, translate string) {
	content := map[string]any{
		"translate": translate,
		"with":      []string{c.Username()},
		"color":     "yellow",
	}
	switch r := p.hooks.First(ev, handler.PresenceEvent{Player: c}).(type) {
	case bool:
		if !r {
			return
		}
	case string:
		if r != "" {
			content = protocol.Text(r)
		}
	}
	p.broadcastChat(content)
}

// broadcastChat shows a system message to every online player
func (p *Proxy) broadcastChat(content map[string]any) {
	payload, err := protocol.MarshalPayload(&packet.SystemChat{Content: content})
	if err != nil {
		logger.L.Warn("Failed to encode broadcast", zap.Error(err))
		return
	}
	p.presence.Broadcast(packet.IDSystemChat, payload)
}

// playerLeft removes a tracked player and tells everyone else
func (p *Proxy) playerLeft(c *clientConn) {
	id := c.UUID()
	if _, ok := p.presence.Untrack(id, c); !ok {
		// a newer login of the same identity owns the entry
		return
	}
	p.presence.ClearProfile(id)

	if p.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.redis.MarkOffline(ctx, id); err != nil {
			logger.L.Warn("Failed to clear online player", zap.String("uuid", id.String()), zap.Error(err))
		}
		cancel()
	}

	p.hooks.Dispatch(handler.ClearProtection, handler.PlayerEvent{Player: c})
	p.handlers.Left(c)

	p.presence.Broadcast(packet.IDPlayerRemove, presence.BuildPlayerRemove(id))
	c.mu.Lock()
	joined := c.ready
	c.mu.Unlock()
	if joined {
		p.announce(handler.PlayerLeftMessage, c, "multiplayer.player.left")
	}

	logger.L.Info("Player left", logger.Player(c.Username(), id, c.Backend())...)
}
