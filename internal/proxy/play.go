package proxy

import (
	"math"

	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/handler"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
)

// handleServerPlay processes one play packet from the current backend
func (c *clientConn) handleServerPlay(f protocol.Frame) {
	p := c.proxy

	// join and leave messages are announced by the proxy for everyone
	if f.ID == packet.IDSystemChat {
		var msg packet.SystemChat
		if err := protocol.Unmarshal(f, &msg); err == nil {
			switch protocol.TranslateKey(msg.Content) {
			case "multiplayer.player.joined", "multiplayer.player.left":
				return
			}
		}
	}

	if p.handlers.HandleServer(c, f) {
		return
	}
	payload, result := p.handlers.Transform(c, f)
	switch result {
	case handler.Dropped:
		return
	case handler.Replaced:
		c.writeRaw(protocol.EncodeFrame(f.ID, payload))
		return
	}

	switch f.ID {
	case packet.IDSystemChat:
		c.forwardSystemChat(f)
	case packet.IDJoinGame:
		c.writeRaw(f.Bytes())
		var jg packet.JoinGame
		if err := protocol.Unmarshal(f, &jg); err == nil {
			c.trackSpawn(jg.Spawn)
		} else {
			c.log.Debug("Failed to parse join game", zap.Error(err))
		}
		c.joinedWorld()
	case packet.IDRespawn:
		c.writeRaw(f.Bytes())
		var rs packet.Respawn
		if err := protocol.Unmarshal(f, &rs); err == nil {
			c.trackSpawn(rs.Spawn)
		}
	case packet.IDGameStateChange:
		c.writeRaw(f.Bytes())
		var gs packet.GameStateChange
		if err := protocol.Unmarshal(f, &gs); err == nil && gs.Reason == packet.GameStateReasonChangeGameMode {
			mode := int8(math.Floor(float64(gs.Value)))
			p.presence.SetGameMode(c.UUID(), mode)
			p.hooks.Dispatch(handler.GameModeChange, handler.GameModeEvent{Player: c, GameMode: mode})
		}
	case packet.IDPlayerInfoUpdate:
		merged, err := p.presence.MergePlayerInfo(f.Payload)
		if err != nil {
			c.log.Debug("Failed to merge player info", zap.Error(err))
			c.writeRaw(f.Bytes())
			return
		}
		if merged != nil {
			c.writeRaw(protocol.EncodeFrame(f.ID, merged))
		}
	case packet.IDPlayerRemove:
		kept, err := p.presence.MergePlayerRemove(f.Payload)
		if err != nil {
			c.writeRaw(f.Bytes())
			return
		}
		if kept != nil {
			c.writeRaw(protocol.EncodeFrame(f.ID, kept))
		}
	case packet.IDTabListHeaderFooter:
		c.forwardHeaderFooter(f)
	default:
		c.writeRaw(f.Bytes())
	}
}

func (c *clientConn) forwardSystemChat(f protocol.Frame) {
	var msg packet.SystemChat
	if err := protocol.Unmarshal(f, &msg); err != nil {
		c.writeRaw(f.Bytes())
		return
	}
	switch r := c.proxy.hooks.First(handler.SystemChat, handler.SystemChatEvent{Player: c, Content: msg.Content}).(type) {
	case bool:
		if !r {
			return
		}
	case string:
		msg.Content = protocol.Text(r)
		c.send(&msg)
		return
	}
	c.writeRaw(f.Bytes())
}

func (c *clientConn) forwardHeaderFooter(f protocol.Frame) {
	header, hasHeader := c.proxy.hooks.FirstText(handler.TabListHeaderRequest, handler.TabListRequest{Player: c})
	footer, hasFooter := c.proxy.hooks.FirstText(handler.TabListFooterRequest, handler.TabListRequest{Player: c})
	if !hasHeader && !hasFooter {
		c.writeRaw(f.Bytes())
		return
	}
	c.send(&packet.TabListHeaderFooter{Header: protocol.Text(header), Footer: protocol.Text(footer)})
}

// trackSpawn records the world the player is in after join game or respawn
func (c *clientConn) trackSpawn(s packet.SpawnInfo) {
	id := c.UUID()
	c.proxy.presence.SetDimension(id, s.DimensionName)
	c.proxy.presence.SetGameMode(id, s.GameMode)
	c.proxy.hooks.Dispatch(handler.GameModeChange, handler.GameModeEvent{Player: c, GameMode: s.GameMode})
}

// handleClientPlay processes one play packet from the client and reports
// whether it should be forwarded
func (c *clientConn) handleClientPlay(f protocol.Frame) bool {
	p := c.proxy
	hooks := p.hooks

	// chat signing sessions are bound to the client's own key, not the backend's view of it
	if f.ID == packet.IDChatSessionUpdate && c.Premium() {
		return false
	}
	if p.handlers.HandleClient(c, f) {
		return false
	}

	switch f.ID {
	case packet.IDEditBook:
		v, err := protocol.Read(packet.EditBookSchema, f.Payload)
		if err != nil {
			return true
		}
		ev := handler.EditBookEvent{Player: c, Slot: v["hand"].(int32)}
		for _, page := range v["pages"].([]any) {
			ev.Pages = append(ev.Pages, page.(string))
		}
		if title, ok := v["title"].(string); ok {
			ev.Title = &title
		}
		return !hooks.AnyTrue(handler.EditBook, ev)

	case packet.IDWindowClick:
		v, err := protocol.Read(packet.WindowClickSchema, f.Payload)
		if err != nil {
			return true
		}
		ev := handler.InventoryClickEvent{
			Player:   c,
			WindowID: v["windowId"].(int32),
			Slot:     v["slot"].(int16),
			Button:   v["mouseButton"].(int8),
			Mode:     v["mode"].(int32),
		}
		if hooks.AnyTrue(handler.InventoryClick, ev) {
			return false
		}
		return !hooks.Blocked(handler.CheckContainerClickProtection, ev)

	case packet.IDChatCommand:
		var cmd packet.ChatCommand
		if err := protocol.Unmarshal(f, &cmd); err != nil {
			return true
		}
		return !hooks.AnyTrue(handler.PlayerCommand, handler.CommandEvent{Player: c, Command: cmd.Command})

	case packet.IDChatCommandSigned:
		v, err := protocol.Read(packet.ChatCommandSignedSchema, f.Payload)
		if err != nil {
			return true
		}
		return !hooks.AnyTrue(handler.PlayerCommand, handler.CommandEvent{Player: c, Command: v["command"].(string)})

	case packet.IDChatMessage:
		var msg packet.ChatMessage
		if err := protocol.Unmarshal(f, &msg); err != nil {
			return true
		}
		text, ok := hooks.FirstText(handler.PlayerChat, handler.ChatEvent{Player: c, Message: msg.Message})
		if !ok {
			return true
		}
		p.broadcastChat(protocol.Text(text))
		return false

	case packet.IDPlayerPosition, packet.IDPlayerPositionLook:
		pos, err := packet.DecodePlayerPosition(f)
		if err != nil {
			return true
		}
		if c.hasPos && c.lastPos == [3]float64{pos.X, pos.Y, pos.Z} {
			return true
		}
		c.lastPos, c.hasPos = [3]float64{pos.X, pos.Y, pos.Z}, true
		hooks.Dispatch(handler.PlayerMove, handler.MoveEvent{
			Player: c, X: pos.X, Y: pos.Y, Z: pos.Z,
			Yaw: pos.Yaw, Pitch: pos.Pitch, HasLook: pos.HasLook,
		})
		return true

	case packet.IDBlockDig:
		var dig packet.BlockDig
		if err := protocol.Unmarshal(f, &dig); err != nil {
			return true
		}
		ev := handler.BlockEvent{Player: c, Pos: dig.Location, Face: dig.Face, Status: dig.Status}
		if dig.Status == packet.DigStarted || dig.Status == packet.DigFinished {
			if hooks.Blocked(handler.CheckBlockDigProtection, ev) {
				c.rejectBlockAction(dig.Sequence)
				return false
			}
		}
		hooks.Dispatch(handler.BlockBreak, ev)
		return true

	case packet.IDBlockPlace:
		var place packet.BlockPlace
		if err := protocol.Unmarshal(f, &place); err != nil {
			return true
		}
		ev := handler.BlockEvent{Player: c, Pos: place.Location, Face: int8(place.Direction), Status: -1}
		if hooks.Blocked(handler.CheckBlockPlaceProtection, ev) {
			c.rejectBlockAction(place.Sequence)
			return false
		}
		hooks.Dispatch(handler.BlockPlace, ev)
		return true

	case packet.IDUseItem:
		var use packet.UseItem
		if err := protocol.Unmarshal(f, &use); err != nil {
			return true
		}
		ev := handler.UseItemEvent{Player: c, Hand: use.Hand}
		if hooks.Blocked(handler.CheckItemUseProtection, ev) {
			c.rejectBlockAction(use.Sequence)
			return false
		}
		hooks.Dispatch(handler.UseItem, ev)
		return true

	case packet.IDUseEntity:
		var use packet.UseEntity
		if err := protocol.Unmarshal(f, &use); err != nil {
			return true
		}
		ev := handler.InteractEvent{Player: c, EntityID: use.EntityID, Action: use.Action, Sneaking: use.Sneaking}
		if hooks.Blocked(handler.CheckEntityInteractProtection, ev) {
			return false
		}
		hooks.Dispatch(handler.PlayerInteract, ev)
		return true

	case packet.IDHeldItemChange:
		var held packet.HeldItemChange
		if err := protocol.Unmarshal(f, &held); err == nil {
			hooks.Dispatch(handler.HeldItemChange, handler.HeldItemEvent{Player: c, Slot: held.Slot})
		}
		return true
	}
	return true
}

// rejectBlockAction acknowledges a cancelled block action so the client
// restores the blocks it predicted
func (c *clientConn) rejectBlockAction(sequence int32) {
	c.sendPlay(&packet.AcknowledgeBlockChange{Sequence: sequence})
}
