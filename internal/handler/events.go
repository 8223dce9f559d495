package handler

import (
	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// Event payloads. Every payload that concerns a connection embeds its Player.

// MOTDEvent asks for the server list description; a string result replaces the MOTD
type MOTDEvent struct {
	RemoteAddr string
}

// PresenceEvent is raised when a join or leave message is about to be broadcast.
// A string result replaces the default message; false suppresses it.
type PresenceEvent struct {
	Player Player
}

// SystemChatEvent carries a server system message. false drops it, a string replaces it.
type SystemChatEvent struct {
	Player  Player
	Content map[string]any
}

// ChatEvent is a chat message typed by the player. A non-empty string result
// is broadcast in its place.
type ChatEvent struct {
	Player  Player
	Message string
}

// CommandEvent is a command without the leading slash. true means handled.
type CommandEvent struct {
	Player  Player
	Command string
}

// MoveEvent reports a position change
type MoveEvent struct {
	Player     Player
	X, Y, Z    float64
	Yaw, Pitch float32
	HasLook    bool
}

// InteractEvent is an entity interaction or attack
type InteractEvent struct {
	Player   Player
	EntityID int32
	Action   int32
	Sneaking bool
}

// BlockEvent covers block placement and breaking
type BlockEvent struct {
	Player Player
	Pos    protocol.BlockPos
	Face   int8
	// Status is the dig status for breaking, -1 for placement
	Status int32
}

// UseItemEvent is a right click with the item in Hand
type UseItemEvent struct {
	Player Player
	Hand   int32
}

// TabListRequest asks for header or footer text
type TabListRequest struct {
	Player Player
}

// EditBookEvent is a book edit; true blocks it
type EditBookEvent struct {
	Player Player
	Slot   int32
	Pages  []string
	Title  *string
}

// HeldItemEvent is a hotbar slot change
type HeldItemEvent struct {
	Player Player
	Slot   int16
}

// InventoryClickEvent is a container click; true blocks it
type InventoryClickEvent struct {
	Player   Player
	WindowID int32
	Slot     int16
	Button   int8
	Mode     int32
}

// GameModeEvent reports the player's game mode after login, respawn or change
type GameModeEvent struct {
	Player   Player
	GameMode int8
}

// PlayerEvent carries just the player (ClearProtection)
type PlayerEvent struct {
	Player Player
}

func playerOf(payload any) Player {
	switch e := payload.(type) {
	case PresenceEvent:
		return e.Player
	case SystemChatEvent:
		return e.Player
	case ChatEvent:
		return e.Player
	case CommandEvent:
		return e.Player
	case MoveEvent:
		return e.Player
	case InteractEvent:
		return e.Player
	case BlockEvent:
		return e.Player
	case UseItemEvent:
		return e.Player
	case TabListRequest:
		return e.Player
	case EditBookEvent:
		return e.Player
	case HeldItemEvent:
		return e.Player
	case InventoryClickEvent:
		return e.Player
	case GameModeEvent:
		return e.Player
	case PlayerEvent:
		return e.Player
	}
	return nil
}
