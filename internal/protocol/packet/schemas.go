package packet

import (
	p "github.com/SkynetNext/mc-proxy/internal/protocol"
)

func fields(fs ...p.Field) []p.Field { return fs }

func f(name string, t p.Type) p.Field { return p.Field{Name: name, Type: t} }

func oneOf(vs ...any) []any { return vs }

// Schemas for packets the proxy handles generically. Hot-path packets also have typed forms.
var (
	HandshakeSchema = &p.Schema{Name: "handshake", ID: IDHandshake, Fields: fields(
		f("protocolVersion", p.VarInt),
		f("serverHost", p.String),
		f("serverPort", p.UShort),
		f("nextState", p.VarInt),
	)}

	StatusRequestSchema = &p.Schema{Name: "status_request", ID: IDStatusRequest}

	StatusResponseSchema = &p.Schema{Name: "status_response", ID: IDStatusResponse, Fields: fields(
		f("response", p.String),
	)}

	PingSchema = &p.Schema{Name: "ping", ID: IDPing, Fields: fields(
		f("time", p.Long),
	)}

	LoginDisconnectSchema = &p.Schema{Name: "login_disconnect", ID: IDLoginDisconnect, Fields: fields(
		f("reason", p.String),
	)}

	EncryptionRequestSchema = &p.Schema{Name: "encryption_request", ID: IDEncryptionRequest, Fields: fields(
		f("serverId", p.String),
		f("publicKey", p.Buffer),
		f("verifyToken", p.Buffer),
		f("shouldAuthenticate", p.Bool),
	)}

	EncryptionResponseSchema = &p.Schema{Name: "encryption_response", ID: IDEncryptionResponse, Fields: fields(
		f("sharedSecret", p.Buffer),
		f("verifyToken", p.Buffer),
	)}

	LoginStartSchema = &p.Schema{Name: "login_start", ID: IDLoginStart, Fields: fields(
		f("username", p.String),
		f("playerUUID", p.UUID),
	)}

	ChatCommandSchema = &p.Schema{Name: "chat_command", ID: IDChatCommand, Fields: fields(
		f("command", p.String),
	)}

	ChatCommandSignedSchema = &p.Schema{Name: "chat_command_signed", ID: IDChatCommandSigned, Fields: fields(
		f("command", p.String),
		f("timestamp", p.Long),
		f("salt", p.Long),
		f("argumentSignatures", p.Array(p.Container(
			f("argumentName", p.String),
			f("signature", p.Buffer),
		))),
		f("messageCount", p.VarInt),
		f("acknowledged", p.Buffer),
		f("checksum", p.Byte),
	)}

	ChatMessageSchema = &p.Schema{Name: "chat_message", ID: IDChatMessage, Fields: fields(
		f("message", p.String),
		f("timestamp", p.Long),
		f("salt", p.Long),
		f("signature", p.Optional(p.Buffer)),
		f("offset", p.VarInt),
		f("acknowledged", p.Buffer),
		f("checksum", p.Byte),
	)}

	SystemChatSchema = &p.Schema{Name: "system_chat", ID: IDSystemChat, Fields: fields(
		f("content", p.AnonymousNBT),
		f("isActionBar", p.Bool),
	)}

	PlayerPositionSchema = &p.Schema{Name: "player_position", ID: IDPlayerPosition, Fields: fields(
		f("x", p.Double),
		f("y", p.Double),
		f("z", p.Double),
		f("flags", p.Byte),
	)}

	PlayerPositionLookSchema = &p.Schema{Name: "player_position_look", ID: IDPlayerPositionLook, Fields: fields(
		f("x", p.Double),
		f("y", p.Double),
		f("z", p.Double),
		f("yaw", p.Float),
		f("pitch", p.Float),
		f("flags", p.Byte),
	)}

	BlockDigSchema = &p.Schema{Name: "block_dig", ID: IDBlockDig, Fields: fields(
		f("status", p.VarInt),
		f("location", p.Position),
		f("face", p.Byte),
		f("sequence", p.VarInt),
	)}

	BlockPlaceSchema = &p.Schema{Name: "block_place", ID: IDBlockPlace, Fields: fields(
		f("hand", p.VarInt),
		f("location", p.Position),
		f("direction", p.VarInt),
		f("cursorX", p.Float),
		f("cursorY", p.Float),
		f("cursorZ", p.Float),
		f("insideBlock", p.Bool),
		f("worldBorderHit", p.Bool),
		f("sequence", p.VarInt),
	)}

	UseItemSchema = &p.Schema{Name: "use_item", ID: IDUseItem, Fields: fields(
		f("hand", p.VarInt),
		f("sequence", p.VarInt),
		f("rotation", p.Vec2f),
	)}

	TabListHeaderFooterSchema = &p.Schema{Name: "tab_list_header_footer", ID: IDTabListHeaderFooter, Fields: fields(
		f("header", p.AnonymousNBT),
		f("footer", p.AnonymousNBT),
	)}

	EditBookSchema = &p.Schema{Name: "edit_book", ID: IDEditBook, Fields: fields(
		f("hand", p.VarInt),
		f("pages", p.Array(p.String)),
		f("title", p.Optional(p.String)),
	)}

	WindowClickSchema = &p.Schema{Name: "window_click", ID: IDWindowClick, Fields: fields(
		f("windowId", p.VarInt),
		f("stateId", p.VarInt),
		f("slot", p.Short),
		f("mouseButton", p.Byte),
		f("mode", p.VarInt),
		f("rest", p.RestBuffer),
	)}

	HeldItemChangeSchema = &p.Schema{Name: "held_item_change", ID: IDHeldItemChange, Fields: fields(
		f("slotId", p.Short),
	)}

	UseEntitySchema = &p.Schema{Name: "use_entity", ID: IDUseEntity, Fields: fields(
		f("target", p.VarInt),
		f("mouse", p.VarInt),
		f("x", p.When("mouse", oneOf(2), p.Float)),
		f("y", p.When("mouse", oneOf(2), p.Float)),
		f("z", p.When("mouse", oneOf(2), p.Float)),
		f("hand", p.When("mouse", oneOf(0, 2), p.VarInt)),
		f("sneaking", p.Bool),
	)}

	ScoreboardObjectiveSchema = &p.Schema{Name: "scoreboard_objective", ID: 0x68, Fields: fields(
		f("name", p.String),
		f("action", p.Byte),
		f("displayText", p.When("action", oneOf(0, 2), p.AnonymousNBT)),
		f("type", p.When("action", oneOf(0, 2), p.VarInt)),
		f("number_format", p.When("action", oneOf(0, 2), p.Optional(p.VarInt))),
		f("styling", p.When("action", oneOf(0, 2), p.When("number_format", oneOf(1, 2), p.AnonymousNBT))),
	)}

	ScoreboardScoreSchema = &p.Schema{Name: "scoreboard_score", ID: 0x6c, Fields: fields(
		f("itemName", p.String),
		f("scoreName", p.String),
		f("value", p.VarInt),
		f("display_name", p.Optional(p.AnonymousNBT)),
		f("number_format", p.Optional(p.VarInt)),
		f("styling", p.When("number_format", oneOf(1, 2), p.AnonymousNBT)),
	)}

	GameStateChangeSchema = &p.Schema{Name: "game_state_change", ID: IDGameStateChange, Fields: fields(
		f("reason", p.UByte),
		f("gameMode", p.Float),
	)}

	PlayerRemoveSchema = &p.Schema{Name: "player_remove", ID: IDPlayerRemove, Fields: fields(
		f("players", p.Array(p.UUID)),
	)}

	KeepAliveClientboundSchema = &p.Schema{Name: "keep_alive_clientbound", ID: IDKeepAliveClientbound, Fields: fields(
		f("keepAliveId", p.Long),
	)}

	KeepAliveServerboundSchema = &p.Schema{Name: "keep_alive_serverbound", ID: IDKeepAliveServerbound, Fields: fields(
		f("keepAliveId", p.Long),
	)}
)
