package packet

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

func frameOf(t *testing.T, p protocol.Packet) protocol.Frame {
	t.Helper()
	b, err := protocol.Marshal(p)
	require.NoError(t, err)
	frames, err := protocol.NewFramer(0).Push(b)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	return frames[0]
}

func TestHandshakeMatchesSchema(t *testing.T) {
	h := &Handshake{ProtocolVersion: 773, ServerHost: "localhost", ServerPort: 25565, NextState: NextStateLogin}
	f := frameOf(t, h)

	values, err := protocol.Read(HandshakeSchema, f.Payload)
	require.NoError(t, err)
	assert.Equal(t, int32(773), values["protocolVersion"])
	assert.Equal(t, "localhost", values["serverHost"])
	assert.Equal(t, uint16(25565), values["serverPort"])
	assert.Equal(t, int32(2), values["nextState"])

	schemaFrame, err := protocol.Write(HandshakeSchema, values)
	require.NoError(t, err)
	typedFrame, err := protocol.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, typedFrame, schemaFrame)
}

func TestLoginSuccessProperties(t *testing.T) {
	in := &LoginSuccess{
		UUID:     uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"),
		Username: "Notch",
		Properties: []Property{
			{Name: "textures", Value: "e30=", Signature: "c2ln"},
			{Name: "unsigned", Value: "x"},
		},
	}
	var out LoginSuccess
	require.NoError(t, protocol.Unmarshal(frameOf(t, in), &out))
	assert.Equal(t, in, &out)
}

func TestLoginDisconnectIsJSON(t *testing.T) {
	d := NewLoginDisconnect(protocol.ColoredText("Failed to verify username!", "red"), protocol.ColoredText("\nwhy", "gray"))
	assert.JSONEq(t, `{"text":"Failed to verify username!","color":"red","extra":[{"text":"\nwhy","color":"gray"}]}`, d.Reason)
}

func TestUseEntityConditionalPresence(t *testing.T) {
	hand := int32(1)
	cases := []*UseEntity{
		{EntityID: 5, Action: UseEntityAttack, Sneaking: true},
		{EntityID: 5, Action: UseEntityInteract, Hand: &hand},
		{EntityID: 5, Action: UseEntityInteractAt, Target: &Vec3{1, 2, 3}, Hand: &hand},
	}
	for _, in := range cases {
		f := frameOf(t, in)

		// typed and schema forms agree on the wire layout
		values, err := protocol.Read(UseEntitySchema, f.Payload)
		require.NoError(t, err)
		_, hasX := values["x"]
		_, hasHand := values["hand"]
		assert.Equal(t, in.Target != nil, hasX)
		assert.Equal(t, in.Hand != nil, hasHand)

		var out UseEntity
		require.NoError(t, protocol.Unmarshal(f, &out))
		assert.Equal(t, in, &out)
	}
}

func TestUnmarshalWrongID(t *testing.T) {
	f := protocol.Frame{ID: 0x09}
	err := protocol.Unmarshal(f, &ChatCommand{})
	var mismatch *protocol.ProtocolMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestChatMessageKeepsSignatureBlock(t *testing.T) {
	w := protocol.NewWriter()
	w.WriteString("hello")
	w.WriteInt64(1)
	w.WriteInt64(2)
	w.WriteBool(false)
	w.WriteVarInt(0)
	w.Write([]byte{0, 0, 0})
	w.WriteInt8(0)

	var msg ChatMessage
	require.NoError(t, msg.Decode(protocol.NewReader(w.Bytes())))
	assert.Equal(t, "hello", msg.Message)

	values, err := protocol.Read(ChatMessageSchema, w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hello", values["message"])

	out := protocol.NewWriter()
	require.NoError(t, msg.Encode(out))
	assert.Equal(t, w.Bytes(), out.Bytes())
}

func testSpawnInfo(dim int32, name string, gameMode int8) []byte {
	w := protocol.NewWriter()
	w.WriteVarInt(dim)
	w.WriteString(name)
	w.WriteInt64(0x1234)
	w.WriteInt8(gameMode)
	w.WriteInt8(-1)    // previous game mode
	w.WriteBool(false) // debug
	w.WriteBool(true)  // flat
	w.WriteBool(false) // no death location
	w.WriteVarInt(0)   // portal cooldown
	w.WriteVarInt(63)  // sea level
	return w.Bytes()
}

func testJoinGame(spawn []byte) []byte {
	w := protocol.NewWriter()
	w.WriteInt32(42)
	w.WriteBool(false)
	w.WriteVarInt(2)
	w.WriteString("minecraft:overworld")
	w.WriteString("minecraft:the_nether")
	w.WriteVarInt(20)
	w.WriteVarInt(10)
	w.WriteVarInt(8)
	w.WriteBool(false)
	w.WriteBool(true)
	w.WriteBool(false)
	w.Write(spawn)
	w.WriteBool(true)
	return w.Bytes()
}

func TestJoinGameSplit(t *testing.T) {
	spawn := testSpawnInfo(0, "minecraft:overworld", 1)
	payload := testJoinGame(spawn)

	var j JoinGame
	require.NoError(t, protocol.Unmarshal(protocol.Frame{ID: IDJoinGame, Payload: payload}, &j))
	assert.Equal(t, int32(0), j.Spawn.DimensionType)
	assert.Equal(t, "minecraft:overworld", j.Spawn.DimensionName)
	assert.Equal(t, int8(1), j.Spawn.GameMode)
	assert.True(t, j.EnforcesSecureChat)
	assert.Equal(t, spawn, j.Spawn.Raw)

	w := protocol.NewWriter()
	require.NoError(t, j.Encode(w))
	assert.Equal(t, payload, w.Bytes())
}

func TestJoinGameWithDimensionType(t *testing.T) {
	spawn := testSpawnInfo(0, "minecraft:overworld", 0)
	var j JoinGame
	require.NoError(t, j.Decode(protocol.NewReader(testJoinGame(spawn))))

	alt := j.WithDimensionType(300)
	assert.Equal(t, int32(300), alt.Spawn.DimensionType)
	assert.Equal(t, "minecraft:overworld", alt.Spawn.DimensionName)
	// the two-byte varint replaces the one-byte original
	assert.Equal(t, len(spawn)+1, len(alt.Spawn.Raw))
	assert.Equal(t, spawn[1:], alt.Spawn.Raw[2:])
	assert.Equal(t, j.Head, alt.Head)
}

func TestRespawnCarriesSpawnInfo(t *testing.T) {
	spawn := testSpawnInfo(1, "minecraft:the_nether", 2)
	parsed, err := ParseSpawnInfo(spawn)
	require.NoError(t, err)

	f := frameOf(t, &Respawn{Spawn: parsed})
	assert.Equal(t, append(append([]byte(nil), spawn...), 0x00), f.Payload)

	var out Respawn
	require.NoError(t, protocol.Unmarshal(f, &out))
	assert.Equal(t, "minecraft:the_nether", out.Spawn.DimensionName)
	assert.Equal(t, int8(2), out.Spawn.GameMode)
}

func TestPlayerPositionLayouts(t *testing.T) {
	plain := &PlayerPosition{X: 1, Y: 64, Z: -3, Flags: 1}
	look := &PlayerPosition{X: 1, Y: 64, Z: -3, Yaw: 90, Pitch: 10, HasLook: true}

	p, err := DecodePlayerPosition(frameOf(t, plain))
	require.NoError(t, err)
	assert.Equal(t, plain, p)

	p, err = DecodePlayerPosition(frameOf(t, look))
	require.NoError(t, err)
	assert.Equal(t, look, p)
}

func TestPlayerInfoUpdateAllActions(t *testing.T) {
	in := &PlayerInfoUpdate{
		Actions: 0xff,
		Entries: []PlayerInfoEntry{{
			UUID:       uuid.New(),
			Name:       "Alex",
			Properties: []Property{{Name: "textures", Value: "v", Signature: "s"}},
			ChatSession: &ChatSession{
				SessionID:    uuid.New(),
				ExpiresAt:    1700000000000,
				PublicKey:    []byte{1, 2, 3},
				KeySignature: []byte{4, 5},
			},
			GameMode:    1,
			Listed:      true,
			Latency:     35,
			DisplayName: protocol.Text("[VIP] Alex"),
			ListOrder:   3,
			ShowHat:     true,
		}, {
			UUID:       uuid.New(),
			Name:       "Steve",
			Properties: []Property{},
			Listed:     true,
		}},
	}

	var out PlayerInfoUpdate
	require.NoError(t, protocol.Unmarshal(frameOf(t, in), &out))
	require.Len(t, out.Entries, 2)
	assert.Equal(t, in.Entries[0].ChatSession, out.Entries[0].ChatSession)
	assert.Equal(t, "[VIP] Alex", out.Entries[0].DisplayName["text"])
	assert.Nil(t, out.Entries[1].ChatSession)
	assert.Nil(t, out.Entries[1].DisplayName)
	assert.Equal(t, int32(3), out.Entries[0].ListOrder)
	assert.True(t, out.Entries[0].ShowHat)
}

func TestPlayerRemoveRoundTrip(t *testing.T) {
	in := &PlayerRemove{Players: []uuid.UUID{uuid.New(), uuid.New()}}
	f := frameOf(t, in)

	values, err := protocol.Read(PlayerRemoveSchema, f.Payload)
	require.NoError(t, err)
	assert.Len(t, values["players"], 2)

	var out PlayerRemove
	require.NoError(t, protocol.Unmarshal(f, &out))
	assert.Equal(t, in.Players, out.Players)
}
