package presence

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.Frame
}

func (s *recordingSender) SendPacket(id int32, payload []byte) {
	s.mu.Lock()
	s.sent = append(s.sent, protocol.Frame{ID: id, Payload: payload})
	s.mu.Unlock()
}

var (
	aliceID      = uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	aliceOffline = uuid.MustParse("b50ad385-829d-3141-a216-7e7d7539ba7f")
	bobID        = uuid.MustParse("853c80ef-3c37-49fd-aa49-938b674adae6")
	bobOffline   = uuid.MustParse("9f1a3a1e-4c3e-3e0a-8c7a-3b1b2f0d2c11")
	strangerID   = uuid.MustParse("11111111-2222-3333-4444-555555555555")
)

func newTestRegistry() (*Registry, *recordingSender, *recordingSender) {
	r := NewRegistry(nil)
	a, b := &recordingSender{}, &recordingSender{}
	r.Track(Player{UUID: aliceID, Username: "Alice", OfflineUUID: aliceOffline, Backend: "primary", Premium: true}, a)
	r.Track(Player{UUID: bobID, Username: "Bob", OfflineUUID: bobOffline, Backend: "secondary"}, b)
	return r, a, b
}

func TestTrackAndLookup(t *testing.T) {
	r, a, _ := newTestRegistry()
	assert.Equal(t, 2, r.Count())

	p, ok := r.ByOfflineUUID(aliceOffline)
	require.True(t, ok)
	assert.Equal(t, "Alice", p.Username)
	assert.Equal(t, "minecraft:overworld", p.Dimension)

	p, ok = r.ByName("bob")
	require.True(t, ok)
	assert.Equal(t, bobID, p.UUID)

	r.SetBackend(aliceID, "secondary")
	r.SetDimension(aliceID, "minecraft:the_nether")
	r.SetGameMode(aliceID, 1)
	p, _ = r.Get(aliceID)
	assert.Equal(t, "secondary", p.Backend)
	assert.Equal(t, "minecraft:the_nether", p.Dimension)
	assert.Equal(t, int8(1), p.GameMode)

	// A stale connection cannot untrack a newer session.
	_, ok = r.Untrack(aliceID, &recordingSender{})
	assert.False(t, ok)
	_, ok = r.Untrack(aliceID, a)
	assert.True(t, ok)
	assert.False(t, r.IsOnline(aliceID))
	_, ok = r.ByOfflineUUID(aliceOffline)
	assert.False(t, ok)
}

func TestBroadcastExcludes(t *testing.T) {
	r, a, b := newTestRegistry()
	r.Broadcast(packet.IDSystemChat, []byte{1}, aliceID)
	assert.Empty(t, a.sent)
	require.Len(t, b.sent, 1)
	assert.Equal(t, int32(packet.IDSystemChat), b.sent[0].ID)

	assert.True(t, r.SendTo(aliceID, 0x01, nil))
	assert.False(t, r.SendTo(strangerID, 0x01, nil))
	assert.Len(t, a.sent, 1)
}

func TestLastBackendAndJoins(t *testing.T) {
	r, _, _ := newTestRegistry()
	ctx := context.Background()

	_, ok, err := r.LastBackend(ctx, aliceID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetLastBackend(ctx, aliceID, "secondary"))
	b, ok, err := r.LastBackend(ctx, aliceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secondary", b)

	r.DeferJoin(aliceID)
	assert.True(t, r.TakeJoin(aliceID))
	assert.False(t, r.TakeJoin(aliceID))
}

func encodeInfo(t *testing.T, upd *packet.PlayerInfoUpdate) []byte {
	t.Helper()
	payload, err := protocol.MarshalPayload(upd)
	require.NoError(t, err)
	return payload
}

func decodeInfo(t *testing.T, payload []byte) packet.PlayerInfoUpdate {
	t.Helper()
	var upd packet.PlayerInfoUpdate
	require.NoError(t, upd.Decode(protocol.NewReader(payload)))
	return upd
}

func TestMergePlayerInfoRemapsIdentity(t *testing.T) {
	r, _, _ := newTestRegistry()
	verified := []packet.Property{{Name: "textures", Value: "dmVyaWZpZWQ=", Signature: "c2ln"}}
	r.SetProfile(aliceID, verified)

	in := encodeInfo(t, &packet.PlayerInfoUpdate{
		Actions: packet.ActionAddPlayer | packet.ActionInitializeChat | packet.ActionUpdateGameMode |
			packet.ActionUpdateListed | packet.ActionUpdateLatency | packet.ActionUpdateDisplayName,
		Entries: []packet.PlayerInfoEntry{
			{
				UUID:        aliceOffline,
				Name:        "Alice",
				Properties:  []packet.Property{{Name: "textures", Value: "b2ZmbGluZQ=="}},
				ChatSession: &packet.ChatSession{SessionID: uuid.New(), PublicKey: []byte{1}, KeySignature: []byte{2}},
				GameMode:    2,
				Listed:      true,
				Latency:     42,
				DisplayName: protocol.Text("[VIP] Alice"),
			},
			{UUID: strangerID, Name: "npc", GameMode: 0, Listed: false},
		},
	})

	out, err := r.MergePlayerInfo(in)
	require.NoError(t, err)
	upd := decodeInfo(t, out)

	assert.False(t, upd.Has(packet.ActionInitializeChat))
	assert.True(t, upd.Has(packet.ActionUpdateDisplayName))
	require.Len(t, upd.Entries, 2)
	assert.Equal(t, aliceID, upd.Entries[0].UUID)
	assert.Equal(t, verified, upd.Entries[0].Properties)
	assert.Equal(t, "[VIP] Alice", protocol.PlainText(upd.Entries[0].DisplayName))
	assert.Equal(t, strangerID, upd.Entries[1].UUID)

	entries := r.TabEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Alice", entries[0].Name)
	assert.Equal(t, int32(42), entries[0].Latency)
	assert.Equal(t, int32(2), entries[0].GameMode)
	assert.False(t, entries[1].Listed)

	// A later latency-only update changes just that field.
	out, err = r.MergePlayerInfo(encodeInfo(t, &packet.PlayerInfoUpdate{
		Actions: packet.ActionUpdateLatency,
		Entries: []packet.PlayerInfoEntry{{UUID: aliceOffline, Latency: 7}},
	}))
	require.NoError(t, err)
	assert.Equal(t, aliceID, decodeInfo(t, out).Entries[0].UUID)
	entries = r.TabEntries()
	assert.Equal(t, int32(7), entries[0].Latency)
	assert.Equal(t, int32(2), entries[0].GameMode)
}

func TestMergePlayerInfoChatOnlyIsDropped(t *testing.T) {
	r, _, _ := newTestRegistry()
	out, err := r.MergePlayerInfo(encodeInfo(t, &packet.PlayerInfoUpdate{
		Actions: packet.ActionInitializeChat,
		Entries: []packet.PlayerInfoEntry{{UUID: aliceOffline}},
	}))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestMergePlayerInfoMalformed(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.MergePlayerInfo([]byte{packet.ActionAddPlayer, 1, 0xde, 0xad})
	assert.Error(t, err)
}

func TestMergePlayerRemoveKeepsOnlinePlayers(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.MergePlayerInfo(encodeInfo(t, &packet.PlayerInfoUpdate{
		Actions: addFlags,
		Entries: []packet.PlayerInfoEntry{
			{UUID: bobOffline, Name: "Bob", Listed: true},
			{UUID: strangerID, Name: "npc", Listed: true},
		},
	}))
	require.NoError(t, err)

	out, err := r.MergePlayerRemove(BuildPlayerRemove(bobOffline, strangerID))
	require.NoError(t, err)

	var rm packet.PlayerRemove
	require.NoError(t, rm.Decode(protocol.NewReader(out)))
	assert.Equal(t, []uuid.UUID{strangerID}, rm.Players)

	entries := r.TabEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, bobID, entries[0].UUID)

	out, err = r.MergePlayerRemove(BuildPlayerRemove(bobOffline))
	require.NoError(t, err)
	assert.Nil(t, out, "nothing left to forward")
}

func TestBuildPlayerInfoAndTabList(t *testing.T) {
	r, _, _ := newTestRegistry()
	r.SetProfile(aliceID, []packet.Property{{Name: "textures", Value: "eA=="}})

	payload, ok := r.BuildPlayerInfo(aliceID)
	require.True(t, ok)
	upd := decodeInfo(t, payload)
	assert.Equal(t, addFlags, upd.Actions)
	require.Len(t, upd.Entries, 1)
	assert.Equal(t, "Alice", upd.Entries[0].Name)
	assert.True(t, upd.Entries[0].Listed)
	assert.Equal(t, "eA==", upd.Entries[0].Properties[0].Value)

	_, ok = r.BuildPlayerInfo(strangerID)
	assert.False(t, ok)

	_, ok = r.BuildPlayerInfo(bobID)
	require.True(t, ok)

	payload, ok = r.BuildTabList(bobID)
	require.True(t, ok)
	upd = decodeInfo(t, payload)
	require.Len(t, upd.Entries, 1)
	assert.Equal(t, aliceID, upd.Entries[0].UUID)

	r.RemoveTabEntry(aliceID)
	r.RemoveTabEntry(bobID)
	_, ok = r.BuildTabList()
	assert.False(t, ok)
}
