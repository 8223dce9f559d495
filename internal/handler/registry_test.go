package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

type stubPlayer struct {
	name string
}

func (s *stubPlayer) UUID() uuid.UUID { return uuid.Nil }
func (s *stubPlayer) Username() string { return s.name }
func (s *stubPlayer) OfflineUUID() uuid.UUID { return uuid.Nil }
func (s *stubPlayer) Backend() string { return "primary" }
func (s *stubPlayer) Premium() bool { return false }
func (s *stubPlayer) SendMessage(string) {}
func (s *stubPlayer) SendPacket(int32, []byte) {}
func (s *stubPlayer) Switch(context.Context, string) error { return nil }

func TestHandleClientShortCircuits(t *testing.T) {
	r := NewRegistry()
	var order []int
	r.OnClientPacket(func(Player, protocol.Frame) (bool, error) {
		order = append(order, 1)
		return true, nil
	})
	r.OnClientPacket(func(Player, protocol.Frame) (bool, error) {
		order = append(order, 2)
		return false, nil
	})

	handled := r.HandleClient(&stubPlayer{name: "a"}, protocol.Frame{ID: 0x08})
	assert.True(t, handled)
	assert.Equal(t, []int{1}, order)
}

func TestHandleServerRunsInOrderUntilHandled(t *testing.T) {
	r := NewRegistry()
	var order []int
	for i := 1; i <= 3; i++ {
		r.OnServerPacket(func(Player, protocol.Frame) (bool, error) {
			order = append(order, i)
			return i == 2, nil
		})
	}
	assert.True(t, r.HandleServer(nil, protocol.Frame{}))
	assert.Equal(t, []int{1, 2}, order)
}

func TestFailingHandlersAreNotHandled(t *testing.T) {
	r := NewRegistry()
	reached := false
	r.OnClientPacket(func(Player, protocol.Frame) (bool, error) {
		panic("broken plugin")
	})
	r.OnClientPacket(func(Player, protocol.Frame) (bool, error) {
		return true, errors.New("also broken")
	})
	r.OnClientPacket(func(Player, protocol.Frame) (bool, error) {
		reached = true
		return false, nil
	})

	assert.False(t, r.HandleClient(&stubPlayer{name: "a"}, protocol.Frame{ID: 1}))
	assert.True(t, reached)
}

func TestTransform(t *testing.T) {
	r := NewRegistry()
	frame := protocol.Frame{ID: 0x10, Payload: []byte{1, 2, 3}}

	payload, res := r.Transform(nil, frame)
	assert.Equal(t, Unchanged, res)
	assert.Equal(t, frame.Payload, payload)

	r.OnServerTransform(0x10, func(Player, protocol.Frame) ([]byte, TransformResult, error) {
		return []byte{9}, Replaced, nil
	})
	payload, res = r.Transform(nil, frame)
	assert.Equal(t, Replaced, res)
	assert.Equal(t, []byte{9}, payload)

	// Later registration replaces the earlier one.
	r.OnServerTransform(0x10, func(Player, protocol.Frame) ([]byte, TransformResult, error) {
		return nil, Dropped, nil
	})
	payload, res = r.Transform(nil, frame)
	assert.Equal(t, Dropped, res)
	assert.Nil(t, payload)

	r.OnServerTransform(0x10, func(Player, protocol.Frame) ([]byte, TransformResult, error) {
		panic("bad transform")
	})
	payload, res = r.Transform(&stubPlayer{name: "a"}, frame)
	assert.Equal(t, Unchanged, res)
	assert.Equal(t, frame.Payload, payload)

	r.OnServerTransform(0x10, func(Player, protocol.Frame) ([]byte, TransformResult, error) {
		return []byte{7}, Replaced, errors.New("half done")
	})
	payload, res = r.Transform(nil, frame)
	assert.Equal(t, Unchanged, res)
	assert.Equal(t, frame.Payload, payload)
}

func TestLifecycleCallbacks(t *testing.T) {
	r := NewRegistry()
	var events []string
	r.OnJoin(func(p Player) { events = append(events, "join:"+p.Username()) })
	r.OnJoin(func(Player) { panic("boom") })
	r.OnJoin(func(Player) { events = append(events, "join2") })
	r.OnReady(func(p Player) { events = append(events, "ready") })
	r.OnLeave(func(p Player) { events = append(events, "leave") })

	p := &stubPlayer{name: "steve"}
	r.Joined(p)
	r.Ready(p)
	r.Left(p)
	assert.Equal(t, []string{"join:steve", "join2", "ready", "leave"}, events)
}

func TestHooksDispatch(t *testing.T) {
	h := NewHooks()
	assert.False(t, h.Has(PlayerChat))
	assert.Nil(t, h.First(PlayerChat, ChatEvent{}))

	h.RegisterFunc(PlayerChat, func(any) (any, error) { return nil, nil })
	h.RegisterFunc(PlayerChat, func(p any) (any, error) {
		return "<" + p.(ChatEvent).Player.Username() + "> " + p.(ChatEvent).Message, nil
	})
	h.RegisterFunc(PlayerChat, func(any) (any, error) { return "second", nil })

	ev := ChatEvent{Player: &stubPlayer{name: "alex"}, Message: "hi"}
	results := h.Dispatch(PlayerChat, ev)
	assert.Equal(t, []any{nil, "<alex> hi", "second"}, results)
	assert.Equal(t, "<alex> hi", h.First(PlayerChat, ev))

	text, ok := h.FirstText(PlayerChat, ev)
	assert.True(t, ok)
	assert.Equal(t, "<alex> hi", text)
}

func TestHooksProtection(t *testing.T) {
	h := NewHooks()
	ev := BlockEvent{Player: &stubPlayer{name: "a"}, Pos: protocol.BlockPos{X: 1, Y: 64, Z: 1}}
	assert.False(t, h.Blocked(CheckBlockDigProtection, ev))

	h.RegisterFunc(CheckBlockDigProtection, func(any) (any, error) { return nil, nil })
	h.RegisterFunc(CheckBlockDigProtection, func(any) (any, error) { panic("region plugin crashed") })
	h.RegisterFunc(CheckBlockDigProtection, func(any) (any, error) { return false, nil })
	h.RegisterFunc(CheckBlockDigProtection, func(any) (any, error) { return true, nil })
	// First non-nil answer wins.
	assert.False(t, h.Blocked(CheckBlockDigProtection, ev))
	assert.True(t, h.AnyTrue(CheckBlockDigProtection, ev))

	h.RegisterFunc(CheckBlockPlaceProtection, func(any) (any, error) { return true, nil })
	assert.True(t, h.Blocked(CheckBlockPlaceProtection, ev))
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "player_chat", PlayerChat.String())
	assert.Equal(t, "clear_protection", ClearProtection.String())
	assert.Equal(t, "Event(99)", Event(99).String())
	assert.Len(t, eventNames, int(eventCount))
}
