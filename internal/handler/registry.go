// Package handler lets collaborators intercept, rewrite and observe the
// packets a connection relays, and subscribe to player events.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// Player is the view of a connection handed to collaborators
type Player interface {
	UUID() uuid.UUID
	Username() string
	// OfflineUUID is the identity the backends know the player by
	OfflineUUID() uuid.UUID
	Backend() string
	Premium() bool

	SendMessage(text string)
	SendPacket(id int32, payload []byte)
	Switch(ctx context.Context, backend string) error
}

// PacketHandler inspects a packet. Returning true consumes it: later
// handlers are skipped and the packet is not forwarded.
type PacketHandler func(p Player, f protocol.Frame) (handled bool, err error)

// TransformResult says what a Transform did with a packet
type TransformResult int

const (
	Unchanged TransformResult = iota
	Replaced
	Dropped
)

func (r TransformResult) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Replaced:
		return "replaced"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("TransformResult(%d)", int(r))
	}
}

// Transform rewrites a server packet. The payload is used only with Replaced.
type Transform func(p Player, f protocol.Frame) ([]byte, TransformResult, error)

// Registry holds packet handlers, transforms and lifecycle callbacks.
// Registration is safe at any time; dispatch sees a consistent snapshot.
type Registry struct {
	mu         sync.RWMutex
	client     []PacketHandler
	server     []PacketHandler
	transforms map[int32]Transform
	onJoin     []func(Player)
	onLeave    []func(Player)
	onReady    []func(Player)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{transforms: make(map[int32]Transform)}
}

// OnClientPacket appends a client-to-server handler
func (r *Registry) OnClientPacket(h PacketHandler) {
	r.mu.Lock()
	r.client = append(r.client, h)
	r.mu.Unlock()
}

// OnServerPacket appends a server-to-client handler
func (r *Registry) OnServerPacket(h PacketHandler) {
	r.mu.Lock()
	r.server = append(r.server, h)
	r.mu.Unlock()
}

// OnServerTransform sets the transform for a server packet id, replacing any earlier one
func (r *Registry) OnServerTransform(id int32, t Transform) {
	r.mu.Lock()
	_, replaced := r.transforms[id]
	r.transforms[id] = t
	r.mu.Unlock()
	if replaced {
		logger.L.Warn("Replacing server transform", zap.String("packet_id", fmt.Sprintf("0x%02x", id)))
	}
}

// OnJoin registers a callback for players entering play
func (r *Registry) OnJoin(fn func(Player)) {
	r.mu.Lock()
	r.onJoin = append(r.onJoin, fn)
	r.mu.Unlock()
}

// OnLeave registers a callback for disconnecting players
func (r *Registry) OnLeave(fn func(Player)) {
	r.mu.Lock()
	r.onLeave = append(r.onLeave, fn)
	r.mu.Unlock()
}

// OnReady registers a callback for players whose world finished loading
func (r *Registry) OnReady(fn func(Player)) {
	r.mu.Lock()
	r.onReady = append(r.onReady, fn)
	r.mu.Unlock()
}

// HandleClient runs client handlers in order and reports whether one consumed the packet
func (r *Registry) HandleClient(p Player, f protocol.Frame) bool {
	r.mu.RLock()
	handlers := r.client
	r.mu.RUnlock()
	return runHandlers("client", handlers, p, f)
}

// HandleServer runs server handlers in order and reports whether one consumed the packet
func (r *Registry) HandleServer(p Player, f protocol.Frame) bool {
	r.mu.RLock()
	handlers := r.server
	r.mu.RUnlock()
	return runHandlers("server", handlers, p, f)
}

func runHandlers(kind string, handlers []PacketHandler, p Player, f protocol.Frame) bool {
	for _, h := range handlers {
		if callHandler(kind, h, p, f) {
			return true
		}
	}
	return false
}

// callHandler treats a failing handler as not having handled the packet
func callHandler(kind string, h PacketHandler, p Player, f protocol.Frame) (handled bool) {
	defer func() {
		if rec := recover(); rec != nil {
			reportFailure(kind+"_handler", p, f.ID, fmt.Errorf("panic: %v", rec))
			handled = false
		}
	}()
	handled, err := h(p, f)
	if err != nil {
		reportFailure(kind+"_handler", p, f.ID, err)
		return false
	}
	return handled
}

// Transform applies the transform registered for the packet id, if any.
// A failing transform leaves the packet unchanged.
func (r *Registry) Transform(p Player, f protocol.Frame) (payload []byte, result TransformResult) {
	r.mu.RLock()
	t, ok := r.transforms[f.ID]
	r.mu.RUnlock()
	if !ok {
		return f.Payload, Unchanged
	}

	defer func() {
		if rec := recover(); rec != nil {
			reportFailure("transform", p, f.ID, fmt.Errorf("panic: %v", rec))
			payload, result = f.Payload, Unchanged
		}
	}()
	out, res, err := t(p, f)
	if err != nil {
		reportFailure("transform", p, f.ID, err)
		return f.Payload, Unchanged
	}
	switch res {
	case Replaced:
		return out, Replaced
	case Dropped:
		return nil, Dropped
	default:
		return f.Payload, Unchanged
	}
}

// Joined runs the join callbacks
func (r *Registry) Joined(p Player) {
	r.mu.RLock()
	fns := r.onJoin
	r.mu.RUnlock()
	runLifecycle("join", fns, p)
}

// Left runs the leave callbacks
func (r *Registry) Left(p Player) {
	r.mu.RLock()
	fns := r.onLeave
	r.mu.RUnlock()
	runLifecycle("leave", fns, p)
}

// Ready runs the ready callbacks
func (r *Registry) Ready(p Player) {
	r.mu.RLock()
	fns := r.onReady
	r.mu.RUnlock()
	runLifecycle("ready", fns, p)
}

func runLifecycle(kind string, fns []func(Player), p Player) {
	for _, fn := range fns {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					reportFailure(kind, p, -1, fmt.Errorf("panic: %v", rec))
				}
			}()
			fn(p)
		}()
	}
}

func reportFailure(kind string, p Player, id int32, err error) {
	metrics.IncHandlerError(kind)
	fields := []zap.Field{zap.String("kind", kind), zap.Error(err)}
	if id >= 0 {
		fields = append(fields, zap.String("packet_id", fmt.Sprintf("0x%02x", id)))
	}
	if p != nil {
		fields = append(fields, zap.String("username", p.Username()))
	}
	logger.L.Warn("Collaborator failed, continuing", fields...)
}
