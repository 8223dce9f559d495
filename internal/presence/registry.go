// Package presence is the process-wide view of who is online through the
// proxy: players, the merged tab list, profile properties and each
// identity's last-used backend.
package presence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/metrics"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
)

// Sender delivers a packet to a connected client
type Sender interface {
	SendPacket(id int32, payload []byte)
}

// Player is an identity online through the proxy
type Player struct {
	UUID        uuid.UUID
	Username    string
	OfflineUUID uuid.UUID
	Backend     string
	Dimension   string
	GameMode    int8
	Premium     bool
	LoginTime   time.Time

	sender Sender
}

// TabEntry is one row of the merged player list
type TabEntry struct {
	UUID        uuid.UUID
	Name        string
	Properties  []packet.Property
	GameMode    int32
	Latency     int32
	Listed      bool
	DisplayName map[string]any
	ListOrder   int32
	ShowHat     bool
}

// Registry is the single owner of shared presence state. All methods are
// safe for concurrent use.
type Registry struct {
	store BackendStore

	mu        sync.RWMutex
	players   map[uuid.UUID]*Player
	byOffline map[uuid.UUID]uuid.UUID
	tab       map[uuid.UUID]*TabEntry
	profiles  map[uuid.UUID][]packet.Property
	// identities whose join message waits for play state
	pendingJoin map[uuid.UUID]struct{}
}

// NewRegistry creates a registry persisting last-used backends in store.
// A nil store keeps them in memory.
func NewRegistry(store BackendStore) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		store:       store,
		players:     make(map[uuid.UUID]*Player),
		byOffline:   make(map[uuid.UUID]uuid.UUID),
		tab:         make(map[uuid.UUID]*TabEntry),
		profiles:    make(map[uuid.UUID][]packet.Property),
		pendingJoin: make(map[uuid.UUID]struct{}),
	}
}

// Track registers a player. A previous session with the same uuid is replaced.
func (r *Registry) Track(p Player, sender Sender) {
	if p.LoginTime.IsZero() {
		p.LoginTime = time.Now()
	}
	if p.Dimension == "" {
		p.Dimension = "minecraft:overworld"
	}
	p.sender = sender

	r.mu.Lock()
	if old, ok := r.players[p.UUID]; ok {
		delete(r.byOffline, old.OfflineUUID)
	}
	r.players[p.UUID] = &p
	r.byOffline[p.OfflineUUID] = p.UUID
	n := len(r.players)
	r.mu.Unlock()

	metrics.PlayersOnline.Set(float64(n))
	r.refreshBackendGauge()
}

// Untrack removes a player and its tab entry. sender must match the tracked
// session so a stale connection cannot evict a newer login.
func (r *Registry) Untrack(id uuid.UUID, sender Sender) (Player, bool) {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok || (sender != nil && p.sender != sender) {
		r.mu.Unlock()
		return Player{}, false
	}
	delete(r.players, id)
	delete(r.byOffline, p.OfflineUUID)
	delete(r.tab, id)
	delete(r.pendingJoin, id)
	n := len(r.players)
	r.mu.Unlock()

	metrics.PlayersOnline.Set(float64(n))
	r.refreshBackendGauge()
	return *p, true
}

// Get returns a snapshot of a player
func (r *Registry) Get(id uuid.UUID) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.players[id]; ok {
		return *p, true
	}
	return Player{}, false
}

// ByOfflineUUID resolves a backend-local identity to the online player
func (r *Registry) ByOfflineUUID(offline uuid.UUID) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byOffline[offline]; ok {
		if p, ok := r.players[id]; ok {
			return *p, true
		}
	}
	return Player{}, false
}

// ByName finds a player by case-insensitive username
func (r *Registry) ByName(name string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.players {
		if strings.EqualFold(p.Username, name) {
			return *p, true
		}
	}
	return Player{}, false
}

// IsOnline reports whether id is online through the proxy
func (r *Registry) IsOnline(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[id]
	return ok
}

// Players returns snapshots ordered by login time
func (r *Registry) Players() []Player {
	r.mu.RLock()
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LoginTime.Before(out[j].LoginTime) })
	return out
}

// Count returns the number of online players
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *Registry) update(id uuid.UUID, fn func(*Player)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if ok {
		fn(p)
	}
	return ok
}

// SetBackend records the backend a player is connected to
func (r *Registry) SetBackend(id uuid.UUID, backend string) {
	r.update(id, func(p *Player) { p.Backend = backend })
	r.refreshBackendGauge()
}

// SetDimension records the player's current dimension name
func (r *Registry) SetDimension(id uuid.UUID, dimension string) {
	r.update(id, func(p *Player) { p.Dimension = dimension })
}

// SetGameMode records the player's game mode
func (r *Registry) SetGameMode(id uuid.UUID, mode int8) {
	r.update(id, func(p *Player) { p.GameMode = mode })
}

func (r *Registry) refreshBackendGauge() {
	counts := make(map[string]int)
	r.mu.RLock()
	for _, p := range r.players {
		counts[p.Backend]++
	}
	r.mu.RUnlock()
	metrics.PlayersPerBackend.Reset()
	for backend, n := range counts {
		metrics.PlayersPerBackend.WithLabelValues(backend).Set(float64(n))
	}
}

// SetProfile caches verified profile properties for id
func (r *Registry) SetProfile(id uuid.UUID, props []packet.Property) {
	r.mu.Lock()
	r.profiles[id] = append([]packet.Property(nil), props...)
	r.mu.Unlock()
}

// Profile returns the cached properties for id
func (r *Registry) Profile(id uuid.UUID) []packet.Property {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[id]
}

// ClearProfile drops cached properties
func (r *Registry) ClearProfile(id uuid.UUID) {
	r.mu.Lock()
	delete(r.profiles, id)
	r.mu.Unlock()
}

// LastBackend returns the backend id used last, if known
func (r *Registry) LastBackend(ctx context.Context, id uuid.UUID) (string, bool, error) {
	return r.store.LastBackend(ctx, id)
}

// SetLastBackend remembers the backend id used last
func (r *Registry) SetLastBackend(ctx context.Context, id uuid.UUID, backend string) error {
	return r.store.SetLastBackend(ctx, id, backend)
}

// DeferJoin queues the join message for id until it reaches play state
func (r *Registry) DeferJoin(id uuid.UUID) {
	r.mu.Lock()
	r.pendingJoin[id] = struct{}{}
	r.mu.Unlock()
}

// TakeJoin reports and clears a pending join message for id
func (r *Registry) TakeJoin(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pendingJoin[id]
	delete(r.pendingJoin, id)
	return ok
}

// Broadcast sends a packet to every online player except the excluded ones
func (r *Registry) Broadcast(id int32, payload []byte, except ...uuid.UUID) {
	r.mu.RLock()
	targets := make([]Sender, 0, len(r.players))
	for pid, p := range r.players {
		if p.sender == nil || contains(except, pid) {
			continue
		}
		targets = append(targets, p.sender)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.SendPacket(id, payload)
	}
}

// SendTo delivers a packet to one online player
func (r *Registry) SendTo(target uuid.UUID, id int32, payload []byte) bool {
	r.mu.RLock()
	p, ok := r.players[target]
	var s Sender
	if ok {
		s = p.sender
	}
	r.mu.RUnlock()
	if s == nil {
		return false
	}
	s.SendPacket(id, payload)
	return true
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
