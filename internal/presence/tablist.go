package presence

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
	"github.com/SkynetNext/mc-proxy/internal/protocol/packet"
)

// addFlags is the action set used for entries the proxy builds itself
const addFlags = packet.ActionAddPlayer | packet.ActionUpdateGameMode |
	packet.ActionUpdateListed | packet.ActionUpdateLatency

// MergePlayerInfo folds a backend's player info update into the merged tab
// list and returns the payload to forward. Backend-local uuids are replaced
// by proxy-level ones and profile properties by the cached verified ones.
// Chat sessions are stripped because backends sign them for the offline
// identity. A nil payload means there is nothing left to forward.
func (r *Registry) MergePlayerInfo(payload []byte) ([]byte, error) {
	var upd packet.PlayerInfoUpdate
	if err := upd.Decode(protocol.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("merge player info: %w", err)
	}
	upd.Actions &^= packet.ActionInitializeChat
	if upd.Actions == 0 || len(upd.Entries) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	for i := range upd.Entries {
		e := &upd.Entries[i]
		if online, ok := r.byOffline[e.UUID]; ok {
			e.UUID = online
		}
		e.ChatSession = nil
		if upd.Has(packet.ActionAddPlayer) {
			if props, ok := r.profiles[e.UUID]; ok && len(props) > 0 {
				e.Properties = props
			}
		}
		r.applyLocked(&upd, e)
	}
	r.mu.Unlock()

	return protocol.MarshalPayload(&upd)
}

// applyLocked copies the actions present in upd into the tab entry for e
func (r *Registry) applyLocked(upd *packet.PlayerInfoUpdate, e *packet.PlayerInfoEntry) {
	entry, ok := r.tab[e.UUID]
	if !ok {
		entry = &TabEntry{UUID: e.UUID, Listed: true}
		r.tab[e.UUID] = entry
	}
	if upd.Has(packet.ActionAddPlayer) {
		entry.Name = e.Name
		entry.Properties = e.Properties
	}
	if upd.Has(packet.ActionUpdateGameMode) {
		entry.GameMode = e.GameMode
	}
	if upd.Has(packet.ActionUpdateListed) {
		entry.Listed = e.Listed
	}
	if upd.Has(packet.ActionUpdateLatency) {
		entry.Latency = e.Latency
	}
	if upd.Has(packet.ActionUpdateDisplayName) {
		entry.DisplayName = e.DisplayName
	}
	if upd.Has(packet.ActionUpdateListOrder) {
		entry.ListOrder = e.ListOrder
	}
	if upd.Has(packet.ActionUpdateHat) {
		entry.ShowHat = e.ShowHat
	}
}

// MergePlayerRemove applies a backend's player remove packet. Identities
// still online through the proxy (typically on the other backend) stay in the
// merged list and are filtered out of the returned payload; nil means drop.
func (r *Registry) MergePlayerRemove(payload []byte) ([]byte, error) {
	var rm packet.PlayerRemove
	if err := rm.Decode(protocol.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("merge player remove: %w", err)
	}

	r.mu.Lock()
	keep := rm.Players[:0]
	for _, id := range rm.Players {
		if online, ok := r.byOffline[id]; ok {
			id = online
		}
		if _, ok := r.players[id]; ok {
			continue
		}
		delete(r.tab, id)
		keep = append(keep, id)
	}
	r.mu.Unlock()

	if len(keep) == 0 {
		return nil, nil
	}
	return protocol.MarshalPayload(&packet.PlayerRemove{Players: keep})
}

// RemoveTabEntry drops id from the merged list
func (r *Registry) RemoveTabEntry(id uuid.UUID) {
	r.mu.Lock()
	delete(r.tab, id)
	r.mu.Unlock()
}

// TabEntries returns the merged list ordered by name
func (r *Registry) TabEntries() []TabEntry {
	r.mu.RLock()
	out := make([]TabEntry, 0, len(r.tab))
	for _, e := range r.tab {
		out = append(out, *e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UUID.String() < out[j].UUID.String()
	})
	return out
}

// BuildPlayerInfo builds an add-player update for an online identity, using
// its tab entry when one exists and its verified properties
func (r *Registry) BuildPlayerInfo(id uuid.UUID) ([]byte, bool) {
	r.mu.Lock()
	p, online := r.players[id]
	entry, listed := r.tab[id]
	if !online && !listed {
		r.mu.Unlock()
		return nil, false
	}
	if !listed {
		entry = &TabEntry{UUID: id, Name: p.Username, GameMode: int32(p.GameMode), Listed: true}
		r.tab[id] = entry
	}
	e := r.entryLocked(entry)
	r.mu.Unlock()

	payload, err := protocol.MarshalPayload(&packet.PlayerInfoUpdate{Actions: addFlags, Entries: []packet.PlayerInfoEntry{e}})
	if err != nil {
		return nil, false
	}
	return payload, true
}

// BuildTabList builds one add-player update carrying the whole merged list,
// except the given identities
func (r *Registry) BuildTabList(except ...uuid.UUID) ([]byte, bool) {
	entries := r.TabEntries()
	upd := packet.PlayerInfoUpdate{Actions: addFlags | packet.ActionUpdateDisplayName}

	r.mu.RLock()
	for i := range entries {
		if contains(except, entries[i].UUID) || entries[i].Name == "" {
			continue
		}
		upd.Entries = append(upd.Entries, r.entryLocked(&entries[i]))
	}
	r.mu.RUnlock()

	if len(upd.Entries) == 0 {
		return nil, false
	}
	payload, err := protocol.MarshalPayload(&upd)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (r *Registry) entryLocked(t *TabEntry) packet.PlayerInfoEntry {
	props := t.Properties
	if cached, ok := r.profiles[t.UUID]; ok && len(cached) > 0 {
		props = cached
	}
	return packet.PlayerInfoEntry{
		UUID:        t.UUID,
		Name:        t.Name,
		Properties:  props,
		GameMode:    t.GameMode,
		Listed:      t.Listed,
		Latency:     t.Latency,
		DisplayName: t.DisplayName,
	}
}

// BuildPlayerRemove builds a player remove payload
func BuildPlayerRemove(ids ...uuid.UUID) []byte {
	payload, _ := protocol.MarshalPayload(&packet.PlayerRemove{Players: ids})
	return payload
}
