package auth

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/config"
)

// Identity is the name and uuid a player is presented as
type Identity struct {
	Username string
	UUID     uuid.UUID
}

// Remapper maps a verified login name to an alternate identity
type Remapper interface {
	Remap(username string) (Identity, bool)
}

// StaticRemapper serves remap entries from configuration. Lookups are case-insensitive.
type StaticRemapper struct {
	table atomic.Pointer[map[string]Identity]
}

// NewStaticRemapper builds a remapper from entries
func NewStaticRemapper(entries []config.RemapEntry) *StaticRemapper {
	r := &StaticRemapper{}
	r.Update(entries)
	return r
}

// Update replaces the table. Entries with an unparsable uuid are skipped.
func (r *StaticRemapper) Update(entries []config.RemapEntry) {
	table := make(map[string]Identity, len(entries))
	for _, e := range entries {
		id, err := uuid.Parse(e.TargetUUID)
		if err != nil {
			continue
		}
		table[strings.ToLower(e.Username)] = Identity{Username: e.TargetUsername, UUID: id}
	}
	r.table.Store(&table)
}

// Remap implements Remapper
func (r *StaticRemapper) Remap(username string) (Identity, bool) {
	id, ok := (*r.table.Load())[strings.ToLower(username)]
	return id, ok
}
