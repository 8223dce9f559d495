package packet

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// Player info update action flags
const (
	ActionAddPlayer         byte = 0x01
	ActionInitializeChat    byte = 0x02
	ActionUpdateGameMode    byte = 0x04
	ActionUpdateListed      byte = 0x08
	ActionUpdateLatency     byte = 0x10
	ActionUpdateDisplayName byte = 0x20
	ActionUpdateListOrder   byte = 0x40
	ActionUpdateHat         byte = 0x80
)

// ChatSession is the signed chat session of an initialize-chat action
type ChatSession struct {
	SessionID    uuid.UUID
	ExpiresAt    int64
	PublicKey    []byte
	KeySignature []byte
}

// PlayerInfoEntry is one player in a PlayerInfoUpdate. Which fields are meaningful
// depends on the packet's action flags.
type PlayerInfoEntry struct {
	UUID       uuid.UUID
	Name       string
	Properties []Property
	// ChatSession is nil when the initialize-chat action carries no signature data
	ChatSession *ChatSession
	GameMode    int32
	Listed      bool
	Latency     int32
	// DisplayName is nil when the display name is cleared
	DisplayName map[string]any
	ListOrder   int32
	ShowHat     bool
}

// PlayerInfoUpdate adds or updates entries in the client's player list
type PlayerInfoUpdate struct {
	Actions byte
	Entries []PlayerInfoEntry
}

func (*PlayerInfoUpdate) ID() int32 { return IDPlayerInfoUpdate }

func (p *PlayerInfoUpdate) Has(action byte) bool {
	return p.Actions&action != 0
}

func (p *PlayerInfoUpdate) Encode(w *protocol.Writer) error {
	w.WriteByte(p.Actions)
	w.WriteVarInt(int32(len(p.Entries)))
	for i := range p.Entries {
		e := &p.Entries[i]
		w.WriteUUID(e.UUID)
		if p.Has(ActionAddPlayer) {
			w.WriteString(e.Name)
			writeProperties(w, e.Properties)
		}
		if p.Has(ActionInitializeChat) {
			w.WriteBool(e.ChatSession != nil)
			if e.ChatSession != nil {
				w.WriteUUID(e.ChatSession.SessionID)
				w.WriteInt64(e.ChatSession.ExpiresAt)
				w.WriteByteArray(e.ChatSession.PublicKey)
				w.WriteByteArray(e.ChatSession.KeySignature)
			}
		}
		if p.Has(ActionUpdateGameMode) {
			w.WriteVarInt(e.GameMode)
		}
		if p.Has(ActionUpdateListed) {
			w.WriteBool(e.Listed)
		}
		if p.Has(ActionUpdateLatency) {
			w.WriteVarInt(e.Latency)
		}
		if p.Has(ActionUpdateDisplayName) {
			w.WriteBool(e.DisplayName != nil)
			if e.DisplayName != nil {
				if err := protocol.WriteAnonymousNBT(w, e.DisplayName); err != nil {
					return fmt.Errorf("display name of %s: %w", e.UUID, err)
				}
			}
		}
		if p.Has(ActionUpdateListOrder) {
			w.WriteVarInt(e.ListOrder)
		}
		if p.Has(ActionUpdateHat) {
			w.WriteBool(e.ShowHat)
		}
	}
	return nil
}

func (p *PlayerInfoUpdate) Decode(r *protocol.Reader) error {
	var err error
	if p.Actions, err = r.ReadByte(); err != nil {
		return err
	}
	n, err := r.ReadLength()
	if err != nil {
		return err
	}
	if n*16 > r.Remaining() {
		return protocol.ErrShortBuffer
	}
	p.Entries = make([]PlayerInfoEntry, n)
	for i := range p.Entries {
		if err := p.decodeEntry(r, &p.Entries[i]); err != nil {
			return fmt.Errorf("player info entry %d: %w", i, err)
		}
	}
	return nil
}

func (p *PlayerInfoUpdate) decodeEntry(r *protocol.Reader, e *PlayerInfoEntry) (err error) {
	if e.UUID, err = r.ReadUUID(); err != nil {
		return err
	}
	if p.Has(ActionAddPlayer) {
		if e.Name, err = r.ReadString(); err != nil {
			return err
		}
		if e.Properties, err = readProperties(r); err != nil {
			return err
		}
	}
	if p.Has(ActionInitializeChat) {
		signed, err := r.ReadBool()
		if err != nil {
			return err
		}
		if signed {
			cs := &ChatSession{}
			if cs.SessionID, err = r.ReadUUID(); err != nil {
				return err
			}
			if cs.ExpiresAt, err = r.ReadInt64(); err != nil {
				return err
			}
			if cs.PublicKey, err = r.ReadByteArray(); err != nil {
				return err
			}
			if cs.KeySignature, err = r.ReadByteArray(); err != nil {
				return err
			}
			e.ChatSession = cs
		}
	}
	if p.Has(ActionUpdateGameMode) {
		if e.GameMode, err = r.ReadVarInt(); err != nil {
			return err
		}
	}
	if p.Has(ActionUpdateListed) {
		if e.Listed, err = r.ReadBool(); err != nil {
			return err
		}
	}
	if p.Has(ActionUpdateLatency) {
		if e.Latency, err = r.ReadVarInt(); err != nil {
			return err
		}
	}
	if p.Has(ActionUpdateDisplayName) {
		present, err := r.ReadBool()
		if err != nil {
			return err
		}
		if present {
			if e.DisplayName, err = protocol.ReadAnonymousNBT(r); err != nil {
				return err
			}
		}
	}
	if p.Has(ActionUpdateListOrder) {
		if e.ListOrder, err = r.ReadVarInt(); err != nil {
			return err
		}
	}
	if p.Has(ActionUpdateHat) {
		if e.ShowHat, err = r.ReadBool(); err != nil {
			return err
		}
	}
	return nil
}
