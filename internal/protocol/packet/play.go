package packet

import (
	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// SystemChat is a server message. Content is a decoded text component.
type SystemChat struct {
	Content   map[string]any
	ActionBar bool
}

func (*SystemChat) ID() int32 { return IDSystemChat }

func (s *SystemChat) Encode(w *protocol.Writer) error {
	if err := protocol.WriteAnonymousNBT(w, s.Content); err != nil {
		return err
	}
	w.WriteBool(s.ActionBar)
	return nil
}

func (s *SystemChat) Decode(r *protocol.Reader) (err error) {
	if s.Content, err = protocol.ReadAnonymousNBT(r); err != nil {
		return err
	}
	s.ActionBar, err = r.ReadBool()
	return err
}

// PlayDisconnect kicks a client that is already in play
type PlayDisconnect struct {
	Reason map[string]any
}

func (*PlayDisconnect) ID() int32 { return IDPlayDisconnect }

func (d *PlayDisconnect) Encode(w *protocol.Writer) error {
	return protocol.WriteAnonymousNBT(w, d.Reason)
}

func (d *PlayDisconnect) Decode(r *protocol.Reader) (err error) {
	d.Reason, err = protocol.ReadAnonymousNBT(r)
	return err
}

// TabListHeaderFooter sets the text above and below the player list
type TabListHeaderFooter struct {
	Header map[string]any
	Footer map[string]any
}

func (*TabListHeaderFooter) ID() int32 { return IDTabListHeaderFooter }

func (t *TabListHeaderFooter) Encode(w *protocol.Writer) error {
	if err := protocol.WriteAnonymousNBT(w, t.Header); err != nil {
		return err
	}
	return protocol.WriteAnonymousNBT(w, t.Footer)
}

func (t *TabListHeaderFooter) Decode(r *protocol.Reader) (err error) {
	if t.Header, err = protocol.ReadAnonymousNBT(r); err != nil {
		return err
	}
	t.Footer, err = protocol.ReadAnonymousNBT(r)
	return err
}

// GameStateReasonChangeGameMode is the game state change reason carrying a new game mode
const GameStateReasonChangeGameMode = 3

// GameStateChange signals world or player state changes
type GameStateChange struct {
	Reason uint8
	Value  float32
}

func (*GameStateChange) ID() int32 { return IDGameStateChange }

func (g *GameStateChange) Encode(w *protocol.Writer) error {
	w.WriteByte(g.Reason)
	w.WriteFloat32(g.Value)
	return nil
}

func (g *GameStateChange) Decode(r *protocol.Reader) (err error) {
	if g.Reason, err = r.ReadByte(); err != nil {
		return err
	}
	g.Value, err = r.ReadFloat32()
	return err
}

// PlayerRemove removes identities from the client's player list
type PlayerRemove struct {
	Players []uuid.UUID
}

func (*PlayerRemove) ID() int32 { return IDPlayerRemove }

func (p *PlayerRemove) Encode(w *protocol.Writer) error {
	w.WriteVarInt(int32(len(p.Players)))
	for _, id := range p.Players {
		w.WriteUUID(id)
	}
	return nil
}

func (p *PlayerRemove) Decode(r *protocol.Reader) error {
	n, err := r.ReadLength()
	if err != nil {
		return err
	}
	if n*16 > r.Remaining() {
		return protocol.ErrShortBuffer
	}
	p.Players = make([]uuid.UUID, n)
	for i := range p.Players {
		if p.Players[i], err = r.ReadUUID(); err != nil {
			return err
		}
	}
	return nil
}

// KeepAlive is used in both play directions; PacketID selects which
type KeepAlive struct {
	PacketID int32
	Value    int64
}

func (k *KeepAlive) ID() int32 { return k.PacketID }

func (k *KeepAlive) Encode(w *protocol.Writer) error {
	w.WriteInt64(k.Value)
	return nil
}

func (k *KeepAlive) Decode(r *protocol.Reader) (err error) {
	k.Value, err = r.ReadInt64()
	return err
}

// Use entity actions
const (
	UseEntityInteract   int32 = 0
	UseEntityAttack     int32 = 1
	UseEntityInteractAt int32 = 2
)

// Vec3 is a float vector
type Vec3 struct {
	X, Y, Z float32
}

// UseEntity is an interaction with an entity. Target is set only for interact-at,
// Hand only for interact and interact-at.
type UseEntity struct {
	EntityID int32
	Action   int32
	Target   *Vec3
	Hand     *int32
	Sneaking bool
}

func (*UseEntity) ID() int32 { return IDUseEntity }

func (u *UseEntity) Encode(w *protocol.Writer) error {
	w.WriteVarInt(u.EntityID)
	w.WriteVarInt(u.Action)
	if u.Action == UseEntityInteractAt {
		var t Vec3
		if u.Target != nil {
			t = *u.Target
		}
		w.WriteFloat32(t.X)
		w.WriteFloat32(t.Y)
		w.WriteFloat32(t.Z)
	}
	if u.Action == UseEntityInteract || u.Action == UseEntityInteractAt {
		var hand int32
		if u.Hand != nil {
			hand = *u.Hand
		}
		w.WriteVarInt(hand)
	}
	w.WriteBool(u.Sneaking)
	return nil
}

func (u *UseEntity) Decode(r *protocol.Reader) (err error) {
	if u.EntityID, err = r.ReadVarInt(); err != nil {
		return err
	}
	if u.Action, err = r.ReadVarInt(); err != nil {
		return err
	}
	u.Target, u.Hand = nil, nil
	if u.Action == UseEntityInteractAt {
		var t Vec3
		if t.X, err = r.ReadFloat32(); err != nil {
			return err
		}
		if t.Y, err = r.ReadFloat32(); err != nil {
			return err
		}
		if t.Z, err = r.ReadFloat32(); err != nil {
			return err
		}
		u.Target = &t
	}
	if u.Action == UseEntityInteract || u.Action == UseEntityInteractAt {
		hand, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		u.Hand = &hand
	}
	u.Sneaking, err = r.ReadBool()
	return err
}

// Block dig statuses
const (
	DigStarted   int32 = 0
	DigCancelled int32 = 1
	DigFinished  int32 = 2
)

// BlockDig is a block breaking action
type BlockDig struct {
	Status   int32
	Location protocol.BlockPos
	Face     int8
	Sequence int32
}

func (*BlockDig) ID() int32 { return IDBlockDig }

func (b *BlockDig) Encode(w *protocol.Writer) error {
	w.WriteVarInt(b.Status)
	w.WritePosition(b.Location)
	w.WriteInt8(b.Face)
	w.WriteVarInt(b.Sequence)
	return nil
}

func (b *BlockDig) Decode(r *protocol.Reader) (err error) {
	if b.Status, err = r.ReadVarInt(); err != nil {
		return err
	}
	if b.Location, err = r.ReadPosition(); err != nil {
		return err
	}
	if b.Face, err = r.ReadInt8(); err != nil {
		return err
	}
	b.Sequence, err = r.ReadVarInt()
	return err
}

// BlockPlace is a use-item-on-block action
type BlockPlace struct {
	Hand           int32
	Location       protocol.BlockPos
	Direction      int32
	Cursor         Vec3
	InsideBlock    bool
	WorldBorderHit bool
	Sequence       int32
}

func (*BlockPlace) ID() int32 { return IDBlockPlace }

func (b *BlockPlace) Encode(w *protocol.Writer) error {
	w.WriteVarInt(b.Hand)
	w.WritePosition(b.Location)
	w.WriteVarInt(b.Direction)
	w.WriteFloat32(b.Cursor.X)
	w.WriteFloat32(b.Cursor.Y)
	w.WriteFloat32(b.Cursor.Z)
	w.WriteBool(b.InsideBlock)
	w.WriteBool(b.WorldBorderHit)
	w.WriteVarInt(b.Sequence)
	return nil
}

func (b *BlockPlace) Decode(r *protocol.Reader) (err error) {
	if b.Hand, err = r.ReadVarInt(); err != nil {
		return err
	}
	if b.Location, err = r.ReadPosition(); err != nil {
		return err
	}
	if b.Direction, err = r.ReadVarInt(); err != nil {
		return err
	}
	if b.Cursor.X, err = r.ReadFloat32(); err != nil {
		return err
	}
	if b.Cursor.Y, err = r.ReadFloat32(); err != nil {
		return err
	}
	if b.Cursor.Z, err = r.ReadFloat32(); err != nil {
		return err
	}
	if b.InsideBlock, err = r.ReadBool(); err != nil {
		return err
	}
	if b.WorldBorderHit, err = r.ReadBool(); err != nil {
		return err
	}
	b.Sequence, err = r.ReadVarInt()
	return err
}

// UseItem is a use-item-in-air action
type UseItem struct {
	Hand     int32
	Sequence int32
	Yaw      float32
	Pitch    float32
}

func (*UseItem) ID() int32 { return IDUseItem }

func (u *UseItem) Encode(w *protocol.Writer) error {
	w.WriteVarInt(u.Hand)
	w.WriteVarInt(u.Sequence)
	w.WriteFloat32(u.Yaw)
	w.WriteFloat32(u.Pitch)
	return nil
}

func (u *UseItem) Decode(r *protocol.Reader) (err error) {
	if u.Hand, err = r.ReadVarInt(); err != nil {
		return err
	}
	if u.Sequence, err = r.ReadVarInt(); err != nil {
		return err
	}
	if u.Yaw, err = r.ReadFloat32(); err != nil {
		return err
	}
	u.Pitch, err = r.ReadFloat32()
	return err
}

// PlayerPosition covers both the position (0x1d) and position+look (0x1e) packets
type PlayerPosition struct {
	X, Y, Z    float64
	Yaw, Pitch float32
	HasLook    bool
	Flags      int8
}

func (p *PlayerPosition) ID() int32 {
	if p.HasLook {
		return IDPlayerPositionLook
	}
	return IDPlayerPosition
}

func (p *PlayerPosition) Encode(w *protocol.Writer) error {
	w.WriteFloat64(p.X)
	w.WriteFloat64(p.Y)
	w.WriteFloat64(p.Z)
	if p.HasLook {
		w.WriteFloat32(p.Yaw)
		w.WriteFloat32(p.Pitch)
	}
	w.WriteInt8(p.Flags)
	return nil
}

// Decode reads the plain position layout; use DecodePlayerPosition to pick the layout by id
func (p *PlayerPosition) Decode(r *protocol.Reader) (err error) {
	if p.X, err = r.ReadFloat64(); err != nil {
		return err
	}
	if p.Y, err = r.ReadFloat64(); err != nil {
		return err
	}
	if p.Z, err = r.ReadFloat64(); err != nil {
		return err
	}
	if p.HasLook {
		if p.Yaw, err = r.ReadFloat32(); err != nil {
			return err
		}
		if p.Pitch, err = r.ReadFloat32(); err != nil {
			return err
		}
	}
	p.Flags, err = r.ReadInt8()
	return err
}

// DecodePlayerPosition decodes a movement frame of either layout
func DecodePlayerPosition(f protocol.Frame) (*PlayerPosition, error) {
	p := &PlayerPosition{HasLook: f.ID == IDPlayerPositionLook}
	if err := protocol.Unmarshal(f, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ChatCommand is an unsigned slash command without the leading slash
type ChatCommand struct {
	Command string
}

func (*ChatCommand) ID() int32 { return IDChatCommand }

func (c *ChatCommand) Encode(w *protocol.Writer) error {
	w.WriteString(c.Command)
	return nil
}

func (c *ChatCommand) Decode(r *protocol.Reader) (err error) {
	c.Command, err = r.ReadString()
	return err
}

// ChatMessage is a player chat message. Only the leading text is interpreted;
// the signature block is kept opaque.
type ChatMessage struct {
	Message string
	Rest    []byte
}

func (*ChatMessage) ID() int32 { return IDChatMessage }

func (c *ChatMessage) Encode(w *protocol.Writer) error {
	w.WriteString(c.Message)
	_, err := w.Write(c.Rest)
	return err
}

func (c *ChatMessage) Decode(r *protocol.Reader) (err error) {
	if c.Message, err = r.ReadString(); err != nil {
		return err
	}
	c.Rest = append([]byte(nil), r.Rest()...)
	return nil
}

// HeldItemChange selects a hotbar slot
type HeldItemChange struct {
	Slot int16
}

func (*HeldItemChange) ID() int32 { return IDHeldItemChange }

func (h *HeldItemChange) Encode(w *protocol.Writer) error {
	w.WriteInt16(h.Slot)
	return nil
}

func (h *HeldItemChange) Decode(r *protocol.Reader) (err error) {
	h.Slot, err = r.ReadInt16()
	return err
}

// AcknowledgeBlockChange confirms a block action sequence, making the client
// roll back its prediction for blocks the server did not change
type AcknowledgeBlockChange struct {
	Sequence int32
}

func (*AcknowledgeBlockChange) ID() int32 { return IDAcknowledgeBlockChange }

func (a *AcknowledgeBlockChange) Encode(w *protocol.Writer) error {
	w.WriteVarInt(a.Sequence)
	return nil
}

func (a *AcknowledgeBlockChange) Decode(r *protocol.Reader) (err error) {
	a.Sequence, err = r.ReadVarInt()
	return err
}
