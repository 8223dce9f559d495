package packet

import (
	"errors"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// SpawnInfo is the leading part of the world state shared by join game and respawn.
// Only the fields the proxy needs are parsed; the full encoding stays in Raw.
type SpawnInfo struct {
	DimensionType int32
	DimensionName string
	HashedSeed    int64
	GameMode      int8

	// Raw is the complete encoded world state
	Raw []byte
	// dimLen is the encoded size of DimensionType at the start of Raw
	dimLen int
}

// ParseSpawnInfo parses the head of an encoded world state
func ParseSpawnInfo(raw []byte) (SpawnInfo, error) {
	s := SpawnInfo{Raw: raw}
	r := protocol.NewReader(raw)
	var err error
	if s.DimensionType, err = r.ReadVarInt(); err != nil {
		return s, err
	}
	s.dimLen = r.Offset()
	if s.DimensionName, err = r.ReadString(); err != nil {
		return s, err
	}
	if s.HashedSeed, err = r.ReadInt64(); err != nil {
		return s, err
	}
	if s.GameMode, err = r.ReadInt8(); err != nil {
		return s, err
	}
	return s, nil
}

// WithDimensionType re-encodes the world state with a different dimension type id
func (s SpawnInfo) WithDimensionType(dim int32) []byte {
	out := protocol.AppendVarInt(make([]byte, 0, len(s.Raw)+protocol.MaxVarIntLen), dim)
	return append(out, s.Raw[s.dimLen:]...)
}

var errJoinGameTruncated = errors.New("packet: join game truncated")

// JoinGame is the play-state login packet, split around the world state so the
// dimension can be rewritten without understanding every trailing field.
type JoinGame struct {
	// Head is entity id through doLimitedCrafting
	Head               []byte
	Spawn              SpawnInfo
	EnforcesSecureChat bool
}

func (*JoinGame) ID() int32 { return IDJoinGame }

func (j *JoinGame) Encode(w *protocol.Writer) error {
	w.Write(j.Head)
	w.Write(j.Spawn.Raw)
	w.WriteBool(j.EnforcesSecureChat)
	return nil
}

func (j *JoinGame) Decode(r *protocol.Reader) error {
	payload := r.Peek()
	if err := skipJoinGameHead(r); err != nil {
		return err
	}
	headLen := r.Offset()
	rest := r.Rest()
	if len(rest) < 1 {
		return errJoinGameTruncated
	}
	j.Head = append([]byte(nil), payload[:headLen]...)
	spawn, err := ParseSpawnInfo(append([]byte(nil), rest[:len(rest)-1]...))
	if err != nil {
		return err
	}
	j.Spawn = spawn
	j.EnforcesSecureChat = rest[len(rest)-1] != 0
	return nil
}

func skipJoinGameHead(r *protocol.Reader) error {
	// entity id + hardcore
	if err := r.Skip(5); err != nil {
		return err
	}
	worlds, err := r.ReadLength()
	if err != nil {
		return err
	}
	for i := 0; i < worlds; i++ {
		if _, err := r.ReadString(); err != nil {
			return err
		}
	}
	// max players, view distance, simulation distance
	for i := 0; i < 3; i++ {
		if _, err := r.ReadVarInt(); err != nil {
			return err
		}
	}
	// reduced debug info, respawn screen, limited crafting
	return r.Skip(3)
}

// WithDimensionType returns a copy whose world state uses a different dimension type id
func (j *JoinGame) WithDimensionType(dim int32) *JoinGame {
	spawn, _ := ParseSpawnInfo(j.Spawn.WithDimensionType(dim))
	return &JoinGame{Head: j.Head, Spawn: spawn, EnforcesSecureChat: j.EnforcesSecureChat}
}

// Respawn moves the client to a (possibly different) world
type Respawn struct {
	Spawn        SpawnInfo
	CopyMetadata int8
}

func (*Respawn) ID() int32 { return IDRespawn }

func (p *Respawn) Encode(w *protocol.Writer) error {
	w.Write(p.Spawn.Raw)
	w.WriteInt8(p.CopyMetadata)
	return nil
}

func (p *Respawn) Decode(r *protocol.Reader) error {
	rest := r.Rest()
	if len(rest) < 1 {
		return protocol.ErrShortBuffer
	}
	spawn, err := ParseSpawnInfo(append([]byte(nil), rest[:len(rest)-1]...))
	if err != nil {
		return err
	}
	p.Spawn = spawn
	p.CopyMetadata = int8(rest[len(rest)-1])
	return nil
}
