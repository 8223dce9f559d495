package packet

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// Handshake is the first packet of every modern connection
type Handshake struct {
	ProtocolVersion int32
	ServerHost      string
	ServerPort      uint16
	NextState       int32
}

func (*Handshake) ID() int32 { return IDHandshake }

func (h *Handshake) Encode(w *protocol.Writer) error {
	w.WriteVarInt(h.ProtocolVersion)
	w.WriteString(h.ServerHost)
	w.WriteUint16(h.ServerPort)
	w.WriteVarInt(h.NextState)
	return nil
}

func (h *Handshake) Decode(r *protocol.Reader) (err error) {
	if h.ProtocolVersion, err = r.ReadVarInt(); err != nil {
		return err
	}
	if h.ServerHost, err = r.ReadString(); err != nil {
		return err
	}
	if h.ServerPort, err = r.ReadUint16(); err != nil {
		return err
	}
	h.NextState, err = r.ReadVarInt()
	return err
}

// StatusResponse carries the server list JSON document
type StatusResponse struct {
	Response string
}

func (*StatusResponse) ID() int32 { return IDStatusResponse }

func (s *StatusResponse) Encode(w *protocol.Writer) error {
	w.WriteString(s.Response)
	return nil
}

func (s *StatusResponse) Decode(r *protocol.Reader) (err error) {
	s.Response, err = r.ReadString()
	return err
}

// Ping is both the status ping request and its pong
type Ping struct {
	Time int64
}

func (*Ping) ID() int32 { return IDPing }

func (p *Ping) Encode(w *protocol.Writer) error {
	w.WriteInt64(p.Time)
	return nil
}

func (p *Ping) Decode(r *protocol.Reader) (err error) {
	p.Time, err = r.ReadInt64()
	return err
}

// LoginStart carries the client's declared identity
type LoginStart struct {
	Username string
	UUID     uuid.UUID
}

func (*LoginStart) ID() int32 { return IDLoginStart }

func (l *LoginStart) Encode(w *protocol.Writer) error {
	w.WriteString(l.Username)
	w.WriteUUID(l.UUID)
	return nil
}

func (l *LoginStart) Decode(r *protocol.Reader) (err error) {
	if l.Username, err = r.ReadString(); err != nil {
		return err
	}
	l.UUID, err = r.ReadUUID()
	return err
}

// Property is one signed profile property (usually "textures")
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

func writeProperties(w *protocol.Writer, props []Property) {
	w.WriteVarInt(int32(len(props)))
	for _, prop := range props {
		w.WriteString(prop.Name)
		w.WriteString(prop.Value)
		w.WriteBool(prop.Signature != "")
		if prop.Signature != "" {
			w.WriteString(prop.Signature)
		}
	}
}

func readProperties(r *protocol.Reader) ([]Property, error) {
	n, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	if n > r.Remaining() {
		return nil, protocol.ErrShortBuffer
	}
	props := make([]Property, 0, n)
	for i := 0; i < n; i++ {
		var prop Property
		if prop.Name, err = r.ReadString(); err != nil {
			return nil, err
		}
		if prop.Value, err = r.ReadString(); err != nil {
			return nil, err
		}
		signed, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if signed {
			if prop.Signature, err = r.ReadString(); err != nil {
				return nil, err
			}
		}
		props = append(props, prop)
	}
	return props, nil
}

// LoginSuccess completes the login phase
type LoginSuccess struct {
	UUID       uuid.UUID
	Username   string
	Properties []Property
}

func (*LoginSuccess) ID() int32 { return IDLoginSuccess }

func (l *LoginSuccess) Encode(w *protocol.Writer) error {
	w.WriteUUID(l.UUID)
	w.WriteString(l.Username)
	writeProperties(w, l.Properties)
	return nil
}

func (l *LoginSuccess) Decode(r *protocol.Reader) (err error) {
	if l.UUID, err = r.ReadUUID(); err != nil {
		return err
	}
	if l.Username, err = r.ReadString(); err != nil {
		return err
	}
	l.Properties, err = readProperties(r)
	return err
}

// LoginDisconnect rejects a client during login. Reason is a JSON text component.
type LoginDisconnect struct {
	Reason string
}

// NewLoginDisconnect builds a disconnect from one or more text components
func NewLoginDisconnect(components ...map[string]any) *LoginDisconnect {
	var root map[string]any
	switch len(components) {
	case 0:
		root = protocol.Text("")
	case 1:
		root = components[0]
	default:
		root = components[0]
		extra := make([]any, 0, len(components)-1)
		for _, c := range components[1:] {
			extra = append(extra, c)
		}
		root["extra"] = extra
	}
	b, _ := json.Marshal(root)
	return &LoginDisconnect{Reason: string(b)}
}

func (*LoginDisconnect) ID() int32 { return IDLoginDisconnect }

func (l *LoginDisconnect) Encode(w *protocol.Writer) error {
	w.WriteString(l.Reason)
	return nil
}

func (l *LoginDisconnect) Decode(r *protocol.Reader) (err error) {
	l.Reason, err = r.ReadString()
	return err
}

// EncryptionRequest starts online-mode authentication
type EncryptionRequest struct {
	ServerID           string
	PublicKey          []byte
	VerifyToken        []byte
	ShouldAuthenticate bool
}

func (*EncryptionRequest) ID() int32 { return IDEncryptionRequest }

func (e *EncryptionRequest) Encode(w *protocol.Writer) error {
	w.WriteString(e.ServerID)
	w.WriteByteArray(e.PublicKey)
	w.WriteByteArray(e.VerifyToken)
	w.WriteBool(e.ShouldAuthenticate)
	return nil
}

func (e *EncryptionRequest) Decode(r *protocol.Reader) (err error) {
	if e.ServerID, err = r.ReadString(); err != nil {
		return err
	}
	if e.PublicKey, err = r.ReadByteArray(); err != nil {
		return err
	}
	if e.VerifyToken, err = r.ReadByteArray(); err != nil {
		return err
	}
	e.ShouldAuthenticate, err = r.ReadBool()
	return err
}

// EncryptionResponse carries the RSA-encrypted shared secret and verify token
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (*EncryptionResponse) ID() int32 { return IDEncryptionResponse }

func (e *EncryptionResponse) Encode(w *protocol.Writer) error {
	w.WriteByteArray(e.SharedSecret)
	w.WriteByteArray(e.VerifyToken)
	return nil
}

func (e *EncryptionResponse) Decode(r *protocol.Reader) (err error) {
	if e.SharedSecret, err = r.ReadByteArray(); err != nil {
		return err
	}
	e.VerifyToken, err = r.ReadByteArray()
	return err
}

// Empty is a packet without payload (login acknowledged, finish configuration, status request)
type Empty struct {
	PacketID int32
}

func (e *Empty) ID() int32 { return e.PacketID }

func (*Empty) Encode(*protocol.Writer) error { return nil }

func (*Empty) Decode(*protocol.Reader) error { return nil }
