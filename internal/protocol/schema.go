package protocol

import (
	"fmt"
)

// Schema describes one packet: its id and ordered fields
type Schema struct {
	Name   string
	ID     int32
	Fields []Field
}

// MissingFieldError is returned by Write when a required field has no value
type MissingFieldError struct {
	Packet string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("protocol: missing field %q for packet %s", e.Field, e.Packet)
}

// Write encodes values as a complete frame: varint(length) + varint(id) + fields
func Write(s *Schema, values Values) ([]byte, error) {
	body := NewWriter()
	if err := encodeFields(body, s.Name, s.Fields, values); err != nil {
		return nil, err
	}
	return EncodeFrame(s.ID, body.Bytes()), nil
}

// Read decodes a frame payload (the bytes after the packet id) according to s
func Read(s *Schema, payload []byte) (Values, error) {
	values, err := decodeFields(NewReader(payload), s.Fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	return values, nil
}

// Packet is a strongly typed packet. Encode and Decode cover the payload only;
// the id and length prefix are added by Marshal.
type Packet interface {
	ID() int32
	Encode(w *Writer) error
	Decode(r *Reader) error
}

// Marshal encodes p as a complete frame
func Marshal(p Packet) ([]byte, error) {
	payload, err := MarshalPayload(p)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(p.ID(), payload), nil
}

// MarshalPayload encodes the payload of p without id or length
func MarshalPayload(p Packet) ([]byte, error) {
	w := NewWriter()
	if err := p.Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes f into p after checking the packet id
func Unmarshal(f Frame, p Packet) error {
	if f.ID != p.ID() {
		return &ProtocolMismatchError{Expected: p.ID(), Got: f.ID}
	}
	return p.Decode(NewReader(f.Payload))
}
