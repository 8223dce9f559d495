package protocol

import (
	"errors"
	"fmt"
)

// DefaultMaxPacketSize bounds a single frame's declared length
const DefaultMaxPacketSize = 2 << 20

var (
	// ErrPacketTooLarge is returned when a frame declares a length above the configured maximum
	ErrPacketTooLarge = errors.New("protocol: packet too large")

	// ErrBadLength is returned for a non-positive frame length
	ErrBadLength = errors.New("protocol: invalid packet length")
)

// Frame is one complete packet read off the stream
type Frame struct {
	ID      int32
	Payload []byte
}

// Bytes re-encodes the frame for forwarding
func (f Frame) Bytes() []byte {
	return EncodeFrame(f.ID, f.Payload)
}

// EncodeFrame builds varint(length) + varint(id) + payload
func EncodeFrame(id int32, payload []byte) []byte {
	length := VarIntSize(id) + len(payload)
	out := make([]byte, 0, VarIntSize(int32(length))+length)
	out = AppendVarInt(out, int32(length))
	out = AppendVarInt(out, id)
	return append(out, payload...)
}

// Framer turns an arbitrarily chunked byte stream into frames.
// Partial frames are retained until the rest arrives.
type Framer struct {
	buf       []byte
	maxPacket int
}

// NewFramer creates a framer. maxPacket <= 0 selects DefaultMaxPacketSize.
func NewFramer(maxPacket int) *Framer {
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacketSize
	}
	return &Framer{maxPacket: maxPacket}
}

// Buffered returns the number of retained bytes not yet forming a complete frame
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Transform applies fn in place to the retained bytes. Used when the peer switches
// the stream to encryption and some ciphertext was already buffered.
func (f *Framer) Transform(fn func([]byte)) {
	if len(f.buf) > 0 {
		fn(f.buf)
	}
}

// Push appends chunk and returns every frame now complete, in stream order.
// Errors are fatal for the stream; frames decoded before the error are still returned.
func (f *Framer) Push(chunk []byte) ([]Frame, error) {
	f.buf = append(f.buf, chunk...)

	var frames []Frame
	off := 0
	var err error
	for off < len(f.buf) {
		r := NewReader(f.buf[off:])
		length, lerr := r.ReadVarInt()
		if errors.Is(lerr, ErrShortBuffer) {
			break
		}
		if lerr != nil {
			err = lerr
			break
		}
		if length <= 0 {
			err = fmt.Errorf("%w: %d", ErrBadLength, length)
			break
		}
		if int(length) > f.maxPacket {
			err = fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, length, f.maxPacket)
			break
		}
		if r.Remaining() < int(length) {
			break
		}

		body := NewReader(f.buf[off+r.Offset() : off+r.Offset()+int(length)])
		id, ierr := body.ReadVarInt()
		if ierr != nil {
			err = fmt.Errorf("protocol: bad packet id: %w", ierr)
			break
		}
		frames = append(frames, Frame{ID: id, Payload: append([]byte(nil), body.Rest()...)})
		off += r.Offset() + int(length)
	}

	if off > 0 {
		n := copy(f.buf, f.buf[off:])
		f.buf = f.buf[:n]
	}
	return frames, err
}
