package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
)

const (
	// MaxVarIntLen is the maximum encoded length of a 32-bit varint
	MaxVarIntLen = 5

	// MaxVarLongLen is the maximum encoded length of a 64-bit varint
	MaxVarLongLen = 10

	// MaxStringBytes caps decoded string payloads (32767 UTF-16 units, up to 3 bytes each)
	MaxStringBytes = 32767 * 3
)

var (
	// ErrShortBuffer is returned when a read runs past the end of the available bytes.
	// Stream callers treat it as "need more data".
	ErrShortBuffer = errors.New("protocol: short buffer")

	// ErrVarIntTooBig is returned when a varint continues past its maximum width
	ErrVarIntTooBig = errors.New("protocol: varint too big")

	// ErrStringTooLong is returned when a string length prefix exceeds MaxStringBytes
	ErrStringTooLong = errors.New("protocol: string too long")

	// ErrNegativeLength is returned when a length prefix decodes to a negative value
	ErrNegativeLength = errors.New("protocol: negative length")
)

// Reader is a bounds-checked cursor over a byte slice.
// Every decode in the proxy goes through a Reader so offsets are never tracked by hand.
type Reader struct {
	buf []byte
	off int
}

// NewReader creates a reader positioned at the start of buf
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the number of bytes consumed so far
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Peek returns the unread bytes without consuming them
func (r *Reader) Peek() []byte {
	return r.buf[r.off:]
}

// Rest consumes and returns all unread bytes
func (r *Reader) Rest() []byte {
	rest := r.buf[r.off:]
	r.off = len(r.buf)
	return rest
}

// Read consumes n bytes and returns them without copying
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Skip advances the cursor by n bytes
func (r *Reader) Skip(n int) error {
	_, err := r.Read(n)
	return err
}

// ReadByte implements io.ByteReader
func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, ErrShortBuffer
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadInt8 reads a signed byte
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadBool reads a one-byte boolean
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadUint16 reads a big-endian unsigned short
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadInt16 reads a big-endian short
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadInt32 reads a big-endian int
func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadInt64 reads a big-endian long
func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadFloat32 reads a big-endian IEEE-754 float
func (r *Reader) ReadFloat32() (float32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// ReadFloat64 reads a big-endian IEEE-754 double
func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadVarInt reads a LEB128 varint treated as 32 bits
func (r *Reader) ReadVarInt() (int32, error) {
	var value uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(value), nil
		}
	}
	return 0, ErrVarIntTooBig
}

// ReadVarLong reads a LEB128 varint treated as 64 bits
func (r *Reader) ReadVarLong() (int64, error) {
	var value uint64
	for i := 0; i < MaxVarLongLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int64(value), nil
		}
	}
	return 0, ErrVarIntTooBig
}

// ReadLength reads a varint length prefix and rejects negative values
func (r *Reader) ReadLength() (int, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrNegativeLength
	}
	return int(n), nil
}

// ReadString reads a varint-prefixed UTF-8 string
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadLength()
	if err != nil {
		return "", err
	}
	if n > MaxStringBytes {
		return "", ErrStringTooLong
	}
	b, err := r.Read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadByteArray reads a varint-prefixed byte array and returns a copy
func (r *Reader) ReadByteArray() ([]byte, error) {
	n, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	b, err := r.Read(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadUUID reads 16 raw bytes
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	var id uuid.UUID
	b, err := r.Read(16)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// ReadPosition reads a packed block position
func (r *Reader) ReadPosition() (BlockPos, error) {
	v, err := r.ReadInt64()
	if err != nil {
		return BlockPos{}, err
	}
	return UnpackBlockPos(uint64(v)), nil
}
