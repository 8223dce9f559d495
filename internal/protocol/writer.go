package protocol

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// Writer accumulates wire encodings. Writes to the underlying bytes.Buffer never fail,
// so the typed helpers do not return errors.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty writer
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated bytes
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of accumulated bytes
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// WriteByte implements io.ByteWriter
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteInt8 writes a signed byte
func (w *Writer) WriteInt8(v int8) {
	w.buf.WriteByte(byte(v))
}

// WriteBool writes a one-byte boolean
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// WriteUint16 writes a big-endian unsigned short
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteInt16 writes a big-endian short
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteInt32 writes a big-endian int
func (w *Writer) WriteInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

// WriteInt64 writes a big-endian long
func (w *Writer) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

// WriteFloat32 writes a big-endian float
func (w *Writer) WriteFloat32(v float32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}

// WriteFloat64 writes a big-endian double
func (w *Writer) WriteFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

// WriteVarInt writes a 32-bit varint
func (w *Writer) WriteVarInt(v int32) {
	var b [MaxVarIntLen]byte
	w.buf.Write(AppendVarInt(b[:0], v))
}

// WriteVarLong writes a 64-bit varint
func (w *Writer) WriteVarLong(v int64) {
	u := uint64(v)
	for {
		if u&^0x7f == 0 {
			w.buf.WriteByte(byte(u))
			return
		}
		w.buf.WriteByte(byte(u&0x7f | 0x80))
		u >>= 7
	}
}

// WriteString writes a varint-prefixed UTF-8 string
func (w *Writer) WriteString(s string) {
	w.WriteVarInt(int32(len(s)))
	w.buf.WriteString(s)
}

// WriteByteArray writes a varint-prefixed byte array
func (w *Writer) WriteByteArray(b []byte) {
	w.WriteVarInt(int32(len(b)))
	w.buf.Write(b)
}

// WriteUUID writes 16 raw bytes
func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf.Write(id[:])
}

// WritePosition writes a packed block position
func (w *Writer) WritePosition(p BlockPos) {
	w.WriteInt64(int64(p.Pack()))
}

// AppendVarInt appends the varint encoding of v to dst.
// Negative values are encoded through their uint32 reinterpretation.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarIntSize returns the encoded length of v
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
