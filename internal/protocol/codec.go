package protocol

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Values holds decoded field values keyed by field name
type Values map[string]any

// Type is one semantic wire type. Decode receives the sibling values decoded so far
// so composite types can resolve conditional fields.
type Type interface {
	Encode(w *Writer, v any) error
	Decode(r *Reader, scope Values) (any, error)
}

// Encode encodes v with t into a fresh byte slice
func Encode(t Type, v any) ([]byte, error) {
	w := NewWriter()
	if err := t.Encode(w, v); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode decodes one value of type t from the start of buf and reports how many bytes it used
func Decode(t Type, buf []byte) (any, int, error) {
	r := NewReader(buf)
	v, err := t.Decode(r, Values{})
	if err != nil {
		return nil, r.Offset(), err
	}
	return v, r.Offset(), nil
}

// Primitive types. Decoded values have a fixed Go type per wire type:
// VarInt int32, VarLong int64, String string, UUID uuid.UUID, Byte int8, UByte uint8,
// Bool bool, Short int16, UShort uint16, Int int32, Long int64, Float float32,
// Double float64, Position BlockPos, Vec2f [2]float32, Buffer and RestBuffer []byte.
var (
	VarInt     Type = varIntType{}
	VarLong    Type = varLongType{}
	String     Type = stringType{}
	UUID       Type = uuidType{}
	Byte       Type = byteType{}
	UByte      Type = ubyteType{}
	Bool       Type = boolType{}
	Short      Type = shortType{}
	UShort     Type = ushortType{}
	Int        Type = intType{}
	Long       Type = longType{}
	Float      Type = floatType{}
	Double     Type = doubleType{}
	Position   Type = positionType{}
	Vec2f      Type = vec2fType{}
	Buffer     Type = bufferType{}
	RestBuffer Type = restBufferType{}
)

type typeError struct {
	want string
	got  any
}

func (e *typeError) Error() string {
	return fmt.Sprintf("protocol: cannot encode %T as %s", e.got, e.want)
}

// toInt64 normalises any Go integer (and integral floats, which is what JSON produces) to int64
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

type varIntType struct{}

func (varIntType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"varint", v}
	}
	// values up to 2^32-1 are accepted and reinterpreted as int32
	w.WriteVarInt(int32(uint32(n)))
	return nil
}

func (varIntType) Decode(r *Reader, _ Values) (any, error) { return r.ReadVarInt() }

type varLongType struct{}

func (varLongType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"varlong", v}
	}
	w.WriteVarLong(n)
	return nil
}

func (varLongType) Decode(r *Reader, _ Values) (any, error) { return r.ReadVarLong() }

type stringType struct{}

func (stringType) Encode(w *Writer, v any) error {
	s, ok := v.(string)
	if !ok {
		return &typeError{"string", v}
	}
	w.WriteString(s)
	return nil
}

func (stringType) Decode(r *Reader, _ Values) (any, error) { return r.ReadString() }

type uuidType struct{}

func (uuidType) Encode(w *Writer, v any) error {
	switch id := v.(type) {
	case uuid.UUID:
		w.WriteUUID(id)
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("protocol: invalid uuid %q: %w", id, err)
		}
		w.WriteUUID(parsed)
	default:
		return &typeError{"uuid", v}
	}
	return nil
}

func (uuidType) Decode(r *Reader, _ Values) (any, error) { return r.ReadUUID() }

type byteType struct{}

func (byteType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"byte", v}
	}
	w.WriteInt8(int8(n))
	return nil
}

func (byteType) Decode(r *Reader, _ Values) (any, error) { return r.ReadInt8() }

type ubyteType struct{}

func (ubyteType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"ubyte", v}
	}
	return w.WriteByte(uint8(n))
}

func (ubyteType) Decode(r *Reader, _ Values) (any, error) { return r.ReadByte() }

type boolType struct{}

func (boolType) Encode(w *Writer, v any) error {
	b, ok := v.(bool)
	if !ok {
		return &typeError{"bool", v}
	}
	w.WriteBool(b)
	return nil
}

func (boolType) Decode(r *Reader, _ Values) (any, error) { return r.ReadBool() }

type shortType struct{}

func (shortType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"short", v}
	}
	w.WriteInt16(int16(n))
	return nil
}

func (shortType) Decode(r *Reader, _ Values) (any, error) { return r.ReadInt16() }

type ushortType struct{}

func (ushortType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"ushort", v}
	}
	w.WriteUint16(uint16(n))
	return nil
}

func (ushortType) Decode(r *Reader, _ Values) (any, error) { return r.ReadUint16() }

type intType struct{}

func (intType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"int", v}
	}
	w.WriteInt32(int32(n))
	return nil
}

func (intType) Decode(r *Reader, _ Values) (any, error) { return r.ReadInt32() }

type longType struct{}

func (longType) Encode(w *Writer, v any) error {
	n, ok := toInt64(v)
	if !ok {
		return &typeError{"long", v}
	}
	w.WriteInt64(n)
	return nil
}

func (longType) Decode(r *Reader, _ Values) (any, error) { return r.ReadInt64() }

type floatType struct{}

func (floatType) Encode(w *Writer, v any) error {
	f, ok := toFloat64(v)
	if !ok {
		return &typeError{"float", v}
	}
	w.WriteFloat32(float32(f))
	return nil
}

func (floatType) Decode(r *Reader, _ Values) (any, error) { return r.ReadFloat32() }

type doubleType struct{}

func (doubleType) Encode(w *Writer, v any) error {
	f, ok := toFloat64(v)
	if !ok {
		return &typeError{"double", v}
	}
	w.WriteFloat64(f)
	return nil
}

func (doubleType) Decode(r *Reader, _ Values) (any, error) { return r.ReadFloat64() }

type positionType struct{}

func (positionType) Encode(w *Writer, v any) error {
	p, ok := v.(BlockPos)
	if !ok {
		return &typeError{"position", v}
	}
	w.WritePosition(p)
	return nil
}

func (positionType) Decode(r *Reader, _ Values) (any, error) { return r.ReadPosition() }

type vec2fType struct{}

func (vec2fType) Encode(w *Writer, v any) error {
	p, ok := v.([2]float32)
	if !ok {
		return &typeError{"vec2f", v}
	}
	w.WriteFloat32(p[0])
	w.WriteFloat32(p[1])
	return nil
}

func (vec2fType) Decode(r *Reader, _ Values) (any, error) {
	x, err := r.ReadFloat32()
	if err != nil {
		return nil, err
	}
	y, err := r.ReadFloat32()
	if err != nil {
		return nil, err
	}
	return [2]float32{x, y}, nil
}

type bufferType struct{}

func (bufferType) Encode(w *Writer, v any) error {
	b, ok := v.([]byte)
	if !ok {
		return &typeError{"buffer", v}
	}
	w.WriteByteArray(b)
	return nil
}

func (bufferType) Decode(r *Reader, _ Values) (any, error) { return r.ReadByteArray() }

type restBufferType struct{}

func (restBufferType) Encode(w *Writer, v any) error {
	b, ok := v.([]byte)
	if !ok {
		return &typeError{"restBuffer", v}
	}
	_, err := w.Write(b)
	return err
}

func (restBufferType) Decode(r *Reader, _ Values) (any, error) {
	return append([]byte(nil), r.Rest()...), nil
}

// Array encodes a varint count followed by each item. Decoded values are []any.
func Array(item Type) Type {
	return arrayType{item: item}
}

type arrayType struct {
	item Type
}

func (a arrayType) Encode(w *Writer, v any) error {
	items, ok := v.([]any)
	if !ok {
		// allow typed slices of Values, the common case for containers
		vs, ok := v.([]Values)
		if !ok {
			return &typeError{"array", v}
		}
		items = make([]any, len(vs))
		for i := range vs {
			items[i] = vs[i]
		}
	}
	w.WriteVarInt(int32(len(items)))
	for i, item := range items {
		if err := a.item.Encode(w, item); err != nil {
			return fmt.Errorf("array item %d: %w", i, err)
		}
	}
	return nil
}

func (a arrayType) Decode(r *Reader, _ Values) (any, error) {
	n, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	// every item takes at least one byte
	if n > r.Remaining() {
		return nil, ErrShortBuffer
	}
	items := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := a.item.Decode(r, Values{})
		if err != nil {
			return nil, fmt.Errorf("array item %d: %w", i, err)
		}
		items = append(items, v)
	}
	return items, nil
}

// Optional encodes a presence byte followed by the value when present. Absent decodes to nil.
func Optional(inner Type) Type {
	return optionalType{inner: inner}
}

type optionalType struct {
	inner Type
}

func (o optionalType) Encode(w *Writer, v any) error {
	if v == nil {
		w.WriteBool(false)
		return nil
	}
	w.WriteBool(true)
	return o.inner.Encode(w, v)
}

func (o optionalType) Decode(r *Reader, scope Values) (any, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	return o.inner.Decode(r, scope)
}

// Field is one named member of a container or packet schema
type Field struct {
	Name string
	Type Type
}

// Container encodes named fields in declaration order. Values are Values maps.
func Container(fields ...Field) Type {
	return containerType{fields: fields}
}

type containerType struct {
	fields []Field
}

func (c containerType) Encode(w *Writer, v any) error {
	values, ok := asValues(v)
	if !ok {
		return &typeError{"container", v}
	}
	return encodeFields(w, "container", c.fields, values)
}

func (c containerType) Decode(r *Reader, _ Values) (any, error) {
	return decodeFields(r, c.fields)
}

func asValues(v any) (Values, bool) {
	switch m := v.(type) {
	case Values:
		return m, true
	case map[string]any:
		return Values(m), true
	}
	return nil, false
}

// When makes inner conditional on a previously decoded sibling field. The field is present
// iff the sibling named dependsOn holds one of allowed; otherwise it occupies zero bytes.
// Conditionals may nest; every level is checked against the same sibling scope.
//
// Inside a Container or Schema the siblings decide on both encode and decode. Used on
// its own, Decode checks the scope it is handed and Encode has no siblings to look at,
// so a nil value encodes as absent.
func When(dependsOn string, allowed []any, inner Type) Type {
	return &whenType{dependsOn: dependsOn, allowed: allowed, inner: inner}
}

type whenType struct {
	dependsOn string
	allowed   []any
	inner     Type
}

func (c *whenType) Encode(w *Writer, v any) error {
	if v == nil {
		return nil
	}
	return c.inner.Encode(w, v)
}

func (c *whenType) Decode(r *Reader, scope Values) (any, error) {
	if !c.matches(scope) {
		return nil, nil
	}
	return c.inner.Decode(r, scope)
}

func (c *whenType) matches(scope Values) bool {
	got, ok := scope[c.dependsOn]
	if !ok {
		return false
	}
	for _, want := range c.allowed {
		if valueEqual(got, want) {
			return true
		}
	}
	return false
}

// resolve unwraps nested conditionals. It reports the innermost type and whether every
// level's condition holds for scope.
func resolve(t Type, scope Values) (Type, bool) {
	for {
		c, ok := t.(*whenType)
		if !ok {
			return t, true
		}
		if !c.matches(scope) {
			return nil, false
		}
		t = c.inner
	}
}

func valueEqual(a, b any) bool {
	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	if aok && bok {
		return ai == bi
	}
	return a == b
}

func isOptional(t Type) bool {
	_, ok := t.(optionalType)
	return ok
}

func encodeFields(w *Writer, owner string, fields []Field, values Values) error {
	for _, f := range fields {
		t, included := resolve(f.Type, values)
		if !included {
			continue
		}
		v, present := values[f.Name]
		if !present && !isOptional(t) {
			return &MissingFieldError{Packet: owner, Field: f.Name}
		}
		if err := t.Encode(w, v); err != nil {
			return fmt.Errorf("field %s.%s: %w", owner, f.Name, err)
		}
	}
	return nil
}

func decodeFields(r *Reader, fields []Field) (Values, error) {
	values := make(Values, len(fields))
	for _, f := range fields {
		t, included := resolve(f.Type, values)
		if !included {
			continue
		}
		v, err := t.Decode(r, values)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		values[f.Name] = v
	}
	return values, nil
}
