package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Tnze/go-mc/nbt"
)

const tagCompound = 0x0a

// ErrNotCompound is returned when anonymous NBT does not start with a compound tag
var ErrNotCompound = errors.New("protocol: anonymous nbt root is not a compound")

// Anonymous NBT is a compound written without its root name: tag byte 0x0a followed
// directly by the compound body.
var (
	AnonymousNBT Type = anonymousNBTType{}
	OptionalNBT  Type = optionalNBTType{}
)

// WriteAnonymousNBT encodes v (usually a map[string]any) as anonymous NBT
func WriteAnonymousNBT(w *Writer, v any) error {
	var buf bytes.Buffer
	if err := nbt.NewEncoder(&buf).Encode(v, ""); err != nil {
		return fmt.Errorf("protocol: encode nbt: %w", err)
	}
	named := buf.Bytes()
	// named form: tag, uint16 name length (0), body
	if len(named) < 3 || named[0] != tagCompound {
		return ErrNotCompound
	}
	w.WriteByte(named[0])
	_, err := w.Write(named[3:])
	return err
}

// ReadAnonymousNBT decodes one anonymous NBT compound at the reader's cursor
func ReadAnonymousNBT(r *Reader) (map[string]any, error) {
	rest := r.Peek()
	if len(rest) == 0 {
		return nil, ErrShortBuffer
	}
	if rest[0] != tagCompound {
		return nil, ErrNotCompound
	}

	// re-insert the empty root name so the regular decoder can parse it
	named := make([]byte, 0, len(rest)+2)
	named = append(named, rest[0], 0, 0)
	named = append(named, rest[1:]...)

	src := bytes.NewReader(named)
	var v any
	if _, err := nbt.NewDecoder(src).Decode(&v); err != nil {
		return nil, fmt.Errorf("protocol: decode nbt: %w", err)
	}
	consumed := len(named) - src.Len() - 2
	if err := r.Skip(consumed); err != nil {
		return nil, err
	}

	compound, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotCompound
	}
	return compound, nil
}

type anonymousNBTType struct{}

func (anonymousNBTType) Encode(w *Writer, v any) error { return WriteAnonymousNBT(w, v) }

func (anonymousNBTType) Decode(r *Reader, _ Values) (any, error) { return ReadAnonymousNBT(r) }

type optionalNBTType struct{}

func (optionalNBTType) Encode(w *Writer, v any) error {
	if v == nil {
		return w.WriteByte(0)
	}
	return WriteAnonymousNBT(w, v)
}

func (optionalNBTType) Decode(r *Reader, _ Values) (any, error) {
	rest := r.Peek()
	if len(rest) == 0 {
		return nil, ErrShortBuffer
	}
	if rest[0] == 0 {
		return nil, r.Skip(1)
	}
	return ReadAnonymousNBT(r)
}

// Text returns the plain text component {"text": s}
func Text(s string) map[string]any {
	return map[string]any{"text": s}
}

// ColoredText returns a text component with a named color
func ColoredText(s, color string) map[string]any {
	return map[string]any{"text": s, "color": color}
}

// TranslateKey extracts the "translate" key of a text component, or ""
func TranslateKey(component map[string]any) string {
	if key, ok := component["translate"].(string); ok {
		return key
	}
	return ""
}

// PlainText flattens a decoded text component into its literal text, following "extra" children
func PlainText(component any) string {
	switch c := component.(type) {
	case string:
		return c
	case map[string]any:
		var b bytes.Buffer
		if s, ok := c["text"].(string); ok {
			b.WriteString(s)
		} else if s, ok := c[""].(string); ok {
			b.WriteString(s)
		}
		if extra, ok := c["extra"].([]any); ok {
			for _, e := range extra {
				b.WriteString(PlainText(e))
			}
		}
		return b.String()
	}
	return ""
}
