package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousNBTWireForm(t *testing.T) {
	b, err := Encode(AnonymousNBT, Text("hi"))
	require.NoError(t, err)

	// compound, string tag "text" = "hi", end
	want := []byte{
		0x0a,
		0x08, 0x00, 0x04, 't', 'e', 'x', 't', 0x00, 0x02, 'h', 'i',
		0x00,
	}
	assert.Equal(t, want, b)
}

func TestAnonymousNBTRoundTrip(t *testing.T) {
	in := map[string]any{
		"translate": "multiplayer.player.joined",
		"color":     "yellow",
		"bold":      int8(1),
	}
	b, err := Encode(AnonymousNBT, in)
	require.NoError(t, err)

	// trailing bytes must not be consumed
	buf := append(append([]byte(nil), b...), 0x01)
	v, n, err := Decode(AnonymousNBT, buf)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)

	c := v.(map[string]any)
	assert.Equal(t, "multiplayer.player.joined", TranslateKey(c))
	assert.Equal(t, "yellow", c["color"])
}

func TestAnonymousNBTRejectsNonCompound(t *testing.T) {
	_, _, err := Decode(AnonymousNBT, []byte{0x08, 0x00, 0x01, 'x'})
	assert.ErrorIs(t, err, ErrNotCompound)
}

func TestOptionalNBT(t *testing.T) {
	b, err := Encode(OptionalNBT, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, b)

	v, n, err := Decode(OptionalNBT, b)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, n)

	b, err = Encode(OptionalNBT, Text("x"))
	require.NoError(t, err)
	v, n, err = Decode(OptionalNBT, b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, "x", PlainText(v))
}

func TestPlainText(t *testing.T) {
	c := map[string]any{
		"text":  "Hello ",
		"extra": []any{map[string]any{"text": "world"}, "!"},
	}
	assert.Equal(t, "Hello world!", PlainText(c))
}
