package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUseEntity = &Schema{Name: "use_entity", ID: 0x19, Fields: []Field{
	{"target", VarInt},
	{"mouse", VarInt},
	{"x", When("mouse", []any{2}, Float)},
	{"y", When("mouse", []any{2}, Float)},
	{"z", When("mouse", []any{2}, Float)},
	{"hand", When("mouse", []any{0, 2}, VarInt)},
	{"sneaking", Bool},
}}

var testObjective = &Schema{Name: "scoreboard_objective", ID: 0x68, Fields: []Field{
	{"name", String},
	{"action", Byte},
	{"displayText", When("action", []any{0, 2}, AnonymousNBT)},
	{"type", When("action", []any{0, 2}, VarInt)},
	{"number_format", When("action", []any{0, 2}, Optional(VarInt))},
	{"styling", When("action", []any{0, 2}, When("number_format", []any{1, 2}, AnonymousNBT))},
}}

func payloadOf(t *testing.T, frame []byte) (int32, []byte) {
	t.Helper()
	frames, err := NewFramer(0).Push(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	return frames[0].ID, frames[0].Payload
}

func TestConditionalFieldsAttack(t *testing.T) {
	frame, err := Write(testUseEntity, Values{"target": 7, "mouse": 1, "sneaking": false})
	require.NoError(t, err)

	id, payload := payloadOf(t, frame)
	assert.Equal(t, int32(0x19), id)
	// target, mouse, sneaking only
	assert.Equal(t, []byte{0x07, 0x01, 0x00}, payload)

	values, err := Read(testUseEntity, payload)
	require.NoError(t, err)
	assert.NotContains(t, values, "x")
	assert.NotContains(t, values, "hand")
	assert.Equal(t, false, values["sneaking"])
}

func TestConditionalFieldsInteractAt(t *testing.T) {
	in := Values{"target": 7, "mouse": 2, "x": 1.5, "y": 2.0, "z": -3.25, "hand": 1, "sneaking": true}
	frame, err := Write(testUseEntity, in)
	require.NoError(t, err)

	_, payload := payloadOf(t, frame)
	// 2 varints + 3 floats + hand + bool
	assert.Len(t, payload, 1+1+12+1+1)

	values, err := Read(testUseEntity, payload)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), values["x"])
	assert.Equal(t, float32(-3.25), values["z"])
	assert.Equal(t, int32(1), values["hand"])
	assert.Equal(t, true, values["sneaking"])
}

func TestConditionalIncludedButMissing(t *testing.T) {
	_, err := Write(testUseEntity, Values{"target": 7, "mouse": 0, "sneaking": false})
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "hand", missing.Field)
	assert.Equal(t, "use_entity", missing.Packet)
}

func TestMissingRequiredField(t *testing.T) {
	_, err := Write(testUseEntity, Values{"mouse": 1, "sneaking": false})
	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if missing.Field != "target" {
		t.Errorf("missing field = %q, want target", missing.Field)
	}
}

func TestNestedConditional(t *testing.T) {
	t.Run("outer excluded", func(t *testing.T) {
		frame, err := Write(testObjective, Values{"name": "kills", "action": 1})
		require.NoError(t, err)
		_, payload := payloadOf(t, frame)

		values, err := Read(testObjective, payload)
		require.NoError(t, err)
		assert.Len(t, values, 2)
	})

	t.Run("inner excluded", func(t *testing.T) {
		frame, err := Write(testObjective, Values{
			"name":          "kills",
			"action":        0,
			"displayText":   Text("Kills"),
			"type":          0,
			"number_format": 0,
		})
		require.NoError(t, err)
		_, payload := payloadOf(t, frame)

		values, err := Read(testObjective, payload)
		require.NoError(t, err)
		assert.Equal(t, int32(0), values["number_format"])
		assert.NotContains(t, values, "styling")
		assert.Equal(t, "Kills", values["displayText"].(map[string]any)["text"])
	})

	t.Run("both included", func(t *testing.T) {
		frame, err := Write(testObjective, Values{
			"name":          "kills",
			"action":        2,
			"displayText":   Text("Kills"),
			"type":          1,
			"number_format": 1,
			"styling":       ColoredText("", "gold"),
		})
		require.NoError(t, err)
		_, payload := payloadOf(t, frame)

		values, err := Read(testObjective, payload)
		require.NoError(t, err)
		assert.Equal(t, "gold", values["styling"].(map[string]any)["color"])
	})

	t.Run("absent optional", func(t *testing.T) {
		frame, err := Write(testObjective, Values{
			"name":        "kills",
			"action":      0,
			"displayText": Text("Kills"),
			"type":        0,
		})
		require.NoError(t, err)
		_, payload := payloadOf(t, frame)

		values, err := Read(testObjective, payload)
		require.NoError(t, err)
		assert.Nil(t, values["number_format"])
		assert.NotContains(t, values, "styling")
	})
}

func TestWriteFrameLayout(t *testing.T) {
	s := &Schema{Name: "ping", ID: 0x01, Fields: []Field{{"time", Long}}}
	frame, err := Write(s, Values{"time": int64(42)})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09, 0x01, 0, 0, 0, 0, 0, 0, 0, 42}, frame)
}

func TestReadReportsPacketName(t *testing.T) {
	s := &Schema{Name: "ping", ID: 0x01, Fields: []Field{{"time", Long}}}
	_, err := Read(s, []byte{0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Contains(t, err.Error(), "ping")
}
