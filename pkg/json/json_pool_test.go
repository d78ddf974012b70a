package json

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObjectKeepsNumbers(t *testing.T) {
	obj, err := DecodeObject(strings.NewReader(`{"id": 12345678901234567890, "pchembl": 6.50, "nested": {"x": [1, "a"]}}`))
	require.NoError(t, err)

	assert.Equal(t, Number("12345678901234567890"), obj["id"])
	assert.Equal(t, Number("6.50"), obj["pchembl"])

	nested, ok := obj["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{Number("1"), "a"}, nested["x"])
}

func TestDecodeObjectKeepsArrayObjectKeyOrder(t *testing.T) {
	obj, err := DecodeObject(strings.NewReader(
		`{"params": [{"type": "PH", "value": 7.4, "units": null, "type": "TEMP"}, {"b": {"z": 1, "a": 2}}], "meta": {"z": 1, "a": 2}}`))
	require.NoError(t, err)

	_, isMap := obj["meta"].(map[string]interface{})
	assert.True(t, isMap, "objects outside arrays stay plain maps")

	params, ok := obj["params"].([]interface{})
	require.True(t, ok)
	require.Len(t, params, 2)
	assert.Equal(t, []string{"type", "value", "units"}, KeyOrder(params[0]))

	first, ok := AsMap(params[0])
	require.True(t, ok)
	assert.Equal(t, "TEMP", first["type"])
	assert.Nil(t, first["units"])

	second, ok := AsMap(params[1])
	require.True(t, ok)
	_, nestedIsMap := second["b"].(map[string]interface{})
	assert.True(t, nestedIsMap)

	out, err := CanonicalString(obj["params"])
	require.NoError(t, err)
	assert.Equal(t, `[{"type":"TEMP","units":null,"value":7.4},{"b":{"a":2,"z":1}}]`, out)
}

func TestObjectHelpers(t *testing.T) {
	o := NewObject("z", 1, "a", 2, "z", 3)
	assert.Equal(t, []string{"z", "a"}, o.Keys())
	assert.Equal(t, 3, o.Map()["z"])
	assert.Nil(t, KeyOrder(map[string]interface{}{"a": 1}))

	_, ok := AsMap("text")
	assert.False(t, ok)
	var missing *Object
	_, ok = AsMap(missing)
	assert.False(t, ok)
}

func TestDecodeObjectNull(t *testing.T) {
	obj, err := DecodeObject(strings.NewReader(`null`))
	require.NoError(t, err)
	assert.NotNil(t, obj)
	assert.Empty(t, obj)
}

func TestDecodeObjectInvalid(t *testing.T) {
	_, err := DecodeObject(strings.NewReader(`{"broken":`))
	assert.Error(t, err)
}

func TestMarshalCanonical(t *testing.T) {
	t.Run("sorted keys", func(t *testing.T) {
		a := map[string]interface{}{"b": 1, "a": "x", "c": map[string]interface{}{"z": true, "y": nil}}
		out, err := MarshalCanonical(a)
		require.NoError(t, err)
		assert.Equal(t, `{"a":"x","b":1,"c":{"y":null,"z":true}}`, string(out))
	})

	t.Run("no html escaping or newline", func(t *testing.T) {
		out, err := CanonicalString("<a&b>")
		require.NoError(t, err)
		assert.Equal(t, `"<a&b>"`, out)
	})

	t.Run("numbers survive a round trip", func(t *testing.T) {
		v, err := DecodeObject(strings.NewReader(`{"v": 1.10}`))
		require.NoError(t, err)
		out, err := CanonicalString(v)
		require.NoError(t, err)
		assert.Equal(t, `{"v":1.10}`, out)
	})
}
