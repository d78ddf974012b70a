// Package json provides JSON encoding and decoding on top of goccy/go-json,
// with pooled buffers and a canonical encoding used for serialization and
// hashing.
package json

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number is the literal form numbers take after decoding with UseNumber.
type Number = gojson.Number

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// NewDecoder returns a decoder that keeps numbers as Number literals so
// identifiers and measurements survive decoding unchanged.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// DecodeObject decodes a single JSON object from r. Objects that are array
// elements decode to *Object so their key order survives; every other
// object decodes to a plain map. A null document decodes to an empty map.
func DecodeObject(r io.Reader) (map[string]interface{}, error) {
	dec := NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return map[string]interface{}{}, nil
	}
	if d, ok := tok.(gojson.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}
	obj, err := decodeObject(dec)
	if err != nil {
		return nil, err
	}
	return obj.values, nil
}

func decodeObject(dec *gojson.Decoder) (*Object, error) {
	obj := &Object{values: map[string]interface{}{}}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(gojson.Delim); ok && d == '}' {
			return obj, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", tok)
		}
		if tok, err = dec.Token(); err != nil {
			return nil, err
		}
		v, err := decodeValue(dec, tok, false)
		if err != nil {
			return nil, err
		}
		if _, dup := obj.values[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = v
	}
}

func decodeValue(dec *gojson.Decoder, tok gojson.Token, inArray bool) (interface{}, error) {
	switch t := tok.(type) {
	case gojson.Delim:
		switch t {
		case '{':
			obj, err := decodeObject(dec)
			if err != nil {
				return nil, err
			}
			if inArray {
				return obj, nil
			}
			return obj.values, nil
		case '[':
			list := []interface{}{}
			for {
				next, err := dec.Token()
				if err != nil {
					return nil, err
				}
				if d, ok := next.(gojson.Delim); ok && d == ']' {
					return list, nil
				}
				v, err := decodeValue(dec, next, true)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
		default:
			return nil, fmt.Errorf("unexpected %q", rune(t))
		}
	case gojson.Number:
		// the token may alias the decoder's read buffer
		return Number(strings.Clone(string(t))), nil
	default:
		return t, nil
	}
}

// Object is a decoded JSON object that keeps the order its keys appeared in.
type Object struct {
	keys   []string
	values map[string]interface{}
}

// NewObject builds an Object from alternating keys and values.
func NewObject(pairs ...interface{}) *Object {
	obj := &Object{values: make(map[string]interface{}, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		if _, dup := obj.values[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = pairs[i+1]
	}
	return obj
}

// Keys returns the keys in decoded order.
func (o *Object) Keys() []string { return o.keys }

// Map returns the key/value view of o. It is shared, not copied.
func (o *Object) Map() map[string]interface{} { return o.values }

// MarshalJSON encodes o canonically, with sorted keys.
func (o *Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o.values)
}

// AsMap returns the key/value view of a decoded object, either a plain map
// or an *Object.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case *Object:
		if t == nil {
			return nil, false
		}
		return t.values, true
	default:
		return nil, false
	}
}

// KeyOrder returns the decoded key order of v, or nil when v is not an
// *Object.
func KeyOrder(v interface{}) []string {
	if o, ok := v.(*Object); ok && o != nil {
		return o.keys
	}
	return nil
}

// Marshal encodes v using goccy/go-json
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalCanonical encodes v with map keys sorted, HTML escaping disabled and
// no trailing newline. Equal values always produce identical bytes.
func MarshalCanonical(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// CanonicalString is MarshalCanonical returning a string.
func CanonicalString(v interface{}) (string, error) {
	b, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
