// Package strings provides pooled string building, query encoding and value
// stringification shared by the batcher, the HTTP client and the serializer.
package strings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Builder provides efficient string building over a reusable byte buffer
type Builder struct {
	buf []byte
}

// NewBuilder creates a new string builder
func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf: make([]byte, 0, capacity),
	}
}

// WriteString appends s to the builder
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends c to the builder
func (b *Builder) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// Write implements io.Writer
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns a copy of the accumulated string
func (b *Builder) String() string {
	return string(b.buf)
}

// Len returns the number of accumulated bytes
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset clears the builder keeping its capacity
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// BuilderSize represents different builder sizes
type BuilderSize int

const (
	Small  BuilderSize = iota // < 1KB
	Medium                    // 1KB - 16KB
	Large                     // 16KB+
)

var builderPools = [...]*sync.Pool{
	Small:  {New: func() interface{} { return NewBuilder(1024) }},
	Medium: {New: func() interface{} { return NewBuilder(16 * 1024) }},
	Large:  {New: func() interface{} { return NewBuilder(64 * 1024) }},
}

func poolFor(size BuilderSize) *sync.Pool {
	if size < Small || size > Large {
		return builderPools[Small]
	}
	return builderPools[size]
}

// SizeFor picks the pool class for an expected output length.
func SizeFor(n int) BuilderSize {
	switch {
	case n > 16*1024:
		return Large
	case n > 1024:
		return Medium
	default:
		return Small
	}
}

// GetBuilder retrieves a pooled builder of the specified size
func GetBuilder(size BuilderSize) *Builder {
	builder := poolFor(size).Get().(*Builder)
	builder.Reset()
	return builder
}

// PutBuilder returns a builder to the appropriate pool
func PutBuilder(builder *Builder, size BuilderSize) {
	if builder == nil {
		return
	}
	builder.Reset()
	poolFor(size).Put(builder)
}

// BuildString runs fn against a pooled builder and returns the result
func BuildString(size BuilderSize, fn func(*Builder)) string {
	builder := GetBuilder(size)
	defer PutBuilder(builder, size)
	fn(builder)
	return builder.String()
}

// QueryBuilder builds a bare query string with parameters kept in
// insertion order, so the encoded length of a request is known before it is
// issued.
type QueryBuilder struct {
	builder   *Builder
	size      BuilderSize
	hasParams bool
}

// NewQueryBuilder creates a builder for a bare query string (no base URL)
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		builder: GetBuilder(Small),
		size:    Small,
	}
}

// AddParam adds a URL parameter (with proper encoding)
func (qb *QueryBuilder) AddParam(key, value string) *QueryBuilder {
	if qb.hasParams {
		_ = qb.builder.WriteByte('&')
	}
	qb.hasParams = true

	qb.builder.WriteString(QueryEscape(key))
	_ = qb.builder.WriteByte('=')
	qb.builder.WriteString(QueryEscape(value))

	return qb
}

// Len returns the length of the query built so far
func (qb *QueryBuilder) Len() int {
	return qb.builder.Len()
}

// String returns the built query
func (qb *QueryBuilder) String() string {
	return qb.builder.String()
}

// Close releases the builder back to the pool
func (qb *QueryBuilder) Close() {
	if qb.builder != nil {
		PutBuilder(qb.builder, qb.size)
		qb.builder = nil
	}
}

// QueryEscape escapes s for use in a URL query component. The output matches
// net/url.QueryEscape.
func QueryEscape(s string) string {
	needEscape := false
	for i := 0; i < len(s); i++ {
		if !isURLSafe(s[i]) {
			needEscape = true
			break
		}
	}
	if !needEscape {
		return s
	}

	return BuildString(SizeFor(len(s)*3), func(b *Builder) {
		for i := 0; i < len(s); i++ {
			c := s[i]
			switch {
			case isURLSafe(c):
				_ = b.WriteByte(c)
			case c == ' ':
				_ = b.WriteByte('+')
			default:
				_ = b.WriteByte('%')
				_ = b.WriteByte("0123456789ABCDEF"[c>>4])
				_ = b.WriteByte("0123456789ABCDEF"[c&15])
			}
		}
	})
}

// isURLSafe returns true if the byte is safe in URL query strings
func isURLSafe(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// ValueToString converts scalar values to their canonical string form.
// nil becomes the empty string; floats use the shortest round-trip form.
func ValueToString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}
