// Package serialize flattens list and object valued fields into canonical,
// escapable strings so they fit one CSV or Parquet cell.
//
// Two encodings are produced:
//
//   - pipe list: "a|b|c|" with a mandatory trailing delimiter; an empty or
//     nil list encodes to "".
//   - header+rows: "k1|k2/v1|v2/v3|v4". The first item's decoded key order
//     is kept, keys first seen later are appended in lexicographic order.
//
// Within a field, a backslash is written as "\\" and a pipe as "\|". The
// row separator "/" is not escaped: readers split rows on "/" only where the
// number of fields per row is known from the header.
package serialize

import (
	"sort"
	"strings"

	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	stringpool "github.com/ajitpratap0/bioetl/pkg/strings"
)

const (
	// Delimiter separates fields
	Delimiter = '|'
	// RowSeparator separates the header and rows of a header+rows block
	RowSeparator = '/'
	escapeChar   = '\\'
)

// Escape escapes backslashes and pipes.
func Escape(s string) string {
	if !strings.ContainsAny(s, `\|`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == escapeChar || c == Delimiter {
			b.WriteByte(escapeChar)
		}
		b.WriteByte(c)
	}
	return b.String()
}

// SimpleList encodes a list of scalars as a pipe list. Values are
// stringified; nested values are written as canonical JSON.
func SimpleList(values []interface{}) string {
	if len(values) == 0 {
		return ""
	}
	return stringpool.BuildString(stringpool.SizeFor(len(values)*16), func(b *stringpool.Builder) {
		for _, v := range values {
			b.WriteString(Escape(cell(v)))
			_ = b.WriteByte(Delimiter)
		}
	})
}

// Strings encodes a list of strings as a pipe list.
func Strings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	items := make([]interface{}, len(values))
	for i, v := range values {
		items[i] = v
	}
	return SimpleList(items)
}

// ParseSimpleList decodes a pipe list produced by SimpleList. An empty
// string decodes to an empty, non-nil slice.
func ParseSimpleList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	fields := splitEscaped(s, Delimiter)
	// the trailing delimiter leaves one empty remainder
	if n := len(fields); n > 0 && fields[n-1] == "" {
		fields = fields[:n-1]
	}
	return append(out, fields...)
}

// Objects encodes a list of records as a header+rows block. Items that are
// not objects become a single-column row of their canonical JSON.
func Objects(items []interface{}) string {
	return ObjectsOrdered(items, nil)
}

// ObjectsOrdered is Objects with the leading header columns pinned, for
// callers that know the upstream key order of the first record. Leading keys
// absent from every item are dropped.
func ObjectsOrdered(items []interface{}, leading []string) string {
	if len(items) == 0 {
		return ""
	}

	keys := headerKeys(items, leading)
	return stringpool.BuildString(stringpool.SizeFor(len(items)*len(keys)*16), func(b *stringpool.Builder) {
		writeRow(b, keys)
		for _, item := range items {
			_ = b.WriteByte(RowSeparator)
			obj, ok := jsonpool.AsMap(item)
			if !ok {
				b.WriteString(Escape(cell(item)))
				continue
			}
			row := make([]string, len(keys))
			for i, k := range keys {
				row[i] = cell(obj[k])
			}
			writeRow(b, row)
		}
	})
}

// ParseObjects decodes a header+rows block into records. It is the reader
// for Objects on rows whose values contain no "/" characters.
func ParseObjects(s string) []map[string]string {
	out := []map[string]string{}
	if s == "" {
		return out
	}
	lines := splitEscaped(s, RowSeparator)
	header := splitEscaped(lines[0], Delimiter)
	for _, line := range lines[1:] {
		fields := splitEscaped(line, Delimiter)
		rec := make(map[string]string, len(header))
		for i, k := range header {
			if i < len(fields) {
				rec[k] = fields[i]
			} else {
				rec[k] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// headerKeys returns leading keys that occur in some item, then the first
// object's remaining keys in decoded order (sorted when the object is a plain
// map and carries no order), then keys first seen in later objects, sorted.
func headerKeys(items []interface{}, leading []string) []string {
	var keys []string
	seen := map[string]struct{}{}
	for _, k := range leading {
		if _, dup := seen[k]; dup || !anyHasKey(items, k) {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	first := true
	var later []string
	for _, item := range items {
		obj, ok := jsonpool.AsMap(item)
		if !ok {
			continue
		}
		order := jsonpool.KeyOrder(item)
		if order == nil {
			order = make([]string, 0, len(obj))
			for k := range obj {
				order = append(order, k)
			}
			sort.Strings(order)
		}
		var names []string
		for _, k := range order {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
		if first {
			keys = append(keys, names...)
			first = false
			continue
		}
		later = append(later, names...)
	}
	sort.Strings(later)
	return append(keys, later...)
}

func anyHasKey(items []interface{}, key string) bool {
	for _, item := range items {
		if obj, ok := jsonpool.AsMap(item); ok {
			if _, has := obj[key]; has {
				return true
			}
		}
	}
	return false
}

func writeRow(b *stringpool.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			_ = b.WriteByte(Delimiter)
		}
		b.WriteString(Escape(f))
	}
}

// cell renders one value: nil as "", scalars as text, nested values as
// canonical JSON.
func cell(v interface{}) string {
	switch v.(type) {
	case nil:
		return ""
	case map[string]interface{}, []interface{}, []map[string]interface{}, []string, *jsonpool.Object:
		s, err := jsonpool.CanonicalString(v)
		if err != nil {
			return stringpool.ValueToString(v)
		}
		return s
	default:
		return stringpool.ValueToString(v)
	}
}

// splitEscaped splits s on sep, honouring backslash escapes, and unescapes
// each part.
func splitEscaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == escapeChar && i+1 < len(s):
			next := s[i+1]
			if sep == RowSeparator {
				// row splitting keeps field escapes for the field pass
				cur.WriteByte(c)
				cur.WriteByte(next)
			} else {
				cur.WriteByte(next)
			}
			i++
		case c == sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String())
}
