package determinism

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ajitpratap0/bioetl/pkg/config"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/models"
	stringpool "github.com/ajitpratap0/bioetl/pkg/strings"
)

// SortRows stably sorts rows by keys. Ties keep their input order. Nulls
// sort last unless the key asks for nulls first; the placement does not flip
// with Descending.
func SortRows(rows []models.Record, keys []config.SortKey) {
	if len(keys) == 0 || len(rows) < 2 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			a, b := rows[i][k.Column], rows[j][k.Column]
			an, bn := a == nil, b == nil
			switch {
			case an && bn:
				continue
			case an:
				return k.NullsFirst
			case bn:
				return !k.NullsFirst
			}
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Compare orders two non-nil values. Values are ranked by class first:
// numbers, then booleans, then everything else. Within a class numbers
// compare numerically, false sorts before true and the rest compare by text.
// The class ranking keeps the order total when a column mixes types.
func Compare(a, b interface{}) int {
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}
	switch ca {
	case classNumber:
		x, _ := asNumber(a)
		y, _ := asNumber(b)
		return x.Cmp(y)
	case classBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	}
	return strings.Compare(text(a), text(b))
}

const (
	classNumber = iota
	classBool
	classOther
)

func classOf(v interface{}) int {
	if _, ok := asNumber(v); ok {
		return classNumber
	}
	if _, ok := v.(bool); ok {
		return classBool
	}
	return classOther
}

func asNumber(v interface{}) (*big.Float, bool) {
	var s string
	switch t := v.(type) {
	case jsonpool.Number:
		s = t.String()
	case int, int32, int64, uint64, float32, float64:
		s = stringpool.ValueToString(t)
	default:
		return nil, false
	}
	f, ok := new(big.Float).SetPrec(200).SetString(s)
	return f, ok
}

func text(v interface{}) string {
	switch v.(type) {
	case map[string]interface{}, []interface{}, *jsonpool.Object:
		s, err := jsonpool.CanonicalString(v)
		if err == nil {
			return s
		}
	}
	return stringpool.ValueToString(v)
}
