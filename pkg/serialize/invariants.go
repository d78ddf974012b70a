package serialize

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/errors"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
)

// Policy selects how a data invariant violation is handled.
type Policy int

const (
	// PolicyWarn logs the violation and keeps the record
	PolicyWarn Policy = iota
	// PolicyFailFast returns a data error
	PolicyFailFast
)

// CheckExclusive verifies that no object in items carries non-empty values
// for both a and b, e.g. an assay parameter with a numeric value and a text
// value. Under PolicyWarn every violation is logged and nil is returned.
func CheckExclusive(items []interface{}, a, b string, policy Policy, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, item := range items {
		obj, ok := jsonpool.AsMap(item)
		if !ok {
			continue
		}
		if isEmpty(obj[a]) || isEmpty(obj[b]) {
			continue
		}
		if policy == PolicyFailFast {
			return errors.Newf(errors.ErrorTypeData, "fields %q and %q are mutually exclusive", a, b).
				WithDetail("index", i).
				WithDetail(a, obj[a]).
				WithDetail(b, obj[b])
		}
		logger.Warn("mutually exclusive fields both set",
			zap.String("field_a", a),
			zap.String("field_b", b),
			zap.Int("index", i))
	}
	return nil
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
