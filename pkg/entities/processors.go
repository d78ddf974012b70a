// Package entities holds the post-processors shared by the entity
// descriptors. Each entity lives in its own subpackage and registers its
// descriptor with the extraction registry from init, so importing the
// subpackage is enough to make the entity available:
//
//	import _ "github.com/ajitpratap0/bioetl/pkg/entities/assay"
package entities

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/models"
	"github.com/ajitpratap0/bioetl/pkg/serialize"
	stringpool "github.com/ajitpratap0/bioetl/pkg/strings"
)

// ReleaseColumn is the column StampRelease writes.
const ReleaseColumn = "chembl_release"

// Policy maps the run's invariant policy onto the serializer's.
func Policy(c *extraction.Context) serialize.Policy {
	if c.Policy() == config.InvariantFailFast {
		return serialize.PolicyFailFast
	}
	return serialize.PolicyWarn
}

// SerializeObjects replaces a column holding a list of objects with its
// header+rows form. A single object is treated as a one-item list; missing
// and empty lists become "".
func SerializeObjects(column string, leading ...string) extraction.PostProcessor {
	return extraction.NewPostProcessor("serialize_objects:"+column, func(t *models.Table, c *extraction.Context) (*models.Table, error) {
		t.SetColumn(column, func(r models.Record) interface{} {
			switch v := r[column].(type) {
			case []interface{}:
				return serialize.ObjectsOrdered(v, leading)
			case map[string]interface{}, *jsonpool.Object:
				return serialize.ObjectsOrdered([]interface{}{v}, leading)
			case string:
				return v
			default:
				return ""
			}
		})
		return t, nil
	})
}

// SerializeList replaces a column holding a list with a pipe list. When key
// is set, object items contribute their key field.
func SerializeList(column, key string) extraction.PostProcessor {
	return extraction.NewPostProcessor("serialize_list:"+column, func(t *models.Table, c *extraction.Context) (*models.Table, error) {
		t.SetColumn(column, func(r models.Record) interface{} {
			switch v := r[column].(type) {
			case []interface{}:
				return serialize.SimpleList(pluck(v, key))
			case string:
				return v
			default:
				return ""
			}
		})
		return t, nil
	})
}

// CollectNested gathers field from the objects listed under key inside each
// object of source, writing the de-duplicated values in first-seen order to
// target as a pipe list.
func CollectNested(source, key, field, target string) extraction.PostProcessor {
	return extraction.NewPostProcessor("collect_nested:"+target, func(t *models.Table, c *extraction.Context) (*models.Table, error) {
		t.SetColumn(target, func(r models.Record) interface{} {
			parents, _ := r[source].([]interface{})
			var values []string
			seen := map[string]struct{}{}
			for _, p := range parents {
				obj, ok := jsonpool.AsMap(p)
				if !ok {
					continue
				}
				children, _ := obj[key].([]interface{})
				for _, v := range pluck(children, field) {
					s := stringpool.ValueToString(v)
					if _, dup := seen[s]; dup || s == "" {
						continue
					}
					seen[s] = struct{}{}
					values = append(values, s)
				}
			}
			return serialize.Strings(values)
		})
		return t, nil
	})
}

// CheckExclusive enforces that no object in column carries both a and b.
// It must run before the column is serialized.
func CheckExclusive(column, a, b string) extraction.PostProcessor {
	return extraction.NewPostProcessor("check_exclusive:"+column, func(t *models.Table, c *extraction.Context) (*models.Table, error) {
		idColumn := c.Descriptor.IDColumn
		for _, r := range t.Rows() {
			items, ok := r[column].([]interface{})
			if !ok {
				continue
			}
			log := c.Logger.With(zap.Any(idColumn, r[idColumn]), zap.String("column", column))
			if err := serialize.CheckExclusive(items, a, b, Policy(c), log); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "invariant violated").
					WithDetail(idColumn, r[idColumn]).
					WithDetail("column", column)
			}
		}
		return t, nil
	})
}

// CoerceInt converts numeric text in column to int64. Values that are not
// whole numbers become null and are logged.
func CoerceInt(column string) extraction.PostProcessor {
	return extraction.NewPostProcessor("coerce_int:"+column, func(t *models.Table, c *extraction.Context) (*models.Table, error) {
		if !t.HasColumn(column) {
			return t, nil
		}
		t.SetColumn(column, func(r models.Record) interface{} {
			v := r[column]
			if v == nil {
				return nil
			}
			s := strings.TrimSpace(stringpool.ValueToString(v))
			if s == "" {
				return nil
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				f, ferr := strconv.ParseFloat(s, 64)
				if ferr != nil || f != float64(int64(f)) {
					c.Logger.Warn("value is not an integer",
						zap.String("column", column),
						zap.String("value", s))
					return nil
				}
				n = int64(f)
			}
			return n
		})
		return t, nil
	})
}

// FlattenObject spreads the object in column into prefix+key columns and
// drops column. With keys set only those keys are kept, in that order;
// otherwise every key seen is kept in sorted order.
func FlattenObject(column, prefix string, keys ...string) extraction.PostProcessor {
	return extraction.NewPostProcessor("flatten:"+column, func(t *models.Table, c *extraction.Context) (*models.Table, error) {
		if !t.HasColumn(column) {
			return t, nil
		}
		names := keys
		if len(names) == 0 {
			seen := map[string]struct{}{}
			for _, r := range t.Rows() {
				obj, _ := jsonpool.AsMap(r[column])
				for k := range obj {
					if _, ok := seen[k]; !ok {
						seen[k] = struct{}{}
						names = append(names, k)
					}
				}
			}
			sort.Strings(names)
		}
		for _, k := range names {
			key := k
			t.SetColumn(prefix+key, func(r models.Record) interface{} {
				obj, _ := jsonpool.AsMap(r[column])
				return obj[key]
			})
		}
		t.DropColumns(column)
		return t, nil
	})
}

// StampRelease writes the discovered release into every row.
func StampRelease() extraction.PostProcessor {
	return extraction.NewPostProcessor("stamp_release", func(t *models.Table, c *extraction.Context) (*models.Table, error) {
		var release interface{}
		if c.Release != "" {
			release = c.Release
		}
		t.SetColumn(ReleaseColumn, func(models.Record) interface{} { return release })
		return t, nil
	})
}

// SchemaFrame returns an empty table with the descriptor's schema, falling
// back to the resolved fields.
func SchemaFrame(c *extraction.Context) *models.Table {
	if len(c.Descriptor.Schema) > 0 {
		return models.NewTable(c.Descriptor.Schema...)
	}
	return models.NewTable(c.Fields...)
}

func pluck(items []interface{}, key string) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		obj, ok := jsonpool.AsMap(item)
		switch {
		case !ok:
			out = append(out, item)
		case key != "":
			if v, present := obj[key]; present && v != nil {
				out = append(out, v)
			}
		default:
			s, err := jsonpool.CanonicalString(obj)
			if err == nil {
				out = append(out, s)
			}
		}
	}
	return out
}
