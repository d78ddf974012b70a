// Package determinism turns an extracted table into its canonical form:
// stable row order, fixed column order and content hashes, so repeated runs
// over the same upstream data produce byte-identical artifacts.
package determinism

import (
	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// Spec is the resolved determinism setting for one entity.
type Spec struct {
	SortBy                []config.SortKey
	ColumnOrder           []string
	RowHashFields         []string
	BusinessKeyFields     []string
	Exclude               []string
	Algorithm             config.HashAlgorithm
	RowHashColumn         string
	BusinessKeyHashColumn string
}

// SpecFromConfig layers cfg over the entity defaults: cfg sort keys replace
// defaultSort when set, and an empty business key falls back to idColumn.
func SpecFromConfig(cfg config.DeterminismConfig, defaultSort []config.SortKey, idColumn string) Spec {
	s := Spec{
		SortBy:                cfg.SortBy,
		ColumnOrder:           cfg.ColumnOrder,
		RowHashFields:         cfg.RowHashFields,
		BusinessKeyFields:     cfg.BusinessKeyFields,
		Exclude:               cfg.ExcludeFields,
		Algorithm:             cfg.Algorithm(),
		RowHashColumn:         cfg.RowHashColumn,
		BusinessKeyHashColumn: cfg.BusinessKeyHashColumn,
	}
	if len(s.SortBy) == 0 {
		s.SortBy = defaultSort
	}
	if len(s.BusinessKeyFields) == 0 && idColumn != "" {
		s.BusinessKeyFields = []string{idColumn}
	}
	return s
}

// Canonicalize returns a canonical copy of t: rows stably sorted by
// spec.SortBy, hash columns added, columns reordered with spec.ColumnOrder
// first and every other column after it in its existing order. t is not
// modified.
func Canonicalize(t *models.Table, spec Spec) (*models.Table, error) {
	out := t.Clone()

	for _, k := range spec.SortBy {
		if !out.HasColumn(k.Column) && out.Len() > 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "sort column %q is not in the table", k.Column)
		}
	}
	SortRows(out.Rows(), spec.SortBy)

	hashCols := map[string]struct{}{}
	for _, c := range []string{spec.RowHashColumn, spec.BusinessKeyHashColumn} {
		if c != "" {
			hashCols[c] = struct{}{}
		}
	}

	// the row hash field list is fixed before hash columns are added
	rowFields := spec.RowHashFields
	if len(rowFields) == 0 {
		for _, c := range out.Columns() {
			if _, isHash := hashCols[c]; !isHash {
				rowFields = append(rowFields, c)
			}
		}
	}
	rowFields = without(rowFields, spec.Exclude)
	keyFields := without(spec.BusinessKeyFields, spec.Exclude)

	algo := spec.Algorithm
	if algo == "" {
		algo = config.HashSHA256
	}
	hasher, err := NewHasher(algo)
	if err != nil {
		return nil, err
	}

	if spec.BusinessKeyHashColumn != "" && len(keyFields) > 0 {
		var hashErr error
		out.SetColumn(spec.BusinessKeyHashColumn, func(r models.Record) interface{} {
			h, err := hasher.Hash(r, keyFields)
			if err != nil && hashErr == nil {
				hashErr = err
			}
			return h
		})
		if hashErr != nil {
			return nil, hashErr
		}
	}
	if spec.RowHashColumn != "" {
		var hashErr error
		out.SetColumn(spec.RowHashColumn, func(r models.Record) interface{} {
			h, err := hasher.Hash(r, rowFields)
			if err != nil && hashErr == nil {
				hashErr = err
			}
			return h
		})
		if hashErr != nil {
			return nil, hashErr
		}
	}

	if len(spec.ColumnOrder) > 0 {
		out.SetColumnOrder(spec.ColumnOrder)
	}
	return out, nil
}

func without(fields, exclude []string) []string {
	if len(exclude) == 0 {
		return fields
	}
	drop := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		drop[e] = struct{}{}
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := drop[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}
