package config

import (
	"github.com/ajitpratap0/bioetl/pkg/errors"
)

// HashAlgorithm names a row hashing algorithm.
type HashAlgorithm string

const (
	HashSHA256   HashAlgorithm = "sha256"
	HashSHA512   HashAlgorithm = "sha512"
	HashXXHash64 HashAlgorithm = "xxhash64"
)

// SortKey is one column of the stable output sort.
type SortKey struct {
	Column     string `yaml:"column" json:"column" mapstructure:"column"`
	Descending bool   `yaml:"descending" json:"descending" mapstructure:"descending"`
	NullsFirst bool   `yaml:"nulls_first" json:"nulls_first" mapstructure:"nulls_first"`
}

// DeterminismConfig makes output byte-stable across runs.
type DeterminismConfig struct {
	// SortBy overrides the entity's default sort keys
	SortBy []SortKey `yaml:"sort_by" json:"sort_by" mapstructure:"sort_by"`
	// ColumnOrder lists output columns first, in order
	ColumnOrder []string `yaml:"column_order" json:"column_order" mapstructure:"column_order"`

	HashAlgorithm         HashAlgorithm `yaml:"hash_algorithm" json:"hash_algorithm" mapstructure:"hash_algorithm"`
	RowHashColumn         string        `yaml:"row_hash_column" json:"row_hash_column" mapstructure:"row_hash_column"`
	BusinessKeyHashColumn string        `yaml:"business_key_hash_column" json:"business_key_hash_column" mapstructure:"business_key_hash_column"`
	// RowHashFields feed the row hash; empty uses every column
	RowHashFields []string `yaml:"row_hash_fields" json:"row_hash_fields" mapstructure:"row_hash_fields"`
	// BusinessKeyFields feed the business key hash; empty uses the entity id column
	BusinessKeyFields []string `yaml:"business_key_fields" json:"business_key_fields" mapstructure:"business_key_fields"`
	// ExcludeFields never contribute to either hash
	ExcludeFields []string `yaml:"exclude_fields" json:"exclude_fields" mapstructure:"exclude_fields"`
}

// Validate checks the determinism section against the output schema.
// schema may be empty, in which case a column order cannot be checked and
// is rejected.
func (d *DeterminismConfig) Validate(schema []string) error {
	if err := uniqueSortColumns(d.SortBy); err != nil {
		return err
	}

	if len(d.ColumnOrder) > 0 {
		if len(schema) == 0 {
			return errors.New(errors.ErrorTypeConfig, "column_order requires an output schema")
		}
		known := make(map[string]struct{}, len(schema))
		for _, c := range schema {
			known[c] = struct{}{}
		}
		seen := make(map[string]struct{}, len(d.ColumnOrder))
		for _, c := range d.ColumnOrder {
			if _, dup := seen[c]; dup {
				return errors.Newf(errors.ErrorTypeConfig, "duplicate column_order entry %q", c)
			}
			seen[c] = struct{}{}
			if _, ok := known[c]; !ok {
				return errors.Newf(errors.ErrorTypeConfig, "column_order entry %q is not in the output schema", c)
			}
		}
	}

	switch d.HashAlgorithm {
	case "", HashSHA256, HashSHA512, HashXXHash64:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported hash_algorithm %q", d.HashAlgorithm)
	}

	if d.RowHashColumn != "" && d.RowHashColumn == d.BusinessKeyHashColumn {
		return errors.New(errors.ErrorTypeConfig, "row and business key hash columns must differ")
	}
	return nil
}

// Algorithm returns the configured algorithm, defaulting to sha256.
func (d *DeterminismConfig) Algorithm() HashAlgorithm {
	if d.HashAlgorithm == "" {
		return HashSHA256
	}
	return d.HashAlgorithm
}

func uniqueSortColumns(keys []SortKey) error {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k.Column == "" {
			return errors.New(errors.ErrorTypeConfig, "sort key column is empty")
		}
		if _, dup := seen[k.Column]; dup {
			return errors.Newf(errors.ErrorTypeConfig, "duplicate sort column %q", k.Column)
		}
		seen[k.Column] = struct{}{}
	}
	return nil
}
