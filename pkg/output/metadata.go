package output

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
)

// MetadataFile is the name of the run metadata file in the output directory.
const MetadataFile = "meta.yaml"

// Metadata records what a run produced and how to reproduce it.
type Metadata struct {
	RunID    string `yaml:"run_id"`
	Pipeline string `yaml:"pipeline"`
	Entity   string `yaml:"entity"`
	Source   string `yaml:"source,omitempty"`
	Release  string `yaml:"release"`
	Mode     string `yaml:"mode"`
	DryRun   bool   `yaml:"dry_run,omitempty"`

	Rows    int      `yaml:"rows"`
	Columns []string `yaml:"columns"`

	HashAlgorithm         config.HashAlgorithm `yaml:"hash_algorithm"`
	RowHashColumn         string               `yaml:"row_hash_column,omitempty"`
	BusinessKeyHashColumn string               `yaml:"business_key_hash_column,omitempty"`
	SortBy                []config.SortKey     `yaml:"sort_by,omitempty"`

	Artifacts []Artifact  `yaml:"artifacts"`
	Stats     interface{} `yaml:"stats,omitempty"`

	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
}

// WriteMetadata writes m as dir/meta.yaml and returns the path.
func WriteMetadata(dir string, m *Metadata) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode metadata")
	}
	if err := enc.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode metadata")
	}

	path := filepath.Join(dir, MetadataFile)
	if _, _, err := writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	}); err != nil {
		return "", err
	}
	return path, nil
}

// ReadMetadata loads a meta.yaml file.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read metadata").WithDetail("path", path)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse metadata").WithDetail("path", path)
	}
	return &m, nil
}

// Verify recomputes the checksum of every artifact and reports the first
// mismatch.
func (m *Metadata) Verify() error {
	for _, a := range m.Artifacts {
		sum, err := ChecksumFile(a.Path)
		if err != nil {
			return err
		}
		if sum != a.SHA256 {
			return errors.New(errors.ErrorTypeData, "artifact checksum mismatch").
				WithDetail("path", a.Path).
				WithDetail("expected", a.SHA256).
				WithDetail("actual", sum)
		}
	}
	return nil
}
