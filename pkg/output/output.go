// Package output writes canonical tables to disk.
//
// Every writer renders values the same way (see FormatValue), writes to a
// temporary file in the target directory and renames it into place, and
// reports the sha256 of the bytes on disk. Given the same table the output
// is byte-identical across runs.
package output

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/bioetl/pkg/compression"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/metrics"
	"github.com/ajitpratap0/bioetl/pkg/models"
	stringpool "github.com/ajitpratap0/bioetl/pkg/strings"
)

// Format is an output file format.
type Format string

const (
	// FormatCSV writes comma-separated values with a header row
	FormatCSV Format = "csv"
	// FormatParquet writes a Parquet file with nullable string columns
	FormatParquet Format = "parquet"
)

// Artifact describes one written file.
type Artifact struct {
	Path   string `yaml:"path" json:"path"`
	Format Format `yaml:"format" json:"format"`
	Rows   int    `yaml:"rows" json:"rows"`
	Bytes  int64  `yaml:"bytes" json:"bytes"`
	SHA256 string `yaml:"sha256" json:"sha256"`
}

// Options controls how a table is written.
type Options struct {
	Dir    string
	Name   string
	Format Format
	// Compression applies to CSV output; Parquet compresses its pages with
	// zstd when it is anything but none.
	Compression compression.Algorithm
	// Entity labels the rows-written metric.
	Entity string
}

// TableWriter encodes a table to w.
type TableWriter interface {
	Format() Format
	Extension() string
	Write(w io.Writer, t *models.Table) error
}

// NewTableWriter returns the writer for opts.
func NewTableWriter(opts Options) (TableWriter, error) {
	switch opts.Format {
	case FormatCSV, "":
		comp, err := compression.NewCompressor(&compression.Config{Algorithm: opts.Compression, Level: compression.Default})
		if err != nil {
			return nil, err
		}
		return &CSVWriter{Compressor: comp}, nil
	case FormatParquet:
		return &ParquetWriter{Compress: opts.Compression != "" && opts.Compression != compression.None}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown output format %q", opts.Format)
	}
}

// WriteTable writes t to opts.Dir/opts.Name plus the format extension.
func WriteTable(t *models.Table, opts Options) (*Artifact, error) {
	if opts.Name == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "output name is required")
	}
	w, err := NewTableWriter(opts)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(opts.Dir, opts.Name+w.Extension())
	n, sum, err := writeAtomic(path, func(dst io.Writer) error {
		return w.Write(dst, t)
	})
	if err != nil {
		return nil, err
	}

	if opts.Entity != "" {
		metrics.RowsWritten.WithLabelValues(opts.Entity, string(w.Format())).Add(float64(t.Len()))
	}
	return &Artifact{
		Path:   path,
		Format: w.Format(),
		Rows:   t.Len(),
		Bytes:  n,
		SHA256: sum,
	}, nil
}

// writeAtomic streams fill into a temp file beside path, hashing the bytes,
// and renames it over path once complete.
func writeAtomic(path string, fill func(io.Writer) error) (int64, string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("dir", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(tmp, h)}
	if err := fill(cw); err != nil {
		tmp.Close()
		return 0, "", err
	}
	if err := tmp.Close(); err != nil {
		return 0, "", errors.Wrap(err, errors.ErrorTypeFile, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, "", errors.Wrap(err, errors.ErrorTypeFile, "failed to move output into place").
			WithDetail("path", path)
	}
	return cw.n, hex.EncodeToString(h.Sum(nil)), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// ChecksumFile returns the hex sha256 of the file at path.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open file").WithDetail("path", path)
	}
	defer f.Close()
	return checksum(sha256.New(), f)
}

func checksum(h hash.Hash, r io.Reader) (string, error) {
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to read file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FormatValue renders a cell: nil is empty, nested values are canonical
// JSON, and scalars use their literal form.
func FormatValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case map[string]interface{}, []interface{}, *jsonpool.Object:
		s, err := jsonpool.CanonicalString(t)
		if err != nil {
			return stringpool.ValueToString(t), true
		}
		return s, true
	default:
		return stringpool.ValueToString(t), true
	}
}
