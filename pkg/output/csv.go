package output

import (
	"encoding/csv"
	"io"

	"github.com/ajitpratap0/bioetl/pkg/compression"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// CSVWriter writes a header row followed by one line per row, in table
// column order, with "\n" line endings.
type CSVWriter struct {
	Compressor compression.Compressor
}

// Format implements TableWriter.
func (w *CSVWriter) Format() Format { return FormatCSV }

// Extension implements TableWriter.
func (w *CSVWriter) Extension() string {
	if w.Compressor == nil {
		return ".csv"
	}
	return ".csv" + w.Compressor.Extension()
}

// Write implements TableWriter.
func (w *CSVWriter) Write(dst io.Writer, t *models.Table) error {
	out := io.WriteCloser(nopCloser{dst})
	if w.Compressor != nil {
		var err error
		if out, err = w.Compressor.NewWriter(dst); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(out)
	columns := t.Columns()
	if err := cw.Write(columns); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write csv header")
	}
	line := make([]string, len(columns))
	for _, row := range t.Rows() {
		for i, c := range columns {
			line[i], _ = FormatValue(row[c])
		}
		if err := cw.Write(line); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush csv")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compressed stream")
	}
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
