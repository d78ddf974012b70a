package output

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// ParquetWriter writes every column as a nullable UTF-8 string so the file
// carries exactly the text the CSV writer would produce, with nulls kept
// distinct from empty strings.
type ParquetWriter struct {
	Compress bool
}

// Format implements TableWriter.
func (w *ParquetWriter) Format() Format { return FormatParquet }

// Extension implements TableWriter.
func (w *ParquetWriter) Extension() string { return ".parquet" }

// Write implements TableWriter.
func (w *ParquetWriter) Write(dst io.Writer, t *models.Table) error {
	columns := t.Columns()
	if len(columns) == 0 {
		return errors.New(errors.ErrorTypeData, "cannot write parquet without columns")
	}

	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{Name: c, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	mem := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for _, row := range t.Rows() {
		for i, c := range columns {
			sb := builder.Field(i).(*array.StringBuilder)
			if s, ok := FormatValue(row[c]); ok {
				sb.Append(s)
			} else {
				sb.AppendNull()
			}
		}
	}
	record := builder.NewRecord()
	defer record.Release()

	codec := compress.Codecs.Uncompressed
	if w.Compress {
		codec = compress.Codecs.Zstd
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithCreatedBy("bioetl"),
	)
	fw, err := pqarrow.NewFileWriter(schema, plainWriter{dst}, props, pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(mem)))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create parquet writer")
	}
	if err := fw.Write(record); err != nil {
		_ = fw.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write parquet rows")
	}
	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close parquet writer")
	}
	return nil
}

// plainWriter hides any Close method of the destination from the parquet
// writer, which otherwise closes its sink.
type plainWriter struct {
	w io.Writer
}

func (p plainWriter) Write(b []byte) (int, error) { return p.w.Write(b) }

// ReadParquet loads a file written by ParquetWriter back into a table. Null
// cells are returned as nil.
func ReadParquet(ctx context.Context, path string) (*models.Table, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open parquet file").WithDetail("path", path)
	}
	defer rdr.Close()

	mem := memory.NewGoAllocator()
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create arrow reader")
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read parquet table")
	}
	defer tbl.Release()

	columns := make([]string, tbl.Schema().NumFields())
	for i, f := range tbl.Schema().Fields() {
		columns[i] = f.Name
	}
	out := models.NewTable(columns...)

	tr := array.NewTableReader(tbl, 0)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		for j := 0; j < int(rec.NumRows()); j++ {
			row := make(models.Record, len(columns))
			for i, c := range columns {
				col, ok := rec.Column(i).(*array.String)
				if !ok || col.IsNull(j) {
					row[c] = nil
					continue
				}
				row[c] = col.Value(j)
			}
			out.Append(row)
		}
	}
	return out, nil
}
