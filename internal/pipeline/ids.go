package pipeline

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/bioetl/pkg/errors"
)

// ReadIDsFile reads identifiers from path. A .csv file is read by its
// idColumn header, or its first column when there is no such header; any
// other file holds one identifier per line, with blank lines and lines
// starting with '#' ignored.
func ReadIDsFile(path, idColumn string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open ids file").WithDetail("path", path)
	}
	defer f.Close()

	var ids []string
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		ids, err = readCSVIDs(f, idColumn)
	} else {
		ids, err = readLineIDs(f)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read ids file").WithDetail("path", path)
	}
	return ids, nil
}

func readLineIDs(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, sc.Err()
}

func readCSVIDs(r io.Reader, idColumn string) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	col := 0
	start := 0
	for i, h := range rows[0] {
		if strings.TrimSpace(h) == idColumn {
			col, start = i, 1
			break
		}
	}
	var ids []string
	for _, row := range rows[start:] {
		if col < len(row) {
			ids = append(ids, row[col])
		}
	}
	return ids, nil
}
