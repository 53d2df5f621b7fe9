// Package dataset loads the tabular content of a dataset file.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrFileNotFound is returned when a dataset file cannot be located.
var ErrFileNotFound = errors.New("dataset file not found")

// missingTokens are cell values read as a missing value.
var missingTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"na":   {},
	"n/a":  {},
	"null": {},
	"none": {},
	"-nan": {},
}

// Table is a CSV file held in memory column by column.
type Table struct {
	header []string
	index  map[string]int
	cols   [][]string
}

// Resolve returns the path to read for a dataset file. A path that does
// not exist as given is retried relative to dataDir.
func Resolve(path, dataDir string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if dataDir != "" && !filepath.IsAbs(path) {
		candidate := filepath.Join(dataDir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Wrapf(ErrFileNotFound, "%s", path)
}

// Load reads a CSV file with a header row.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read parses CSV content with a header row.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("dataset is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read dataset header")
	}

	t := &Table{
		header: make([]string, len(header)),
		index:  make(map[string]int, len(header)),
		cols:   make([][]string, len(header)),
	}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		t.header[i] = name
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read dataset line %d", line)
		}
		for i := range t.cols {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			t.cols[i] = append(t.cols[i], cell)
		}
	}
	return t, nil
}

// Columns returns the header names in file order.
func (t *Table) Columns() []string {
	return t.header
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0])
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Float returns the named column as numbers, with NaN for missing cells.
// ok is false when the column is absent or holds any non-numeric value.
// Infinities such as "inf" count as non-numeric.
func (t *Table) Float(name string) (values []float64, ok bool) {
	i, found := t.index[name]
	if !found {
		return nil, false
	}
	raw := t.cols[i]
	values = make([]float64, len(raw))
	for r, cell := range raw {
		cell = strings.TrimSpace(cell)
		if IsMissing(cell) {
			values[r] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, false
		}
		values[r] = v
	}
	return values, true
}

// IsMissing reports whether a cell denotes a missing value.
func IsMissing(cell string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}
