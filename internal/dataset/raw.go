// Package dataset loads the pollutant CSV and turns it into typed
// observations ready for training.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/airq/pkg/errors"
)

// MissingTokens are cell values read as "no value" before any cleaning,
// matching the usual CSV conventions (pandas defaults).
var MissingTokens = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

const utf8BOM = "\ufeff"

type rawColumn struct {
	values  []string
	missing []bool
}

// RawTable is an all-string table as read from CSV. Cells matching
// MissingTokens are marked missing; everything else is kept verbatim.
type RawTable struct {
	Source  string
	columns []string
	data    map[string]rawColumn
	rows    int
}

// LoadFile reads a CSV file with a header row.
func LoadFile(path string) (*RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", path)
	}
	t.Source = path
	return t, nil
}

// ReadCSV reads CSV data with a header row from r.
func ReadCSV(r io.Reader) (*RawTable, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	return FromRecords(records)
}

// FromRecords builds a RawTable from a header row followed by data rows.
func FromRecords(records [][]string) (*RawTable, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, errors.NewValueError("dataset.FromRecords", "missing header row")
	}
	if first := records[0][0]; strings.HasPrefix(first, utf8BOM) {
		header := append([]string(nil), records[0]...)
		header[0] = strings.TrimPrefix(first, utf8BOM)
		records = append([][]string{header}, records[1:]...)
	}

	// A header without data rows is a valid, empty table.
	if len(records) == 1 {
		t := &RawTable{Source: "records", data: make(map[string]rawColumn)}
		for _, name := range records[0] {
			t.columns = append(t.columns, name)
			t.data[name] = rawColumn{}
		}
		return t, nil
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(MissingTokens),
	)
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "load records")
	}

	t := &RawTable{
		Source:  "records",
		columns: df.Names(),
		data:    make(map[string]rawColumn, df.Ncol()),
		rows:    df.Nrow(),
	}
	for _, name := range t.columns {
		s := df.Col(name)
		t.data[name] = rawColumn{values: s.Records(), missing: s.IsNaN()}
	}
	return t, nil
}

// Columns returns the column names in file order.
func (t *RawTable) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of data rows.
func (t *RawTable) Len() int {
	return t.rows
}

// HasColumn reports whether name is a column of the table.
func (t *RawTable) HasColumn(name string) bool {
	_, ok := t.data[name]
	return ok
}

// Value returns the cell at row for column. ok is false when the cell is
// missing or the column does not exist.
func (t *RawTable) Value(row int, column string) (value string, ok bool) {
	c, found := t.data[column]
	if !found || row < 0 || row >= len(c.values) || c.missing[row] {
		return "", false
	}
	return c.values[row], true
}
