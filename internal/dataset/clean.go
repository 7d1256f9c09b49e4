package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
)

// DefaultSentinel is the placeholder the source data uses for missing
// readings. Note the trailing space.
const DefaultSentinel = "NA "

// Report accounts for every raw row processed by Clean.
type Report struct {
	Read            int            `json:"read"`
	Kept            int            `json:"kept"`
	Dropped         int            `json:"dropped"`
	DroppedByColumn map[string]int `json:"dropped_by_column"`
}

// Clean converts raw into typed observations:
//
//   - cells equal to sentinel are missing, in every column including Timestamp;
//   - every column except Timestamp is parsed as a float after trimming
//     spaces; unparsable or non-finite values are missing;
//   - any row with a missing cell is dropped.
//
// A table missing required columns is rejected with a SchemaError. When
// every row is dropped the result is an empty table, not an error.
func Clean(raw *RawTable, sentinel string) (*Table, Report, error) {
	var missing []string
	for _, c := range RequiredColumns {
		if !raw.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, Report{}, errors.NewSchemaError(raw.Source, missing)
	}

	table := &Table{HasTimestamp: raw.HasColumn(ColTimestamp)}
	required := make(map[string]bool, len(RequiredColumns))
	for _, c := range RequiredColumns {
		required[c] = true
	}
	for _, c := range raw.Columns() {
		if c != ColTimestamp && !required[c] {
			table.ExtraColumns = append(table.ExtraColumns, c)
		}
	}

	report := Report{Read: raw.Len(), DroppedByColumn: map[string]int{}}
	columns := raw.Columns()
	values := make(map[string]float64, len(columns))

	for row := 0; row < raw.Len(); row++ {
		complete := true
		var timestamp string
		for _, col := range columns {
			cell, ok := raw.Value(row, col)
			if ok && cell == sentinel {
				ok = false
			}
			if ok && col == ColTimestamp {
				timestamp = cell
				continue
			}
			var v float64
			if ok {
				v, ok = parseNumber(cell)
			}
			if !ok {
				// count each row once, against its first missing column
				if complete {
					report.DroppedByColumn[col]++
				}
				complete = false
				continue
			}
			values[col] = v
		}
		if !complete {
			report.Dropped++
			continue
		}
		table.Observations = append(table.Observations, newObservation(timestamp, values, table.ExtraColumns))
	}
	report.Kept = table.Len()

	logger := log.GetLoggerWithName("dataset")
	logger.Info("Dataset cleaned",
		log.OperationKey, log.OperationClean,
		log.SourceKey, raw.Source,
		log.SamplesKey, report.Kept,
		log.DroppedKey, report.Dropped,
	)
	if report.Dropped > 0 {
		errors.Warn(errors.NewDataConversionWarning("string", "float64",
			fmt.Sprintf("%d of %d rows dropped for missing or non-numeric values", report.Dropped, report.Read)))
	}
	return table, report, nil
}

// LoadClean reads path and cleans it with sentinel.
func LoadClean(path, sentinel string) (*Table, Report, error) {
	raw, err := LoadFile(path)
	if err != nil {
		return nil, Report{}, err
	}
	return Clean(raw, sentinel)
}

func parseNumber(cell string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func newObservation(timestamp string, values map[string]float64, extras []string) Observation {
	o := Observation{
		Timestamp: timestamp,
		PM25:      values[ColPM25],
		PM10:      values[ColPM10],
		NO:        values[ColNO],
		NO2:       values[ColNO2],
		NOx:       values[ColNOx],
		AQI:       values[ColAQI],
	}
	if len(extras) > 0 {
		o.Extra = make(map[string]float64, len(extras))
		for _, c := range extras {
			o.Extra[c] = values[c]
		}
	}
	return o
}
