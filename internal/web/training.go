package web

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/airq/internal/aqi"
	"github.com/YuminosukeSato/airq/internal/dataset"
)

// trainingData holds the cleaned training table for the installed bundle.
// It reloads only when the bundle version changes.
type trainingData struct {
	loader aqi.Loader

	mu      sync.Mutex
	loaded  bool
	version uuid.UUID
	table   *dataset.Table
	report  dataset.Report
}

// get returns the table for version, loading it on first use. uuid.Nil
// stands for "no model installed".
func (d *trainingData) get(ctx context.Context, version uuid.UUID) (*dataset.Table, dataset.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded && d.version == version {
		return d.table, d.report, nil
	}
	table, report, err := d.loader.Load(ctx)
	if err != nil {
		return nil, dataset.Report{}, err
	}
	d.loaded, d.version, d.table, d.report = true, version, table, report
	return table, report, nil
}
