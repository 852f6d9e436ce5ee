// Package export writes finished ad records to a sink format chosen by the
// output file extension. Every exporter accepts an empty record set: an
// empty successful run still produces a valid file.
package export

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adscope-cli/internal/model"
)

// Exporter writes a finite sequence of records plus a diagnostics summary.
type Exporter interface {
	Export(records []model.AdRecord, diag *model.Diagnostics, path string) error
}

// exporters maps output extensions to implementations.
var exporters = map[string]Exporter{
	".json": JSONExporter{},
	".csv":  CSVExporter{},
	".xlsx": XLSXExporter{},
	".html": HTMLExporter{},
}

// Write picks the exporter for path's extension (unknown extensions fall
// back to JSON, as the original tooling did) and writes the records.
func Write(records []model.AdRecord, diag *model.Diagnostics, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	exporter, ok := exporters[ext]
	if !ok {
		exporter = JSONExporter{}
	}

	if err := exporter.Export(records, diag, path); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	zap.L().Info("export complete",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)
	return nil
}

// flatRows expands all records into tabular rows for the CSV/XLSX/HTML
// exporters.
func flatRows(records []model.AdRecord) []model.FlatRow {
	var rows []model.FlatRow
	for i := range records {
		rows = append(rows, records[i].FlatRows()...)
	}
	return rows
}
