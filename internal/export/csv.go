package export

import (
	"encoding/csv"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adscope-cli/internal/model"
)

// CSVExporter writes flat rows (one per region x surface x variation). The
// header comes from the FlatRow csv tags via csvutil so the column set stays
// in lockstep with the model.
type CSVExporter struct{}

// Export writes flat rows as CSV. Zero records still produce a header-only
// file so downstream column mapping keeps working.
func (CSVExporter) Export(records []model.AdRecord, diag *model.Diagnostics, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "csv: create file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)

	rows := flatRows(records)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(model.FlatRow{}); err != nil {
			return eris.Wrap(err, "csv: write header")
		}
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrap(err, "csv: write row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "csv: flush")
}
