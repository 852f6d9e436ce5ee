package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/adscope-cli/internal/model"
)

// XLSXExporter writes flat rows to a single-sheet workbook.
type XLSXExporter struct{}

// Export writes the workbook. Zero records produce a header-only sheet.
func (XLSXExporter) Export(records []model.AdRecord, diag *model.Diagnostics, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Ads")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range flatColumns {
		header.AddCell().SetString(col)
	}

	for _, flat := range flatRows(records) {
		row := sheet.AddRow()
		for _, val := range flatValues(flat) {
			row.AddCell().SetString(val)
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save")
	}
	return nil
}
