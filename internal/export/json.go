package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adscope-cli/internal/model"
)

// JSONExporter writes the full nested record schema. The JSON field names
// are the downstream contract; the diagnostics summary rides alongside the
// records so a consumer can tell an empty run from a silently broken one.
type JSONExporter struct{}

type jsonDocument struct {
	Records     []model.AdRecord   `json:"records"`
	Diagnostics *model.Diagnostics `json:"diagnostics,omitempty"`
}

// Export writes records and diagnostics as an indented JSON document.
func (JSONExporter) Export(records []model.AdRecord, diag *model.Diagnostics, path string) error {
	doc := jsonDocument{Records: records, Diagnostics: diag}
	if doc.Records == nil {
		doc.Records = []model.AdRecord{}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "json: create file")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "json: encode")
	}
	return nil
}
