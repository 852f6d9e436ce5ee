package export

import (
	"html"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adscope-cli/internal/model"
)

// HTMLExporter writes flat rows as a plain HTML table for quick eyeballing.
type HTMLExporter struct{}

// Export writes the table. Zero records produce a placeholder page.
func (HTMLExporter) Export(records []model.AdRecord, diag *model.Diagnostics, path string) error {
	rows := flatRows(records)

	var b strings.Builder
	b.WriteString("<html>\n<head><meta charset='utf-8'><title>Ad Transparency Export</title></head>\n<body>\n")

	if len(rows) == 0 {
		b.WriteString("<p>No records.</p>\n")
	} else {
		b.WriteString("<table border='1' cellspacing='0' cellpadding='4'>\n<thead><tr>")
		for _, col := range flatColumns {
			b.WriteString("<th>")
			b.WriteString(html.EscapeString(col))
			b.WriteString("</th>")
		}
		b.WriteString("</tr></thead>\n<tbody>\n")
		for _, row := range rows {
			b.WriteString("<tr>")
			for _, val := range flatValues(row) {
				b.WriteString("<td>")
				b.WriteString(html.EscapeString(val))
				b.WriteString("</td>")
			}
			b.WriteString("</tr>\n")
		}
		b.WriteString("</tbody></table>\n")
	}

	b.WriteString("</body>\n</html>\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return eris.Wrap(err, "html: write file")
	}
	return nil
}
