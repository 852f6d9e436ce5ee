package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/adscope-cli/internal/model"
)

func sampleRecords() []model.AdRecord {
	return []model.AdRecord{
		{
			AdLibraryURL:   "https://adstransparency.google.com/advertiser/AR1/creative/CR1",
			AdvertiserID:   "AR1",
			AdvertiserName: "Acme Corp",
			CreativeID:     "CR1",
			Format:         model.FormatImage,
			FirstShown:     "2024-01-01",
			RegionStats: []model.RegionStat{{
				RegionCode:  "US",
				RegionName:  "United States",
				Impressions: model.ImpressionRange{LowerBound: 1000, UpperBound: 2000},
				Surfaces: []model.SurfaceStat{
					{SurfaceCode: "SEARCH", SurfaceName: "Search"},
					{SurfaceCode: "YOUTUBE", SurfaceName: "Youtube"},
				},
			}},
			Variations: []model.Variation{{ClickURL: "https://acme.example", CTA: "Shop <now>"}},
		},
		{
			AdvertiserID:   "AR1",
			AdvertiserName: "Acme Corp",
			CreativeID:     "CR2",
			Format:         model.FormatText,
		},
	}
}

func TestWrite_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	diag := model.NewDiagnostics()
	diag.RecordsEmitted = 2

	require.NoError(t, Write(sampleRecords(), diag, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Records     []model.AdRecord   `json:"records"`
		Diagnostics *model.Diagnostics `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "CR1", doc.Records[0].CreativeID)
	assert.Equal(t, 2, doc.Diagnostics.RecordsEmitted)

	// Contract field names are camelCase.
	assert.Contains(t, string(data), `"advertiserId"`)
	assert.Contains(t, string(data), `"regionStats"`)
	assert.NotContains(t, string(data), `<`, "HTML escaping is off")
}

func TestWrite_JSONEmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Write(nil, model.NewDiagnostics(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"records": []`, "empty run still writes an explicit empty list")
}

func TestWrite_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, Write(sampleRecords(), nil, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	// Header + CR1's two surface rows + CR2's minimal row.
	require.Len(t, rows, 4)
	assert.Equal(t, "adLibraryUrl", rows[0][0])
	assert.Equal(t, "AR1", rows[1][1])
	assert.Equal(t, "SEARCH", rows[1][15])
	assert.Equal(t, "YOUTUBE", rows[2][15])
}

func TestWrite_CSVHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, Write(nil, nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "adLibraryUrl,"))
}

func TestWrite_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, Write(sampleRecords(), nil, path))

	wb, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)
	sheet := wb.Sheets[0]
	assert.Equal(t, "Ads", sheet.Name)
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, "adLibraryUrl", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Acme Corp", sheet.Rows[1].Cells[2].String())
}

func TestWrite_HTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.html")
	require.NoError(t, Write(sampleRecords(), nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "<table")
	assert.Contains(t, html, "Acme Corp")
	assert.Contains(t, html, "Shop &lt;now&gt;", "cell values are escaped")
}

func TestWrite_HTMLEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.html")
	require.NoError(t, Write(nil, nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No records.")
}

func TestWrite_UnknownExtensionFallsBackToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dat")
	require.NoError(t, Write(sampleRecords(), nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	assert.NoError(t, json.Unmarshal(data, &doc))
}
