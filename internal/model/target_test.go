package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTargetsFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTargets_JSONList(t *testing.T) {
	path := writeTargetsFile(t, "targets.json", `[
		{"advertiserId": "AR1"},
		{"domain": "acme.example"}
	]`)
	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "AR1", targets[0].AdvertiserID)
	assert.Equal(t, "acme.example", targets[1].Domain)
}

func TestLoadTargets_JSONObject(t *testing.T) {
	path := writeTargetsFile(t, "targets.json", `{"targets": [{"advertiserId": "AR1"}]}`)
	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
}

func TestLoadTargets_YAML(t *testing.T) {
	path := writeTargetsFile(t, "targets.yaml", "targets:\n  - advertiserId: AR1\n  - searchQuery: running shoes\n")
	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "running shoes", targets[1].SearchQuery)
}

func TestLoadTargets_InvalidEntry(t *testing.T) {
	path := writeTargetsFile(t, "targets.json", `[{"startUrl": "https://example.com/nothing-useful"}]`)
	_, err := LoadTargets(path)
	assert.Error(t, err)
}

func TestLoadTargets_Empty(t *testing.T) {
	path := writeTargetsFile(t, "targets.json", `[]`)
	_, err := LoadTargets(path)
	assert.Error(t, err)
}

func TestTargetSpec_ValidateRecoversAdvertiserID(t *testing.T) {
	tgt := TargetSpec{StartURL: "https://adstransparency.google.com/advertiser/AR12345?region=US"}
	require.NoError(t, tgt.Validate())
	assert.Equal(t, "AR12345", tgt.AdvertiserID)
}

func TestTargetSpec_GalleryURL(t *testing.T) {
	assert.Equal(t,
		"https://adstransparency.google.com/advertiser/AR1",
		TargetSpec{AdvertiserID: "AR1"}.GalleryURL(),
	)
	assert.Equal(t,
		"https://adstransparency.google.com/?domain=acme.example",
		TargetSpec{Domain: "acme.example"}.GalleryURL(),
	)
	assert.Equal(t,
		"https://custom.example/page",
		TargetSpec{AdvertiserID: "AR1", StartURL: "https://custom.example/page"}.GalleryURL(),
	)
}

func TestAdvertiserIDFromURL(t *testing.T) {
	assert.Equal(t, "AR77", AdvertiserIDFromURL("https://adstransparency.google.com/advertiser/AR77/creative/CR1"))
	assert.Empty(t, AdvertiserIDFromURL("https://example.com/advertiser/AR77"))
	assert.Empty(t, AdvertiserIDFromURL("https://adstransparency.google.com/"))
}

func TestTargetSpec_Label(t *testing.T) {
	assert.Equal(t, "AR1", TargetSpec{AdvertiserID: "AR1", Domain: "d"}.Label())
	assert.Equal(t, "acme.example", TargetSpec{Domain: "acme.example"}.Label())
	assert.Equal(t, "q:shoes", TargetSpec{SearchQuery: "shoes"}.Label())
}
