package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const transparencyHost = "adstransparency.google.com"

// TargetSpec identifies one extraction target. At least one of AdvertiserID,
// Domain, or SearchQuery must be set; the pipeline treats the descriptor as
// an opaque seed for the first fetch request.
type TargetSpec struct {
	AdvertiserID string `json:"advertiserId,omitempty" yaml:"advertiserId"`
	Domain       string `json:"domain,omitempty" yaml:"domain"`
	SearchQuery  string `json:"searchQuery,omitempty" yaml:"searchQuery"`
	StartURL     string `json:"startUrl,omitempty" yaml:"startUrl"`

	// SnapshotPath points at a local HTML snapshot to parse instead of
	// fetching StartURL. Used for offline extraction and testing.
	SnapshotPath string `json:"snapshotPath,omitempty" yaml:"snapshotPath"`
}

// Label returns a short human-readable identifier for logs and reports.
func (t TargetSpec) Label() string {
	switch {
	case t.AdvertiserID != "":
		return t.AdvertiserID
	case t.Domain != "":
		return t.Domain
	case t.SearchQuery != "":
		return "q:" + t.SearchQuery
	case t.StartURL != "":
		return t.StartURL
	default:
		return "(empty)"
	}
}

// Validate checks that the target carries enough information to seed a run.
// A missing AdvertiserID is recovered from a Transparency Center StartURL
// when possible.
func (t *TargetSpec) Validate() error {
	if t.AdvertiserID == "" && t.StartURL != "" {
		t.AdvertiserID = AdvertiserIDFromURL(t.StartURL)
	}
	if t.AdvertiserID == "" && t.Domain == "" && t.SearchQuery == "" {
		return eris.New("target: one of advertiserId, domain, or searchQuery is required")
	}
	return nil
}

// GalleryURL returns the URL of the target's first page. An explicit
// StartURL wins; otherwise one is derived from the advertiser ID, domain, or
// search query.
func (t TargetSpec) GalleryURL() string {
	if t.StartURL != "" {
		return t.StartURL
	}
	switch {
	case t.AdvertiserID != "":
		return fmt.Sprintf("https://%s/advertiser/%s", transparencyHost, t.AdvertiserID)
	case t.Domain != "":
		return fmt.Sprintf("https://%s/?domain=%s", transparencyHost, url.QueryEscape(t.Domain))
	default:
		return fmt.Sprintf("https://%s/?query=%s", transparencyHost, url.QueryEscape(t.SearchQuery))
	}
}

// AdvertiserIDFromURL extracts an advertiser ID from a Transparency Center
// URL such as https://adstransparency.google.com/advertiser/AR123. Returns
// "" when the URL does not carry one.
func AdvertiserIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.Contains(u.Host, transparencyHost) {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "advertiser" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// targetsFile mirrors the accepted input shapes: either a bare list of
// targets or an object with a "targets" key.
type targetsFile struct {
	Targets []TargetSpec `json:"targets" yaml:"targets"`
}

// LoadTargets reads target descriptors from a JSON or YAML file (chosen by
// extension) and validates each one.
func LoadTargets(path string) ([]TargetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "targets: read %s", path)
	}

	var targets []TargetSpec
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		var f targetsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "targets: parse yaml %s", path)
		}
		targets = f.Targets
		if targets == nil {
			if err := yaml.Unmarshal(data, &targets); err != nil {
				return nil, eris.Wrapf(err, "targets: parse yaml list %s", path)
			}
		}
	default:
		var f targetsFile
		if err := json.Unmarshal(data, &f); err != nil || f.Targets == nil {
			if err := json.Unmarshal(data, &targets); err != nil {
				return nil, eris.Wrapf(err, "targets: parse json %s", path)
			}
		} else {
			targets = f.Targets
		}
	}

	if len(targets) == 0 {
		return nil, eris.Errorf("targets: no targets in %s", path)
	}
	for i := range targets {
		if err := targets[i].Validate(); err != nil {
			return nil, eris.Wrapf(err, "targets: entry %d", i)
		}
	}
	return targets, nil
}
