package model

import (
	"sort"
	"strings"
)

// Format classifies an ad creative. Unrecognized upstream values are
// normalized to FormatText with a diagnostic rather than rejected, so new
// formats never halt extraction.
type Format string

const (
	FormatImage Format = "IMAGE"
	FormatVideo Format = "VIDEO"
	FormatText  Format = "TEXT"
)

// ImpressionRange is a bounded impression estimate. The upstream source only
// ever reports ranges or bucket labels, never exact counts.
// Invariant: 0 <= LowerBound <= UpperBound.
type ImpressionRange struct {
	LowerBound int64 `json:"lowerBound"`
	UpperBound int64 `json:"upperBound"`
}

// SurfaceStat holds impressions for one serving surface (Search, YouTube,
// Maps, ...) within a region.
type SurfaceStat struct {
	SurfaceCode string          `json:"surfaceCode"`
	SurfaceName string          `json:"surfaceName"`
	Impressions ImpressionRange `json:"impressions"`
}

// RegionStat holds per-region serving statistics for an ad.
type RegionStat struct {
	RegionCode  string          `json:"regionCode"`
	RegionName  string          `json:"regionName"`
	FirstShown  string          `json:"firstShown,omitempty"`
	LastShown   string          `json:"lastShown,omitempty"`
	Impressions ImpressionRange `json:"impressions"`
	Surfaces    []SurfaceStat   `json:"surfaceServingStats,omitempty"`
}

// Variation is one creative variant of an ad. At least one of ClickURL,
// ImageURL, or VideoURL is always present; variations with none are dropped
// during normalization.
type Variation struct {
	ClickURL    string `json:"clickUrl,omitempty"`
	CTA         string `json:"cta,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	VideoURL    string `json:"videoUrl,omitempty"`
}

// Targeting holds the four targeting category maps the Transparency Center
// reports. Keys are category codes, values indicate whether the category is
// active for the ad.
type Targeting struct {
	Demographics   map[string]bool `json:"demographics,omitempty"`
	Geography      map[string]bool `json:"geography,omitempty"`
	Contextual     map[string]bool `json:"contextual,omitempty"`
	AdvertiserList map[string]bool `json:"advertiserList,omitempty"`
}

// AdRecord is the canonical output unit of the extraction pipeline. Field
// names and nesting are the contract surface for downstream consumers; they
// must not change without a schema version bump.
//
// Records are immutable once built by the normalizer: ownership moves to the
// run coordinator's output collection and then to the exporter.
type AdRecord struct {
	AdLibraryURL   string       `json:"adLibraryUrl"`
	AdvertiserID   string       `json:"advertiserId"`
	AdvertiserName string       `json:"advertiserName"`
	CreativeID     string       `json:"creativeId"`
	Format         Format       `json:"format"`
	FirstShown     string       `json:"firstShown,omitempty"`
	LastShown      string       `json:"lastShown,omitempty"`
	PreviewURL     string       `json:"previewUrl,omitempty"`
	RegionStats    []RegionStat `json:"regionStats,omitempty"`
	Targeting      *Targeting   `json:"targeting,omitempty"`
	Variations     []Variation  `json:"variations,omitempty"`
	StartURL       string       `json:"startUrl,omitempty"`
}

// Key returns the dedup key for the record. Creative IDs are only unique
// within an advertiser, so both parts are needed.
func (r *AdRecord) Key() string {
	return r.AdvertiserID + "/" + r.CreativeID
}

// FlatRow is one tabular export row: a single region x surface x variation
// combination of an AdRecord. Tags drive both the CSV header (csvutil) and
// the XLSX/HTML column order.
type FlatRow struct {
	AdLibraryURL          string `csv:"adLibraryUrl" json:"adLibraryUrl"`
	AdvertiserID          string `csv:"advertiserId" json:"advertiserId"`
	AdvertiserName        string `csv:"advertiserName" json:"advertiserName"`
	CreativeID            string `csv:"creativeId" json:"creativeId"`
	Format                string `csv:"format" json:"format"`
	FirstShown            string `csv:"firstShown" json:"firstShown"`
	LastShown             string `csv:"lastShown" json:"lastShown"`
	PreviewURL            string `csv:"previewUrl" json:"previewUrl"`
	StartURL              string `csv:"startUrl" json:"startUrl"`
	RegionCode            string `csv:"regionCode" json:"regionCode"`
	RegionName            string `csv:"regionName" json:"regionName"`
	RegionFirstShown      string `csv:"regionFirstShown" json:"regionFirstShown"`
	RegionLastShown       string `csv:"regionLastShown" json:"regionLastShown"`
	RegionImpressionsLow  int64  `csv:"regionImpressionsLower" json:"regionImpressionsLower"`
	RegionImpressionsHigh int64  `csv:"regionImpressionsUpper" json:"regionImpressionsUpper"`
	SurfaceCode           string `csv:"surfaceCode" json:"surfaceCode"`
	SurfaceName           string `csv:"surfaceName" json:"surfaceName"`
	SurfaceImpressionsLow int64  `csv:"surfaceImpressionsLower" json:"surfaceImpressionsLower"`
	SurfaceImpressionsHi  int64  `csv:"surfaceImpressionsUpper" json:"surfaceImpressionsUpper"`
	VariationClickURL     string `csv:"variationClickUrl" json:"variationClickUrl"`
	VariationCTA          string `csv:"variationCta" json:"variationCta"`
	VariationDescription  string `csv:"variationDescription" json:"variationDescription"`
	VariationImageURL     string `csv:"variationImageUrl" json:"variationImageUrl"`
	VariationVideoURL     string `csv:"variationVideoUrl" json:"variationVideoUrl"`
	TargetingDemographics string `csv:"targetingDemographicsTrue" json:"targetingDemographicsTrue"`
	TargetingGeography    string `csv:"targetingGeographyTrue" json:"targetingGeographyTrue"`
	TargetingContextual   string `csv:"targetingContextualTrue" json:"targetingContextualTrue"`
	TargetingAdvertisers  string `csv:"targetingAdvertiserListTrue" json:"targetingAdvertiserListTrue"`
}

// FlatRows expands the record into tabular rows, one per region x surface x
// variation combination. A record with no regions, surfaces, or variations
// still yields exactly one row so minimal ads survive tabular export.
func (r *AdRecord) FlatRows() []FlatRow {
	base := FlatRow{
		AdLibraryURL:   r.AdLibraryURL,
		AdvertiserID:   r.AdvertiserID,
		AdvertiserName: r.AdvertiserName,
		CreativeID:     r.CreativeID,
		Format:         string(r.Format),
		FirstShown:     r.FirstShown,
		LastShown:      r.LastShown,
		PreviewURL:     r.PreviewURL,
		StartURL:       r.StartURL,
	}
	if r.Targeting != nil {
		base.TargetingDemographics = joinActive(r.Targeting.Demographics)
		base.TargetingGeography = joinActive(r.Targeting.Geography)
		base.TargetingContextual = joinActive(r.Targeting.Contextual)
		base.TargetingAdvertisers = joinActive(r.Targeting.AdvertiserList)
	}

	regions := r.RegionStats
	if len(regions) == 0 {
		regions = []RegionStat{{}}
	}
	variations := r.Variations
	if len(variations) == 0 {
		variations = []Variation{{}}
	}

	var rows []FlatRow
	for _, region := range regions {
		surfaces := region.Surfaces
		if len(surfaces) == 0 {
			surfaces = []SurfaceStat{{}}
		}
		for _, surface := range surfaces {
			for _, v := range variations {
				row := base
				row.RegionCode = region.RegionCode
				row.RegionName = region.RegionName
				row.RegionFirstShown = region.FirstShown
				row.RegionLastShown = region.LastShown
				row.RegionImpressionsLow = region.Impressions.LowerBound
				row.RegionImpressionsHigh = region.Impressions.UpperBound
				row.SurfaceCode = surface.SurfaceCode
				row.SurfaceName = surface.SurfaceName
				row.SurfaceImpressionsLow = surface.Impressions.LowerBound
				row.SurfaceImpressionsHi = surface.Impressions.UpperBound
				row.VariationClickURL = v.ClickURL
				row.VariationCTA = v.CTA
				row.VariationDescription = v.Description
				row.VariationImageURL = v.ImageURL
				row.VariationVideoURL = v.VideoURL
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// joinActive renders the active category codes of a targeting map as a
// sorted comma-separated list.
func joinActive(m map[string]bool) string {
	if len(m) == 0 {
		return ""
	}
	active := make([]string, 0, len(m))
	for code, on := range m {
		if on {
			active = append(active, code)
		}
	}
	sort.Strings(active)
	return strings.Join(active, ",")
}
