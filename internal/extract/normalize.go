package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/adscope-cli/internal/model"
)

const transparencyHost = "adstransparency.google.com"

// TargetContext carries per-target values the entry itself may not repeat:
// the advertiser ID the run was seeded with and the originating query URL,
// which every record carries through for traceability.
type TargetContext struct {
	AdvertiserID string
	StartURL     string
}

// Normalizer maps raw ad entries into canonical AdRecords. It is a pure
// transformation: safe for concurrent use, no I/O, no suspension.
type Normalizer struct {
	titleCaser cases.Caser
}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{titleCaser: cases.Title(language.English)}
}

// Normalize converts one raw entry into an AdRecord. A non-empty SkipReason
// means the entry was dropped; the caller counts it and moves on. Nested
// region/surface/variation anomalies are recorded in diag and never fail the
// record — an ad missing its identity is useless, partial creative data is
// not.
func (n *Normalizer) Normalize(raw RawAd, tc TargetContext, diag *model.Diagnostics) (*model.AdRecord, model.SkipReason) {
	if !raw.Data.IsObject() {
		return nil, model.SkipMalformedEntry
	}

	advertiserID := strings.TrimSpace(raw.Get("advertiserId").String())
	if advertiserID == "" {
		advertiserID = tc.AdvertiserID
	}
	if advertiserID == "" {
		return nil, model.MissingRequiredField("advertiserId")
	}

	advertiserName := strings.TrimSpace(raw.Get("advertiserName").String())
	if advertiserName == "" {
		return nil, model.MissingRequiredField("advertiserName")
	}

	creativeID := strings.TrimSpace(raw.Get("creativeId").String())
	if creativeID == "" {
		return nil, model.MissingRequiredField("creativeId")
	}

	rawFormat := strings.TrimSpace(raw.Get("format").String())
	if rawFormat == "" {
		return nil, model.MissingRequiredField("format")
	}
	format, known := normalizeFormat(rawFormat)
	if !known {
		diag.Flag(model.FlagUnknownFormat)
	}

	libraryURL := strings.TrimSpace(raw.Get("adLibraryUrl").String())
	if libraryURL == "" {
		libraryURL = adLibraryURL(advertiserID, creativeID)
	}

	rec := &model.AdRecord{
		AdLibraryURL:   libraryURL,
		AdvertiserID:   advertiserID,
		AdvertiserName: advertiserName,
		CreativeID:     creativeID,
		Format:         format,
		FirstShown:     normalizeDate(raw.Get("firstShown").String()),
		LastShown:      normalizeDate(raw.Get("lastShown").String()),
		PreviewURL:     strings.TrimSpace(raw.Get("previewUrl").String()),
		StartURL:       tc.StartURL,
	}

	rec.RegionStats = n.normalizeRegions(raw.Get("regionStats"), diag)
	rec.Variations = normalizeVariations(raw.Get("variations"), diag)
	rec.Targeting = normalizeTargeting(raw.Get("targeting"))

	return rec, ""
}

// normalizeFormat matches the upstream format string case-insensitively.
// Unknown values fall back to TEXT so a new upstream format never halts
// extraction; the caller flags the fallback.
func normalizeFormat(raw string) (model.Format, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IMAGE", "IMG", "DISPLAY":
		return model.FormatImage, true
	case "VIDEO", "VID":
		return model.FormatVideo, true
	case "TEXT", "TXT":
		return model.FormatText, true
	default:
		return model.FormatText, false
	}
}

func adLibraryURL(advertiserID, creativeID string) string {
	return fmt.Sprintf("https://%s/advertiser/%s/creative/%s", transparencyHost, advertiserID, creativeID)
}

func (n *Normalizer) normalizeRegions(raw gjson.Result, diag *model.Diagnostics) []model.RegionStat {
	if !raw.IsArray() {
		return nil
	}
	var stats []model.RegionStat
	for _, item := range raw.Array() {
		if !item.IsObject() {
			diag.Skip(model.SkipMalformedRegion)
			continue
		}
		code := strings.TrimSpace(item.Get("regionCode").String())
		name := strings.TrimSpace(item.Get("regionName").String())
		if code == "" && name == "" {
			diag.Skip(model.SkipMalformedRegion)
			continue
		}
		if name == "" {
			name = code
		}

		stat := model.RegionStat{
			RegionCode:  code,
			RegionName:  name,
			FirstShown:  normalizeDate(item.Get("firstShown").String()),
			LastShown:   normalizeDate(item.Get("lastShown").String()),
			Impressions: normalizeImpressions(item.Get("impressions"), diag),
		}

		for _, s := range item.Get("surfaceServingStats").Array() {
			if !s.IsObject() {
				diag.Skip(model.SkipMalformedSurface)
				continue
			}
			surfaceCode := strings.TrimSpace(s.Get("surfaceCode").String())
			if surfaceCode == "" {
				diag.Skip(model.SkipMalformedSurface)
				continue
			}
			surfaceName := strings.TrimSpace(s.Get("surfaceName").String())
			if surfaceName == "" {
				surfaceName = n.titleCaser.String(strings.ToLower(surfaceCode))
			}
			stat.Surfaces = append(stat.Surfaces, model.SurfaceStat{
				SurfaceCode: surfaceCode,
				SurfaceName: surfaceName,
				Impressions: normalizeImpressions(s.Get("impressions"), diag),
			})
		}

		stats = append(stats, stat)
	}
	return aggregateRegions(stats)
}

// normalizeImpressions resolves the impressions payload, which upstream
// reports either as a {lowerBound, upperBound} pair (numbers or strings with
// thousands separators) or as a bare bucket label. Negative and non-numeric
// bounds clamp to 0 with a diagnostic; unmapped bucket labels resolve to
// {0, 0} and are flagged so they are never mistaken for exact zeroes.
func normalizeImpressions(raw gjson.Result, diag *model.Diagnostics) model.ImpressionRange {
	if raw.Type == gjson.String {
		return resolveBucket(raw.String(), diag)
	}
	if !raw.IsObject() {
		return model.ImpressionRange{}
	}
	if bucket := raw.Get("bucket"); bucket.Exists() && !raw.Get("lowerBound").Exists() {
		return resolveBucket(bucket.String(), diag)
	}

	lower := parseBound(raw.Get("lowerBound"), diag)
	upper := parseBound(raw.Get("upperBound"), diag)
	if lower > upper {
		lower, upper = upper, lower
		diag.Flag(model.FlagClampedImpressions)
	}
	return model.ImpressionRange{LowerBound: lower, UpperBound: upper}
}

func resolveBucket(label string, diag *model.Diagnostics) model.ImpressionRange {
	if strings.TrimSpace(label) == "" {
		return model.ImpressionRange{}
	}
	r, ok := resolveBucketLabel(label)
	if !ok {
		diag.Flag(model.FlagUnmappedBucket)
		return model.ImpressionRange{}
	}
	return r
}

var boundCleaner = strings.NewReplacer(",", "", " ", "", " ", "")

// parseBound converts a bound value to a non-negative int64, tolerating
// thousands separators in string form.
func parseBound(raw gjson.Result, diag *model.Diagnostics) int64 {
	var v int64
	switch raw.Type {
	case gjson.Number:
		v = raw.Int()
	case gjson.String:
		s := boundCleaner.Replace(strings.TrimSpace(raw.String()))
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			diag.Flag(model.FlagClampedImpressions)
			return 0
		}
		v = parsed
	default:
		return 0
	}
	if v < 0 {
		diag.Flag(model.FlagClampedImpressions)
		return 0
	}
	return v
}

func normalizeVariations(raw gjson.Result, diag *model.Diagnostics) []model.Variation {
	if !raw.IsArray() {
		return nil
	}
	var variations []model.Variation
	for _, item := range raw.Array() {
		if !item.IsObject() {
			diag.Skip(model.SkipEmptyVariation)
			continue
		}
		v := model.Variation{
			ClickURL:    strings.TrimSpace(item.Get("clickUrl").String()),
			CTA:         strings.TrimSpace(item.Get("cta").String()),
			Description: strings.TrimSpace(item.Get("description").String()),
			ImageURL:    strings.TrimSpace(item.Get("imageUrl").String()),
			VideoURL:    strings.TrimSpace(item.Get("videoUrl").String()),
		}
		// A variation with no media and no click destination carries nothing
		// worth exporting.
		if v.ClickURL == "" && v.ImageURL == "" && v.VideoURL == "" {
			diag.Skip(model.SkipEmptyVariation)
			continue
		}
		variations = append(variations, v)
	}
	return variations
}

func normalizeTargeting(raw gjson.Result) *model.Targeting {
	if !raw.IsObject() {
		return nil
	}
	category := raw.Get("targetingCategory")
	if !category.IsObject() {
		return nil
	}
	t := &model.Targeting{
		Demographics:   boolMap(category.Get("demographics")),
		Geography:      boolMap(category.Get("geography")),
		Contextual:     boolMap(category.Get("contextual")),
		AdvertiserList: boolMap(category.Get("advertiserList")),
	}
	if len(t.Demographics) == 0 && len(t.Geography) == 0 &&
		len(t.Contextual) == 0 && len(t.AdvertiserList) == 0 {
		return nil
	}
	return t
}

func boolMap(raw gjson.Result) map[string]bool {
	if !raw.IsObject() {
		return nil
	}
	m := make(map[string]bool)
	raw.ForEach(func(key, value gjson.Result) bool {
		m[key.String()] = value.Bool()
		return true
	})
	return m
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// dateLayouts lists the non-ISO formats upstream has been seen using.
var dateLayouts = []string{"02-01-2006", "2006/01/02", "02/01/2006"}

// normalizeDate canonicalizes a date string to ISO 8601. Unparseable values
// pass through unchanged rather than being discarded: timing data is
// optional and a strange-but-present value is still more useful than none.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || isoDate.MatchString(value) {
		return value
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}
