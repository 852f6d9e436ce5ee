package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// RawAd is one undecoded ad entry lifted from a page. Entries are traversed
// with gjson so missing or oddly-typed fields never panic; every resolution
// decision lives in the normalizer.
type RawAd struct {
	Data gjson.Result
}

// Get resolves a gjson path within the entry.
func (r RawAd) Get(path string) gjson.Result {
	return r.Data.Get(path)
}

// Page is the decoded form of one upstream response: zero or more raw ad
// entries plus the cursor for the next page. An empty NextCursor means
// end-of-results for the target.
type Page struct {
	Entries    []RawAd
	NextCursor string

	// CursorMissing is set when the page carried entries but no cursor
	// field. Pagination stops defensively; callers log it as a warning.
	CursorMissing bool
}

// MalformedResponseError reports a response that could not be decoded as
// either envelope shape. This is distinct from a valid page with zero
// entries, which is not an error.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %s", e.Reason)
}

// IsMalformed reports whether err wraps a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// ParsePage decodes one raw upstream response. Two envelope shapes are
// accepted: the JSON payload (`{"creatives": [...], "nextPageCursor": ...}`)
// and the HTML ad gallery markup. The shape is sniffed from the first
// non-space byte.
func ParsePage(raw []byte) (*Page, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	switch {
	case len(trimmed) == 0:
		return nil, &MalformedResponseError{Reason: "empty response body"}
	case trimmed[0] == '{':
		return parseJSONPage(trimmed)
	case trimmed[0] == '<':
		return parseHTMLPage(trimmed)
	default:
		return nil, &MalformedResponseError{Reason: "response is neither a JSON object nor HTML"}
	}
}

func parseJSONPage(raw []byte) (*Page, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &MalformedResponseError{Reason: "invalid JSON"}
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, &MalformedResponseError{Reason: "JSON envelope is not an object"}
	}

	creatives := doc.Get("creatives")
	if creatives.Exists() && !creatives.IsArray() {
		return nil, &MalformedResponseError{Reason: `"creatives" is not an array`}
	}

	page := &Page{}
	for _, entry := range creatives.Array() {
		page.Entries = append(page.Entries, RawAd{Data: entry})
	}

	cursor := doc.Get("nextPageCursor")
	switch {
	case cursor.Exists() && cursor.String() != "":
		page.NextCursor = cursor.String()
	case !cursor.Exists() && len(page.Entries) > 0:
		// Upstream sometimes drops the cursor field entirely. Stopping here
		// beats paginating forever against a changed response shape.
		page.CursorMissing = true
		zap.L().Warn("page has entries but no cursor field, treating as end of results",
			zap.Int("entries", len(page.Entries)),
		)
	}

	return page, nil
}

// parseHTMLPage lifts ad entries out of gallery markup. Each creative block
// carries data-* attributes; nested region, surface, and variation elements
// are folded into the same JSON shape the API envelope uses so the
// normalizer has a single input format.
func parseHTMLPage(raw []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &MalformedResponseError{Reason: "unparseable HTML: " + err.Error()}
	}

	page := &Page{}
	doc.Find("[data-creative-id]").Each(func(_ int, block *goquery.Selection) {
		entry := creativeBlockToEntry(block)
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		page.Entries = append(page.Entries, RawAd{Data: gjson.ParseBytes(data)})
	})

	if cursor, ok := doc.Find("[data-next-page-cursor]").Attr("data-next-page-cursor"); ok && cursor != "" {
		page.NextCursor = cursor
	}

	return page, nil
}

func creativeBlockToEntry(block *goquery.Selection) map[string]any {
	attr := func(names ...string) string {
		for _, name := range names {
			if v, ok := block.Attr(name); ok && v != "" {
				return v
			}
		}
		return ""
	}

	entry := map[string]any{
		"creativeId":     attr("data-creative-id"),
		"advertiserId":   attr("data-advertiser-id"),
		"advertiserName": attr("data-advertiser-name"),
		"format":         attr("data-format", "data-ad-format"),
		"previewUrl":     attr("data-preview-url", "data-image-url"),
		"firstShown":     attr("data-first-shown"),
		"lastShown":      attr("data-last-shown"),
	}

	// Region rows and variation cells inherit ad-level values when their own
	// attributes are absent: gallery markup often states dates and the
	// preview image once, on the creative block.
	var regions []map[string]any
	block.Find("[data-region-code]").Each(func(_ int, region *goquery.Selection) {
		r := map[string]any{
			"regionCode":  region.AttrOr("data-region-code", ""),
			"regionName":  region.AttrOr("data-region-name", ""),
			"firstShown":  attrOrFallback(region, "data-first-shown", entry["firstShown"].(string)),
			"lastShown":   attrOrFallback(region, "data-last-shown", entry["lastShown"].(string)),
			"impressions": htmlImpressions(region),
		}

		var surfaces []map[string]any
		region.Find("[data-surface-code]").Each(func(_ int, surface *goquery.Selection) {
			surfaces = append(surfaces, map[string]any{
				"surfaceCode": surface.AttrOr("data-surface-code", ""),
				"surfaceName": surface.AttrOr("data-surface-name", ""),
				"impressions": htmlImpressions(surface),
			})
		})
		if surfaces != nil {
			r["surfaceServingStats"] = surfaces
		}
		regions = append(regions, r)
	})
	if regions != nil {
		entry["regionStats"] = regions
	}

	var variations []map[string]any
	block.Find("[data-variation]").Each(func(_ int, v *goquery.Selection) {
		variations = append(variations, map[string]any{
			"clickUrl":    v.AttrOr("data-click-url", ""),
			"cta":         v.AttrOr("data-cta", ""),
			"description": v.AttrOr("data-description", ""),
			"imageUrl":    attrOrFallback(v, "data-image-url", entry["previewUrl"].(string)),
			"videoUrl":    v.AttrOr("data-video-url", ""),
		})
	})
	if variations != nil {
		entry["variations"] = variations
	}

	if targetingJSON := strings.TrimSpace(attr("data-targeting-json")); targetingJSON != "" {
		var targeting map[string]any
		if err := json.Unmarshal([]byte(targetingJSON), &targeting); err == nil {
			entry["targeting"] = targeting
		}
	} else if script := block.Find(`script[type="application/json"]`).First(); script.Length() > 0 {
		var targeting map[string]any
		if err := json.Unmarshal([]byte(script.Text()), &targeting); err == nil {
			entry["targeting"] = targeting
		}
	}

	return entry
}

func attrOrFallback(sel *goquery.Selection, name, fallback string) string {
	if v := sel.AttrOr(name, ""); v != "" {
		return v
	}
	return fallback
}

// htmlImpressions builds the impressions payload from element attributes.
// Explicit bounds win; otherwise a bucket label is carried through for the
// normalizer's bucket table.
func htmlImpressions(sel *goquery.Selection) map[string]any {
	lower := sel.AttrOr("data-impressions-lower", "")
	upper := sel.AttrOr("data-impressions-upper", "")
	if lower != "" || upper != "" {
		return map[string]any{"lowerBound": lower, "upperBound": upper}
	}
	if bucket := sel.AttrOr("data-impressions-bucket", ""); bucket != "" {
		return map[string]any{"bucket": bucket}
	}
	return map[string]any{}
}
