package export

import (
	"strconv"

	"github.com/sells-group/adscope-cli/internal/model"
)

// flatColumns is the ordered column set for the XLSX and HTML exporters.
// It must stay aligned with the FlatRow csv tags so all tabular formats
// agree on shape.
var flatColumns = []string{
	"adLibraryUrl",
	"advertiserId",
	"advertiserName",
	"creativeId",
	"format",
	"firstShown",
	"lastShown",
	"previewUrl",
	"startUrl",
	"regionCode",
	"regionName",
	"regionFirstShown",
	"regionLastShown",
	"regionImpressionsLower",
	"regionImpressionsUpper",
	"surfaceCode",
	"surfaceName",
	"surfaceImpressionsLower",
	"surfaceImpressionsUpper",
	"variationClickUrl",
	"variationCta",
	"variationDescription",
	"variationImageUrl",
	"variationVideoUrl",
	"targetingDemographicsTrue",
	"targetingGeographyTrue",
	"targetingContextualTrue",
	"targetingAdvertiserListTrue",
}

// flatValues renders a row's cells in flatColumns order.
func flatValues(r model.FlatRow) []string {
	return []string{
		r.AdLibraryURL,
		r.AdvertiserID,
		r.AdvertiserName,
		r.CreativeID,
		r.Format,
		r.FirstShown,
		r.LastShown,
		r.PreviewURL,
		r.StartURL,
		r.RegionCode,
		r.RegionName,
		r.RegionFirstShown,
		r.RegionLastShown,
		strconv.FormatInt(r.RegionImpressionsLow, 10),
		strconv.FormatInt(r.RegionImpressionsHigh, 10),
		r.SurfaceCode,
		r.SurfaceName,
		strconv.FormatInt(r.SurfaceImpressionsLow, 10),
		strconv.FormatInt(r.SurfaceImpressionsHi, 10),
		r.VariationClickURL,
		r.VariationCTA,
		r.VariationDescription,
		r.VariationImageURL,
		r.VariationVideoURL,
		r.TargetingDemographics,
		r.TargetingGeography,
		r.TargetingContextual,
		r.TargetingAdvertisers,
	}
}
