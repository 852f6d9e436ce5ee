package extract

import (
	"math"
	"sort"

	"github.com/sells-group/adscope-cli/internal/model"
)

// aggregateRegions merges duplicate region entries: impressions are summed,
// the earliest firstShown and latest lastShown win, and surfaces with the
// same code are folded together. Upstream occasionally repeats a region
// across creative variants; downstream consumers expect one row per region.
func aggregateRegions(stats []model.RegionStat) []model.RegionStat {
	if len(stats) < 2 {
		return stats
	}

	type key struct{ code, name string }
	merged := make(map[key]*model.RegionStat)
	order := make([]key, 0, len(stats))

	for i := range stats {
		region := stats[i]
		k := key{region.RegionCode, region.RegionName}
		existing, ok := merged[k]
		if !ok {
			copied := region
			merged[k] = &copied
			order = append(order, k)
			continue
		}

		existing.Impressions = sumRanges(existing.Impressions, region.Impressions)
		if region.FirstShown != "" && (existing.FirstShown == "" || region.FirstShown < existing.FirstShown) {
			existing.FirstShown = region.FirstShown
		}
		if region.LastShown != "" && region.LastShown > existing.LastShown {
			existing.LastShown = region.LastShown
		}
		existing.Surfaces = append(existing.Surfaces, region.Surfaces...)
	}

	out := make([]model.RegionStat, 0, len(merged))
	for _, k := range order {
		region := merged[k]
		region.Surfaces = mergeSurfaces(region.Surfaces)
		out = append(out, *region)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RegionCode != out[j].RegionCode {
			return out[i].RegionCode < out[j].RegionCode
		}
		return out[i].RegionName < out[j].RegionName
	})
	return out
}

// mergeSurfaces folds surfaces with the same code, summing impressions.
// First-seen order is preserved.
func mergeSurfaces(surfaces []model.SurfaceStat) []model.SurfaceStat {
	if len(surfaces) < 2 {
		return surfaces
	}
	merged := make(map[string]int)
	out := make([]model.SurfaceStat, 0, len(surfaces))
	for _, s := range surfaces {
		if idx, ok := merged[s.SurfaceCode]; ok {
			out[idx].Impressions = sumRanges(out[idx].Impressions, s.Impressions)
			continue
		}
		merged[s.SurfaceCode] = len(out)
		out = append(out, s)
	}
	return out
}

func sumRanges(a, b model.ImpressionRange) model.ImpressionRange {
	return model.ImpressionRange{
		LowerBound: saturatingAdd(a.LowerBound, b.LowerBound),
		UpperBound: saturatingAdd(a.UpperBound, b.UpperBound),
	}
}

// saturatingAdd guards against overflow from the open-ended top bucket.
func saturatingAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}
