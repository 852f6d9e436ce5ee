package extract

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/adscope-cli/internal/model"
)

func TestAggregateRegions_MergesDuplicates(t *testing.T) {
	out := aggregateRegions([]model.RegionStat{
		{
			RegionCode:  "US",
			RegionName:  "United States",
			FirstShown:  "2024-02-01",
			LastShown:   "2024-03-01",
			Impressions: model.ImpressionRange{LowerBound: 100, UpperBound: 200},
			Surfaces: []model.SurfaceStat{
				{SurfaceCode: "SEARCH", Impressions: model.ImpressionRange{LowerBound: 10, UpperBound: 20}},
			},
		},
		{
			RegionCode:  "US",
			RegionName:  "United States",
			FirstShown:  "2024-01-15",
			LastShown:   "2024-04-01",
			Impressions: model.ImpressionRange{LowerBound: 50, UpperBound: 60},
			Surfaces: []model.SurfaceStat{
				{SurfaceCode: "SEARCH", Impressions: model.ImpressionRange{LowerBound: 5, UpperBound: 6}},
				{SurfaceCode: "YOUTUBE", Impressions: model.ImpressionRange{LowerBound: 1, UpperBound: 2}},
			},
		},
	})

	require.Len(t, out, 1)
	us := out[0]
	assert.Equal(t, model.ImpressionRange{LowerBound: 150, UpperBound: 260}, us.Impressions)
	assert.Equal(t, "2024-01-15", us.FirstShown)
	assert.Equal(t, "2024-04-01", us.LastShown)
	require.Len(t, us.Surfaces, 2)
	assert.Equal(t, model.ImpressionRange{LowerBound: 15, UpperBound: 26}, us.Surfaces[0].Impressions)
}

func TestAggregateRegions_SortsByCode(t *testing.T) {
	out := aggregateRegions([]model.RegionStat{
		{RegionCode: "US", RegionName: "United States"},
		{RegionCode: "DE", RegionName: "Germany"},
		{RegionCode: "FR", RegionName: "France"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "DE", out[0].RegionCode)
	assert.Equal(t, "FR", out[1].RegionCode)
	assert.Equal(t, "US", out[2].RegionCode)
}

func TestAggregateRegions_SingleEntryUntouched(t *testing.T) {
	in := []model.RegionStat{{RegionCode: "US"}}
	assert.Equal(t, in, aggregateRegions(in))
}

func TestSaturatingAdd(t *testing.T) {
	assert.Equal(t, int64(5), saturatingAdd(2, 3))
	assert.Equal(t, int64(math.MaxInt64), saturatingAdd(math.MaxInt64, 1))
	assert.Equal(t, int64(math.MaxInt64), saturatingAdd(math.MaxInt64, math.MaxInt64))
}
