package extract

import (
	"math"
	"strings"

	"github.com/sells-group/adscope-cli/internal/model"
)

// bucketTableVersion identifies the label-to-range mapping below. The
// Transparency Center does not document its buckets anywhere; this table is
// empirically derived from observed responses and must be re-verified (and
// the version bumped) whenever upstream changes its labels.
const bucketTableVersion = "2026-08"

// impressionBuckets maps normalized bucket labels to canonical ranges.
// Labels are normalized before lookup: uppercase, spaces stripped, en dashes
// and "TO" unified to "-", "≤" unified to "<".
var impressionBuckets = map[string]model.ImpressionRange{
	"<1K":       {LowerBound: 0, UpperBound: 1_000},
	"1K-2K":     {LowerBound: 1_000, UpperBound: 2_000},
	"2K-3K":     {LowerBound: 2_000, UpperBound: 3_000},
	"3K-4K":     {LowerBound: 3_000, UpperBound: 4_000},
	"4K-5K":     {LowerBound: 4_000, UpperBound: 5_000},
	"5K-6K":     {LowerBound: 5_000, UpperBound: 6_000},
	"6K-7K":     {LowerBound: 6_000, UpperBound: 7_000},
	"7K-8K":     {LowerBound: 7_000, UpperBound: 8_000},
	"8K-9K":     {LowerBound: 8_000, UpperBound: 9_000},
	"9K-10K":    {LowerBound: 9_000, UpperBound: 10_000},
	"10K-15K":   {LowerBound: 10_000, UpperBound: 15_000},
	"15K-20K":   {LowerBound: 15_000, UpperBound: 20_000},
	"20K-25K":   {LowerBound: 20_000, UpperBound: 25_000},
	"25K-50K":   {LowerBound: 25_000, UpperBound: 50_000},
	"50K-100K":  {LowerBound: 50_000, UpperBound: 100_000},
	"100K-250K": {LowerBound: 100_000, UpperBound: 250_000},
	"250K-500K": {LowerBound: 250_000, UpperBound: 500_000},
	"500K-1M":   {LowerBound: 500_000, UpperBound: 1_000_000},
	"1M-2M":     {LowerBound: 1_000_000, UpperBound: 2_000_000},
	"2M-5M":     {LowerBound: 2_000_000, UpperBound: 5_000_000},
	"5M-10M":    {LowerBound: 5_000_000, UpperBound: 10_000_000},
	"10M+":      {LowerBound: 10_000_000, UpperBound: math.MaxInt64},
}

var bucketNormalizer = strings.NewReplacer(
	" ", "",
	"–", "-", // en dash
	"—", "-", // em dash
	"≤", "<",
	"TO", "-",
)

// resolveBucketLabel looks up a bucket label in the fixed table. The second
// return value is false for unmapped labels; callers must flag those rather
// than treat the zero range as exact zero impressions.
func resolveBucketLabel(label string) (model.ImpressionRange, bool) {
	normalized := bucketNormalizer.Replace(strings.ToUpper(strings.TrimSpace(label)))
	r, ok := impressionBuckets[normalized]
	if !ok {
		return model.ImpressionRange{}, false
	}
	return r, true
}
