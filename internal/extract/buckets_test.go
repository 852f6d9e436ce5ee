package extract

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/adscope-cli/internal/model"
)

func TestResolveBucketLabel(t *testing.T) {
	tests := []struct {
		label string
		want  model.ImpressionRange
		ok    bool
	}{
		{"<1K", model.ImpressionRange{LowerBound: 0, UpperBound: 1000}, true},
		{"≤1K", model.ImpressionRange{LowerBound: 0, UpperBound: 1000}, true},
		{"1K-2K", model.ImpressionRange{LowerBound: 1000, UpperBound: 2000}, true},
		{"1k-2k", model.ImpressionRange{LowerBound: 1000, UpperBound: 2000}, true},
		{"1K – 2K", model.ImpressionRange{LowerBound: 1000, UpperBound: 2000}, true},
		{"1K to 2K", model.ImpressionRange{LowerBound: 1000, UpperBound: 2000}, true},
		{"500K-1M", model.ImpressionRange{LowerBound: 500_000, UpperBound: 1_000_000}, true},
		{"10M+", model.ImpressionRange{LowerBound: 10_000_000, UpperBound: math.MaxInt64}, true},
		{"7Z-9Z", model.ImpressionRange{}, false},
		{"", model.ImpressionRange{}, false},
	}
	for _, tt := range tests {
		got, ok := resolveBucketLabel(tt.label)
		assert.Equal(t, tt.ok, ok, tt.label)
		if ok {
			assert.Equal(t, tt.want, got, tt.label)
		}
	}
}

func TestImpressionBuckets_Contiguous(t *testing.T) {
	// Every bucket's bounds must be ordered; the table is hand-maintained.
	for label, r := range impressionBuckets {
		assert.LessOrEqual(t, r.LowerBound, r.UpperBound, label)
		assert.GreaterOrEqual(t, r.LowerBound, int64(0), label)
	}
}
