package rainfall

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// DefaultExcludedMonths are the winter months dropped before event
// extraction.
var DefaultExcludedMonths = []time.Month{
	time.November, time.December, time.January,
	time.February, time.March, time.April,
}

// OutlierFactor scales the IQR above Q3 for outlier removal.
const OutlierFactor = 3.0

type CleanOptions struct {
	RemoveOutliers bool
	ExcludedMonths []time.Month
}

func DefaultCleanOptions() CleanOptions {
	return CleanOptions{ExcludedMonths: slices.Clone(DefaultExcludedMonths)}
}

// CleanReport describes what Clean removed.
type CleanReport struct {
	Input      int
	Outliers   int
	UpperBound float64
	Remaining  int
}

// Clean drops missing and non-positive readings, optionally the outliers
// above Q3 + 3·IQR, and readings in excluded months. The result is
// sorted by time.
func Clean(records []Record, opts CleanOptions) ([]Record, CleanReport) {
	rep := CleanReport{Input: len(records), UpperBound: math.Inf(1)}

	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if math.IsNaN(r.Value) || r.Value <= 0 {
			continue
		}
		kept = append(kept, r)
	}

	if opts.RemoveOutliers && len(kept) > 0 {
		vals := make([]float64, len(kept))
		for i, r := range kept {
			vals[i] = r.Value
		}
		sort.Float64s(vals)
		q1 := dynamo.Percentile(vals, 0.25)
		q3 := dynamo.Percentile(vals, 0.75)
		rep.UpperBound = q3 + OutlierFactor*(q3-q1)

		n := 0
		for _, r := range kept {
			if r.Value > rep.UpperBound {
				rep.Outliers++
				continue
			}
			kept[n] = r
			n++
		}
		kept = kept[:n]
	}

	n := 0
	for _, r := range kept {
		if slices.Contains(opts.ExcludedMonths, r.Time.Month()) {
			continue
		}
		kept[n] = r
		n++
	}
	kept = kept[:n]

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Time.Before(kept[j].Time) })
	rep.Remaining = len(kept)
	return kept, rep
}
