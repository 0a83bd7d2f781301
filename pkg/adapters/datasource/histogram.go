package datasource

import "github.com/ekaya-inc/ekaya-profiler/pkg/models"

// BuildHistogram lays out n equal-width buckets over [lo, hi] and fills
// them from per-index counts returned by a GROUP BY query. Indexes are
// zero-based; anything at or beyond n (the value hi itself) is folded into
// the last bucket and anything below 0 into the first.
func BuildHistogram(lo, hi float64, n int, counts map[int]int64) []models.HistogramBucket {
	if n <= 0 {
		return nil
	}
	if hi <= lo {
		var total int64
		for _, c := range counts {
			total += c
		}
		return []models.HistogramBucket{{Lower: lo, Upper: hi, Count: total}}
	}

	width := (hi - lo) / float64(n)
	buckets := make([]models.HistogramBucket, n)
	for i := range buckets {
		buckets[i].Lower = lo + float64(i)*width
		buckets[i].Upper = lo + float64(i+1)*width
	}
	buckets[n-1].Upper = hi

	for idx, c := range counts {
		switch {
		case idx < 0:
			idx = 0
		case idx >= n:
			idx = n - 1
		}
		buckets[idx].Count += c
	}
	return buckets
}
