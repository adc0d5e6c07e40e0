package stock_health

import (
	"sort"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

// GroupSeries splits records into per-(hospital, medicine) series.
//
// Series are returned in order of first appearance. Within a series records are
// sorted by date; records sharing a date keep their arrival order, so the
// later-arriving duplicate is treated as the latest.
func GroupSeries(records []domain.StockRecord) []Series {
	index := make(map[domain.SeriesKey]int)
	var series []Series

	for _, r := range records {
		key := r.Key()
		i, ok := index[key]
		if !ok {
			i = len(series)
			index[key] = i
			series = append(series, Series{Key: key})
		}
		series[i].Records = append(series[i].Records, r)
	}

	for i := range series {
		recs := series[i].Records
		sort.SliceStable(recs, func(a, b int) bool {
			return recs[a].Date.Before(recs[b].Date)
		})
	}

	return series
}

// SelectSnapshot picks the latest record of a sorted series along with its
// trailing average. It reports false for an empty series.
func SelectSnapshot(s Series, averages []float64) (Snapshot, bool) {
	n := len(s.Records)
	if n == 0 || len(averages) != n {
		return Snapshot{}, false
	}

	return Snapshot{
		Record:        s.Records[n-1],
		AvgDailyUsage: averages[n-1],
	}, true
}
