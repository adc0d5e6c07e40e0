package stock_health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailingAverages_PartialWindowGrowsByOne(t *testing.T) {
	// issued = 1..7, so the mean of the first i+1 rows is (i+2)/2 only if the
	// window at index i holds exactly i+1 rows.
	recs := seriesOf("H1", "Paracetamol", []int{1, 2, 3, 4, 5, 6, 7}, 50, 5, 10)

	avgs := TrailingAverages(recs, DefaultWindowSize)

	require.Len(t, avgs, 7)
	for i, got := range avgs {
		assert.Equal(t, i+1, windowLen(i, DefaultWindowSize))
		assert.InDelta(t, float64(i+2)/2, got, 1e-9, "index %d", i)
	}
}

func TestTrailingAverages_SlidesOverSevenRecords(t *testing.T) {
	recs := seriesOf("H1", "Amoxicillin", []int{10, 10, 10, 10, 10, 10, 10, 20}, 15, 5, 20)

	avgs := TrailingAverages(recs, 7)

	require.Len(t, avgs, 8)
	assert.InDelta(t, 10.0, avgs[6], 1e-9)
	assert.InDelta(t, 80.0/7.0, avgs[7], 1e-9)
}

func TestTrailingAverages_WindowIsOverRecordsNotDays(t *testing.T) {
	recs := seriesOf("H1", "Insulin", []int{4, 8}, 30, 3, 5)
	recs[1].Date = day(30) // a month-long gap is not zero-filled

	avgs := TrailingAverages(recs, 7)

	assert.Equal(t, []float64{4, 6}, avgs)
}

func TestTrailingAverages_EmptySeries(t *testing.T) {
	avgs := TrailingAverages(nil, 7)

	assert.NotNil(t, avgs)
	assert.Empty(t, avgs)
}

func TestTrailingAverages_CustomWindow(t *testing.T) {
	recs := seriesOf("H1", "Ibuprofen", []int{3, 6, 9, 12}, 40, 2, 5)

	avgs := TrailingAverages(recs, 2)

	assert.Equal(t, []float64{3, 4.5, 7.5, 10.5}, avgs)
}

func TestTrailingAverages_ZeroUsage(t *testing.T) {
	recs := seriesOf("H1", "Saline", []int{0, 0, 0}, 50, 2, 10)

	for _, avg := range TrailingAverages(recs, 7) {
		assert.Zero(t, avg)
	}
}
