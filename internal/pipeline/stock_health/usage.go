package stock_health

import "github.com/andresuchdata/medstock/backend-go/internal/domain"

// TrailingAverages returns, for every record of a date-ascending series, the
// mean of Issued over that record and up to window-1 records before it.
//
// The window counts records, not calendar days: gaps in the dates are not
// zero-filled. The first window-1 records use a partial window and divide by
// the number of rows actually in it.
func TrailingAverages(records []domain.StockRecord, window int) []float64 {
	if window < 1 {
		window = 1
	}

	averages := make([]float64, len(records))
	sum := 0
	for i, r := range records {
		sum += r.Issued
		if i >= window {
			sum -= records[i-window].Issued
		}
		averages[i] = float64(sum) / float64(windowLen(i, window))
	}

	return averages
}

// windowLen is the number of rows in the trailing window ending at index i.
func windowLen(i, window int) int {
	return min(i+1, window)
}
