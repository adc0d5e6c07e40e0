package stock_health

import (
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

var baseDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// day returns baseDate advanced by n days.
func day(n int) time.Time {
	return baseDate.AddDate(0, 0, n)
}

// record builds a record whose opening stock balances the closing stock.
func record(d int, hospital, medicine string, issued, closing, lead, minStock int) domain.StockRecord {
	return domain.StockRecord{
		Date:          day(d),
		HospitalID:    hospital,
		HospitalName:  "Hospital " + hospital,
		MedicineName:  medicine,
		OpeningStock:  closing + issued,
		Issued:        issued,
		ClosingStock:  closing,
		LeadTimeDays:  lead,
		MinStockLevel: minStock,
	}
}

// seriesOf builds consecutive daily records with the given issued values; the
// last record carries the closing stock.
func seriesOf(hospital, medicine string, issued []int, closing, lead, minStock int) []domain.StockRecord {
	out := make([]domain.StockRecord, len(issued))
	for i, n := range issued {
		out[i] = record(i, hospital, medicine, n, closing+100, lead, minStock)
	}
	if len(out) > 0 {
		out[len(out)-1].ClosingStock = closing
	}
	return out
}

func ptr(v float64) *float64 {
	return &v
}
