package stock_health

import (
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

// ValidateRecord rejects records with missing identity fields or negative quantities.
func ValidateRecord(r domain.StockRecord) error {
	fail := func(field, reason string) error {
		return &domain.RecordError{Key: r.Key(), Date: r.Date, Field: field, Reason: reason}
	}

	if strings.TrimSpace(r.HospitalID) == "" {
		return fail("hospital_id", "is required")
	}
	if strings.TrimSpace(r.MedicineName) == "" {
		return fail("medicine_name", "is required")
	}
	if r.Date.IsZero() {
		return fail("date", "is required")
	}

	quantities := []struct {
		field string
		value int
	}{
		{"opening_stock", r.OpeningStock},
		{"received", r.Received},
		{"issued", r.Issued},
		{"closing_stock", r.ClosingStock},
		{"lead_time_days", r.LeadTimeDays},
		{"min_stock_level", r.MinStockLevel},
	}
	for _, q := range quantities {
		if q.value < 0 {
			return fail(q.field, "must not be negative")
		}
	}

	return nil
}

// ValidateRecords returns the first invalid record's error. One bad record fails the batch.
func ValidateRecords(records []domain.StockRecord) error {
	for _, r := range records {
		if err := ValidateRecord(r); err != nil {
			return err
		}
	}
	return nil
}
