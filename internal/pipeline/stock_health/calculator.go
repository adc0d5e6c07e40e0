package stock_health

import (
	"math"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

// InventoryCalculator classifies series snapshots and sizes their reorders.
type InventoryCalculator struct {
	criticalBufferDays int
	warningBufferDays  int
}

// NewInventoryCalculator creates a new inventory calculator
func NewInventoryCalculator(cfg Config) *InventoryCalculator {
	cfg = cfg.withDefaults()
	return &InventoryCalculator{
		criticalBufferDays: cfg.CriticalBufferDays,
		warningBufferDays:  cfg.WarningBufferDays,
	}
}

// Classify derives the stock status of a snapshot.
func (ic *InventoryCalculator) Classify(snap Snapshot) domain.StockStatus {
	r := snap.Record
	status := domain.StockStatus{
		HospitalID:    r.HospitalID,
		HospitalName:  r.HospitalName,
		MedicineName:  r.MedicineName,
		Date:          r.Date,
		CurrentStock:  r.ClosingStock,
		AvgDailyUsage: snap.AvgDailyUsage,
		LeadTimeDays:  r.LeadTimeDays,
		MinStockLevel: r.MinStockLevel,
	}

	// 1. Days until stockout, undefined without measurable consumption.
	// The lead time check uses the exact ratio; only the reported value is rounded.
	var ratio float64
	if snap.AvgDailyUsage > 0 {
		ratio = float64(r.ClosingStock) / snap.AvgDailyUsage
		days := roundFloat(ratio, 1)
		status.DaysUntilStockout = &days
	}

	// 2. Minimum stock breach wins over any stockout horizon
	switch {
	case r.ClosingStock <= r.MinStockLevel:
		status.Status = domain.StatusCritical
	case status.DaysUntilStockout != nil && ratio <= float64(r.LeadTimeDays):
		status.Status = domain.StatusWarning
	default:
		status.Status = domain.StatusHealthy
	}

	return status
}

// Recommend computes the order quantity and priority for a classified series.
func (ic *InventoryCalculator) Recommend(status domain.StockStatus) domain.ReorderRecommendation {
	rec := domain.ReorderRecommendation{
		StockStatus: status,
		Priority:    status.Status.Priority(),
	}

	switch status.Status {
	case domain.StatusCritical:
		rec.RecommendedOrderQuantity = ic.orderQuantity(status, ic.criticalBufferDays)
	case domain.StatusWarning:
		rec.RecommendedOrderQuantity = ic.orderQuantity(status, ic.warningBufferDays)
	}

	return rec
}

// orderQuantity covers lead time plus buffer days at the current usage rate,
// net of stock on hand, never below zero.
func (ic *InventoryCalculator) orderQuantity(status domain.StockStatus, bufferDays int) int {
	target := math.Round(status.AvgDailyUsage * float64(status.LeadTimeDays+bufferDays))
	qty := int(target) - status.CurrentStock
	return max(qty, 0)
}
