package stock_health

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

// DefaultUrgentItems is how many CRITICAL series the alert summary lists.
const DefaultUrgentItems = 3

// Actionable returns the CRITICAL and WARNING recommendations ordered by
// priority, then soonest stockout (undefined horizons last), then hospital
// ID and medicine name.
func Actionable(recs []domain.ReorderRecommendation) []domain.ReorderRecommendation {
	out := make([]domain.ReorderRecommendation, 0, len(recs))
	for _, r := range recs {
		if r.Status.Actionable() {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if c := compareStockout(a.DaysUntilStockout, b.DaysUntilStockout); c != 0 {
			return c < 0
		}
		if a.HospitalID != b.HospitalID {
			return a.HospitalID < b.HospitalID
		}
		return a.MedicineName < b.MedicineName
	})

	return out
}

func compareStockout(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// CurrentStatuses strips reorder sizing and orders statuses by hospital ID and medicine name.
func CurrentStatuses(recs []domain.ReorderRecommendation) []domain.StockStatus {
	out := make([]domain.StockStatus, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.StockStatus)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HospitalID != out[j].HospitalID {
			return out[i].HospitalID < out[j].HospitalID
		}
		return out[i].MedicineName < out[j].MedicineName
	})

	return out
}

// Summarize builds the alert summary for a set of recommendations, listing up
// to topN CRITICAL series in actionable order.
func Summarize(recs []domain.ReorderRecommendation, topN int) domain.AlertSummary {
	if topN < 0 {
		topN = 0
	}

	summary := domain.AlertSummary{MostUrgent: []domain.UrgentItem{}}
	for _, r := range Actionable(recs) {
		switch r.Status {
		case domain.StatusCritical:
			summary.CriticalCount++
			if len(summary.MostUrgent) < topN {
				summary.MostUrgent = append(summary.MostUrgent, domain.UrgentItem{
					HospitalName:  r.HospitalName,
					MedicineName:  r.MedicineName,
					CurrentStock:  r.CurrentStock,
					AvgDailyUsage: roundFloat(r.AvgDailyUsage, 2),
				})
			}
		case domain.StatusWarning:
			summary.WarningCount++
		}
	}

	summary.Message = alertMessage(summary)
	return summary
}

func alertMessage(s domain.AlertSummary) string {
	if s.CriticalCount == 0 && s.WarningCount == 0 {
		return "All stock levels are healthy. No immediate action required."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d medicines at CRITICAL levels (immediate action required)\n", s.CriticalCount)
	fmt.Fprintf(&b, "%d medicines at WARNING levels (reorder soon)\n", s.WarningCount)
	if len(s.MostUrgent) > 0 {
		b.WriteString("Most urgent items:\n")
		for _, item := range s.MostUrgent {
			fmt.Fprintf(&b, "- %s: %s (only %d units left, avg daily use: %d units)\n",
				item.HospitalName, item.MedicineName, item.CurrentStock, int(item.AvgDailyUsage))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
