package domain

// UrgentItem is one line of the alert summary's most urgent list
type UrgentItem struct {
	HospitalName  string  `json:"hospital_name"`
	MedicineName  string  `json:"medicine_name"`
	CurrentStock  int     `json:"current_stock"`
	AvgDailyUsage float64 `json:"avg_daily_usage"`
}

// AlertSummary is the plain-language alert card of the dashboard
type AlertSummary struct {
	CriticalCount int          `json:"critical_count"`
	WarningCount  int          `json:"warning_count"`
	MostUrgent    []UrgentItem `json:"most_urgent"`
	Message       string       `json:"message"`
}

// StockHealthDashboard aggregates all dashboard data
type StockHealthDashboard struct {
	Summary           []StockHealthSummary    `json:"summary"`
	HospitalBreakdown []HospitalBreakdown     `json:"hospital_breakdown"`
	Alerts            AlertSummary            `json:"alerts"`
	Reorder           []ReorderRecommendation `json:"reorder"`
}
