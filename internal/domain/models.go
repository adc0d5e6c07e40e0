// backend-go/internal/domain/models.go
package domain

import "time"

// StockRecord is a single daily stock movement for one medicine at one hospital.
type StockRecord struct {
	Date          time.Time `json:"date" db:"stock_date"`
	HospitalID    string    `json:"hospital_id" db:"hospital_id"`
	HospitalName  string    `json:"hospital_name" db:"hospital_name"`
	MedicineName  string    `json:"medicine_name" db:"medicine_name"`
	OpeningStock  int       `json:"opening_stock" db:"opening_stock"`
	Received      int       `json:"received" db:"received"`
	Issued        int       `json:"issued" db:"issued"`
	ClosingStock  int       `json:"closing_stock" db:"closing_stock"`
	LeadTimeDays  int       `json:"lead_time_days" db:"lead_time_days"`
	MinStockLevel int       `json:"min_stock_level" db:"min_stock_level"`
}

// Key returns the series identity of the record.
func (r StockRecord) Key() SeriesKey {
	return SeriesKey{HospitalID: r.HospitalID, MedicineName: r.MedicineName}
}

// SeriesKey identifies a (hospital, medicine) series.
type SeriesKey struct {
	HospitalID   string `json:"hospital_id"`
	MedicineName string `json:"medicine_name"`
}

func (k SeriesKey) String() string {
	return k.HospitalID + "/" + k.MedicineName
}

// StockStatus is the classified state of a series at its latest date.
type StockStatus struct {
	HospitalID        string    `json:"hospital_id" db:"hospital_id"`
	HospitalName      string    `json:"hospital_name" db:"hospital_name"`
	MedicineName      string    `json:"medicine_name" db:"medicine_name"`
	Date              time.Time `json:"date" db:"stock_date"`
	CurrentStock      int       `json:"current_stock" db:"current_stock"`
	AvgDailyUsage     float64   `json:"avg_daily_usage" db:"avg_daily_usage"`
	LeadTimeDays      int       `json:"lead_time_days" db:"lead_time_days"`
	MinStockLevel     int       `json:"min_stock_level" db:"min_stock_level"`
	Status            Status    `json:"stock_status" db:"stock_status"`
	DaysUntilStockout *float64  `json:"days_until_stockout" db:"days_until_stockout"`
}

// Key returns the series identity of the status.
func (s StockStatus) Key() SeriesKey {
	return SeriesKey{HospitalID: s.HospitalID, MedicineName: s.MedicineName}
}

// ReorderRecommendation adds order sizing and urgency to a StockStatus.
type ReorderRecommendation struct {
	StockStatus
	RecommendedOrderQuantity int `json:"recommended_order_quantity" db:"recommended_order_quantity"`
	Priority                 int `json:"priority" db:"priority"`
}

// StockHealthSummary counts series per status
type StockHealthSummary struct {
	Status Status `json:"stock_status" db:"stock_status"`
	Count  int    `json:"count" db:"count"`
}

// HospitalBreakdown counts series per status for a single hospital
type HospitalBreakdown struct {
	HospitalID   string `json:"hospital_id" db:"hospital_id"`
	HospitalName string `json:"hospital_name" db:"hospital_name"`
	Critical     int    `json:"critical" db:"critical"`
	Warning      int    `json:"warning" db:"warning"`
	Healthy      int    `json:"healthy" db:"healthy"`
	TotalStock   int    `json:"total_stock" db:"total_stock"`
}

// StockHealthFilter represents filters for stock health queries
type StockHealthFilter struct {
	HospitalIDs  []string `json:"hospital_ids"`
	MedicineName string   `json:"medicine_name"`
	Status       Status   `json:"stock_status"`
	Page         int      `json:"page"`
	PageSize     int      `json:"page_size"`
}
