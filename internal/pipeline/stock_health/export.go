package stock_health

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

// RecommendationColumns is the column set of the complete export and of the
// stock_health files the processor loads.
var RecommendationColumns = []string{
	"date",
	"hospital_id",
	"hospital_name",
	"medicine_name",
	"current_stock",
	"avg_daily_usage",
	"lead_time_days",
	"min_stock_level",
	"stock_status",
	"days_until_stockout",
	"recommended_order_quantity",
	"priority",
}

var reorderColumns = []string{
	"hospital_id",
	"hospital_name",
	"medicine_name",
	"current_stock",
	"avg_daily_usage",
	"stock_status",
	"days_until_stockout",
	"recommended_order_quantity",
	"priority",
}

// RecordColumns is the canonical stock record header, also used as the
// TransformedRow keys of the file pipeline.
var RecordColumns = []string{
	"date",
	"hospital_id",
	"hospital_name",
	"medicine_name",
	"opening_stock",
	"received",
	"issued",
	"closing_stock",
	"lead_time_days",
	"min_stock_level",
}

// recommendationFields renders a recommendation keyed by column name.
// avgDecimals < 0 keeps avg_daily_usage at full precision.
func recommendationFields(r domain.ReorderRecommendation, avgDecimals int) map[string]string {
	avg := strconv.FormatFloat(r.AvgDailyUsage, 'f', -1, 64)
	if avgDecimals >= 0 {
		avg = formatFloat(r.AvgDailyUsage, avgDecimals)
	}
	return map[string]string{
		"date":                       r.Date.Format("2006-01-02"),
		"hospital_id":                r.HospitalID,
		"hospital_name":              r.HospitalName,
		"medicine_name":              r.MedicineName,
		"current_stock":              strconv.Itoa(r.CurrentStock),
		"avg_daily_usage":            avg,
		"lead_time_days":             strconv.Itoa(r.LeadTimeDays),
		"min_stock_level":            strconv.Itoa(r.MinStockLevel),
		"stock_status":               string(r.Status),
		"days_until_stockout":        formatOptionalFloat(r.DaysUntilStockout, 1),
		"recommended_order_quantity": strconv.Itoa(r.RecommendedOrderQuantity),
		"priority":                   strconv.Itoa(r.Priority),
	}
}

// WriteRecommendationsCSV writes recommendations in the requested format.
// FormatComplete keeps avg_daily_usage at full precision so the file loads
// back with the usage that sized the orders. FormatReorder keeps only
// actionable series, in urgency order, with usage rounded for reading.
func WriteRecommendationsCSV(w io.Writer, recs []domain.ReorderRecommendation, format OutputFormat) error {
	columns := RecommendationColumns
	rows := recs
	avgDecimals := -1
	switch format {
	case FormatComplete, "":
	case FormatReorder:
		columns = reorderColumns
		rows = Actionable(recs)
		avgDecimals = 2
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, r := range rows {
		fields := recommendationFields(r, avgDecimals)
		record := make([]string, len(columns))
		for i, c := range columns {
			record[i] = fields[c]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// recordFields renders a stock record keyed by column name.
func recordFields(r domain.StockRecord) map[string]string {
	return map[string]string{
		"date":            r.Date.Format("2006-01-02"),
		"hospital_id":     r.HospitalID,
		"hospital_name":   r.HospitalName,
		"medicine_name":   r.MedicineName,
		"opening_stock":   strconv.Itoa(r.OpeningStock),
		"received":        strconv.Itoa(r.Received),
		"issued":          strconv.Itoa(r.Issued),
		"closing_stock":   strconv.Itoa(r.ClosingStock),
		"lead_time_days":  strconv.Itoa(r.LeadTimeDays),
		"min_stock_level": strconv.Itoa(r.MinStockLevel),
	}
}

// WriteRecordsCSV writes stock records with the canonical header.
func WriteRecordsCSV(w io.Writer, records []domain.StockRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordColumns); err != nil {
		return err
	}
	for _, r := range records {
		fields := recordFields(r)
		rec := make([]string, len(RecordColumns))
		for i, c := range RecordColumns {
			rec[i] = fields[c]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecommendationsCSV parses a complete-format export, in any column order.
func ReadRecommendationsCSV(r io.Reader) ([]domain.ReorderRecommendation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []domain.ReorderRecommendation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := newColumnIndex(header)
	for _, c := range RecommendationColumns {
		if cols.find(c) < 0 {
			return nil, fmt.Errorf("missing required column: %s", c)
		}
	}

	out := make([]domain.ReorderRecommendation, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", line, err)
		}

		get := func(name string) string {
			return strings.TrimSpace(row[cols.find(name)])
		}

		rec, err := parseRecommendation(get)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}

	return out, nil
}

func parseRecommendation(get func(string) string) (domain.ReorderRecommendation, error) {
	var rec domain.ReorderRecommendation

	date, err := parseRecordDate(get("date"))
	if err != nil {
		return rec, err
	}
	status, ok := domain.ParseStatus(get("stock_status"))
	if !ok {
		return rec, fmt.Errorf("unknown stock_status %q", get("stock_status"))
	}
	avg, err := strconv.ParseFloat(get("avg_daily_usage"), 64)
	if err != nil {
		return rec, fmt.Errorf("invalid avg_daily_usage: %w", err)
	}

	ints := make(map[string]int)
	for _, c := range []string{"current_stock", "lead_time_days", "min_stock_level", "recommended_order_quantity", "priority"} {
		v, err := parseQuantity(get(c))
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", c, err)
		}
		ints[c] = v
	}

	var days *float64
	if raw := get("days_until_stockout"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rec, fmt.Errorf("invalid days_until_stockout: %w", err)
		}
		days = &d
	}

	rec = domain.ReorderRecommendation{
		StockStatus: domain.StockStatus{
			HospitalID:        get("hospital_id"),
			HospitalName:      get("hospital_name"),
			MedicineName:      get("medicine_name"),
			Date:              date,
			CurrentStock:      ints["current_stock"],
			AvgDailyUsage:     avg,
			LeadTimeDays:      ints["lead_time_days"],
			MinStockLevel:     ints["min_stock_level"],
			Status:            status,
			DaysUntilStockout: days,
		},
		RecommendedOrderQuantity: ints["recommended_order_quantity"],
		Priority:                 ints["priority"],
	}
	return rec, nil
}
