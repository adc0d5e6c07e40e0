package stock_health

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

var recordDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

// columnIndex maps header names, ignoring case and punctuation, to positions.
type columnIndex map[string]int

func newColumnIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		key := normalizeColumnName(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (c columnIndex) find(names ...string) int {
	for _, name := range names {
		if i, ok := c[normalizeColumnName(name)]; ok {
			return i
		}
	}
	return -1
}

// ReadRecords parses stock records from CSV. The header row is required and
// matched case-insensitively; hospital_name, opening_stock and received are
// optional and read empty cells as zero. An empty cell in any other quantity
// column is an error. Parsing stops at the first malformed row.
func ReadRecords(r io.Reader) ([]domain.StockRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []domain.StockRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := newColumnIndex(header)
	idxDate := cols.find("date", "stock_date")
	idxHospitalID := cols.find("hospital_id", "hospital id")
	idxHospitalName := cols.find("hospital_name", "hospital name", "hospital")
	idxMedicine := cols.find("medicine_name", "medicine name", "medicine")
	idxOpening := cols.find("opening_stock", "opening stock")
	idxReceived := cols.find("received")
	idxIssued := cols.find("issued")
	idxClosing := cols.find("closing_stock", "closing stock", "current_stock")
	idxLeadTime := cols.find("lead_time_days", "lead time days", "lead_time")
	idxMinStock := cols.find("min_stock_level", "min stock level", "min_stock")

	required := map[string]int{
		"date":            idxDate,
		"hospital_id":     idxHospitalID,
		"medicine_name":   idxMedicine,
		"issued":          idxIssued,
		"closing_stock":   idxClosing,
		"lead_time_days":  idxLeadTime,
		"min_stock_level": idxMinStock,
	}
	for _, name := range []string{"date", "hospital_id", "medicine_name", "issued", "closing_stock", "lead_time_days", "min_stock_level"} {
		if required[name] < 0 {
			return nil, fmt.Errorf("missing required column: %s", name)
		}
	}

	records := make([]domain.StockRecord, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", line, err)
		}
		if isBlankRow(row) {
			continue
		}

		get := func(idx int) string {
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		var parseErr error
		parseInt := func(idx int, column string, required bool) int {
			if parseErr != nil {
				return 0
			}
			raw := get(idx)
			if raw == "" {
				if required {
					parseErr = fmt.Errorf("line %d: column %s: value is empty", line, column)
				}
				return 0
			}
			v, err := parseQuantity(raw)
			if err != nil {
				parseErr = fmt.Errorf("line %d: column %s: %w", line, column, err)
			}
			return v
		}

		date, err := parseRecordDate(get(idxDate))
		if err != nil {
			return nil, fmt.Errorf("line %d: column date: %w", line, err)
		}

		rec := domain.StockRecord{
			Date:          date,
			HospitalID:    get(idxHospitalID),
			HospitalName:  get(idxHospitalName),
			MedicineName:  get(idxMedicine),
			OpeningStock:  parseInt(idxOpening, "opening_stock", false),
			Received:      parseInt(idxReceived, "received", false),
			Issued:        parseInt(idxIssued, "issued", true),
			ClosingStock:  parseInt(idxClosing, "closing_stock", true),
			LeadTimeDays:  parseInt(idxLeadTime, "lead_time_days", true),
			MinStockLevel: parseInt(idxMinStock, "min_stock_level", true),
		}
		if parseErr != nil {
			return nil, parseErr
		}

		records = append(records, rec)
	}

	return records, nil
}

// parseQuantity accepts integers with optional thousands separators and
// integral floats such as "12.0". An empty value is an error.
func parseQuantity(v string) (int, error) {
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if v == "" {
		return 0, fmt.Errorf("value is empty")
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("quantity %q is not a whole number", v)
	}
	if f < math.MinInt || f >= math.MaxInt {
		return 0, fmt.Errorf("quantity %q is out of range", v)
	}
	return int(f), nil
}

func parseRecordDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, layout := range recordDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
