package stock_health

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/xuri/excelize/v2"
)

// XLSXToCSV copies the first sheet of a workbook to w as CSV.
func XLSXToCSV(r io.Reader, w io.Writer) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("xlsx has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("failed to read row from sheet %s: %w", sheet, err)
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("error iterating rows in sheet %s: %w", sheet, err)
	}

	cw.Flush()
	return cw.Error()
}

// ReadRecordsXLSX parses stock records from the first sheet of a workbook,
// with the same header rules as ReadRecords.
func ReadRecordsXLSX(r io.Reader) ([]domain.StockRecord, error) {
	var buf bytes.Buffer
	if err := XLSXToCSV(r, &buf); err != nil {
		return nil, err
	}
	return ReadRecords(&buf)
}
