package stock_health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineFixture = `date,hospital_id,hospital_name,medicine_name,opening_stock,received,issued,closing_stock,lead_time_days,min_stock_level
2025-01-01,H2,North,Aspirin,40,0,10,30,5,10
2025-01-01,H1,General,Insulin,30,0,18,12,5,15
2025-01-01,H1,General,Saline,50,0,0,50,5,10
`

func newTestPipeline(t *testing.T) (*StockHealthPipeline, string) {
	t.Helper()
	dir := t.TempDir()
	p := NewStockHealthPipeline(Config{
		IntermediateDir:    filepath.Join(dir, "intermediate"),
		OutputDir:          filepath.Join(dir, "out"),
		PersistDebugLayers: true,
	})
	return p, dir
}

func TestStockHealthPipeline_Transform(t *testing.T) {
	p, dir := newTestPipeline(t)
	input := filepath.Join(dir, "20250101_stock.csv")
	require.NoError(t, os.WriteFile(input, []byte(pipelineFixture), 0644))

	require.NoError(t, p.Validate(input))
	rows, err := p.Transform(context.Background(), input)

	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "H2", rows[0].Data["hospital_id"])
	assert.Equal(t, "Aspirin", rows[0].Data["medicine_name"])
	assert.Equal(t, "2025-01-01", rows[0].Data["date"])
	assert.Equal(t, "18", rows[1].Data["issued"])
	assert.Equal(t, "12", rows[1].Data["closing_stock"])
	for _, row := range rows {
		assert.Len(t, row.Data, len(RecordColumns))
		assert.NotContains(t, row.Data, "stock_status")
	}

	assert.FileExists(t, filepath.Join(dir, "intermediate", "1_validated", "20250101", "20250101_stock.csv"))
	assert.NoDirExists(t, filepath.Join(dir, "intermediate", "2_with_status"))
}

// Each file only carries part of a series, so the pipeline must not classify.
func TestStockHealthPipeline_TransformKeepsEveryRecord(t *testing.T) {
	p, dir := newTestPipeline(t)
	input := filepath.Join(dir, "20250104.csv")
	data := "date,hospital_id,medicine_name,issued,closing_stock,lead_time_days,min_stock_level\n" +
		"2025-01-03,H1,Insulin,10,90,5,10\n" +
		"2025-01-04,H1,Insulin,100,5,5,10\n"
	require.NoError(t, os.WriteFile(input, []byte(data), 0644))

	rows, err := p.Transform(context.Background(), input)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-01-03", rows[0].Data["date"])
	assert.Equal(t, "2025-01-04", rows[1].Data["date"])
	assert.Equal(t, "0", rows[1].Data["opening_stock"])
}

func TestStockHealthPipeline_TransformRejectsInvalidRecords(t *testing.T) {
	p, dir := newTestPipeline(t)
	input := filepath.Join(dir, "20250101_stock.csv")
	bad := "date,hospital_id,medicine_name,issued,closing_stock,lead_time_days,min_stock_level\n" +
		"2025-01-01,H1,Insulin,-3,10,5,5\n"
	require.NoError(t, os.WriteFile(input, []byte(bad), 0644))

	_, err := p.Transform(context.Background(), input)

	assert.ErrorContains(t, err, "issued must not be negative")
}

func TestStockHealthPipeline_GetSnapshotDate(t *testing.T) {
	p, _ := newTestPipeline(t)

	got, err := p.GetSnapshotDate("/data/20250314_hospital_stock.csv")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), got)

	_, err = p.GetSnapshotDate("stock.csv")
	assert.Error(t, err)
}

func TestStockHealthPipeline_Validate(t *testing.T) {
	p, dir := newTestPipeline(t)
	xlsx := filepath.Join(dir, "20250101.xlsx")
	require.NoError(t, os.WriteFile(xlsx, []byte("x"), 0644))

	assert.ErrorContains(t, p.Validate(xlsx), "unsupported file extension")
	assert.ErrorContains(t, p.Validate(dir), "is a directory")
	assert.Error(t, p.Validate(filepath.Join(dir, "missing.csv")))
}

func TestStockHealthPipeline_Identity(t *testing.T) {
	p, _ := newTestPipeline(t)

	assert.Equal(t, "stock_health", p.Name())
	assert.Equal(t, "stock_records", p.GetOutputTable())
	assert.Equal(t, RecordColumns, p.Columns())
}
