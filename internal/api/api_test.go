package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	filter     domain.StockHealthFilter
	format     stock_health.OutputFormat
	ingested   map[string]string
	ingestErr  error
	refreshErr error
	refreshes  int
}

func (f *fakeService) Refresh(_ context.Context) (*service.RefreshResult, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &service.RefreshResult{RunID: "run-1", Series: 2}, nil
}

func (f *fakeService) IngestFiles(_ context.Context, files []service.RecordFile) (int, error) {
	if f.ingestErr != nil {
		return 0, f.ingestErr
	}
	if f.ingested == nil {
		f.ingested = map[string]string{}
	}
	for _, file := range files {
		body, _ := io.ReadAll(file.Body)
		f.ingested[file.Name] = string(body)
	}
	return 2, nil
}

func (f *fakeService) GetSummary(_ context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, error) {
	f.filter = filter
	return []domain.StockHealthSummary{{Status: domain.StatusCritical, Count: 4}}, nil
}

func (f *fakeService) GetRecommendations(_ context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, int, error) {
	f.filter = filter
	return []domain.ReorderRecommendation{{Priority: 1}}, 7, nil
}

func (f *fakeService) GetReorderList(_ context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, error) {
	f.filter = filter
	return []domain.ReorderRecommendation{}, nil
}

func (f *fakeService) GetStatuses(_ context.Context, filter domain.StockHealthFilter) ([]domain.StockStatus, error) {
	f.filter = filter
	return []domain.StockStatus{}, nil
}

func (f *fakeService) GetAlertSummary(_ context.Context, filter domain.StockHealthFilter) (*domain.AlertSummary, error) {
	f.filter = filter
	return &domain.AlertSummary{CriticalCount: 1, MostUrgent: []domain.UrgentItem{}}, nil
}

func (f *fakeService) GetHospitalBreakdown(_ context.Context, filter domain.StockHealthFilter) ([]domain.HospitalBreakdown, error) {
	f.filter = filter
	return []domain.HospitalBreakdown{}, nil
}

func (f *fakeService) GetDashboard(_ context.Context, filter domain.StockHealthFilter) (*domain.StockHealthDashboard, error) {
	f.filter = filter
	return &domain.StockHealthDashboard{}, nil
}

func (f *fakeService) GetAvailableDates(_ context.Context, _ int) ([]time.Time, error) {
	return []time.Time{time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeService) ExportCSV(_ context.Context, w io.Writer, filter domain.StockHealthFilter, format stock_health.OutputFormat) error {
	f.filter = filter
	f.format = format
	_, err := io.WriteString(w, "hospital_id\nH1\n")
	return err
}

func newTestRouter(svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(&Services{StockHealthService: svc}, nil)
}

func do(r http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSummary_ParsesFilter(t *testing.T) {
	svc := &fakeService{}
	w := do(newTestRouter(svc), http.MethodGet,
		"/api/v1/analytics/stock_health/summary?hospital_ids=H2,H1&hospital_ids=H1&medicine=%20insulin%20&status=critical", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"H2", "H1"}, svc.filter.HospitalIDs)
	assert.Equal(t, "insulin", svc.filter.MedicineName)
	assert.Equal(t, domain.StatusCritical, svc.filter.Status)
	assert.Equal(t, 1, svc.filter.Page)
	assert.Equal(t, 50, svc.filter.PageSize)
	assert.JSONEq(t, `[{"stock_status":"CRITICAL","count":4}]`, w.Body.String())
}

func TestSummary_UnknownStatus(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/api/v1/analytics/stock_health/summary?status=empty", nil, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown status")
}

func TestRecommendations_Pagination(t *testing.T) {
	svc := &fakeService{}
	w := do(newTestRouter(svc), http.MethodGet, "/api/v1/analytics/stock_health/recommendations?page=3&page_size=10000", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, svc.filter.Page)
	assert.Equal(t, 500, svc.filter.PageSize)

	var body struct {
		Total    int `json:"total"`
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 7, body.Total)
	assert.Equal(t, 3, body.Page)
	assert.Equal(t, 500, body.PageSize)
}

func TestExport(t *testing.T) {
	svc := &fakeService{}
	w := do(newTestRouter(svc), http.MethodGet, "/api/v1/analytics/stock_health/export?format=REORDER", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, stock_health.FormatReorder, svc.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "stock_health_reorder_")
	assert.Equal(t, "hospital_id\nH1\n", w.Body.String())
}

func TestExport_UnknownFormat(t *testing.T) {
	w := do(newTestRouter(&fakeService{}), http.MethodGet, "/api/v1/analytics/stock_health/export?format=xml", nil, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefresh_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid record", &domain.RecordError{Field: "issued", Reason: "must not be negative"}, http.StatusBadRequest},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestRouter(&fakeService{refreshErr: tt.err}), http.MethodPost, "/api/v1/analytics/stock_health/refresh", nil, "")

			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"details"`)
		})
	}
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadRecords(t *testing.T) {
	svc := &fakeService{}
	body, contentType := multipartBody(t, map[string]string{"day1.csv": "date,hospital_id\n"})

	w := do(newTestRouter(svc), http.MethodPost, "/api/v1/analytics/stock_health/records", body, contentType)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "date,hospital_id\n", svc.ingested["day1.csv"])
	assert.Equal(t, 1, svc.refreshes)
	assert.Contains(t, w.Body.String(), `"records":2`)
}

func TestUploadRecords_InvalidFileSkipsRefresh(t *testing.T) {
	svc := &fakeService{ingestErr: fmt.Errorf("%w: bad row", domain.ErrInvalidRecord)}
	body, contentType := multipartBody(t, map[string]string{"day1.csv": "x"})

	w := do(newTestRouter(svc), http.MethodPost, "/api/v1/analytics/stock_health/records", body, contentType)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.refreshes)
}

// recordSink and resultSink back a real service so uploads go through parsing
// and validation.
type recordSink struct {
	inserts int
	records []domain.StockRecord
}

func (r *recordSink) InsertStockRecords(_ context.Context, records []domain.StockRecord) (int, error) {
	r.inserts++
	r.records = append(r.records, records...)
	return len(records), nil
}

func (r *recordSink) ListStockRecords(context.Context, int) ([]domain.StockRecord, error) {
	return r.records, nil
}

func (r *recordSink) GetAvailableDates(context.Context, int) ([]time.Time, error) { return nil, nil }

type resultSink struct{ saves int }

func (r *resultSink) SaveResults(context.Context, string, []domain.ReorderRecommendation) error {
	r.saves++
	return nil
}

func (r *resultSink) GetStatusSummary(context.Context, domain.StockHealthFilter) ([]domain.StockHealthSummary, error) {
	return nil, nil
}

func (r *resultSink) GetRecommendations(context.Context, domain.StockHealthFilter) ([]domain.ReorderRecommendation, int, error) {
	return nil, 0, nil
}

func (r *resultSink) GetHospitalBreakdown(context.Context, domain.StockHealthFilter) ([]domain.HospitalBreakdown, error) {
	return nil, nil
}

func TestUploadRecords_OneInvalidFileStoresNothing(t *testing.T) {
	const header = "date,hospital_id,medicine_name,issued,closing_stock,lead_time_days,min_stock_level\n"
	records, results := &recordSink{}, &resultSink{}
	svc := service.NewStockHealthService(records, results, nil, nil)
	gin.SetMode(gin.TestMode)
	router := NewRouter(&Services{StockHealthService: svc}, nil)

	body, contentType := multipartBody(t, map[string]string{
		"day1.csv": header + "2025-01-01,H1,Insulin,3,40,2,10\n",
		"day2.csv": header + "2025-01-02,H1,Insulin,,36,2,10\n",
	})
	w := do(router, http.MethodPost, "/api/v1/analytics/stock_health/records", body, contentType)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "issued")
	assert.Zero(t, records.inserts)
	assert.Zero(t, results.saves)

	body, contentType = multipartBody(t, map[string]string{
		"day1.csv": header + "2025-01-01,H1,Insulin,3,40,2,10\n",
		"day2.csv": header + "2025-01-02,H1,Insulin,4,36,2,10\n",
	})
	w = do(router, http.MethodPost, "/api/v1/analytics/stock_health/records", body, contentType)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, records.inserts)
	assert.Len(t, records.records, 2)
	assert.Equal(t, 1, results.saves)
}

func TestUploadRecords_NoFiles(t *testing.T) {
	body, contentType := multipartBody(t, nil)

	w := do(newTestRouter(&fakeService{}), http.MethodPost, "/api/v1/analytics/stock_health/records", body, contentType)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.example, https://b.example", " "})
	assert.False(t, all)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, origins)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}
