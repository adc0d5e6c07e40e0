package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// StockHealthService is the part of service.StockHealthService the handlers use.
type StockHealthService interface {
	Refresh(ctx context.Context) (*service.RefreshResult, error)
	IngestFiles(ctx context.Context, files []service.RecordFile) (int, error)
	GetSummary(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, error)
	GetRecommendations(ctx context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, int, error)
	GetReorderList(ctx context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, error)
	GetStatuses(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockStatus, error)
	GetAlertSummary(ctx context.Context, filter domain.StockHealthFilter) (*domain.AlertSummary, error)
	GetHospitalBreakdown(ctx context.Context, filter domain.StockHealthFilter) ([]domain.HospitalBreakdown, error)
	GetDashboard(ctx context.Context, filter domain.StockHealthFilter) (*domain.StockHealthDashboard, error)
	GetAvailableDates(ctx context.Context, limit int) ([]time.Time, error)
	ExportCSV(ctx context.Context, w io.Writer, filter domain.StockHealthFilter, format stock_health.OutputFormat) error
}

type StockHealthHandler struct {
	service StockHealthService
}

func NewStockHealthHandler(service StockHealthService) *StockHealthHandler {
	return &StockHealthHandler{service: service}
}

func (h *StockHealthHandler) parseFilter(c *gin.Context) (domain.StockHealthFilter, error) {
	filter := domain.StockHealthFilter{
		Page:     parsePositiveIntWithDefault(c.Query("page"), 1),
		PageSize: min(parsePositiveIntWithDefault(c.Query("page_size"), defaultPageSize), maxPageSize),
	}

	// both ?hospital_ids=A&hospital_ids=B and ?hospital_ids=A,B
	seen := make(map[string]struct{})
	for _, raw := range c.QueryArray("hospital_ids") {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			filter.HospitalIDs = append(filter.HospitalIDs, id)
		}
	}

	filter.MedicineName = strings.TrimSpace(c.Query("medicine"))

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = status
	}

	return filter, nil
}

func parsePositiveIntWithDefault(value string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func (h *StockHealthHandler) filterOrAbort(c *gin.Context) (domain.StockHealthFilter, bool) {
	filter, err := h.parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return filter, false
	}
	return filter, true
}

func failure(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrInvalidRecord) {
		status = http.StatusBadRequest
	} else {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

func (h *StockHealthHandler) GetSummary(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	results, err := h.service.GetSummary(c.Request.Context(), filter)
	if err != nil {
		failure(c, "failed to fetch summary", err)
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *StockHealthHandler) GetRecommendations(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	items, total, err := h.service.GetRecommendations(c.Request.Context(), filter)
	if err != nil {
		failure(c, "failed to fetch recommendations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     items,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func (h *StockHealthHandler) GetReorderList(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	items, err := h.service.GetReorderList(c.Request.Context(), filter)
	if err != nil {
		failure(c, "failed to fetch reorder list", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *StockHealthHandler) GetStatuses(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	items, err := h.service.GetStatuses(c.Request.Context(), filter)
	if err != nil {
		failure(c, "failed to fetch statuses", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *StockHealthHandler) GetAlerts(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	alerts, err := h.service.GetAlertSummary(c.Request.Context(), filter)
	if err != nil {
		failure(c, "failed to fetch alerts", err)
		return
	}

	c.JSON(http.StatusOK, alerts)
}

func (h *StockHealthHandler) GetHospitalBreakdown(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	breakdown, err := h.service.GetHospitalBreakdown(c.Request.Context(), filter)
	if err != nil {
		failure(c, "failed to fetch hospital breakdown", err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

func (h *StockHealthHandler) GetDashboard(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	data, err := h.service.GetDashboard(c.Request.Context(), filter)
	if err != nil {
		failure(c, "failed to fetch dashboard", err)
		return
	}

	c.JSON(http.StatusOK, data)
}

func (h *StockHealthHandler) GetAvailableDates(c *gin.Context) {
	limit := parsePositiveIntWithDefault(c.Query("limit"), 30)

	dates, err := h.service.GetAvailableDates(c.Request.Context(), limit)
	if err != nil {
		failure(c, "failed to fetch available dates", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

// Export streams the stored recommendations as a CSV attachment.
func (h *StockHealthHandler) Export(c *gin.Context) {
	filter, ok := h.filterOrAbort(c)
	if !ok {
		return
	}

	format := stock_health.OutputFormat(strings.ToLower(c.DefaultQuery("format", string(stock_health.FormatComplete))))
	if format != stock_health.FormatComplete && format != stock_health.FormatReorder {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid format", "details": fmt.Sprintf("unsupported format %q", format)})
		return
	}

	// buffer so a failed query can still produce a JSON error
	var buf strings.Builder
	if err := h.service.ExportCSV(c.Request.Context(), &buf, filter, format); err != nil {
		failure(c, "failed to export recommendations", err)
		return
	}

	filename := fmt.Sprintf("stock_health_%s_%s.csv", format, time.Now().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", []byte(buf.String()))
}

func (h *StockHealthHandler) Refresh(c *gin.Context) {
	result, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		failure(c, "failed to refresh stock health", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UploadRecords ingests every CSV or XLSX file of the "files" form field and
// refreshes the stored recommendations once all of them are stored.
func (h *StockHealthHandler) UploadRecords(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data", "details": err.Error()})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	uploads := make([]service.RecordFile, 0, len(files))
	for _, file := range files {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload", "details": err.Error()})
			return
		}
		defer f.Close()
		uploads = append(uploads, service.RecordFile{Name: file.Filename, Body: f})
	}

	// every file is validated before anything is stored
	total, err := h.service.IngestFiles(c.Request.Context(), uploads)
	if err != nil {
		failure(c, "failed to ingest records", err)
		return
	}

	result, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		failure(c, "records stored but refresh failed", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"files":   len(files),
		"records": total,
		"refresh": result,
	})
}
