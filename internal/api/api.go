package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/api/handlers"
	"github.com/andresuchdata/medstock/backend-go/internal/api/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	StockHealthService handlers.StockHealthService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil && services.StockHealthService != nil {
		stockHealthHandler := handlers.NewStockHealthHandler(services.StockHealthService)
		stockHealthGroup := apiGroup.Group("/analytics/stock_health")
		{
			stockHealthGroup.GET("/summary", stockHealthHandler.GetSummary)
			stockHealthGroup.GET("/recommendations", stockHealthHandler.GetRecommendations)
			stockHealthGroup.GET("/reorder", stockHealthHandler.GetReorderList)
			stockHealthGroup.GET("/statuses", stockHealthHandler.GetStatuses)
			stockHealthGroup.GET("/alerts", stockHealthHandler.GetAlerts)
			stockHealthGroup.GET("/hospitals", stockHealthHandler.GetHospitalBreakdown)
			stockHealthGroup.GET("/dashboard", stockHealthHandler.GetDashboard)
			stockHealthGroup.GET("/available_dates", stockHealthHandler.GetAvailableDates)
			stockHealthGroup.GET("/export", stockHealthHandler.Export)
			stockHealthGroup.POST("/refresh", stockHealthHandler.Refresh)
			stockHealthGroup.POST("/records", stockHealthHandler.UploadRecords)
		}
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(allowedOrigins) > 0 {
		normalized, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			cfg.AllowOrigins = nil
			cfg.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalized) > 0 {
			cfg.AllowOrigins = normalized
		}
	}

	return cfg
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
