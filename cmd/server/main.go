package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/api"
	"github.com/andresuchdata/medstock/backend-go/internal/cache"
	"github.com/andresuchdata/medstock/backend-go/internal/config"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/repository"
	"github.com/andresuchdata/medstock/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/andresuchdata/medstock/backend-go/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.App.LogLevel)
	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
		logger.UseJSON(os.Stdout)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.EnsureSchema(ctx, db.DB); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to prepare schema")
	}

	stockHealthCache, err := cache.NewStockHealthCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Redis unavailable, serving without cache")
		stockHealthCache = cache.NewNoopStockHealthCache()
	}

	stockHealthService := service.NewStockHealthService(
		repository.NewStockRecordRepository(db),
		repository.NewStockHealthRepository(db),
		stockHealthCache,
		stock_health.NewAnalyzer(service.AnalyzerConfig(cfg.Analytics)),
	)

	router := api.NewRouter(&api.Services{StockHealthService: stockHealthService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	var wg sync.WaitGroup
	if interval := cfg.Analytics.RefreshInterval(); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			service.RunRefreshLoop(ctx, stockHealthService, interval)
		}()
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wg.Wait()

	logger.Log.Info().Msg("Server exiting")
}
