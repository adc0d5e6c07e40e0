package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/cache"
	"github.com/andresuchdata/medstock/backend-go/internal/config"
	"github.com/andresuchdata/medstock/backend-go/internal/drive"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/repository"
	"github.com/andresuchdata/medstock/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/andresuchdata/medstock/backend-go/pkg/logger"
	"github.com/gorilla/mux"
)

// Drive ingest API: lists, downloads and ingests stock record files from Google Drive.
func main() {
	cfg := config.Load()
	logger.SetLevel(cfg.App.LogLevel)

	credentials := cfg.Drive.CredentialsJSON
	if credentials == "" {
		logger.Log.Fatal().Msg("GOOGLE_DRIVE_CREDENTIALS_JSON is required")
	}

	ctx := context.Background()
	driveService, err := drive.NewService(ctx, credentials)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize Google Drive service")
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db.DB); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to prepare schema")
	}

	stockHealthCache, err := cache.NewStockHealthCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Redis unavailable, refresh will not invalidate cache")
		stockHealthCache = cache.NewNoopStockHealthCache()
	}

	stockHealthService := service.NewStockHealthService(
		repository.NewStockRecordRepository(db),
		repository.NewStockHealthRepository(db),
		stockHealthCache,
		stock_health.NewAnalyzer(service.AnalyzerConfig(cfg.Analytics)),
	)

	ingestService := drive.NewIngestService(driveService, stockHealthService)
	refresh := func(ctx context.Context) error {
		_, err := stockHealthService.Refresh(ctx)
		return err
	}

	r := mux.NewRouter()
	drive.NewHandler(driveService, ingestService, refresh).RegisterRoutes(r)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	logger.Log.Info().Str("addr", srv.Addr).Msg("Drive API starting")
	if err := srv.ListenAndServe(); err != nil {
		logger.Log.Error().Err(err).Msg("Drive API stopped")
		os.Exit(1)
	}
}
