package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"avm/config"
	"avm/internal/api"
	"avm/internal/database"
	"avm/internal/geocoding"
	"avm/internal/geometry"
	"avm/internal/narrative"
	"avm/internal/poi"
	"avm/internal/processor"
	"avm/internal/queue"
	"avm/internal/scheduler"
	"avm/internal/valuation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	// Make sure the database directory exists before sqlite opens the file
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.WithError(err).Fatal("Failed to create database directory")
		}
	}
	logger.Infof("Using database at: %s", cfg.Database.Path)

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	segments, err := config.LoadSegments(cfg.Valuation.SegmentsFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load segment tables")
	}

	var boundaries *geometry.BoundaryIndex
	if cfg.Valuation.BoundariesFile != "" {
		boundaries, err = geometry.LoadBoundaries(cfg.Valuation.BoundariesFile, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load neighborhood boundaries")
		}
		logger.WithField("areas", boundaries.Len()).Info("Loaded neighborhood boundaries")
	}

	var geocoder *geocoding.Geocoder
	if cfg.Geocoding.Enabled {
		cacheDir := cfg.Geocoding.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(os.TempDir(), "avm", "geocode_cache")
		}
		geocoder = geocoding.NewGeocoder(logger, cacheDir, cfg.Geocoding.BaseURL)
	}
	resolver := geocoding.NewResolver(boundaries, geocoder, logger)

	var provider poi.Provider
	if cfg.POI.APIKey != "" {
		var places poi.Provider = poi.NewPlacesClient(cfg.POI.APIKey,
			poi.WithBaseURL(cfg.POI.BaseURL),
			poi.WithRateLimit(cfg.POI.RateLimit),
			poi.WithMaxResults(cfg.POI.MaxResults),
			poi.WithLogger(logger),
		)
		if cfg.Cache.RedisAddr != "" {
			rdb := poi.NewRedisClient(cfg.Cache.RedisAddr)
			defer rdb.Close()
			places = poi.NewCachedProvider(places, rdb, cfg.Cache.TTL, logger)
		}
		provider = places
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, location scores use default POIs")
	}
	scanner := poi.NewScanner(provider, cfg.POI.Concurrency, cfg.POI.Timeout, logger)

	confidence, err := valuation.NewConfidenceModel(cfg.Valuation.ConfidenceModel)
	if err != nil {
		logger.WithError(err).Fatal("Invalid confidence model")
	}

	engine := valuation.NewEngine(db, scanner, segments, confidence, valuation.EngineOptions{
		ArchiveWindowDays: cfg.Valuation.ArchiveWindowDays,
		TrendEnabled:      cfg.Valuation.TrendEnabled,
	}, logger)

	var narrator valuation.Narrator
	if generator := narrative.NewGenerator(cfg.Narrative.APIKey, cfg.Narrative.URL, cfg.Narrative.Model, cfg.Narrative.Timeout, logger); generator.Enabled() {
		narrator = generator
	}

	recordQueue := queue.NewRecordQueue(cfg.BatchProcessing.QueueSize, logger)
	archiver := processor.NewBatchProcessor(db.Gorm(), recordQueue, cfg, logger)
	archiver.Start()

	service := valuation.NewService(engine, resolver, narrator, archiver, cfg.Narrative.Timeout, logger)

	retention := scheduler.NewScheduler(db, logger, time.Duration(cfg.Retention.IntervalHours)*time.Hour, cfg.Valuation.ArchiveWindowDays)
	retention.Start()

	gin.SetMode(cfg.Server.GinMode)
	router := api.NewRouter(cfg.Server.CORSOrigins, logger)
	api.SetupRoutes(router,
		api.NewHandler(service, db, db.GetDB(), logger),
		api.NewSegmentHandler(segments, resolver, logger),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	retention.Stop()
	archiver.Stop()
	logger.Info("Server exited")
}
