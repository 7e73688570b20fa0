package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"miqat/internal/api"
	"miqat/internal/config"
	"miqat/internal/scheduler"
	"miqat/internal/services"
	"miqat/internal/storage"
	"miqat/pkg/client"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting miqat schedule engine")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Open persistence; a broken store degrades to in-memory, never fatal.
	var store storage.Store
	store, err = storage.NewSQLite(cfg.Store.Path)
	if err != nil {
		logger.Warn("Persistent store unavailable, running in-memory", zap.Error(err))
		store = storage.NewMemory()
	}
	defer store.Close()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	engine := buildEngine(cfg, store, logger)
	engine.Resolver().Start(rootCtx)

	ticker := scheduler.NewTicker(engine, logger)
	if err := ticker.Start(); err != nil {
		logger.Fatal("Failed to start ticker", zap.Error(err))
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	// Setup handlers and routes
	handler := api.NewHandler(engine, logger)
	api.SetupRoutes(app, handler, logger)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ticker.Stop()
	rootCancel()
	engine.Resolver().Close()
	engine.Close()

	// Shutdown Fiber app
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func buildEngine(cfg *config.Config, store storage.Store, logger *zap.Logger) *services.Engine {
	baseClientConfig := client.ClientConfig{
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}

	ipConfig := baseClientConfig
	ipConfig.Timeout = cfg.Location.IPTimeout
	chain := client.NewIPChain(client.DefaultProviders(), ipConfig, logger)

	serviceConfig := baseClientConfig
	serviceConfig.Timeout = 10 * time.Second
	aladhan := client.NewAlAdhanClient(cfg.Services.CalendarBaseURL, serviceConfig, logger)
	nominatim := client.NewNominatimClient(cfg.Services.GeocodeBaseURL, serviceConfig, logger)

	resolver := services.NewResolver(services.ResolverConfig{
		Default:                 cfg.Location.Default,
		GPSHighTimeout:          cfg.Location.GPSHighTimeout,
		GPSLowTimeout:           cfg.Location.GPSLowTimeout,
		AccuracyThresholdMeters: cfg.Location.AccuracyThresholdMeters,
	}, store, chain, services.NoGPS{}, nil, logger)

	scheduleEngine := services.NewScheduleEngine(aladhan, logger)
	reconciler := services.NewReconciler(aladhan, cfg.Calculation.KarachiDayOffset, logger)

	settings := services.NewSettingsManager(store, services.RegionBounds{
		MinLat: cfg.Calculation.SouthAsiaMinLat,
		MaxLat: cfg.Calculation.SouthAsiaMaxLat,
		MinLon: cfg.Calculation.SouthAsiaMinLon,
		MaxLon: cfg.Calculation.SouthAsiaMaxLon,
	}, logger)

	// Operator-pinned convention wins over auto-selection.
	if cfg.Calculation.Convention.Known() {
		if err := settings.SetConvention(cfg.Calculation.Convention); err != nil {
			logger.Warn("Ignoring configured convention", zap.Error(err))
		}
	}

	places := services.NewPlaceNameCache(store, cfg.Cache.MaxPlaceNames, logger)

	return services.NewEngine(services.EngineConfig{
		SafetyBufferMinutes: cfg.Forbidden.SafetyBufferMinutes,
		ZawalBufferMinutes:  cfg.Forbidden.ZawalBufferMinutes,
	}, resolver, scheduleEngine, reconciler, settings, places, nominatim, logger)
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	// Default to 500 status code
	code := fiber.StatusInternalServerError

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
