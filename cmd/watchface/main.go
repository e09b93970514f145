package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/go-co-op/gocron"
	"github.com/goodsign/monday"
	"github.com/koios/matrx-watchface/internal/amqp"
	"github.com/koios/matrx-watchface/internal/config"
	"github.com/koios/matrx-watchface/internal/face"
	"github.com/koios/matrx-watchface/internal/handlers"
	"github.com/koios/matrx-watchface/internal/ingest"
	"github.com/koios/matrx-watchface/internal/redis"
	"github.com/koios/matrx-watchface/internal/render"
	"github.com/koios/matrx-watchface/pkg/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// uploaded icons are kept for a day after their last use, and for a day
// in the shared store
const memoryAssetTTL = 24 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	theme, err := models.LoadTheme(cfg.ThemePath)
	if err != nil {
		logger.Fatal("Failed to load theme", zap.String("path", cfg.ThemePath), zap.Error(err))
	}

	fonts, err := render.LoadFonts()
	if err != nil {
		logger.Fatal("Failed to load fonts", zap.Error(err))
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewClock()
	surface := render.NewFrameBuffer(cfg.Device.Width, cfg.Device.Height, fonts)
	peek := &render.PeekCardState{}
	memory := ingest.NewMemoryAssets(clk, memoryAssetTTL)
	push := ingest.NewPushSource()

	sources := []ingest.Source{push}
	fetchers := ingest.FallbackFetcher{memory}
	checks := map[string]handlers.HealthCheck{}

	// Redis carries weather, icon assets and rendered frames
	var publisher *redis.FramePublisher
	var sharedAssets handlers.SharedAssetStore
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without it", zap.Error(err))
		} else {
			defer client.Close()

			sources = append(sources, redis.NewWeatherSource(client, cfg.Device.ID, logger))

			assetStore := redis.NewAssetStore(client, cfg.Redis.AssetPrefix)
			sharedAssets = assetStore
			breaker := ingest.NewBreakerFetcher("redis-assets", assetStore,
				cfg.Ingest.BreakerFailures, 0, logger)
			fetchers = append(fetchers, breaker)

			checks["redis"] = func(ctx context.Context) error {
				if !client.IsHealthy(ctx) {
					return errors.New("ping failed")
				}
				return nil
			}
			checks["asset_breaker"] = func(context.Context) error {
				if breaker.State() == gobreaker.StateOpen {
					return gobreaker.ErrOpenState
				}
				return nil
			}

			if cfg.Redis.PublishFrames {
				publisher = redis.NewFramePublisher(client, cfg.Device.ID, logger)
				publisher.Start()
				surface.OnPresent(publisher.Present)
			}
		}
	}

	if cfg.AMQP.Enabled {
		conn := amqp.NewConnection(cfg.AMQP, logger)
		defer conn.Close()
		sources = append(sources, amqp.NewWeatherSource(conn, cfg.Device.ID, logger))
	}

	pool := ingest.NewWorkerPool(cfg.Ingest.Workers, fetchers, nil, cfg.Ingest.FetchTimeout, logger)
	pool.Start()

	pipeline := ingest.NewPipeline(pool, logger, sources...)

	engine := face.NewEngine(face.Options{
		Theme:    theme,
		Clock:    clk,
		Zone:     deviceZone(cfg.Device, logger),
		Weather:  pipeline,
		Surface:  surface,
		PeekCard: peek,
		Logger:   logger,
		Round:    cfg.Device.Round,
	})

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Watch face stopped", zap.Error(err))
		}
	}()

	// Initial system callbacks as a device would deliver them
	for _, ev := range []models.LifecycleEvent{
		models.InsetsApplied(cfg.Device.Round),
		models.PropertiesChanged(cfg.Device.LowBitAmbient),
		models.VisibilityChanged(cfg.Device.StartVisible),
	} {
		if err := engine.Post(ctx, ev); err != nil {
			logger.Fatal("Failed to start watch face", zap.Error(err))
		}
	}

	// Ambient mode relies on the system minute tick
	ticker := gocron.NewScheduler(time.Local)
	if _, err := ticker.Cron("* * * * *").Do(func() {
		if err := engine.Post(ctx, models.TimeTicked()); err != nil {
			logger.Debug("Dropping time tick", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("Failed to schedule time ticks", zap.Error(err))
	}
	ticker.StartAsync()

	// Create HTTP server for the device host API
	mux := http.NewServeMux()
	hostHandler := handlers.NewHostHandler(handlers.HostOptions{
		Events:         engine,
		Frames:         surface,
		Peek:           peek,
		Weather:        push,
		Assets:         memory,
		SharedAssets:   sharedAssets,
		SharedAssetTTL: memoryAssetTTL,
		Checks:         checks,
		Clock:          clk,
		Logger:         logger,
	})
	hostHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Watch face started",
		zap.String("device_id", cfg.Device.ID),
		zap.Int("width", cfg.Device.Width),
		zap.Int("height", cfg.Device.Height),
		zap.Int("sources", len(sources)))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down watch face...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	ticker.Stop()

	// Stopping the engine unsubscribes every source
	cancel()
	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded")
	}

	pool.Stop()
	if publisher != nil {
		publisher.Stop()
	}
	logger.Info("Watch face shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

// deviceZone resolves the configured zone on every resync; an empty or
// unknown zone falls back to the host's local zone
func deviceZone(dev config.DeviceConfig, logger *zap.Logger) face.ZoneResolver {
	locale := monday.Locale(dev.Locale)
	return func() (*time.Location, monday.Locale) {
		if dev.Timezone == "" {
			return time.Local, locale
		}
		loc, err := time.LoadLocation(dev.Timezone)
		if err != nil {
			logger.Warn("Unknown device timezone, using local time",
				zap.String("timezone", dev.Timezone),
				zap.Error(err))
			return time.Local, locale
		}
		return loc, locale
	}
}
