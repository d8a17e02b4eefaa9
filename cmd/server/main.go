package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soil-advisor/internal/config"
	"soil-advisor/internal/handlers"
	"soil-advisor/internal/ingest"
	"soil-advisor/internal/repository"
	"soil-advisor/internal/services"
	"soil-advisor/internal/weather"
	"soil-advisor/pkg/dedup"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("soil-advisor-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting soil advisor API server", logging.Fields{
		"version":      version,
		"server_host":  cfg.Server.Host,
		"server_port":  cfg.Server.Port,
		"db_driver":    cfg.Database.Driver,
		"mqtt_enabled": cfg.MQTT.Enabled,
	})

	metricsCollector := metrics.NewCollector("soil_advisor")

	repo, closeRepo, err := repository.Open(ctx, cfg.Database, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open reading log", logging.Fields{
			"driver": cfg.Database.Driver,
		}, err)
	}
	defer closeRepo()

	readingService := services.NewReadingService(repo, logger, metricsCollector)

	var weatherService *services.WeatherService
	if cfg.Weather.APIKey != "" {
		client := weather.NewOpenWeatherClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, cfg.Weather.Timeout)
		provider := weather.NewCachedProvider(client, cfg.Weather.CacheTTL, weather.BreakerSettings{
			Failures: cfg.Weather.BreakerFails,
			OpenFor:  cfg.Weather.BreakerOpenFor,
		}, logger, metricsCollector)
		weatherService = services.NewWeatherService(provider, logger, metricsCollector)
	} else {
		logger.Warn(ctx, "[STARTUP] No weather API key configured, /api/weather disabled", logging.Fields{})
	}

	// MQTT subscription runs alongside the API when enabled
	subscriberDone := make(chan struct{})
	if cfg.MQTT.Enabled {
		client, err := ingest.Connect(ctx, cfg.MQTT, logger)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to MQTT broker", logging.Fields{
				"host": cfg.MQTT.Host,
			}, err)
		}
		subscriber := ingest.NewSubscriber(client, cfg.MQTT.Topic, cfg.MQTT.QoS, readingService,
			dedup.New(cfg.MQTT.DedupTTL, 0), logger, metricsCollector)
		go func() {
			defer close(subscriberDone)
			if err := subscriber.Run(ctx); err != nil {
				logger.Error(ctx, "[MQTT_ERROR] Subscriber stopped", logging.Fields{}, err)
			}
		}()
	} else {
		close(subscriberDone)
	}

	soilHandler := handlers.NewSoilHandler(readingService, weatherService, logger, metricsCollector)
	router := handlers.NewRouter(soilHandler, promhttp.Handler(), logger, metricsCollector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	<-ctx.Done()

	logger.Info(context.Background(), "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}
	<-subscriberDone

	logger.Info(shutdownCtx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

