package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"soil-advisor/internal/config"
	"soil-advisor/internal/ingest"
	"soil-advisor/internal/repository"
	"soil-advisor/internal/services"
	"soil-advisor/pkg/dedup"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

const version = "1.0.0"

func main() {
	dataDir := flag.String("data-dir", "", "Directory of CSV reading files to import")
	files := flag.String("files", "", "Comma-separated CSV files to import")
	batchSize := flag.Int("batch-size", 100, "Number of readings to store per batch")
	subscribe := flag.Bool("mqtt", false, "Stay running and record readings published over MQTT")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *dataDir == "" && *files == "" && !*subscribe {
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -data-dir, -files or -mqtt")
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.NewStructuredLogger("soil-advisor-ingester", version, logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[INGESTER_START] Starting soil reading ingestion", logging.Fields{
		"version":    version,
		"data_dir":   *dataDir,
		"files":      *files,
		"batch_size": *batchSize,
		"mqtt":       *subscribe,
	})

	metricsCollector := metrics.NewCollector("soil_advisor_ingester")

	repo, closeRepo, err := repository.Open(ctx, cfg.Database, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to open reading log", logging.Fields{}, err)
	}
	defer closeRepo()

	readingService := services.NewReadingService(repo, logger, metricsCollector)
	ingestionService := services.NewIngestionService(readingService, logger, metricsCollector)

	if *dataDir != "" {
		result, err := ingestionService.IngestDirectory(ctx, *dataDir, *batchSize)
		if err != nil {
			logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
				"data_dir": *dataDir,
			}, err)
		}
		printResult(result)
	}

	if *files != "" {
		result, err := ingestionService.IngestFiles(ctx, splitList(*files), *batchSize)
		if err != nil {
			logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
				"files": *files,
			}, err)
		}
		printResult(result)
	}

	if *subscribe {
		client, err := ingest.Connect(ctx, cfg.MQTT, logger)
		if err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to MQTT broker", logging.Fields{
				"host": cfg.MQTT.Host,
			}, err)
		}
		subscriber := ingest.NewSubscriber(client, cfg.MQTT.Topic, cfg.MQTT.QoS, readingService,
			dedup.New(cfg.MQTT.DedupTTL, 0), logger, metricsCollector)
		if err := subscriber.Run(ctx); err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Subscriber failed", logging.Fields{}, err)
		}
	}

	logger.Info(context.Background(), "[INGESTER_COMPLETE] Ingestion finished", logging.Fields{})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printResult(result *services.IngestionResult) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Files:        %d\n", result.TotalFiles)
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Successful Records: %d\n", result.SuccessfulRecords)
	fmt.Printf("Failed Records:     %d\n", result.FailedRecords)
	fmt.Printf("Duration:           %v\n", result.Duration)
	if secs := result.Duration.Seconds(); secs > 0 {
		fmt.Printf("Records/Second:     %.2f\n", float64(result.SuccessfulRecords)/secs)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}
}
