package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"soil-advisor/internal/config"
	"soil-advisor/pkg/database"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
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
	if cfg.Database.Driver == "memory" {
		fmt.Println("Memory driver has no schema; nothing to migrate")
		return
	}

	logger := logging.NewStructuredLogger("soil-advisor-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	db, err := database.Open(ctx, cfg.Database.Connection(), logger, metrics.NewCollector("soil_advisor_migrate"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database successfully\n", db.Driver())

	applied, err := db.Migrate(ctx, *direction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
		os.Exit(1)
	}

	for _, name := range applied {
		fmt.Printf("Ran migration: %s\n", name)
	}
	fmt.Println("Migration completed successfully")
}
