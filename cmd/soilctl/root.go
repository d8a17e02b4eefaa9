package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"soil-advisor/internal/config"
	"soil-advisor/internal/repository"
	"soil-advisor/internal/services"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// lookupEnv is swapped in tests to isolate them from the caller's environment
var lookupEnv = os.LookupEnv

// cli holds the persistent flags and the store opened for one invocation
type cli struct {
	configPath string
	driver     string
	dbPath     string
	jsonOut    bool
	verbose    bool

	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "soilctl",
		Short: "Soil Advisor - record soil readings and get crop guidance",
		Long: `A CLI for the soil reading log. Records nitrogen, pH and moisture
readings, summarizes trends and diagnoses the latest reading against the
crop knowledge base.`,
		SilenceUsage: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.closeLog != nil {
				return c.closeLog()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (default $SOIL_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&c.driver, "driver", "", "Reading log driver: sqlite3, postgres or memory")
	rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "Path to SQLite database")
	rootCmd.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print JSON instead of text")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Write structured logs to stderr")

	rootCmd.AddCommand(c.recordCmd())
	rootCmd.AddCommand(c.historyCmd())
	rootCmd.AddCommand(c.summaryCmd())
	rootCmd.AddCommand(c.diagnoseCmd())
	rootCmd.AddCommand(c.cropsCmd())
	rootCmd.AddCommand(c.importCmd())

	return rootCmd
}

// loadConfig applies the --config, --driver and --db overrides on top of
// the usual defaults and SOIL_* environment
func (c *cli) loadConfig(lookup func(string) (string, bool)) (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path, _ = lookup("SOIL_CONFIG")
	}

	cfg, err := config.Load(path, lookup)
	if err != nil {
		return nil, err
	}
	if c.driver != "" {
		cfg.Database.Driver = c.driver
	}
	if c.dbPath != "" {
		cfg.Database.Path = c.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// open prepares logging and the reading log for a command that needs one
func (c *cli) open(cmd *cobra.Command) (*services.ReadingService, error) {
	cfg, err := c.loadConfig(lookupEnv)
	if err != nil {
		return nil, err
	}

	c.logger = logging.NewNopLogger()
	if c.verbose {
		c.logger = logging.NewStructuredLogger("soilctl", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
		c.logger.SetOutput(cmd.ErrOrStderr())
	}
	// the CLI has no /metrics endpoint; counters stay process-local
	c.metrics = metrics.NewCollectorWithRegistry("soilctl", prometheus.NewRegistry())

	ctx := c.context(cmd)
	repo, closeFn, err := repository.Open(ctx, cfg.Database, c.logger, c.metrics)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	c.closeLog = closeFn

	return services.NewReadingService(repo, c.logger, c.metrics), nil
}

func (c *cli) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return logging.WithSource(ctx, "cli")
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
