package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

//go:embed migrations
var migrationsFS embed.FS

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database connection configuration
type Config struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Path            string // sqlite3 file path, or ":memory:"
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectRetries  int
}

// DSN builds the driver-specific connection string
func (c *Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		), nil
	case DriverSQLite:
		if c.Path == ":memory:" {
			return "file::memory:?_foreign_keys=on", nil
		}
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", c.Path), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// DB wraps sqlx.DB with monitoring and metrics
type DB struct {
	db      *sqlx.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config

	stop     chan struct{}
	stopOnce sync.Once
}

// Open connects to the configured database, retrying the initial ping with
// exponential backoff so the API can start before the database is ready.
func Open(ctx context.Context, cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	switch {
	case cfg.Driver == DriverSQLite && cfg.Path == ":memory:":
		// the database lives exactly as long as its one connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case cfg.Driver == DriverSQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	default:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	err = backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn(ctx, "[DB_CONNECT_RETRY] Database not reachable yet", logging.Fields{
				"driver": cfg.Driver,
				"error":  err.Error(),
			})
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(ctx, "[DB_INIT] Database connection established", logging.Fields{
		"driver":            cfg.Driver,
		"host":              cfg.Host,
		"database":          cfg.Database,
		"path":              cfg.Path,
		"max_open_conns":    cfg.MaxOpenConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	d := &DB{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
		stop:    make(chan struct{}),
	}

	go d.monitorConnectionPool()

	return d, nil
}

// Close stops pool monitoring and closes the database connection
func (d *DB) Close() error {
	d.stopOnce.Do(func() { close(d.stop) })
	d.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
		"driver": d.config.Driver,
	})
	return d.db.Close()
}

// Driver returns the configured driver name
func (d *DB) Driver() string {
	return d.config.Driver
}

// Rebind converts '?' placeholders to the driver's bind style
func (d *DB) Rebind(query string) string {
	return d.db.Rebind(query)
}

// ExecContext executes a command with context and metrics
func (d *DB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		d.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := d.db.ExecContext(ctx, d.db.Rebind(query), args...)
	if err != nil {
		d.metrics.RecordDBError("exec_error")
		d.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a query that returns a single row
func (d *DB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	err := d.db.GetContext(ctx, dest, d.db.Rebind(query), args...)
	if err != nil && err != sql.ErrNoRows {
		d.metrics.RecordDBError("get_error")
		d.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (d *DB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		d.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	err := d.db.SelectContext(ctx, dest, d.db.Rebind(query), args...)
	if err != nil {
		d.metrics.RecordDBError("select_error")
		d.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}

// BeginTx begins a new transaction
func (d *DB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	var opts *sql.TxOptions
	if d.config.Driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		d.metrics.RecordDBError("transaction_begin_error")
		d.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, err
	}

	return tx, nil
}

// Migrate applies the embedded schema for the configured driver.
// direction is "up" or "down"; down files run in reverse order.
func (d *DB) Migrate(ctx context.Context, direction string) ([]string, error) {
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("invalid migration direction %q", direction)
	}

	files, err := fs.Glob(migrationsFS, fmt.Sprintf("migrations/%s/*.%s.sql", d.config.Driver, direction))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s migrations for driver %s", direction, d.config.Driver)
	}

	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	for _, name := range files {
		content, err := migrationsFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := d.db.ExecContext(ctx, string(content)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		d.logger.Info(ctx, "[DB_MIGRATE] Migration applied", logging.Fields{
			"file":      name,
			"direction": direction,
		})
	}

	return files, nil
}

// monitorConnectionPool periodically updates connection pool metrics
func (d *DB) monitorConnectionPool() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
		}

		stats := d.db.Stats()

		d.metrics.UpdateDBConnectionPool(
			stats.InUse,
			stats.Idle,
			stats.OpenConnections,
		)

		if stats.MaxOpenConnections <= 0 {
			continue
		}
		utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections)
		if utilization > 0.8 {
			d.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
				"in_use":      stats.InUse,
				"idle":        stats.Idle,
				"total":       stats.OpenConnections,
				"max_open":    stats.MaxOpenConnections,
				"utilization": fmt.Sprintf("%.2f%%", utilization*100),
			})
		}
	}
}

// HealthCheck performs a database health check
func (d *DB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
