package database

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

func openMemory(t *testing.T) *DB {
	t.Helper()

	cfg := &Config{Driver: DriverSQLite, Path: ":memory:", ConnectRetries: 1}
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())

	db, err := Open(context.Background(), cfg, logging.NewNopLogger(), collector)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "postgres",
			cfg: Config{
				Driver: DriverPostgres, Host: "db", Port: 5432,
				User: "soil", Password: "secret", Database: "soil", SSLMode: "disable",
			},
			want: "host=db port=5432 user=soil password=secret dbname=soil sslmode=disable",
		},
		{
			name: "sqlite file",
			cfg:  Config{Driver: DriverSQLite, Path: "/tmp/soil.db"},
			want: "file:/tmp/soil.db?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000",
		},
		{
			name: "sqlite memory",
			cfg:  Config{Driver: DriverSQLite, Path: ":memory:"},
			want: "file::memory:?_foreign_keys=on",
		},
		{
			name:    "unsupported driver",
			cfg:     Config{Driver: "oracle"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.DSN()
			if (err != nil) != tt.wantErr {
				t.Fatalf("DSN() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrateUpAndDown(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	applied, err := db.Migrate(ctx, "up")
	if err != nil {
		t.Fatalf("Migrate(up) error = %v", err)
	}
	if len(applied) != 1 || !strings.HasSuffix(applied[0], "001_create_soil_readings.up.sql") {
		t.Errorf("Migrate(up) applied = %v", applied)
	}

	// idempotent
	if _, err := db.Migrate(ctx, "up"); err != nil {
		t.Fatalf("second Migrate(up) error = %v", err)
	}

	_, err = db.ExecContext(ctx, "test_insert",
		`INSERT INTO soil_readings (id, recorded_at, nitrogen, ph, moisture, crop) VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?)`,
		"r1", 2.5, 6.2, 70.0, "rice")
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}

	var count int
	if err := db.GetContext(ctx, "test_count", &count, `SELECT COUNT(*) FROM soil_readings`); err != nil {
		t.Fatalf("count error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	_, err = db.ExecContext(ctx, "test_insert",
		`INSERT INTO soil_readings (id, recorded_at, nitrogen, ph, moisture, crop) VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?)`,
		"r2", 2.5, 15.0, 70.0, "rice")
	if err == nil {
		t.Error("insert with ph 15 succeeded, want CHECK constraint failure")
	}

	if _, err := db.Migrate(ctx, "down"); err != nil {
		t.Fatalf("Migrate(down) error = %v", err)
	}
	if err := db.GetContext(ctx, "test_count", &count, `SELECT COUNT(*) FROM soil_readings`); err == nil {
		t.Error("table still present after Migrate(down)")
	}
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	db := openMemory(t)
	if _, err := db.Migrate(context.Background(), "sideways"); err == nil {
		t.Error("Migrate(sideways) error = nil, want error")
	}
}

func TestHealthCheck(t *testing.T) {
	db := openMemory(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if got := db.Driver(); got != DriverSQLite {
		t.Errorf("Driver() = %q, want %q", got, DriverSQLite)
	}
	if got := db.Rebind("SELECT ? , ?"); got != "SELECT ? , ?" {
		t.Errorf("Rebind() = %q, want sqlite placeholders unchanged", got)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	cfg := &Config{Driver: "oracle"}
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
	if _, err := Open(context.Background(), cfg, logging.NewNopLogger(), collector); err == nil {
		t.Error("Open() error = nil, want unsupported driver error")
	}
}
