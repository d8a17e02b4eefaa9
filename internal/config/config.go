package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"soil-advisor/pkg/database"
)

// Config is the full application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Weather  WeatherConfig  `yaml:"weather"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig selects and configures the reading log store.
// Driver is one of "postgres", "sqlite3" or "memory".
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectRetries  int           `yaml:"connect_retries"`
}

// Connection converts the settings into a pkg/database configuration
func (d DatabaseConfig) Connection() *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		Path:            d.Path,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		ConnectRetries:  d.ConnectRetries,
	}
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MQTTConfig configures the sensor reading subscription
type MQTTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	ClientID       string `yaml:"client_id"`
	Topic          string `yaml:"topic"`
	QoS            byte   `yaml:"qos"`
	ConnectRetries int    `yaml:"connect_retries"`
	// DedupTTL is how long a message_id is remembered to drop redeliveries
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// WeatherConfig configures the weather lookup upstream
type WeatherConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	BreakerFails   int           `yaml:"breaker_fails"`
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// Default returns the configuration used when nothing else is provided
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			Host:            "localhost",
			Port:            5432,
			User:            "soil",
			Database:        "soil_advisor",
			SSLMode:         "disable",
			Path:            "soil_advisor.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnectRetries:  5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		MQTT: MQTTConfig{
			Host:           "localhost",
			Port:           1883,
			ClientID:       "soil-advisor",
			Topic:          "soil/readings",
			QoS:            1,
			DedupTTL:       10 * time.Minute,
			ConnectRetries: 5,
		},
		Weather: WeatherConfig{
			BaseURL:        "https://api.openweathermap.org/data/2.5/weather",
			Timeout:        5 * time.Second,
			CacheTTL:       30 * time.Minute,
			BreakerFails:   3,
			BreakerOpenFor: 30 * time.Second,
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by
// SOIL_CONFIG (if set) and SOIL_* environment overrides, in that order.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("SOIL_CONFIG"), os.LookupEnv)
}

// Load is LoadConfig with an explicit file path and environment lookup
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("SOIL_SERVER_HOST", &cfg.Server.Host)
	e.integer("SOIL_SERVER_PORT", &cfg.Server.Port)
	e.duration("SOIL_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("SOIL_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	e.str("SOIL_DB_DRIVER", &cfg.Database.Driver)
	e.str("SOIL_DB_HOST", &cfg.Database.Host)
	e.integer("SOIL_DB_PORT", &cfg.Database.Port)
	e.str("SOIL_DB_USER", &cfg.Database.User)
	e.str("SOIL_DB_PASSWORD", &cfg.Database.Password)
	e.str("SOIL_DB_NAME", &cfg.Database.Database)
	e.str("SOIL_DB_SSLMODE", &cfg.Database.SSLMode)
	e.str("SOIL_DB_PATH", &cfg.Database.Path)
	e.integer("SOIL_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	e.str("SOIL_LOG_LEVEL", &cfg.Logging.Level)

	e.boolean("SOIL_MQTT_ENABLED", &cfg.MQTT.Enabled)
	e.str("SOIL_MQTT_HOST", &cfg.MQTT.Host)
	e.integer("SOIL_MQTT_PORT", &cfg.MQTT.Port)
	e.str("SOIL_MQTT_USER", &cfg.MQTT.User)
	e.str("SOIL_MQTT_PASSWORD", &cfg.MQTT.Password)
	e.str("SOIL_MQTT_TOPIC", &cfg.MQTT.Topic)

	e.str("SOIL_WEATHER_URL", &cfg.Weather.BaseURL)
	e.str("SOIL_WEATHER_API_KEY", &cfg.Weather.APIKey)

	return e.err
}

// Validate checks the configuration for values the binaries cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("postgres driver requires database host and name")
		}
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite3 driver requires a database path")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver %q (want postgres, sqlite3 or memory)", c.Database.Driver)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt topic is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}

	if c.Weather.CacheTTL < 0 {
		return fmt.Errorf("weather cache ttl must not be negative")
	}

	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = d
}
