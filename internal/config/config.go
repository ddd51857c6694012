// Package config provides YAML-based configuration loading for mimir.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Config is the top-level mimir configuration, loaded from mimir.yaml.
type Config struct {
	Author    string         `yaml:"author"`
	LogLevel  string         `yaml:"log_level"`
	StateFile string         `yaml:"state_file"`
	Database  DatabaseConfig `yaml:"database"`
	Server    ServerConfig   `yaml:"server"`
}

// DatabaseConfig selects the storage driver and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Echo   bool   `yaml:"echo"`
}

// ServerConfig holds settings for `mimir serve`.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// homeDir is swapped in tests.
var homeDir = os.UserHomeDir

// Dir returns the per-user mimir directory (~/.mimir).
func Dir() string {
	home, err := homeDir()
	if err != nil || home == "" {
		return ".mimir"
	}
	return filepath.Join(home, ".mimir")
}

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return build(data, os.Getenv)
}

// Parse unmarshals YAML bytes into a validated Config without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return build(data, func(string) string { return "" })
}

// ParseWithEnv is Parse with environment overrides taken from getenv.
func ParseWithEnv(data []byte, getenv func(string) string) (*Config, error) {
	return build(data, getenv)
}

func build(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays MIMIR_* variables (and DATABASE_URL) on the file values.
func (c *Config) applyEnv(getenv func(string) string) error {
	dbURL := getenv("MIMIR_DATABASE_URL")
	if dbURL == "" {
		dbURL = getenv("DATABASE_URL")
	}
	if dbURL != "" {
		driver, dsn, err := ParseDatabaseURL(dbURL)
		if err != nil {
			return err
		}
		c.Database.DSN = dsn
		if driver != "" {
			c.Database.Driver = driver
		}
	}
	if v := getenv("MIMIR_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("MIMIR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("MIMIR_AUTHOR"); v != "" {
		c.Author = v
	}
	if v := getenv("MIMIR_STATE_FILE"); v != "" {
		c.StateFile = v
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Author == "" {
		c.Author = "default"
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StateFile == "" {
		c.StateFile = filepath.Join(Dir(), "state.yaml")
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.DSN == "" && c.Database.Driver == DriverSQLite {
		c.Database.DSN = filepath.Join(Dir(), "mimir.db")
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8088
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	case DriverMySQL:
		if c.Database.DSN != "" {
			if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
				errs = append(errs, fmt.Sprintf("database.dsn is not a valid mysql DSN: %v", err))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of sqlite, mysql, postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseDatabaseURL maps a database URL onto a driver name and a DSN the
// matching GORM driver accepts. Bare paths are treated as sqlite files and
// return an empty driver so the configured driver is kept.
func ParseDatabaseURL(raw string) (driver, dsn string, err error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "", raw, nil
	}
	// SQLAlchemy-style dialect suffixes (postgresql+psycopg) name the same database.
	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")
	switch base {
	case "postgres", "postgresql":
		return DriverPostgres, "postgres://" + rest, nil
	case "sqlite", "sqlite3", "file":
		// sqlite:///abs/path keeps its leading slash.
		return DriverSQLite, rest, nil
	case "mysql":
		u, perr := url.Parse("mysql://" + rest)
		if perr != nil {
			return "", "", fmt.Errorf("config: parse database url: %w", perr)
		}
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = u.Host
		mc.DBName = strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			mc.User = u.User.Username()
			mc.Passwd, _ = u.User.Password()
		}
		mc.ParseTime = true
		return DriverMySQL, mc.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("config: unsupported database url scheme %q", scheme)
	}
}
