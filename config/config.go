// Package config resolves trialdb settings from an optional YAML file and
// the environment. Environment values override the file; the file
// overrides built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/warp/trialdb/trial"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "trialdb.yaml"

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Environment variables.
const (
	EnvDBUser      = "DB_USER"
	EnvDBPass      = "DB_PASS"
	EnvDriver      = "TRIALDB_DRIVER"
	EnvSQLitePath  = "TRIALDB_SQLITE_PATH"
	EnvDSN         = "TRIALDB_DSN"
	EnvInput       = "TRIALDB_INPUT"
	EnvHTTPAddr    = "TRIALDB_HTTP_ADDR"
	EnvLogMode     = "TRIALDB_LOG_MODE"
	EnvS3Region    = "TRIALDB_S3_REGION"
	EnvS3Endpoint  = "TRIALDB_S3_ENDPOINT"
	EnvS3PathStyle = "TRIALDB_S3_PATH_STYLE"
)

type Config struct {
	Driver   string         `yaml:"driver"`
	Input    string         `yaml:"input"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"sslmode"`
}

type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Driver: DriverSQLite,
		Input:  "cell-count.csv",
		SQLite: SQLiteConfig{Path: "clinical_trial.db"},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "postgres",
			Schema:   "clinical_trial_db",
			SSLMode:  "disable",
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Mode: "dev"},
	}
}

// Load reads path (or DefaultPath when empty), then applies the environment.
// A missing DefaultPath is not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath
	}
	if err := loadFile(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return cfg, &trial.ConfigurationError{Op: "load config", Err: err}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, &trial.ConfigurationError{Op: "load config", Err: err}
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and means no overrides.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setEnv(&cfg.Driver, EnvDriver)
	setEnv(&cfg.SQLite.Path, EnvSQLitePath)
	setEnv(&cfg.Postgres.DSN, EnvDSN)
	setEnv(&cfg.Postgres.User, EnvDBUser)
	setEnv(&cfg.Postgres.Password, EnvDBPass)
	setEnv(&cfg.Input, EnvInput)
	setEnv(&cfg.HTTP.Addr, EnvHTTPAddr)
	setEnv(&cfg.Log.Mode, EnvLogMode)
	setEnv(&cfg.S3.Region, EnvS3Region)
	setEnv(&cfg.S3.Endpoint, EnvS3Endpoint)

	if v := strings.TrimSpace(os.Getenv(EnvS3PathStyle)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvS3PathStyle, err)
		}
		cfg.S3.PathStyle = b
	}
	return nil
}

func setEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate rejects settings no component can act on.
func (c Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			errs = append(errs, errors.New("sqlite.path is required"))
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" && c.Postgres.Port <= 0 {
			errs = append(errs, fmt.Errorf("postgres.port %d is invalid", c.Postgres.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverSQLite, DriverPostgres))
	}
	if strings.TrimSpace(c.Input) == "" {
		errs = append(errs, errors.New("input is required"))
	}
	switch c.Log.Mode {
	case "dev", "development", "prod", "production":
	default:
		errs = append(errs, fmt.Errorf("unknown log mode %q", c.Log.Mode))
	}
	if err := errors.Join(errs...); err != nil {
		return &trial.ConfigurationError{Op: "validate config", Err: err}
	}
	return nil
}
