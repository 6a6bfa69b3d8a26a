// Package config loads the relmodel configuration file.
//
// Config file locations (priority order):
//  1. the --config flag
//  2. $RELMODEL_CONFIG
//  3. ./relmodel.yaml
//
// Without a file the defaults open a SQLite database next to the
// working directory.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvPath names the environment variable holding a config path.
	EnvPath = "RELMODEL_CONFIG"
	// FileName is the config file looked up in the working directory.
	FileName = "relmodel.yaml"

	defaultDriver = "sqlite"
	defaultDSN    = "file:relmodel.db"
)

// Config is the contents of relmodel.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the database/sql driver and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Load finds and loads the config file, or returns defaults if none is
// found. explicit, when set, must name a readable file.
func Load(explicit string) (*Config, string, error) {
	path := FindConfigPath(explicit)
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// FindConfigPath returns the first config location that applies, or ""
// when there is none.
func FindConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if path := os.Getenv(EnvPath); path != "" {
		return path
	}
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	return ""
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, path, nil
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDriver
	}
	if c.Database.DSN == "" && c.Database.Driver == defaultDriver {
		c.Database.DSN = defaultDSN
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// UseDriver switches the database driver. A DSN written for another
// driver is dropped and the defaults of the new one apply.
func (c *Config) UseDriver(driver string) {
	if driver == "" || driver == c.Database.Driver {
		return
	}
	c.Database.Driver = driver
	c.Database.DSN = ""
	c.applyDefaults()
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Logger builds a logger writing to w. verbose forces debug level.
func (c LogConfig) Logger(w io.Writer, verbose bool) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}
