package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr = ":8080"

	envListenAddr = "LODESTONE_LISTEN_ADDR"
	envDataDir    = "LODESTONE_DATA_DIR"
	envDBPath     = "LODESTONE_DB_PATH"
	envLogLevel   = "LODESTONE_LOG_LEVEL"
	envConfigFile = "LODESTONE_CONFIG_FILE"
)

// Default timeout budgets per operation class. Writes get a much longer
// budget than reads because ingestion latency is dominated by disk and
// indexing work.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultFindTimeout     = 30 * time.Second
	DefaultAddTimeout      = 120 * time.Second
	DefaultRetrieveTimeout = 10 * time.Second
)

// Timeouts holds the per-operation wait budgets of the facade layer.
type Timeouts struct {
	Read     time.Duration `yaml:"read"`
	Find     time.Duration `yaml:"find"`
	Add      time.Duration `yaml:"add"`
	Retrieve time.Duration `yaml:"retrieve"`
}

// Config holds application configuration. Values come from an optional
// YAML config file, overridden by environment variables.
type Config struct {
	ListenAddr string
	DataDir    string
	DBPath     string
	LogLevel   slog.Level
	Timeouts   Timeouts
}

// fileConfig mirrors Config for YAML decoding, with the log level as a string.
type fileConfig struct {
	ListenAddr string   `yaml:"listen_addr"`
	DataDir    string   `yaml:"data_dir"`
	DBPath     string   `yaml:"db_path"`
	LogLevel   string   `yaml:"log_level"`
	Timeouts   Timeouts `yaml:"timeouts"`
}

// Load reads configuration in layers: built-in defaults, then the YAML
// file named by LODESTONE_CONFIG_FILE (if set), then environment
// variable overrides.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DataDir:    defaultDataDir(),
		LogLevel:   slog.LevelInfo,
		Timeouts: Timeouts{
			Read:     DefaultReadTimeout,
			Find:     DefaultFindTimeout,
			Add:      DefaultAddTimeout,
			Retrieve: DefaultRetrieveTimeout,
		},
	}

	if path := os.Getenv(envConfigFile); path != "" {
		// A missing or malformed file is not fatal: the service can run
		// entirely from defaults and environment variables.
		_ = cfg.applyFile(path)
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "lodestone.db")
	}

	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.Timeouts.Read > 0 {
		c.Timeouts.Read = fc.Timeouts.Read
	}
	if fc.Timeouts.Find > 0 {
		c.Timeouts.Find = fc.Timeouts.Find
	}
	if fc.Timeouts.Add > 0 {
		c.Timeouts.Add = fc.Timeouts.Add
	}
	if fc.Timeouts.Retrieve > 0 {
		c.Timeouts.Retrieve = fc.Timeouts.Retrieve
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lodestone/data"
	}
	return filepath.Join(home, ".lodestone", "data")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
