// Package config provides configuration management for the ledger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // timezone names resolve without a system zoneinfo

	"github.com/spf13/viper"

	"fno-ledger/internal/calendar"
	apperrors "fno-ledger/internal/errors"
	"fno-ledger/internal/logging"
	"fno-ledger/internal/models"
	"fno-ledger/internal/normalize"
	"fno-ledger/pkg/utils"
)

// Config holds all application configuration.
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Kite     KiteConfig     `mapstructure:"-" json:"-"` // Loaded separately
	Dir      string         `mapstructure:"-"`
}

// AnalysisConfig bounds the analysis horizon and tunes the stages.
type AnalysisConfig struct {
	StartDate         string   `mapstructure:"start_date"` // YYYY-MM-DD
	EndDate           string   `mapstructure:"end_date"`
	Timezone          string   `mapstructure:"timezone"`
	MonthlyExpiryRule string   `mapstructure:"monthly_expiry_rule"` // last_business_day, last_thursday
	Holidays          []string `mapstructure:"holidays"`
	Workers           int      `mapstructure:"workers"`
}

// StorageConfig holds sqlite persistence configuration.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// KiteConfig holds Kite Connect credentials for an authorized session.
type KiteConfig struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/fno-ledger"
	}
	return filepath.Join(home, ".config", "fno-ledger")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and the defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}

	// Load main config
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Kite); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(configDir, "ledger.db")
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(configDir, "logs", "fno-ledger.log")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.start_date", "2024-04-01")
	v.SetDefault("analysis.end_date", "2025-03-31")
	v.SetDefault("analysis.timezone", "Asia/Kolkata")
	v.SetDefault("analysis.monthly_expiry_rule", string(normalize.LastBusinessDay))
	v.SetDefault("analysis.holidays", []string{})
	v.SetDefault("analysis.workers", 4)

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and run on defaults
		if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, kite *KiteConfig) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Use restricted permissions for credentials file
			return createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
		}
		return err
	}

	return v.UnmarshalKey("kite", kite)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FNO_LEDGER_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("FNO_LEDGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Kite.AccessToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	start, end, err := c.Analysis.horizon()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return invalid("end_date %s is before start_date %s", c.Analysis.EndDate, c.Analysis.StartDate)
	}

	if !normalize.ExpiryRule(c.Analysis.MonthlyExpiryRule).Valid() {
		return invalid("unknown monthly_expiry_rule %q (must be %q or %q)",
			c.Analysis.MonthlyExpiryRule, normalize.LastBusinessDay, normalize.LastThursday)
	}
	if _, err := calendar.ParseHolidays(c.Analysis.Holidays); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	}
	if c.Analysis.Timezone != "" {
		if _, err := time.LoadLocation(c.Analysis.Timezone); err != nil {
			return invalid("unknown timezone %q", c.Analysis.Timezone)
		}
	}
	if c.Analysis.Workers < 1 {
		return invalid("workers must be at least 1, got %d", c.Analysis.Workers)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("invalid log level: %s (must be debug, info, warn or error)", c.Logging.Level)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return invalid("metrics.listen_addr is required when metrics are enabled")
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

func (a AnalysisConfig) horizon() (time.Time, time.Time, error) {
	start, err := time.Parse(models.DateLayout, a.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("start_date %q is not YYYY-MM-DD", a.StartDate)
	}
	end, err := time.Parse(models.DateLayout, a.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("end_date %q is not YYYY-MM-DD", a.EndDate)
	}
	return start, end, nil
}

// Calendar builds the business-day calendar for the configured horizon.
func (c *Config) Calendar() (*calendar.Calendar, error) {
	start, end, err := c.Analysis.horizon()
	if err != nil {
		return nil, err
	}
	holidays, err := calendar.ParseHolidays(c.Analysis.Holidays)
	if err != nil {
		return nil, err
	}
	return calendar.New(start, end,
		calendar.WithHolidays(holidays...),
		calendar.WithLocation(utils.LoadLocation(c.Analysis.Timezone)),
	)
}

// ExpiryRule returns the monthly expiry rule.
func (c *Config) ExpiryRule() normalize.ExpiryRule {
	return normalize.ExpiryRule(c.Analysis.MonthlyExpiryRule)
}

// LogConfig converts the logging section for the logger.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}

// HasKiteCredentials reports whether a Kite session is configured.
func (c *Config) HasKiteCredentials() bool {
	return c.Kite.APIKey != "" && c.Kite.AccessToken != ""
}
