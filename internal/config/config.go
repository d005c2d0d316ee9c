// Package config provides configuration management for the straddle tracker.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/marketdata"
	"github.com/eddiefleurent/straddle_tracker/internal/stats"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
	"github.com/eddiefleurent/straddle_tracker/internal/straddle"
)

// Defaults applied by Normalize.
const (
	defaultCalculationTime = "09:47"
	defaultCleanupDay      = "sunday"
	defaultCleanupTime     = "02:00"
	defaultKeepDays        = 90
	defaultListenAddr      = ":8000"
	defaultTimeout         = "10s"
	defaultBatchSize       = 5
	defaultBatchDelay      = "2s"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Instrument  InstrumentConfig  `yaml:"instrument"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Storage     StorageConfig     `yaml:"storage"`
	Statistics  stats.Config      `yaml:"statistics"`
	Backfill    BackfillConfig    `yaml:"backfill"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	API         APIConfig         `yaml:"api"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode      string `yaml:"mode"`       // paper | live
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// InstrumentConfig selects a built-in series or describes a custom one.
type InstrumentConfig struct {
	Symbol          string  `yaml:"symbol"` // SPX | SPY | custom
	Underlying      string  `yaml:"underlying"`
	OptionRoot      string  `yaml:"option_root"`
	StrikeIncrement float64 `yaml:"strike_increment"`
	OptionOffset    string  `yaml:"option_offset"`
}

// MarketDataConfig defines the price source.
type MarketDataConfig struct {
	Provider string `yaml:"provider"` // polygon | tradier | synthetic
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Sandbox  bool   `yaml:"sandbox"`
	Timeout  string `yaml:"timeout"`
	// MaxRetries of 0 keeps the retry layer's default.
	MaxRetries int `yaml:"max_retries"`
}

// StorageConfig defines where records are kept.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // redis | json | postgres
	Path        string `yaml:"path"`
	RedisURL    string `yaml:"redis_url"`
	PostgresDSN string `yaml:"postgres_dsn"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// BackfillConfig defines throttling for historical runs.
type BackfillConfig struct {
	BatchSize int    `yaml:"batch_size"`
	Delay     string `yaml:"delay"`
}

// ScheduleConfig defines when the daemon calculates and prunes.
type ScheduleConfig struct {
	Timezone        string `yaml:"timezone"`         // e.g., "America/New_York"
	CalculationTime string `yaml:"calculation_time"` // "HH:MM", weekdays
	CleanupDay      string `yaml:"cleanup_day"`      // e.g., "sunday"
	CleanupTime     string `yaml:"cleanup_time"`     // "HH:MM"
	KeepDays        int    `yaml:"keep_days"`
}

// APIConfig defines the HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads .env (if present) and then parses the configuration file from
// the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it strictly and
// validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate normalizes defaults and checks that all configuration values are
// valid and consistent.
func (c *Config) Validate() error {
	c.Normalize()

	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch c.Environment.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	// Instrument validation
	if _, err := c.GetInstrument(); err != nil {
		return fmt.Errorf("instrument: %w", err)
	}

	// Market data validation
	switch c.MarketData.Provider {
	case "synthetic":
	case "polygon", "tradier":
		if c.MarketData.APIKey == "" {
			return fmt.Errorf("market_data.api_key is required for provider %q", c.MarketData.Provider)
		}
	default:
		return fmt.Errorf("market_data.provider must be 'polygon', 'tradier' or 'synthetic'")
	}
	if c.IsLive() && c.MarketData.Provider == "synthetic" {
		return fmt.Errorf("market_data.provider 'synthetic' is only allowed in paper mode")
	}
	if _, err := time.ParseDuration(c.MarketData.Timeout); err != nil {
		return fmt.Errorf("market_data.timeout invalid: %w", err)
	}
	if c.MarketData.MaxRetries < 0 {
		return fmt.Errorf("market_data.max_retries must be >= 0")
	}

	// Storage validation
	switch c.Storage.Backend {
	case "redis", "json":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'redis', 'json' or 'postgres'")
	}

	// Statistics validation
	if c.Statistics.LowVolatility >= c.Statistics.HighVolatility {
		return fmt.Errorf("statistics.low_volatility (%.2f) must be < statistics.high_volatility (%.2f)",
			c.Statistics.LowVolatility, c.Statistics.HighVolatility)
	}

	// Backfill validation
	if c.Backfill.BatchSize <= 0 {
		return fmt.Errorf("backfill.batch_size must be > 0")
	}
	if d, err := time.ParseDuration(c.Backfill.Delay); err != nil || d < 0 {
		return fmt.Errorf("backfill.delay must be a non-negative duration")
	}

	// Schedule validation
	if _, err := calendar.ParseClock(c.Schedule.CalculationTime); err != nil {
		return fmt.Errorf("schedule.calculation_time: %w", err)
	}
	if _, err := calendar.ParseClock(c.Schedule.CleanupTime); err != nil {
		return fmt.Errorf("schedule.cleanup_time: %w", err)
	}
	if _, err := parseWeekday(c.Schedule.CleanupDay); err != nil {
		return fmt.Errorf("schedule.cleanup_day: %w", err)
	}
	if c.Schedule.KeepDays <= 0 {
		return fmt.Errorf("schedule.keep_days must be > 0")
	}

	return nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Environment.Mode == "" {
		c.Environment.Mode = "paper"
	}
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Environment.LogFormat == "" {
		c.Environment.LogFormat = "text"
	}
	if c.Instrument.Symbol == "" {
		c.Instrument.Symbol = "SPX"
	}
	if c.MarketData.Provider == "" {
		c.MarketData.Provider = "synthetic"
	}
	if c.MarketData.Timeout == "" {
		c.MarketData.Timeout = defaultTimeout
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "redis"
	}
	if c.Statistics.TrendThreshold == 0 {
		c.Statistics.TrendThreshold = stats.DefaultConfig.TrendThreshold
	}
	if c.Statistics.LowVolatility == 0 {
		c.Statistics.LowVolatility = stats.DefaultConfig.LowVolatility
	}
	if c.Statistics.HighVolatility == 0 {
		c.Statistics.HighVolatility = stats.DefaultConfig.HighVolatility
	}
	if c.Backfill.BatchSize == 0 {
		c.Backfill.BatchSize = defaultBatchSize
	}
	if c.Backfill.Delay == "" {
		c.Backfill.Delay = defaultBatchDelay
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = calendar.DefaultTimezone
	}
	if c.Schedule.CalculationTime == "" {
		c.Schedule.CalculationTime = defaultCalculationTime
	}
	if c.Schedule.CleanupDay == "" {
		c.Schedule.CleanupDay = defaultCleanupDay
	}
	if c.Schedule.CleanupTime == "" {
		c.Schedule.CleanupTime = defaultCleanupTime
	}
	if c.Schedule.KeepDays == 0 {
		c.Schedule.KeepDays = defaultKeepDays
	}
	if c.API.Listen == "" {
		c.API.Listen = defaultListenAddr
	}
}

// IsPaperTrading returns true if the tracker runs without live market data.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// IsLive reports whether live market data is required.
func (c *Config) IsLive() bool {
	return c.Environment.Mode == "live"
}

// GetInstrument resolves the configured series.
func (c *Config) GetInstrument() (straddle.Instrument, error) {
	ic := c.Instrument
	if !strings.EqualFold(ic.Symbol, "custom") {
		return straddle.InstrumentByName(ic.Symbol)
	}
	offset := time.Minute
	if ic.OptionOffset != "" {
		d, err := time.ParseDuration(ic.OptionOffset)
		if err != nil {
			return straddle.Instrument{}, fmt.Errorf("option_offset invalid: %w", err)
		}
		offset = d
	}
	inst := straddle.Instrument{
		Name:            strings.ToUpper(ic.Underlying),
		Underlying:      strings.ToUpper(ic.Underlying),
		OptionRoot:      strings.ToUpper(ic.OptionRoot),
		StrikeIncrement: ic.StrikeIncrement,
		OptionOffset:    offset,
	}
	return inst, inst.Validate()
}

// GetStorageConfig returns the storage settings, defaulting the key prefix to
// the instrument's namespace.
func (c *Config) GetStorageConfig() storage.Config {
	prefix := c.Storage.KeyPrefix
	if prefix == "" {
		if inst, err := c.GetInstrument(); err == nil {
			prefix = inst.KeyPrefix()
		}
	}
	return storage.Config{
		Backend:     c.Storage.Backend,
		Path:        c.Storage.Path,
		RedisURL:    c.Storage.RedisURL,
		PostgresDSN: c.Storage.PostgresDSN,
		KeyPrefix:   prefix,
	}
}

// GetTimeout returns the per-call price source timeout.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.MarketData.Timeout)
	if err != nil {
		return 10 * time.Second // default
	}
	return d
}

// GetResilienceConfig returns the timeout, retry and breaker settings for the
// price source.
func (c *Config) GetResilienceConfig() marketdata.ResilienceConfig {
	retry := marketdata.DefaultRetryConfig
	if c.MarketData.MaxRetries > 0 {
		retry.MaxRetries = c.MarketData.MaxRetries
	}
	return marketdata.ResilienceConfig{
		Timeout: c.GetTimeout(),
		Retry:   retry,
		Breaker: marketdata.DefaultCircuitBreakerSettings,
	}
}

// GetBackfillDelay returns the pause between backfill batches.
func (c *Config) GetBackfillDelay() time.Duration {
	d, err := time.ParseDuration(c.Backfill.Delay)
	if err != nil || d < 0 {
		return 2 * time.Second
	}
	return d
}

// GetCalculationClock returns the daily calculation time.
func (c *Config) GetCalculationClock() calendar.Clock {
	k, err := calendar.ParseClock(c.Schedule.CalculationTime)
	if err != nil {
		return calendar.Clock{Hour: 9, Minute: 47}
	}
	return k
}

// GetCleanupSchedule returns the weekly retention day and time.
func (c *Config) GetCleanupSchedule() (time.Weekday, calendar.Clock) {
	day, err := parseWeekday(c.Schedule.CleanupDay)
	if err != nil {
		day = time.Sunday
	}
	k, err := calendar.ParseClock(c.Schedule.CleanupTime)
	if err != nil {
		k = calendar.Clock{Hour: 2}
	}
	return day, k
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) || strings.EqualFold(s, d.String()[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
