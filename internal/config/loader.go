package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures configuration for the repeater engine. Values come from an
// optional YAML file with environment variables layered on top; Normalize
// fills whatever both left empty.
type Config struct {
	SQLiteDSN              string     `yaml:"sqlite_dsn"`
	Timezone               string     `yaml:"timezone"`
	DefaultDurationMinutes int        `yaml:"default_duration_minutes"`
	DefaultRepetitionCount int        `yaml:"default_repetition_count"`
	NotificationSender     string     `yaml:"notification_sender"`
	NotificationOutbox     string     `yaml:"notification_outbox"`
	LogLevel               string     `yaml:"log_level"`
	AutoExtend             AutoExtend `yaml:"auto_extend"`
}

// AutoExtend configures the background job that keeps series topped up with
// future occurrences.
type AutoExtend struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Count   int    `yaml:"count"`
}

// Normalize fills zero-valued fields with their defaults.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.SQLiteDSN) == "" {
		c.SQLiteDSN = "file:repeater.db?_foreign_keys=on"
	}
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "UTC"
	}
	if c.DefaultDurationMinutes == 0 {
		c.DefaultDurationMinutes = 60
	}
	if c.DefaultRepetitionCount == 0 {
		c.DefaultRepetitionCount = 10
	}
	if strings.TrimSpace(c.NotificationSender) == "" {
		c.NotificationSender = "repeater@localhost"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.AutoExtend.Cron) == "" {
		c.AutoExtend.Cron = "0 3 * * *"
	}
	if c.AutoExtend.Count == 0 {
		c.AutoExtend.Count = 10
	}
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return location, nil
}

// Load builds the configuration from the YAML file at path (skipped when
// empty) and the current process environment. Environment variables win over
// file values; Normalize supplies whatever is still unset.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	invalid := make([]string, 0, 2)

	if dsn := strings.TrimSpace(os.Getenv("REPEATER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if tz := strings.TrimSpace(os.Getenv("REPEATER_TIMEZONE")); tz != "" {
		cfg.Timezone = tz
	}
	if sender := strings.TrimSpace(os.Getenv("REPEATER_NOTIFICATION_SENDER")); sender != "" {
		cfg.NotificationSender = sender
	}
	if outbox := strings.TrimSpace(os.Getenv("REPEATER_NOTIFICATION_OUTBOX")); outbox != "" {
		cfg.NotificationOutbox = outbox
	}
	if level := strings.TrimSpace(os.Getenv("REPEATER_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if durationValue := strings.TrimSpace(os.Getenv("REPEATER_DEFAULT_DURATION")); durationValue != "" {
		duration, err := strconv.Atoi(durationValue)
		if err != nil || duration < 1 {
			invalid = append(invalid, "REPEATER_DEFAULT_DURATION")
		} else {
			cfg.DefaultDurationMinutes = duration
		}
	}
	if countValue := strings.TrimSpace(os.Getenv("REPEATER_DEFAULT_COUNT")); countValue != "" {
		count, err := strconv.Atoi(countValue)
		if err != nil || count < 1 {
			invalid = append(invalid, "REPEATER_DEFAULT_COUNT")
		} else {
			cfg.DefaultRepetitionCount = count
		}
	}
	if cronSpec := strings.TrimSpace(os.Getenv("REPEATER_AUTOEXTEND_CRON")); cronSpec != "" {
		cfg.AutoExtend.Cron = cronSpec
		cfg.AutoExtend.Enabled = true
	}
	if countValue := strings.TrimSpace(os.Getenv("REPEATER_AUTOEXTEND_COUNT")); countValue != "" {
		count, err := strconv.Atoi(countValue)
		if err != nil || count < 1 {
			invalid = append(invalid, "REPEATER_AUTOEXTEND_COUNT")
		} else {
			cfg.AutoExtend.Count = count
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	cfg.Normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Save writes the configuration as YAML, atomically: the file appears either
// in its old or its new state, never half-written.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".repeater-config-*")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

func (c Config) validate() error {
	if c.DefaultDurationMinutes < 1 {
		return fmt.Errorf("default_duration_minutes must be at least 1")
	}
	if c.DefaultRepetitionCount < 1 {
		return fmt.Errorf("default_repetition_count must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.AutoExtend.Enabled && c.AutoExtend.Count < 1 {
		return fmt.Errorf("auto_extend.count must be at least 1")
	}
	return nil
}
