// Package config loads, validates and hot-reloads the bot configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

type Config struct {
	Telegram  TelegramConfig            `yaml:"telegram"`
	Logging   LoggingConfig             `yaml:"logging"`
	Storage   StorageConfig             `yaml:"storage"`
	Check     CheckConfig               `yaml:"check"`
	Fetch     FetchConfig               `yaml:"fetch"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"`
	DefaultCity string `yaml:"default_city"`
}

type LoggingConfig struct {
	Level   string     `yaml:"level"`
	Console bool       `yaml:"console"`
	File    FileConfig `yaml:"file"`
}

type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

type CheckConfig struct {
	// Schedule is a cron spec or descriptor driving the periodic check.
	Schedule string `yaml:"schedule"`
	Timezone string `yaml:"timezone"`
	Workers  int    `yaml:"workers"`
	Deadline string `yaml:"deadline"`
	// DaysBefore/DaysAfter bound the window the providers are queried for.
	DaysBefore int `yaml:"days_before"`
	DaysAfter  int `yaml:"days_after"`
}

type FetchConfig struct {
	Timeout            string `yaml:"timeout"`
	RetryMax           int    `yaml:"retry_max"`
	RetryBase          string `yaml:"retry_base"`
	RatePerHost        int    `yaml:"rate_per_host"`
	UserAgent          string `yaml:"user_agent"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type ProviderConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
	// URL overrides the built-in page URL; placeholders {street}, {prefix},
	// {house}, {date_start}, {date_finish} are substituted per check.
	URL             string `yaml:"url"`
	NotifyCancelled bool   `yaml:"notify_cancelled"`
}

// Validate checks fields that cannot be defaulted away. Duration fields are
// validated where they are parsed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}

	known := make(map[string]bool, len(schedule.Kinds()))
	for _, k := range schedule.Kinds() {
		known[string(k)] = true
	}
	for name := range c.Providers {
		if !known[name] {
			return fmt.Errorf("providers.%s: unknown service", name)
		}
	}

	for path, raw := range map[string]string{
		"telegram.poll_timeout": c.Telegram.PollTimeout,
		"storage.busy_timeout":  c.Storage.BusyTimeout,
		"check.deadline":        c.Check.Deadline,
		"fetch.timeout":         c.Fetch.Timeout,
		"fetch.retry_base":      c.Fetch.RetryBase,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

// Normalized returns a copy with defaults filled in.
func (c Config) Normalized() Config {
	if strings.TrimSpace(c.Check.Schedule) == "" {
		c.Check.Schedule = "@every 1h"
	}
	if c.Check.Workers <= 0 {
		c.Check.Workers = 4
	}
	if c.Check.DaysAfter <= 0 {
		c.Check.DaysAfter = 30
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Telegram.DefaultCity) == "" {
		c.Telegram.DefaultCity = "СПб"
	}
	return c
}

// ProviderEnabled reports the effective state for a service: providers absent
// from the config are enabled with defaults.
func (c Config) ProviderEnabled(kind schedule.Kind) bool {
	p, ok := c.Providers[string(kind)]
	if !ok || p.Enabled == nil {
		return true
	}
	return *p.Enabled
}
