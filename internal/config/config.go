// Package config provides layered configuration for crew.
//
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.crew/config.yaml) - optional
//  3. Workspace config (.crew/config.yaml)
//  4. Environment variables (CREW_*)
package config

import (
	"fmt"
	"time"
)

const (
	// CrewDir is the workspace dot-directory.
	CrewDir = ".crew"
	// ConfigFileName is the workspace config file name.
	ConfigFileName = "config.yaml"
)

// LockConfig holds the advisory file-lock knobs. All values are plain
// numbers of minutes; there are no secrets in crew configuration.
type LockConfig struct {
	// DefaultTTLMinutes is applied when an acquire request carries no TTL.
	DefaultTTLMinutes int `yaml:"default_ttl_minutes"`

	// MaxTTLMinutes is the hard ceiling. Requests above it are clamped,
	// not rejected, to bound worst-case staleness of abandoned locks.
	MaxTTLMinutes int `yaml:"max_ttl_minutes"`

	// StaleCheckIntervalMinutes is how often a long-running driver should
	// call ReapExpired. The core itself also reclaims expired locks inline
	// during Acquire.
	StaleCheckIntervalMinutes int `yaml:"stale_check_interval_minutes"`
}

// JournalConfig holds settings for the derived SQLite event journal.
type JournalConfig struct {
	// Enabled controls whether transitions and lock events are journaled.
	Enabled bool `yaml:"enabled"`

	// RetentionDays prunes journal rows older than this on open. Zero
	// disables pruning.
	RetentionDays int `yaml:"retention_days"`
}

// IndexConfig holds settings for derived index documents.
type IndexConfig struct {
	// CacheTTLSeconds bounds how stale an in-process dashboard read may be.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// Config is the crew configuration document.
type Config struct {
	Version int           `yaml:"version"`
	Lock    LockConfig    `yaml:"lock"`
	Journal JournalConfig `yaml:"journal"`
	Index   IndexConfig   `yaml:"index"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Lock: LockConfig{
			DefaultTTLMinutes:         30,
			MaxTTLMinutes:             240,
			StaleCheckIntervalMinutes: 5,
		},
		Journal: JournalConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Index: IndexConfig{
			CacheTTLSeconds: 5,
		},
	}
}

// DefaultTTL returns the default lock TTL as a duration.
func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.Lock.DefaultTTLMinutes) * time.Minute
}

// MaxTTL returns the maximum lock TTL as a duration.
func (c *Config) MaxTTL() time.Duration {
	return time.Duration(c.Lock.MaxTTLMinutes) * time.Minute
}

// StaleCheckInterval returns the reap interval as a duration.
func (c *Config) StaleCheckInterval() time.Duration {
	return time.Duration(c.Lock.StaleCheckIntervalMinutes) * time.Minute
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Lock.DefaultTTLMinutes <= 0 {
		return fmt.Errorf("lock.default_ttl_minutes must be positive, got %d", c.Lock.DefaultTTLMinutes)
	}
	if c.Lock.MaxTTLMinutes <= 0 {
		return fmt.Errorf("lock.max_ttl_minutes must be positive, got %d", c.Lock.MaxTTLMinutes)
	}
	if c.Lock.DefaultTTLMinutes > c.Lock.MaxTTLMinutes {
		return fmt.Errorf("lock.default_ttl_minutes (%d) exceeds lock.max_ttl_minutes (%d)",
			c.Lock.DefaultTTLMinutes, c.Lock.MaxTTLMinutes)
	}
	if c.Lock.StaleCheckIntervalMinutes <= 0 {
		return fmt.Errorf("lock.stale_check_interval_minutes must be positive, got %d", c.Lock.StaleCheckIntervalMinutes)
	}
	if c.Journal.RetentionDays < 0 {
		return fmt.Errorf("journal.retention_days must not be negative, got %d", c.Journal.RetentionDays)
	}
	if c.Index.CacheTTLSeconds < 0 {
		return fmt.Errorf("index.cache_ttl_seconds must not be negative, got %d", c.Index.CacheTTLSeconds)
	}
	return nil
}
