package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyp0633/calstore/index"
)

// Config is the process-wide store configuration. The expansion windows are
// supplied here rather than as package globals so embedders and tests can
// inject their own horizons.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path"`

	// AttachmentRoot is the directory holding attachment bytes.
	AttachmentRoot string `yaml:"attachment_root"`

	// DefaultFutureExpansionDays is the default forward window for
	// recurrence indexing, in days past today.
	DefaultFutureExpansionDays int `yaml:"default_future_expansion_days"`

	// MaximumFutureExpansionDays caps caller-supplied expansion horizons.
	MaximumFutureExpansionDays int `yaml:"maximum_future_expansion_days"`
}

// DefaultConfig provides sensible defaults: one year of forward expansion,
// capped at five.
var DefaultConfig = Config{
	DatabasePath:               "calstore.db",
	AttachmentRoot:             "attachments",
	DefaultFutureExpansionDays: 365,
	MaximumFutureExpansionDays: 365 * 5,
}

// LoadConfig reads a YAML config file, filling unset fields from
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DefaultFutureExpansionDays <= 0 {
		cfg.DefaultFutureExpansionDays = DefaultConfig.DefaultFutureExpansionDays
	}
	if cfg.MaximumFutureExpansionDays <= 0 {
		cfg.MaximumFutureExpansionDays = DefaultConfig.MaximumFutureExpansionDays
	}
	return cfg, nil
}

// HorizonConfig converts the day counts into the indexer's window durations.
func (c Config) HorizonConfig() index.HorizonConfig {
	return index.HorizonConfig{
		DefaultFutureExpansion: time.Duration(c.DefaultFutureExpansionDays) * 24 * time.Hour,
		MaximumFutureExpansion: time.Duration(c.MaximumFutureExpansionDays) * 24 * time.Hour,
	}
}
