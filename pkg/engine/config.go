package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pinwise/pinwise-go/pkg/compat"
	"github.com/pinwise/pinwise-go/pkg/compose"
)

// ErrInvalidConfig is returned for configurations Validate rejects.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config configures an Engine.
type Config struct {
	// CatalogPath is a catalog YAML file. Empty selects the embedded
	// starter-kit catalog.
	CatalogPath string `yaml:"catalog"`

	// BoardPath is a board YAML file. Empty selects the embedded 40-pin
	// board.
	BoardPath string `yaml:"board"`

	// MaxSuggestions bounds complementary suggestions per composition.
	MaxSuggestions int `yaml:"maxSuggestions"`

	// MinConfidence drops classifier hypotheses below this value.
	MinConfidence float64 `yaml:"minConfidence"`

	// Strict makes warnings block allocation.
	Strict bool `yaml:"strict"`

	// DisabledCategories lists rule categories to skip ("voltage",
	// "address", "exclusive", "protocol").
	DisabledCategories []string `yaml:"disabledCategories"`

	// EnabledRules re-enables single rules of a disabled category.
	EnabledRules []string `yaml:"enabledRules"`

	// DisabledRules lists compatibility rule ids to skip.
	DisabledRules []string `yaml:"disabledRules"`

	// Severities overrides rule severities by id ("error", "warning", "info").
	Severities map[string]string `yaml:"severities"`

	// EventLog is the CBOR event log path. Empty disables the file log.
	EventLog string `yaml:"eventLog"`

	// LogLevel is the operational log level ("debug", "info", "warn", "error").
	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig returns a configuration using the embedded catalog and board.
func DefaultConfig() Config {
	return Config{
		MaxSuggestions: compose.DefaultMaxSuggestions,
		LogLevel:       "info",
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.MaxSuggestions < 0 {
		return fmt.Errorf("%w: maxSuggestions must not be negative", ErrInvalidConfig)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: minConfidence %v outside [0, 1]", ErrInvalidConfig, c.MinConfidence)
	}
	for _, name := range c.DisabledCategories {
		if _, err := compat.ParseCategory(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	for id, s := range c.Severities {
		if _, err := compat.ParseSeverity(s); err != nil {
			return fmt.Errorf("%w: severity of %s: %v", ErrInvalidConfig, id, err)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed LogLevel. Empty means info.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: logLevel %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}

// LoadConfig reads a YAML config file over DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
