package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/ninogen/internal/generator"
	"github.com/dyluth/ninogen/internal/keyspace"
	"github.com/dyluth/ninogen/internal/partition"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up when --config is not given.
const DefaultFileName = "ninogen.yml"

// DefaultMaxWorkers is the pool size used when max_workers is not set.
const DefaultMaxWorkers = 4

// ErrInvalidConfig wraps every validation failure so callers can tell
// configuration problems apart from runtime errors.
var ErrInvalidConfig = errors.New("invalid configuration")

// KeyspaceConfig controls which identifiers are enumerated.
type KeyspaceConfig struct {
	FirstExcluded  *string  `yaml:"first_excluded,omitempty"`  // Letters never used as the first prefix letter (default: DFIQUV)
	SecondExcluded *string  `yaml:"second_excluded,omitempty"` // Letters never used as the second prefix letter (default: DFIQUVO)
	Reserved       []string `yaml:"reserved,omitempty"`        // Reserved prefixes (default: BG GB NK KN TN NT ZZ)
	BodyLength     int      `yaml:"body_length,omitempty"`     // Digits per identifier (default: 6)
	Trailing       string   `yaml:"trailing,omitempty"`        // Trailing letters in order (default: ABCD)
	Only           []string `yaml:"only,omitempty"`            // Restrict the run to these prefixes
}

// LedgerConfig points the run ledger at a Redis server.
type LedgerConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // e.g. ":9090"; empty disables the endpoint
}

// Config represents the top-level ninogen.yml configuration
type Config struct {
	Version    string         `yaml:"version"`
	MaxWorkers int            `yaml:"max_workers,omitempty"`
	OutputDir  string         `yaml:"output_dir,omitempty"`
	Mode       string         `yaml:"mode,omitempty"`       // "truncate" (default) or "append"
	BatchSize  int64          `yaml:"batch_size,omitempty"` // Records between progress reports
	Keyspace   KeyspaceConfig `yaml:"keyspace,omitempty"`
	Ledger     LedgerConfig   `yaml:"ledger,omitempty"`
	Metrics    MetricsConfig  `yaml:"metrics,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// Validate applies defaults and checks every field.
// Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Version != "1.0" {
		return invalid("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.MaxWorkers == 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxWorkers < 1 {
		return invalid("max_workers must be a positive integer, got %d", c.MaxWorkers)
	}

	if c.OutputDir == "" {
		c.OutputDir = "."
	}

	mode, err := partition.ParseMode(c.Mode)
	if err != nil {
		return invalid("%v", err)
	}
	c.Mode = string(mode)

	if c.BatchSize == 0 {
		c.BatchSize = partition.DefaultBatchSize
	}
	if c.BatchSize < 1 {
		return invalid("batch_size must be positive, got %d", c.BatchSize)
	}

	return c.Keyspace.validate()
}

func (k *KeyspaceConfig) validate() error {
	if k.FirstExcluded == nil {
		v := keyspace.DefaultFirstExcluded
		k.FirstExcluded = &v
	}
	if k.SecondExcluded == nil {
		v := keyspace.DefaultSecondExcluded
		k.SecondExcluded = &v
	}
	if k.Reserved == nil {
		k.Reserved = append([]string(nil), keyspace.DefaultReserved...)
	}
	for _, r := range k.Reserved {
		if _, err := keyspace.ParsePrefix(r); err != nil {
			return invalid("keyspace.reserved: %v", err)
		}
	}

	if k.BodyLength == 0 {
		k.BodyLength = generator.DefaultBodyLength
	}
	if k.Trailing == "" {
		k.Trailing = generator.DefaultTrailing
	}
	if err := k.Params().Validate(); err != nil {
		return invalid("keyspace: %v", err)
	}

	if len(k.FirstAlphabet()) == 0 || len(k.SecondAlphabet()) == 0 {
		return invalid("keyspace: every letter is excluded")
	}
	return nil
}

// FirstAlphabet returns the letters allowed in the first prefix position.
func (k *KeyspaceConfig) FirstAlphabet() keyspace.Alphabet {
	return keyspace.NewAlphabet(deref(k.FirstExcluded))
}

// SecondAlphabet returns the letters allowed in the second prefix position.
func (k *KeyspaceConfig) SecondAlphabet() keyspace.Alphabet {
	return keyspace.NewAlphabet(deref(k.SecondExcluded))
}

// Exclusions returns the reserved prefixes as a set.
func (k *KeyspaceConfig) Exclusions() keyspace.ExclusionSet {
	return keyspace.NewExclusionSet(k.Reserved...)
}

// Params returns the identifier shape.
func (k *KeyspaceConfig) Params() generator.Params {
	return generator.Params{BodyLength: k.BodyLength, Trailing: k.Trailing}
}

// Units partitions the configured keyspace and applies the Only filter.
func (k *KeyspaceConfig) Units() ([]keyspace.Prefix, error) {
	units := keyspace.Partition(k.FirstAlphabet(), k.SecondAlphabet(), k.Exclusions())
	filtered, err := keyspace.Filter(units, k.Only)
	if err != nil {
		return nil, invalid("keyspace.only: %v", err)
	}
	return filtered, nil
}

// Load reads, parses and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadOrDefault loads path if it is set. An empty path falls back to
// DefaultFileName in the working directory when it exists, and to Default()
// otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return Load(DefaultFileName)
	}
	return Default(), nil
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, a...))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
