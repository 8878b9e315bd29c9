package commands

import (
	"errors"

	"github.com/dyluth/ninogen/internal/config"
	"github.com/dyluth/ninogen/internal/printer"
	"github.com/spf13/cobra"
)

// runOptions holds the flags shared by generate and plan.
type runOptions struct {
	configPath  string
	maxWorkers  int
	outputDir   string
	mode        string
	prefixes    []string
	redisURL    string
	metricsAddr string
	strict      bool
	quiet       bool
	verbose     bool
}

func (o *runOptions) bindKeyspaceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "Path to ninogen.yml (default: ./ninogen.yml if present)")
	cmd.Flags().IntVarP(&o.maxWorkers, "max-workers", "w", config.DefaultMaxWorkers, "Maximum number of prefixes processed concurrently")
	cmd.Flags().StringSliceVarP(&o.prefixes, "prefix", "p", nil, "Only process these prefixes (repeatable)")
}

// loadConfig reads the config file and applies flag overrides. Only flags the
// user actually set override file values.
func (o *runOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, configError(err)
	}

	flags := cmd.Flags()
	if flags.Changed("max-workers") {
		cfg.MaxWorkers = o.maxWorkers
	}
	if flags.Changed("output") {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("mode") {
		cfg.Mode = o.mode
	}
	if flags.Changed("prefix") {
		cfg.Keyspace.Only = o.prefixes
	}
	if flags.Changed("redis-url") {
		cfg.Ledger.RedisURL = o.redisURL
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}

	// max_workers 0 would be silently replaced by the default in Validate.
	if cfg.MaxWorkers == 0 && flags.Changed("max-workers") {
		return nil, configError(errors.New("max_workers must be a positive integer, got 0"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

func configError(err error) error {
	return printer.Error(
		"invalid configuration",
		err.Error(),
		[]string{
			"Check the flags:\n  ninogen generate --max-workers 4 --output ./out",
			"Check the config file:\n  ninogen plan --config ninogen.yml",
		},
	)
}
