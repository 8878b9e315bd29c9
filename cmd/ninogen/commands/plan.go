package commands

import (
	"strings"

	"github.com/dyluth/ninogen/internal/engine"
	"github.com/dyluth/ninogen/internal/progress"
	"github.com/dyluth/ninogen/internal/printer"
	"github.com/spf13/cobra"
)

const prefixesPerLine = 19

func newPlanCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the units of work without writing anything",
		Long: `Show how the keyspace is divided into prefixes and how many identifiers a
full run would write. Nothing is written to disk.

Examples:
  ninogen plan
  ninogen plan --config ninogen.yml --max-workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}
	opts.bindKeyspaceFlags(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newPlanCmd())
}

func runPlan(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	plan, err := engine.NewPlan(cfg)
	if err != nil {
		return configError(err)
	}

	ks := cfg.Keyspace
	printer.Header("First letters", "%s", ks.FirstAlphabet())
	printer.Header("Second letters", "%s", ks.SecondAlphabet())
	printer.Header("Reserved prefixes", "%s", strings.Join(ks.Exclusions().Sorted(), " "))
	printer.Header("Identifier shape", "<PREFIX><%d digits><one of %s>", ks.BodyLength, ks.Trailing)
	printer.Header("Prefixes", "%d", len(plan.Units))
	printer.Header("Identifiers per prefix", "%s", progress.FormatCount(plan.PerUnit))
	printer.Header("Total possible combinations", "%s", progress.FormatCount(plan.Expected))
	printer.Header("Workers", "%d", cfg.MaxWorkers)

	printer.Println()
	for i := 0; i < len(plan.Units); i += prefixesPerLine {
		end := min(i+prefixesPerLine, len(plan.Units))
		var line []string
		for _, p := range plan.Units[i:end] {
			line = append(line, p.String())
		}
		printer.Println("  " + strings.Join(line, " "))
	}
	return nil
}
