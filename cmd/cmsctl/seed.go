package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/odyssey-cms/odyssey-cms/cmd/cmsctl/cli"
	"github.com/odyssey-cms/odyssey-cms/internal/app"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create languages, collections and users from a YAML file",
	Long: `Seed applies a YAML file against the configured storage. Records that
already exist are skipped, so the command can be re-run safely.

Example:
  cmsctl seed --file seed.yaml`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file (YAML)")
	_ = seedCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	file, err := os.Open(seedFile)
	if err != nil {
		return err
	}
	defer file.Close()

	seed, err := cli.ParseSeed(file)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg, "cmsctl")
	store, release, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer release()

	core, err := app.NewCore(app.CoreParams{Config: cfg, Logger: logger, Store: store})
	if err != nil {
		return err
	}
	report, err := cli.NewSeeder(core.Broker, logger).Apply(ctx, seed)
	printReport(cmd, report)
	return err
}

func printReport(cmd *cobra.Command, report cli.SeedReport) {
	services := make([]string, 0, len(report.Created)+len(report.Skipped))
	seen := map[string]bool{}
	for _, m := range []map[string]int{report.Created, report.Skipped} {
		for name := range m {
			if !seen[name] {
				seen[name] = true
				services = append(services, name)
			}
		}
	}
	sort.Strings(services)
	for _, name := range services {
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s created=%d skipped=%d\n", name, report.Created[name], report.Skipped[name])
	}
}
