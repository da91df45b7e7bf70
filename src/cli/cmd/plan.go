package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sofmeright/imagekiln/src/output"
	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/registry"
)

var planCmd = &cobra.Command{
	Use:   "plan [selector]",
	Short: "Resolve versions and show what a build would do",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(cfg.Registry.Path, cfg.Registry.Overlays...)
	if err != nil {
		return err
	}

	selector := plan.SelectorAll
	if len(args) > 0 {
		selector = args[0]
	}

	planner := &plan.Planner{
		Registry: reg,
		Resolver: newResolver(filepath.Dir(cfg.Registry.Path)),
		Workers:  cfg.Build.Concurrency,
	}
	tasks, err := planner.Plan(cmd.Context(), selector)
	if err != nil {
		return err
	}

	output.NewPrinter().Plan(tasks)

	if n := planFailures(tasks); n > 0 {
		return fmt.Errorf("plan failed for %d target(s)", n)
	}
	return nil
}
