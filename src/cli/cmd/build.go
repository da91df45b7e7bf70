package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/imagekiln/src/build"
	"github.com/sofmeright/imagekiln/src/config"
	"github.com/sofmeright/imagekiln/src/delta"
	"github.com/sofmeright/imagekiln/src/output"
	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/registry"
	"github.com/sofmeright/imagekiln/src/report"
	"github.com/sofmeright/imagekiln/src/resolve"
	"github.com/sofmeright/imagekiln/src/verify"
)

var (
	buildTargets      string
	buildConcurrency  int
	buildTimeout      int
	buildProbeTimeout int
	buildSince        string
	buildJSON         bool
	buildReportFile   string
	buildDryRun       bool
)

var buildCmd = &cobra.Command{
	Use:   "build [selector]",
	Short: "Build and verify images from the registry",
	Long: `Build container images for registry entries and verify the results.

The selector (--targets or the positional argument) picks targets: a
comma-separated name list, a glob pattern, or "all" (the default).
Each selected entry is resolved to a concrete version, built, and run
through the verification checks. The command fails unless every
selected target ends verified.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildTargets, "targets", "", `target selector: "all", a name list, or a glob`)
	buildCmd.Flags().IntVar(&buildConcurrency, "concurrency", 0, "parallel builds (default: from config)")
	buildCmd.Flags().IntVar(&buildTimeout, "timeout", 0, "per-build timeout in seconds (default: from config)")
	buildCmd.Flags().IntVar(&buildProbeTimeout, "probe-timeout", 0, "version probe timeout in seconds (default: from config)")
	buildCmd.Flags().StringVar(&buildSince, "since", "", "only build targets changed since this git revision")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "print the run report as JSON instead of the summary")
	buildCmd.Flags().StringVar(&buildReportFile, "report", "", "write the JSON run report to this file")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "resolve and print the plan without building")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if buildConcurrency > 0 {
		cfg.Build.Concurrency = buildConcurrency
	}
	if buildTimeout > 0 {
		cfg.Build.Timeout = buildTimeout
	}
	if buildProbeTimeout > 0 {
		cfg.Verify.ProbeTimeout = buildProbeTimeout
	}

	warnings, err := config.Validate(cfg)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	reg, err := registry.Load(cfg.Registry.Path, cfg.Registry.Overlays...)
	if err != nil {
		return err
	}
	rootDir := filepath.Dir(cfg.Registry.Path)
	slog.Debug("registry loaded", "path", cfg.Registry.Path, "entries", reg.Len())

	selector := plan.SelectorAll
	switch {
	case buildTargets != "" && len(args) > 0:
		return fmt.Errorf("pass either --targets or a positional selector, not both")
	case buildTargets != "":
		selector = buildTargets
	case len(args) > 0:
		selector = args[0]
	}
	if buildSince != "" {
		selector, err = narrowToChanged(ctx, reg, selector, rootDir)
		if err != nil {
			return err
		}
		if selector == "" {
			fmt.Fprintf(os.Stderr, "no targets changed since %s\n", buildSince)
			return emitEmptyRun()
		}
		slog.Debug("delta narrowed selector", "since", buildSince, "targets", selector)
	}

	planner := &plan.Planner{
		Registry: reg,
		Resolver: newResolver(rootDir),
		Workers:  cfg.Build.Concurrency,
	}
	tasks, err := planner.Plan(ctx, selector)
	if err != nil {
		return err
	}

	printer := output.NewPrinter()
	if !buildJSON {
		printer.Plan(tasks)
	}

	if buildDryRun {
		if n := planFailures(tasks); n > 0 {
			return fmt.Errorf("plan failed for %d target(s)", n)
		}
		return nil
	}

	docker := build.NewDocker(verbose)
	verifier := &verify.Verifier{
		Inspector:    docker,
		Prober:       docker,
		ProbeTimeout: time.Duration(cfg.Verify.ProbeTimeout) * time.Second,
		ContextRoot:  rootDir,
	}
	if cfg.Verify.SecretScan {
		verifier.Scanner = verify.NewSecretScanner()
	}

	x := &build.Executor{
		Backend:     docker,
		Inspector:   docker,
		Verifier:    verifier,
		Concurrency: cfg.Build.Concurrency,
		Timeout:     time.Duration(cfg.Build.Timeout) * time.Second,
		LogTail:     cfg.Build.LogTail,
		Repository:  cfg.Docker.Repository,
		Platforms:   cfg.Docker.Platforms,
		ContextRoot: rootDir,
	}

	started := time.Now()
	outcomes := x.Run(ctx, reg, tasks)
	rep := report.Aggregate(report.NewRunID(), started, time.Now(), tasks, outcomes)

	return emitRun(printer, rep)
}

// emitRun writes the report in every requested form, then converts the
// run outcome to the command's error.
func emitRun(printer *output.Printer, rep report.RunReport) error {
	if buildJSON {
		if err := rep.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else {
		printer.Run(rep)
	}
	if buildReportFile != "" {
		if err := rep.WriteFile(buildReportFile); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	if output.IsCI() {
		if jErr := output.WriteRunJUnit(".imagekiln/reports", rep); jErr != nil {
			slog.Warn("failed to write junit report", "error", jErr)
		}
	}

	if rep.ExitCode() != 0 {
		failed := rep.Summary.Total - rep.Summary.Verified
		return fmt.Errorf("build failed: %d of %d target(s) not verified", failed, rep.Summary.Total)
	}
	return nil
}

// emitEmptyRun keeps report consumers working when delta selection
// matched nothing.
func emitEmptyRun() error {
	if !buildJSON && buildReportFile == "" {
		return nil
	}
	now := time.Now()
	rep := report.Aggregate(report.NewRunID(), now, now, nil, nil)
	if buildJSON {
		if err := rep.WriteJSON(os.Stdout); err != nil {
			return err
		}
	}
	if buildReportFile != "" {
		return rep.WriteFile(buildReportFile)
	}
	return nil
}

// newResolver builds the version resolution service from config.
func newResolver(rootDir string) *resolve.Service {
	svc := resolve.NewService(resolve.Endpoints{
		Npm:           cfg.Resolve.Npm,
		PyPI:          cfg.Resolve.PyPI,
		Forge:         cfg.Resolve.Forge,
		ForgeTokenEnv: cfg.Resolve.ForgeTokenEnv,
		GoProxy:       cfg.Resolve.GoProxy,
	}, cfg.Resolve.Timeout)
	svc.Dir = rootDir
	return svc
}

// narrowToChanged intersects the selector with targets changed since
// buildSince. Returns a comma-joined name selector, empty when nothing
// survives.
func narrowToChanged(ctx context.Context, reg *registry.Registry, selector, rootDir string) (string, error) {
	sel := &delta.Selector{RootDir: rootDir, GlobalTriggers: cfg.Delta.GlobalTriggers}
	changed, err := sel.Changed(ctx, reg, buildSince)
	if err != nil {
		return "", err
	}
	changedSet := make(map[string]bool, len(changed))
	for _, name := range changed {
		changedSet[name] = true
	}

	entries, err := plan.Select(reg, selector)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if changedSet[e.Name] {
			names = append(names, e.Name)
		}
	}
	return strings.Join(names, ","), nil
}

func planFailures(tasks []*plan.Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == plan.StatusPlanFailed {
			n++
		}
	}
	return n
}
