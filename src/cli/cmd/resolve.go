package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/registry"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [selector]",
	Short: "Query the latest upstream version of each target",
	Long: `Query upstream sources for the latest version of each selected entry,
pinned or not, and print a JSON object keyed by target name. Useful for
spotting registry entries that have fallen behind their upstream.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	reg, err := registry.Load(cfg.Registry.Path, cfg.Registry.Overlays...)
	if err != nil {
		return err
	}

	selector := plan.SelectorAll
	if len(args) > 0 {
		selector = args[0]
	}
	entries, err := plan.Select(reg, selector)
	if err != nil {
		return err
	}

	svc := newResolver(filepath.Dir(cfg.Registry.Path))

	versions := make(map[string]string, len(entries))
	var failures []error
	var mu sync.Mutex

	workers := int64(cfg.Build.Concurrency)
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)
	var wg sync.WaitGroup

	for _, e := range entries {
		if !e.HasResolutionSource() {
			slog.Debug("skipping target with no resolution source", "target", e.Name)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(e *registry.Entry) {
			defer wg.Done()
			defer sem.Release(1)
			v, rerr := svc.Latest(ctx, e)
			mu.Lock()
			defer mu.Unlock()
			if rerr != nil {
				failures = append(failures, rerr)
				return
			}
			versions[e.Name] = v
		}(e)
	}
	wg.Wait()

	data, err := json.MarshalIndent(versions, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	for _, f := range failures {
		fmt.Fprintln(os.Stderr, f)
	}
	if len(failures) > 0 {
		return fmt.Errorf("resolution failed for %d target(s)", len(failures))
	}
	return nil
}
