package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sofmeright/imagekiln/src/config"
	"github.com/sofmeright/imagekiln/src/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config and registry",
	Long: `Check the configuration and the registry document without touching
upstream services or the docker daemon. Every problem is reported, not
just the first.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	warnings, err := config.Validate(cfg)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if err != nil {
		return err
	}

	reg, err := registry.Load(cfg.Registry.Path, cfg.Registry.Overlays...)
	if err != nil {
		var verr *registry.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				fmt.Fprintf(os.Stderr, "registry: %s\n", p)
			}
			return fmt.Errorf("registry invalid: %d problem(s)", len(verr.Problems))
		}
		return err
	}

	if verbose {
		for _, e := range reg.Entries() {
			fmt.Fprintf(os.Stderr, "  %-28s %-24s %s\n", e.Name, e.Kind, e.Version)
		}
	}
	fmt.Printf("config OK, registry OK: %d entries\n", reg.Len())
	return nil
}
