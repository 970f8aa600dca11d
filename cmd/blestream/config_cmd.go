package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blestream/internal/config"
	"gopkg.in/yaml.v3"
)

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration that "run" would use after applying defaults,
the --config file and environment variables. Secrets are omitted.
Validation problems are reported on stderr and make the command fail.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig(cmd, false)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))

	if err := cfg.Validate(); err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) {
			for _, p := range cerr.Problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "# invalid: %s\n", p)
			}
		}
		return err
	}
	return nil
}
