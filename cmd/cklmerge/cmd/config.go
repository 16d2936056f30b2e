package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openctemio/cklmerge/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect CLI configuration",
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Long: `Show the configuration after the config file, CKLMERGE_* environment
variables and command-line flags have been applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			if e.format == outputJSON {
				return printJSON(e.stdout, e.cfg)
			}
			return printYAML(e.stdout, e.cfg)
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show the default config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.DefaultPath())
		},
	}

	configCmd.AddCommand(viewCmd)
	configCmd.AddCommand(pathCmd)
	return configCmd
}
