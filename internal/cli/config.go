package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration a run would use: the defaults with --config applied
on top. The output is a complete configuration file to start editing from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("%s %w", color.New(color.FgRed).Sprint("invalid configuration:"), err)
			}
			raw, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(raw)
			return nil
		},
	}
}
