// Command farmsim runs the agent-based socio-hydrology simulation of farming
// households.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/farm-agents/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "farmsim",
		Short: "Farmers adapting to drought in a simulated catchment",
		Long: `farmsim simulates farming households that plant crops, irrigate from
canals, reservoirs and wells, and adapt to drought risk by drilling wells,
improving irrigation or switching crops. Water, weather and market prices are
modelled day by day over a generated catchment.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML configuration file (defaults when empty)")
	rootCmd.PersistentFlags().String("db", "", "run database (overrides output.database)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.ResumeCmd())
	rootCmd.AddCommand(cli.InspectCmd())
	rootCmd.AddCommand(cli.ConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
