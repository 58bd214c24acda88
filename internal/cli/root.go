// Package cli holds the ppbot commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "ppbot",
	Short: "Affiliate statistics chat bot",
	Long: `ppbot answers statistics questions in Telegram: pick a period, get clicks,
registrations and deposits summed from the affiliate API, toggle derived
metrics, refresh. It also relays conversion postbacks to the operator chat.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a TOML config file (default $PPBOT_CONFIG)")
}
