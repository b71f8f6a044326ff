package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "rollcall - meeting attendance tracker",
	Long: `rollcall follows a browser tab on a video meeting, reads the participant
list from the page and keeps a per-session attendance roster with join and
leave times that can be exported as JSON or CSV.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to the watch command when no subcommand is provided
		return runWatch(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/rollcall/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
