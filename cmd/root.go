package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var logLevel string // Log verbosity level

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qsim",
	Short: "Queue-based discrete-event traffic simulator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command. Exit handlers registered with atexit, such
// as output flushes, run on both success and failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	registerRunFlags(runCmd, &runFlags)
	registerRunFlags(fingerprintCmd, &fingerprintFlags)
	fingerprintCmd.Flags().StringVar(&fingerprintFlags.CompareTo, "compare", "", "Reference fingerprint to compare the run against")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(compareCmd)
}
