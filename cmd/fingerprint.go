package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trafficsim/qsim/sim/fingerprint"
)

// fingerprintCmd runs a scenario and stores its fingerprint.
var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Run a scenario and write its fingerprint, optionally checking it against a reference",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := fingerprintFlags
		if opts.FingerprintOut == "" {
			opts.FingerprintOut = "auto"
		}
		res, err := runWithSignals(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), res)
		if res.Comparison == nil {
			return nil
		}
		return reportComparison(cmd.OutOrStdout(), opts.CompareTo, res.FingerprintPath, *res.Comparison)
	},
}

// compareCmd compares two stored fingerprints.
var compareCmd = &cobra.Command{
	Use:   "compare <reference> <candidate>",
	Short: "Compare two fingerprint files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := fingerprint.ReadFile(args[0])
		if err != nil {
			return err
		}
		b, err := fingerprint.ReadFile(args[1])
		if err != nil {
			return err
		}
		return reportComparison(cmd.OutOrStdout(), args[0], args[1], fingerprint.Compare(a, b))
	},
}

func init() {
	fingerprintCmd.Flags().StringVar(&fingerprintFlags.FingerprintOut, "out", "", `Fingerprint file (default names it after the run id)`)
}

// reportComparison prints r and fails unless the fingerprints are equal.
func reportComparison(w io.Writer, ref, cand string, r fingerprint.Result) error {
	fmt.Fprintf(w, "%s vs %s: %s\n", ref, cand, r)
	if r != fingerprint.Equal {
		logrus.Warnf("fingerprints differ: %s", r)
		return fmt.Errorf("fingerprint mismatch: %s", r)
	}
	return nil
}
