package cli

import (
	"github.com/spf13/cobra"

	"pairwatch/internal/app"
)

var checkDryRun bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate all active rules once and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), app.CheckOptions{DryRun: checkDryRun})
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "Evaluate without sending notifications")
}
