package cli

import (
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List configured alert rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rules(cmd.Context())
	},
}
