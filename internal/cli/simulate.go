package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pairwatch/internal/app"
)

var (
	simulateRuleName string
	simulateSymbol1  string
	simulateSymbol2  string
	simulateZScore   float64
	simulateChannels []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic alert through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol1 == "" || simulateSymbol2 == "" {
			return errors.New("--symbol1 and --symbol2 are required")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			RuleName: simulateRuleName,
			Symbol1:  simulateSymbol1,
			Symbol2:  simulateSymbol2,
			ZScore:   simulateZScore,
			Channels: simulateChannels,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateRuleName, "name", "", "Rule name to show in the alert")
	simulateCmd.Flags().StringVar(&simulateSymbol1, "symbol1", "", "First symbol of the pair")
	simulateCmd.Flags().StringVar(&simulateSymbol2, "symbol2", "", "Second symbol of the pair")
	simulateCmd.Flags().Float64Var(&simulateZScore, "zscore", 2.5, "Z-score to report")
	simulateCmd.Flags().StringSliceVar(&simulateChannels, "channels", nil, "Channels to use (defaults to all configured)")
}
