package cli

import (
	"github.com/spf13/cobra"

	"pairwatch/internal/app"
)

var (
	backfillSymbols   []string
	backfillTimeframe string
	backfillLimit     int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Seed bar history from the exchange REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			Symbols:   backfillSymbols,
			Timeframe: backfillTimeframe,
			Limit:     backfillLimit,
		})
	},
}

func init() {
	backfillCmd.Flags().StringSliceVar(&backfillSymbols, "symbols", nil, "Symbols to backfill (defaults to ingest.symbols)")
	backfillCmd.Flags().StringVar(&backfillTimeframe, "timeframe", "1m", "Bar timeframe to backfill")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 500, "Number of recent bars per symbol")
}
