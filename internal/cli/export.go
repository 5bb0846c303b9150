package cli

import (
	"github.com/spf13/cobra"

	"pairwatch/internal/app"
)

var (
	exportSymbol1   string
	exportSymbol2   string
	exportTimeframe string
	exportWindow    int
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export pair spread and z-score series as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Symbol1:   exportSymbol1,
			Symbol2:   exportSymbol2,
			Timeframe: exportTimeframe,
			Window:    exportWindow,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSymbol1, "symbol1", "", "First symbol of the pair")
	exportCmd.Flags().StringVar(&exportSymbol2, "symbol2", "", "Second symbol of the pair")
	exportCmd.Flags().StringVar(&exportTimeframe, "timeframe", "1m", "Bar timeframe (1s, 1m, 5m, 15m, 1h, 4h, 1d)")
	exportCmd.Flags().IntVar(&exportWindow, "window", 0, "Rolling window (defaults to config)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
