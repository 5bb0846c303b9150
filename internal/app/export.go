package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pairwatch/internal/analytics"
	"pairwatch/internal/market"
)

// exportRow is one aligned observation with its derived series.
type exportRow struct {
	Timestamp time.Time
	Close1    float64
	Close2    float64
	Spread    float64
	ZScore    float64
	RollCorr  float64
}

// Export computes pair analytics over stored bars and renders the
// spread and z-score series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Symbol1 == "" || opts.Symbol2 == "" {
		return errors.New("--symbol1 and --symbol2 are required")
	}

	tf, err := market.ParseTimeframe(opts.Timeframe)
	if err != nil {
		return err
	}
	window := opts.Window
	if window <= 0 {
		window = a.Config.Monitor.Window
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	lookback := a.Config.Monitor.Lookback
	if opts.MaxPoints > lookback {
		lookback = opts.MaxPoints
	}
	bars1, err := store.GetBarRange(ctx, opts.Symbol1, tf, lookback)
	if err != nil {
		return err
	}
	bars2, err := store.GetBarRange(ctx, opts.Symbol2, tf, lookback)
	if err != nil {
		return err
	}

	ps, err := market.AlignPair(bars1, bars2)
	if err != nil {
		return err
	}
	res, err := analytics.AnalyzePair(ps, window)
	if err != nil {
		return err
	}

	rows := make([]exportRow, ps.Len())
	for i := range rows {
		rows[i] = exportRow{
			Timestamp: ps.Timestamps[i],
			Close1:    ps.Close1[i],
			Close2:    ps.Close2[i],
			Spread:    res.Spread.Series[i],
			ZScore:    res.ZScore.Series[i],
			RollCorr:  res.RollingCorrelation.Series[i],
		}
	}
	rows = downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().
		Int("aligned", ps.Len()).
		Int("exported", len(rows)).
		Float64("hedge_ratio", res.HedgeRatio.Ratio).
		Msg("exporting pair analytics")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, opts, rows); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeRowsPNG(opts.PNGPath, opts, rows); err != nil {
			return err
		}
	}
	return nil
}

func downsampleRows(rows []exportRow, max int) []exportRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	result := make([]exportRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path string, opts ExportOptions, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "close_" + opts.Symbol1, "close_" + opts.Symbol2, "spread", "zscore", "rolling_correlation"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(row.Close1, 'f', -1, 64),
			strconv.FormatFloat(row.Close2, 'f', -1, 64),
			strconv.FormatFloat(row.Spread, 'f', -1, 64),
			formatMaybeNaN(row.ZScore),
			formatMaybeNaN(row.RollCorr),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

// formatMaybeNaN leaves undefined rolling points empty rather than
// writing a fake zero.
func formatMaybeNaN(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeRowsPNG(path string, opts ExportOptions, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var (
		x      []time.Time
		spread []float64
		zx     []time.Time
		zscore []float64
	)
	for _, row := range rows {
		x = append(x, row.Timestamp)
		spread = append(spread, row.Spread)
		if !math.IsNaN(row.ZScore) {
			zx = append(zx, row.Timestamp)
			zscore = append(zscore, row.ZScore)
		}
	}
	if len(zx) < 2 {
		return errors.New("not enough defined z-score points to chart")
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("%s / %s spread", opts.Symbol1, opts.Symbol2),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Spread",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Z-score",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Spread",
				XValues: x,
				YValues: spread,
			},
			chart.TimeSeries{
				Name:    "Z-score",
				XValues: zx,
				YValues: zscore,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
