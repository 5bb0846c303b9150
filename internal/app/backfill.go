package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pairwatch/internal/ingest"
	"pairwatch/internal/market"
)

// BackfillOptions configure the backfill command.
type BackfillOptions struct {
	Symbols   []string
	Timeframe string
	Limit     int
}

// Backfill seeds bar history for the given symbols from the exchange REST
// API, so rules can evaluate before the live stream has run long enough.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	symbols := opts.Symbols
	if len(symbols) == 0 {
		symbols = a.Config.Ingest.Symbols
	}
	if len(symbols) == 0 {
		return errors.New("no symbols to backfill; pass --symbols or configure ingest.symbols")
	}

	tf, err := market.ParseTimeframe(opts.Timeframe)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	client := ingest.NewKlinesClient(ingest.KlinesOptions{
		BaseURL: a.Config.Ingest.RestURL,
		Timeout: 30 * time.Second,
	}, a.Logger)

	for _, symbol := range symbols {
		bars, fetchErr := client.FetchKlines(ctx, symbol, tf, opts.Limit)
		if fetchErr != nil {
			return fmt.Errorf("fetch %s/%s: %w", symbol, tf, fetchErr)
		}
		if len(bars) == 0 {
			fmt.Fprintf(os.Stdout, "%s/%s: no bars returned\n", symbol, tf)
			continue
		}

		if err := store.RegisterSeries(ctx, bars[0].Symbol, tf); err != nil {
			return err
		}
		if err := store.UpsertBars(ctx, bars); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%s/%s: stored %d bars (%s .. %s)\n",
			bars[0].Symbol, tf, len(bars),
			bars[0].Timestamp.Format(time.RFC3339),
			bars[len(bars)-1].Timestamp.Format(time.RFC3339))
	}

	return nil
}
