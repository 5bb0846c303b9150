package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pairwatch/internal/market"
)

const (
	registerSeriesSQL = `INSERT INTO bar_series (symbol, timeframe)
    VALUES ($1, $2)
    ON CONFLICT (symbol, timeframe) DO NOTHING;`

	seriesExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM bar_series WHERE symbol = $1 AND timeframe = $2
    );`

	upsertBarSQL = `INSERT INTO bars (
        bucket_ts,
        symbol,
        timeframe,
        open,
        high,
        low,
        close,
        volume,
        trade_count
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (symbol, timeframe, bucket_ts) DO UPDATE
    SET
        open        = EXCLUDED.open,
        high        = EXCLUDED.high,
        low         = EXCLUDED.low,
        close       = EXCLUDED.close,
        volume      = EXCLUDED.volume,
        trade_count = EXCLUDED.trade_count;`

	listRecentBarsSQL = `SELECT
        bucket_ts, symbol, timeframe, open, high, low, close, volume, trade_count
    FROM bars
    WHERE symbol = $1 AND timeframe = $2
    ORDER BY bucket_ts DESC
    LIMIT $3;`
)

// BarStore is the bar source consumed by the monitor and the analytics API.
type BarStore interface {
	GetBarRange(ctx context.Context, symbol string, timeframe market.Timeframe, limit int) ([]market.Bar, error)
}

// BarWriter is the sink fed by the ingest aggregator.
type BarWriter interface {
	RegisterSeries(ctx context.Context, symbol string, timeframe market.Timeframe) error
	UpsertBars(ctx context.Context, bars []market.Bar) error
}

// RegisterSeries records that a (symbol, timeframe) stream is being
// aggregated, so readers can tell "unknown series" from "no data yet".
func (s *Store) RegisterSeries(ctx context.Context, symbol string, timeframe market.Timeframe) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, registerSeriesSQL, symbol, string(timeframe)); execErr != nil {
		return fmt.Errorf("%w: register series: %v", ErrUnavailable, execErr)
	}
	return nil
}

// UpsertBars persists a batch of closed bars.
func (s *Store) UpsertBars(ctx context.Context, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(upsertBarSQL,
			b.Timestamp,
			b.Symbol,
			string(b.Timeframe),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
			b.TradeCount,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range bars {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("%w: upsert bars: %v", ErrUnavailable, execErr)
		}
	}
	return nil
}

// GetBarRange returns the most recent limit bars in ascending timestamp
// order. An unregistered series fails with ErrUnknownSeries; a registered
// series with no bars yet returns an empty slice.
func (s *Store) GetBarRange(ctx context.Context, symbol string, timeframe market.Timeframe, limit int) ([]market.Bar, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var known bool
	if scanErr := pool.QueryRow(ctx, seriesExistsSQL, symbol, string(timeframe)).Scan(&known); scanErr != nil {
		return nil, fmt.Errorf("%w: check series: %v", ErrUnavailable, scanErr)
	}
	if !known {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownSeries, symbol, timeframe)
	}

	rows, queryErr := pool.Query(ctx, listRecentBarsSQL, symbol, string(timeframe), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: list bars: %v", ErrUnavailable, queryErr)
	}
	defer rows.Close()

	bars := make([]market.Bar, 0, limit)
	for rows.Next() {
		b, scanErr := scanBar(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		bars = append(bars, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, rows.Err())
	}

	// query is newest-first; callers want ascending
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func scanBar(rows pgx.Rows) (market.Bar, error) {
	var (
		b          market.Bar
		tf         string
		openStr    string
		highStr    string
		lowStr     string
		closeStr   string
		volumeStr  string
		tradeCount int64
	)

	if err := rows.Scan(
		&b.Timestamp,
		&b.Symbol,
		&tf,
		&openStr,
		&highStr,
		&lowStr,
		&closeStr,
		&volumeStr,
		&tradeCount,
	); err != nil {
		return market.Bar{}, fmt.Errorf("scan bar: %w", err)
	}

	b.Timeframe = market.Timeframe(tf)
	b.TradeCount = tradeCount

	var convErr error
	if b.Open, convErr = decimal.NewFromString(openStr); convErr != nil {
		return market.Bar{}, fmt.Errorf("parse open: %w", convErr)
	}
	if b.High, convErr = decimal.NewFromString(highStr); convErr != nil {
		return market.Bar{}, fmt.Errorf("parse high: %w", convErr)
	}
	if b.Low, convErr = decimal.NewFromString(lowStr); convErr != nil {
		return market.Bar{}, fmt.Errorf("parse low: %w", convErr)
	}
	if b.Close, convErr = decimal.NewFromString(closeStr); convErr != nil {
		return market.Bar{}, fmt.Errorf("parse close: %w", convErr)
	}
	if b.Volume, convErr = decimal.NewFromString(volumeStr); convErr != nil {
		return market.Bar{}, fmt.Errorf("parse volume: %w", convErr)
	}

	return b, nil
}
