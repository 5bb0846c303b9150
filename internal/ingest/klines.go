package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pairwatch/internal/market"
)

const (
	defaultRestURL = "https://api.binance.com"
	klinesPath     = "/api/v3/klines"
	maxKlinesLimit = 1000
)

// KlinesOptions parameterise the REST kline client.
type KlinesOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// KlinesClient fetches historical bars over REST, used to seed a series
// before the live stream has accumulated enough data.
type KlinesClient struct {
	opts    KlinesOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewKlinesClient constructs a kline client.
func NewKlinesClient(opts KlinesOptions, logger zerolog.Logger) *KlinesClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultRestURL
	}

	return &KlinesClient{
		opts:    opts,
		logger:  logger.With().Str("component", "klines_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchKlines returns up to limit most recent closed bars for the symbol
// and timeframe, in ascending timestamp order.
func (c *KlinesClient) FetchKlines(ctx context.Context, symbol string, timeframe market.Timeframe, limit int) ([]market.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if _, err := timeframe.Duration(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", timeframe.String())
	params.Set("limit", strconv.Itoa(limit))

	endpoint := c.baseURL + klinesPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pairwatch/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseRestError(resp.StatusCode, payload)
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		bar, convErr := klineToBar(row, strings.ToUpper(symbol), timeframe)
		if convErr != nil {
			return nil, convErr
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// klineToBar maps one kline row. Rows are positional arrays:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...].
func klineToBar(row []json.RawMessage, symbol string, timeframe market.Timeframe) (market.Bar, error) {
	if len(row) < 9 {
		return market.Bar{}, fmt.Errorf("kline row has %d fields, want at least 9", len(row))
	}

	var openMillis int64
	if err := json.Unmarshal(row[0], &openMillis); err != nil {
		return market.Bar{}, fmt.Errorf("parse open time: %w", err)
	}

	var trades int64
	if err := json.Unmarshal(row[8], &trades); err != nil {
		return market.Bar{}, fmt.Errorf("parse trade count: %w", err)
	}

	bar := market.Bar{
		Timestamp:  time.UnixMilli(openMillis).UTC(),
		Symbol:     symbol,
		Timeframe:  timeframe,
		TradeCount: trades,
	}

	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *decimal.Decimal
	}{
		{"open", row[1], &bar.Open},
		{"high", row[2], &bar.High},
		{"low", row[3], &bar.Low},
		{"close", row[4], &bar.Close},
		{"volume", row[5], &bar.Volume},
	}
	for _, f := range fields {
		var s string
		if err := json.Unmarshal(f.raw, &s); err != nil {
			return market.Bar{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = d
	}

	return bar, nil
}

type restErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseRestError(status int, payload []byte) error {
	var apiErr restErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Msg != "" {
		return fmt.Errorf("binance api error (%d): %s", status, apiErr.Msg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("binance api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("binance api error (%d)", status)
}
