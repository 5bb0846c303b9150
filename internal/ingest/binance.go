package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pairwatch/internal/market"
)

const (
	defaultStreamURL    = "wss://stream.binance.com:9443/stream"
	initialReconnectGap = time.Second
	maxReconnectGap     = time.Minute
)

// StreamOptions parameterise the Binance trade stream.
type StreamOptions struct {
	BaseURL string
	Symbols []string
	// OnReconnect is invoked before each reconnect attempt.
	OnReconnect func()
}

// BinanceStream consumes aggTrade events for a set of symbols over one
// combined websocket connection and converts them to ticks.
type BinanceStream struct {
	opts   StreamOptions
	dialer *websocket.Dialer
	logger zerolog.Logger
}

func NewBinanceStream(opts StreamOptions, logger zerolog.Logger) *BinanceStream {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultStreamURL
	}
	return &BinanceStream{
		opts:   opts,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("component", "binance_stream").Logger(),
	}
}

// combined stream envelope
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type aggTradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// Run streams ticks into out until ctx is cancelled, reconnecting with
// exponential backoff on any connection failure. The out channel is not
// closed; the caller owns it.
func (s *BinanceStream) Run(ctx context.Context, out chan<- market.Tick) error {
	if len(s.opts.Symbols) == 0 {
		return fmt.Errorf("ingest: no symbols configured")
	}
	url := s.streamURL()

	gap := initialReconnectGap
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.readLoop(ctx, url, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn().Err(err).Dur("retry_in", gap).Msg("stream disconnected")
		if s.opts.OnReconnect != nil {
			s.opts.OnReconnect()
		}

		timer := time.NewTimer(gap)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		gap *= 2
		if gap > maxReconnectGap {
			gap = maxReconnectGap
		}
	}
}

func (s *BinanceStream) readLoop(ctx context.Context, url string, out chan<- market.Tick) error {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// unblock ReadMessage when the context dies
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	s.logger.Info().Int("symbols", len(s.opts.Symbols)).Msg("stream connected")

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		tick, ok := s.parseTick(payload)
		if !ok {
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *BinanceStream) parseTick(payload []byte) (market.Tick, bool) {
	var envelope streamEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Debug().Err(err).Msg("unparseable stream frame")
		return market.Tick{}, false
	}

	var event aggTradeEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil || event.EventType != "aggTrade" {
		return market.Tick{}, false
	}

	price, err := decimal.NewFromString(event.Price)
	if err != nil {
		s.logger.Debug().Err(err).Str("symbol", event.Symbol).Msg("bad price in trade event")
		return market.Tick{}, false
	}
	qty, err := decimal.NewFromString(event.Quantity)
	if err != nil {
		s.logger.Debug().Err(err).Str("symbol", event.Symbol).Msg("bad quantity in trade event")
		return market.Tick{}, false
	}

	return market.Tick{
		Symbol:    event.Symbol,
		Price:     price,
		Quantity:  qty,
		TradeTime: time.UnixMilli(event.TradeTime).UTC(),
	}, true
}

func (s *BinanceStream) streamURL() string {
	streams := make([]string, len(s.opts.Symbols))
	for i, sym := range s.opts.Symbols {
		streams[i] = strings.ToLower(sym) + "@aggTrade"
	}
	return s.opts.BaseURL + "?streams=" + strings.Join(streams, "/")
}
