package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pairwatch/internal/cache"
	"pairwatch/internal/market"
	"pairwatch/internal/metrics"
	"pairwatch/internal/storage"
)

// advisoryLockKey guards against two ingesters writing the same bar
// streams from separate processes.
const advisoryLockKey int64 = 0x70617772 // "pawr"

// Locker is the single-writer guard, satisfied by *storage.Store.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// Options configure the ingest service.
type Options struct {
	Symbols       []string
	Timeframes    []market.Timeframe
	FlushInterval time.Duration
}

// Service wires the websocket stream through the aggregator into the
// bar store, keeping the latest-price cache warm along the way.
type Service struct {
	stream  *BinanceStream
	agg     *Aggregator
	writer  storage.BarWriter
	cache   cache.LatestCache
	locker  Locker
	metrics *metrics.Metrics
	opts    Options
	logger  zerolog.Logger
}

func NewService(stream *BinanceStream, writer storage.BarWriter, latest cache.LatestCache, locker Locker, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Service {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if len(opts.Timeframes) == 0 {
		opts.Timeframes = []market.Timeframe{market.Timeframe1m}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		stream:  stream,
		agg:     NewAggregator(opts.Timeframes),
		writer:  writer,
		cache:   latest,
		locker:  locker,
		metrics: m,
		opts:    opts,
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// Run blocks until ctx is cancelled. It acquires the writer lock,
// registers the configured series, then pumps ticks into bars.
func (s *Service) Run(ctx context.Context) error {
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, advisoryLockKey)
	if err != nil {
		return fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("ingest lock held by another process")
	}
	defer unlock()

	for _, sym := range s.opts.Symbols {
		for _, tf := range s.opts.Timeframes {
			if err := s.writer.RegisterSeries(ctx, sym, tf); err != nil {
				return fmt.Errorf("register series %s/%s: %w", sym, tf, err)
			}
		}
	}

	ticks := make(chan market.Tick, 1024)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- s.stream.Run(ctx, ticks)
	}()

	flush := time.NewTicker(s.opts.FlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainOnShutdown()
			return ctx.Err()

		case err := <-streamErr:
			s.drainOnShutdown()
			return err

		case tick := <-ticks:
			s.agg.Add(tick)
			s.metrics.TicksIngested.WithLabelValues(tick.Symbol).Inc()
			if s.cache != nil {
				if err := s.cache.SetLatest(ctx, tick); err != nil {
					s.logger.Debug().Err(err).Str("symbol", tick.Symbol).Msg("latest cache update failed")
				}
			}

		case now := <-flush.C:
			s.flushClosed(ctx, now.UTC())
		}
	}
}

func (s *Service) flushClosed(ctx context.Context, now time.Time) {
	bars := s.agg.Flush(now)
	if len(bars) == 0 {
		return
	}
	if err := s.writer.UpsertBars(ctx, bars); err != nil {
		s.logger.Error().Err(err).Int("bars", len(bars)).Msg("bar flush failed")
		return
	}
	for _, b := range bars {
		s.metrics.BarsFlushed.WithLabelValues(string(b.Timeframe)).Inc()
	}
	s.logger.Debug().Int("bars", len(bars)).Msg("bars flushed")
}

// drainOnShutdown writes partially filled buckets with a short grace
// context so a restart does not lose in-progress bars.
func (s *Service) drainOnShutdown() {
	bars := s.agg.FlushAll()
	if len(bars) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writer.UpsertBars(ctx, bars); err != nil {
		s.logger.Error().Err(err).Int("bars", len(bars)).Msg("shutdown flush failed")
		return
	}
	s.logger.Info().Int("bars", len(bars)).Msg("open buckets flushed on shutdown")
}
