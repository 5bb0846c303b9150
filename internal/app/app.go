package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"pairwatch/internal/alerting"
	"pairwatch/internal/api"
	"pairwatch/internal/cache"
	"pairwatch/internal/config"
	"pairwatch/internal/ingest"
	"pairwatch/internal/market"
	"pairwatch/internal/metrics"
	"pairwatch/internal/monitor"
	"pairwatch/internal/scheduler"
	"pairwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newCache(ctx context.Context) cache.LatestCache {
	if !a.Config.Redis.Enabled {
		return cache.NewMemoryCache()
	}
	rc, err := cache.NewRedisCache(ctx, a.Config.Redis.Addr, a.Config.Redis.Password, a.Config.Redis.DB, a.Config.Redis.TTL)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("redis unreachable; using in-memory price cache")
		return cache.NewMemoryCache()
	}
	return rc
}

func (a *App) newNotifiers() []alerting.Notifier {
	var notifiers []alerting.Notifier
	if tg := a.Config.Alerting.Telegram; tg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, a.Logger))
	}
	if wh := a.Config.Alerting.Webhook; wh.Enabled {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(wh.URL, wh.Headers, 10*time.Second, a.Logger))
	}
	if em := a.Config.Alerting.Email; em.Enabled {
		notifiers = append(notifiers, alerting.NewEmailNotifier(em.Host, em.Port, em.Username, em.Password, em.From, em.To, a.Logger))
	}
	return notifiers
}

func (a *App) newDispatcher() *alerting.Dispatcher {
	return alerting.NewDispatcher(a.newNotifiers(), a.Config.Alerting.DispatchTimeout, a.Logger)
}

func (a *App) ingestTimeframes() ([]market.Timeframe, error) {
	labels := a.Config.Ingest.Timeframes
	if len(labels) == 0 {
		labels = []string{"1m"}
	}
	out := make([]market.Timeframe, len(labels))
	for i, label := range labels {
		tf, err := market.ParseTimeframe(label)
		if err != nil {
			return nil, fmt.Errorf("ingest.timeframes: %w", err)
		}
		out[i] = tf
	}
	return out, nil
}

func (a *App) newMonitor(store *storage.Store, dispatcher monitor.Dispatcher, m *metrics.Metrics) *monitor.Monitor {
	runner := scheduler.NewInterval(scheduler.Options{
		Interval:     a.Config.Monitor.Interval,
		AlignToStart: a.Config.Monitor.AlignToStart,
		StartupDelay: a.Config.Monitor.StartupDelay,
	}, a.Logger)

	return monitor.New(store, store, dispatcher, runner, m, monitor.Options{
		Interval:    a.Config.Monitor.Interval,
		Window:      a.Config.Monitor.Window,
		Lookback:    a.Config.Monitor.Lookback,
		RuleTimeout: a.Config.Monitor.RuleTimeout,
	}, a.Logger)
}

// Run starts ingestion, the monitor loop, and the management API, and
// blocks until a signal arrives or a component fails fatally.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	latest := a.newCache(ctx)
	defer latest.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	dispatcher := a.newDispatcher()
	mon := a.newMonitor(store, dispatcher, m)

	errCh := make(chan error, 3)
	components := 0

	if a.Config.Ingest.Enabled {
		timeframes, tfErr := a.ingestTimeframes()
		if tfErr != nil {
			return tfErr
		}
		stream := ingest.NewBinanceStream(ingest.StreamOptions{
			BaseURL:     a.Config.Ingest.StreamURL,
			Symbols:     a.Config.Ingest.Symbols,
			OnReconnect: m.IngestReconnects.Inc,
		}, a.Logger)
		svc := ingest.NewService(stream, store, latest, store, m, ingest.Options{
			Symbols:       a.Config.Ingest.Symbols,
			Timeframes:    timeframes,
			FlushInterval: a.Config.Ingest.FlushInterval,
		}, a.Logger)

		components++
		go func() {
			errCh <- svc.Run(ctx)
		}()
	}

	if a.Config.Monitor.AutoStart {
		if err := mon.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = mon.Stop(stopCtx)
	}()

	if a.Config.API.Enabled {
		server := api.NewServer(store, store, latest, mon, registry, api.Options{
			Addr:             a.Config.API.Addr,
			ReadTimeout:      a.Config.API.ReadTimeout,
			WriteTimeout:     a.Config.API.WriteTimeout,
			ShutdownTimeout:  a.Config.API.ShutdownTimeout,
			AnalysisWindow:   a.Config.API.AnalysisWindow,
			AnalysisLookback: a.Config.API.AnalysisLookback,
		}, a.Logger)

		components++
		go func() {
			errCh <- server.Run(ctx)
		}()
	}

	a.Logger.Info().Msg("pairwatch running")

	if components == 0 {
		<-ctx.Done()
		return nil
	}

	for i := 0; i < components; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) {
			cancel()
			a.Logger.Error().Err(err).Msg("component terminated with error")
			return err
		}
		cancel()
	}
	return nil
}

// ExportOptions hold parameters for exporting pair analytics.
type ExportOptions struct {
	Symbol1   string
	Symbol2   string
	Timeframe string
	Window    int
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// CheckOptions configure the one-off check command.
type CheckOptions struct {
	DryRun bool
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	RuleName string
	Symbol1  string
	Symbol2  string
	ZScore   float64
	Channels []string
}
