package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairwatch/internal/alerting"
	"pairwatch/internal/metrics"
	"pairwatch/internal/scheduler"
	"pairwatch/internal/storage"
)

// State is the monitor lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

var (
	// ErrCycleInFlight is returned by CheckNow while another cycle,
	// scheduled or manual, is still executing.
	ErrCycleInFlight = errors.New("monitor: cycle already in flight")
	// ErrStopping is returned by Start while a previous Stop has not
	// finished yet.
	ErrStopping = errors.New("monitor: stop in progress")
)

// Dispatcher is the alert delivery surface the monitor depends on. The
// config map carries the rule's opaque per-channel blobs.
type Dispatcher interface {
	Dispatch(ctx context.Context, channels []string, config map[string]json.RawMessage, note alerting.Notification) alerting.DispatchResult
}

// Options tune cycle behaviour.
type Options struct {
	// Interval is the scheduled cycle cadence, reported on the control
	// surface. The runner owns the actual timing.
	Interval time.Duration
	// Window is the rolling window for spread z-scores.
	Window int
	// Lookback is how many recent bars to fetch per symbol.
	Lookback int
	// RuleTimeout bounds one rule evaluation inside a cycle.
	RuleTimeout time.Duration
}

// Monitor periodically evaluates active alert rules against fresh pair
// analytics. At most one cycle runs at a time; Start and Stop are
// idempotent.
type Monitor struct {
	rules      storage.RuleStore
	bars       storage.BarStore
	dispatcher Dispatcher
	runner     scheduler.Runner
	metrics    *metrics.Metrics
	opts       Options
	logger     zerolog.Logger

	now func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	cycleMu sync.Mutex
}

func New(rules storage.RuleStore, bars storage.BarStore, dispatcher Dispatcher, runner scheduler.Runner, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Monitor {
	if opts.Window <= 0 {
		opts.Window = 20
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 500
	}
	if opts.RuleTimeout <= 0 {
		opts.RuleTimeout = 30 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Monitor{
		rules:      rules,
		bars:       bars,
		dispatcher: dispatcher,
		runner:     runner,
		metrics:    m,
		opts:       opts,
		logger:     logger.With().Str("component", "monitor").Logger(),
		now:        time.Now,
		state:      StateStopped,
	}
}

// State reports the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status is the control-surface view of the monitor.
type Status struct {
	State       State
	Running     bool
	Interval    time.Duration
	ActiveRules int
}

// Status reports lifecycle state, cycle cadence, and how many rules the
// next cycle will consider.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	rules, err := m.rules.ListActiveRules(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("list active rules: %w", err)
	}
	st := m.State()
	return Status{
		State:       st,
		Running:     st == StateRunning,
		Interval:    m.opts.Interval,
		ActiveRules: len(rules),
	}, nil
}

// Start launches the scheduled evaluation loop. Calling Start on a
// running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateRunning:
		return nil
	case StateStopping:
		return ErrStopping
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = StateRunning

	go func(done chan struct{}) {
		defer close(done)
		err := m.runner.Run(runCtx, func(jobCtx context.Context, at time.Time) error {
			_, cycleErr := m.runCycle(jobCtx, at)
			if errors.Is(cycleErr, ErrCycleInFlight) {
				return nil
			}
			return cycleErr
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Msg("scheduler loop exited")
		}
	}(m.done)

	m.logger.Info().Msg("monitor started")
	return nil
}

// Stop cancels the loop and waits for any in-flight cycle to finish, or
// for ctx to expire. Stopping an already stopped monitor is a no-op.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		m.mu.Lock()
		m.state = StateStopped
		m.mu.Unlock()
		return fmt.Errorf("monitor stop: %w", ctx.Err())
	}

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()
	m.logger.Info().Msg("monitor stopped")
	return nil
}

// CheckNow runs one evaluation cycle immediately, regardless of the
// lifecycle state. It fails fast with ErrCycleInFlight instead of
// queueing behind a running cycle.
func (m *Monitor) CheckNow(ctx context.Context) (CycleSummary, error) {
	return m.runCycle(ctx, m.now().UTC())
}
