package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pairwatch/internal/alerting"
	"pairwatch/internal/market"
	"pairwatch/internal/scheduler"
	"pairwatch/internal/storage"
)

type fakeRuleStore struct {
	mu        sync.Mutex
	rules     []storage.AlertRule
	listErr   error
	history   []storage.AlertEvent
	triggered map[uuid.UUID]time.Time
}

func newFakeRuleStore(rules ...storage.AlertRule) *fakeRuleStore {
	return &fakeRuleStore{rules: rules, triggered: make(map[uuid.UUID]time.Time)}
}

func (f *fakeRuleStore) ListActiveRules(context.Context) ([]storage.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]storage.AlertRule(nil), f.rules...), nil
}

func (f *fakeRuleStore) ListRules(ctx context.Context) ([]storage.AlertRule, error) {
	return f.ListActiveRules(ctx)
}

func (f *fakeRuleStore) GetRule(_ context.Context, id uuid.UUID) (storage.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return storage.AlertRule{}, storage.ErrNotFound
}

func (f *fakeRuleStore) CreateRule(_ context.Context, rule storage.AlertRule) (storage.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule.ID = uuid.New()
	f.rules = append(f.rules, rule)
	return rule, nil
}

func (f *fakeRuleStore) UpdateRule(context.Context, storage.AlertRule) error { return nil }

func (f *fakeRuleStore) DeleteRule(context.Context, uuid.UUID) error { return nil }

func (f *fakeRuleStore) MarkRuleTriggered(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered[id] = at
	return nil
}

func (f *fakeRuleStore) AppendHistory(_ context.Context, event storage.AlertEvent) (storage.AlertEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = uuid.New()
	f.history = append(f.history, event)
	return event, nil
}

func (f *fakeRuleStore) ListHistory(context.Context, int, storage.HistoryFilter) ([]storage.AlertEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.AlertEvent(nil), f.history...), nil
}

func (f *fakeRuleStore) AcknowledgeEvent(context.Context, uuid.UUID) error { return nil }

type fakeBarStore struct {
	mu   sync.Mutex
	bars map[string][]market.Bar
	errs map[string]error
	wait time.Duration
}

func (f *fakeBarStore) GetBarRange(ctx context.Context, symbol string, _ market.Timeframe, _ int) ([]market.Bar, error) {
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.bars[symbol], nil
}

type fakeDispatcher struct {
	mu      sync.Mutex
	notes   []alerting.Notification
	configs []map[string]json.RawMessage
	sent    map[string]bool
	errs    map[string]string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, channels []string, config map[string]json.RawMessage, note alerting.Notification) alerting.DispatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	f.configs = append(f.configs, config)
	sent := f.sent
	if sent == nil {
		sent = make(map[string]bool, len(channels))
		for _, ch := range channels {
			sent[ch] = true
		}
	}
	errs := f.errs
	if errs == nil {
		errs = map[string]string{}
	}
	return alerting.DispatchResult{Sent: sent, Errors: errs}
}

type fakeRunner struct {
	mu    sync.Mutex
	runs  int
	block chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, _ scheduler.Job) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	} else {
		<-ctx.Done()
	}
	return ctx.Err()
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func barSeries(symbol string, closes []float64, start time.Time, step time.Duration) []market.Bar {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		v := decimal.NewFromFloat(c)
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * step),
			Symbol:    symbol,
			Timeframe: market.Timeframe1m,
			Open:      v,
			High:      v,
			Low:       v,
			Close:     v,
			Volume:    decimal.NewFromInt(1),
		}
	}
	return bars
}

func zRule(name, s1, s2 string, upper float64) storage.AlertRule {
	return storage.AlertRule{
		ID:             uuid.New(),
		Name:           name,
		Kind:           storage.KindZScoreThreshold,
		Symbol1:        s1,
		Symbol2:        s2,
		Timeframe:      market.Timeframe1m,
		ThresholdUpper: &upper,
		Channels:       []string{"telegram"},
		Cooldown:       15 * time.Minute,
		Status:         storage.RuleActive,
	}
}

// Spread pattern chosen orthogonal to the alternating regressor, so the
// fitted hedge ratio is exactly 1 and the residual z-score at the final
// point is exactly 1.0 over a window of 5.
var (
	testCloses2 = []float64{1, 2, 1, 2, 1, 2}
	testCloses1 = []float64{3, 3, 4, 4, 2, 5}
)

func newTestMonitor(rules *fakeRuleStore, bars *fakeBarStore, disp *fakeDispatcher) *Monitor {
	return New(rules, bars, disp, &fakeRunner{}, nil, Options{Window: 5, Lookback: 100}, zerolog.Nop())
}

func TestCheckNowFiresAndRecordsHistory(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rule := zRule("divergence", "AAAUSDT", "BBBUSDT", 0.5)
	rule.ChannelConfig = map[string]json.RawMessage{
		"telegram": json.RawMessage(`{"chat_id":"-42"}`),
	}
	rules := newFakeRuleStore(rule)
	bars := &fakeBarStore{bars: map[string][]market.Bar{
		"AAAUSDT": barSeries("AAAUSDT", testCloses1, start, time.Minute),
		"BBBUSDT": barSeries("BBBUSDT", testCloses2, start, time.Minute),
	}}
	disp := &fakeDispatcher{}
	m := newTestMonitor(rules, bars, disp)

	summary, err := m.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if summary.RulesTotal != 1 || summary.Fired != 1 {
		t.Fatalf("summary = %+v, want 1 rule, 1 fired", summary)
	}

	if len(disp.notes) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(disp.notes))
	}
	note := disp.notes[0]
	if note.ZScore < 0.999 || note.ZScore > 1.001 {
		t.Fatalf("zscore = %v, want 1.0", note.ZScore)
	}
	if note.Direction != alerting.DirectionUpper || note.Threshold != 0.5 {
		t.Fatalf("direction/threshold = %s/%v", note.Direction, note.Threshold)
	}

	if len(rules.history) != 1 {
		t.Fatalf("history records = %d, want 1", len(rules.history))
	}
	event := rules.history[0]
	if event.RuleID != rule.ID {
		t.Fatalf("event rule id = %s, want %s", event.RuleID, rule.ID)
	}
	if !event.NotificationsSent["telegram"] {
		t.Fatalf("notifications_sent = %#v", event.NotificationsSent)
	}
	if event.Snapshot.HedgeRatio < 0.999 || event.Snapshot.HedgeRatio > 1.001 {
		t.Fatalf("snapshot hedge ratio = %v, want 1.0", event.Snapshot.HedgeRatio)
	}
	if _, ok := rules.triggered[rule.ID]; !ok {
		t.Fatal("rule should be marked triggered")
	}

	if len(disp.configs) != 1 {
		t.Fatalf("dispatcher saw %d config maps, want 1", len(disp.configs))
	}
	if got := string(disp.configs[0]["telegram"]); got != `{"chat_id":"-42"}` {
		t.Fatalf("channel config not passed through, got %q", got)
	}
}

func TestCheckNowIsolatesRuleFailures(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	good1 := zRule("good-1", "AAAUSDT", "BBBUSDT", 0.5)
	good2 := zRule("good-2", "BBBUSDT", "AAAUSDT", 99)
	broken := zRule("broken", "AAAUSDT", "DOWNUSDT", 0.5)
	rules := newFakeRuleStore(good1, good2, broken)
	bars := &fakeBarStore{
		bars: map[string][]market.Bar{
			"AAAUSDT": barSeries("AAAUSDT", testCloses1, start, time.Minute),
			"BBBUSDT": barSeries("BBBUSDT", testCloses2, start, time.Minute),
		},
		errs: map[string]error{"DOWNUSDT": storage.ErrUnavailable},
	}
	disp := &fakeDispatcher{}
	m := newTestMonitor(rules, bars, disp)

	summary, err := m.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if summary.RulesTotal != 3 {
		t.Fatalf("rules total = %d, want 3", summary.RulesTotal)
	}
	if summary.Errors != 1 {
		t.Fatalf("errors = %d, want 1", summary.Errors)
	}
	if summary.Fired+summary.Skipped != 2 {
		t.Fatalf("remaining rules should still be evaluated: %+v", summary)
	}
}

func TestCheckNowAbortsWhenStoreUnavailable(t *testing.T) {
	rules := newFakeRuleStore()
	rules.listErr = storage.ErrUnavailable
	m := newTestMonitor(rules, &fakeBarStore{}, &fakeDispatcher{})

	if _, err := m.CheckNow(context.Background()); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected store error to abort the cycle, got %v", err)
	}
}

func TestCheckNowRespectsCooldown(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rule := zRule("cooled", "AAAUSDT", "BBBUSDT", 0.5)
	recent := time.Now().UTC().Add(-time.Minute)
	rule.LastTriggered = &recent
	rules := newFakeRuleStore(rule)
	bars := &fakeBarStore{bars: map[string][]market.Bar{
		"AAAUSDT": barSeries("AAAUSDT", testCloses1, start, time.Minute),
		"BBBUSDT": barSeries("BBBUSDT", testCloses2, start, time.Minute),
	}}
	disp := &fakeDispatcher{}
	m := newTestMonitor(rules, bars, disp)

	summary, err := m.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if summary.Suppressed != 1 || summary.Fired != 0 {
		t.Fatalf("summary = %+v, want 1 suppressed", summary)
	}
	if len(disp.notes) != 0 {
		t.Fatal("suppressed breach must not dispatch")
	}
	if len(rules.history) != 0 {
		t.Fatal("suppressed breach must not write history")
	}
}

func TestCheckNowRejectsOverlap(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rule := zRule("slow", "AAAUSDT", "BBBUSDT", 99)
	rules := newFakeRuleStore(rule)
	bars := &fakeBarStore{
		bars: map[string][]market.Bar{
			"AAAUSDT": barSeries("AAAUSDT", testCloses1, start, time.Minute),
			"BBBUSDT": barSeries("BBBUSDT", testCloses2, start, time.Minute),
		},
		wait: 200 * time.Millisecond,
	}
	m := newTestMonitor(rules, bars, &fakeDispatcher{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.CheckNow(context.Background())
		firstDone <- err
	}()

	// wait for the first cycle to take the slot
	deadline := time.Now().Add(time.Second)
	for {
		_, err := m.CheckNow(context.Background())
		if errors.Is(err, ErrCycleInFlight) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("never observed an in-flight rejection")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := <-firstDone; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
}

func TestStatusReportsIntervalAndActiveRules(t *testing.T) {
	rules := newFakeRuleStore(
		zRule("a", "AAAUSDT", "BBBUSDT", 2),
		zRule("b", "BBBUSDT", "AAAUSDT", 2),
	)
	m := New(rules, &fakeBarStore{}, &fakeDispatcher{}, &fakeRunner{}, nil, Options{Interval: 30 * time.Second}, zerolog.Nop())

	status, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running || status.State != StateStopped {
		t.Fatalf("stopped monitor reported %+v", status)
	}
	if status.Interval != 30*time.Second {
		t.Fatalf("interval = %s, want 30s", status.Interval)
	}
	if status.ActiveRules != 2 {
		t.Fatalf("active rules = %d, want 2", status.ActiveRules)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(context.Background())

	status, err = m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.State != StateRunning {
		t.Fatalf("running monitor reported %+v", status)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	m := New(newFakeRuleStore(), &fakeBarStore{}, &fakeDispatcher{}, runner, nil, Options{}, zerolog.Nop())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if m.State() != StateRunning {
		t.Fatalf("state = %s, want running", m.State())
	}

	// give the loop goroutine a moment to invoke the runner
	deadline := time.Now().Add(time.Second)
	for runner.runCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := runner.runCount(); got != 1 {
		t.Fatalf("runner started %d times, want 1", got)
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", m.State())
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
