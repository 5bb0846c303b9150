package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pairwatch/internal/alerting"
	"pairwatch/internal/analytics"
	"pairwatch/internal/market"
	"pairwatch/internal/storage"
)

// CycleSummary is the outcome of one evaluation cycle.
type CycleSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	RulesTotal int           `json:"rules_total"`
	Fired      int           `json:"fired"`
	Suppressed int           `json:"suppressed"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
}

type ruleOutcome int

const (
	outcomeSkipped ruleOutcome = iota
	outcomeSuppressed
	outcomeFired
)

// runCycle loads the active rules once and evaluates them concurrently.
// A rule failure is isolated; only failure to list the rules aborts the
// cycle.
func (m *Monitor) runCycle(ctx context.Context, at time.Time) (CycleSummary, error) {
	if !m.cycleMu.TryLock() {
		return CycleSummary{}, ErrCycleInFlight
	}
	defer m.cycleMu.Unlock()

	started := m.now().UTC()
	summary := CycleSummary{StartedAt: at}

	rules, err := m.rules.ListActiveRules(ctx)
	if err != nil {
		return CycleSummary{}, fmt.Errorf("list active rules: %w", err)
	}
	summary.RulesTotal = len(rules)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, rule := range rules {
		wg.Add(1)
		go func(rule storage.AlertRule) {
			defer wg.Done()

			ruleCtx, cancel := context.WithTimeout(ctx, m.opts.RuleTimeout)
			defer cancel()

			outcome, evalErr := m.evaluateRule(ruleCtx, rule, at)

			mu.Lock()
			defer mu.Unlock()
			m.metrics.RulesEvaluated.Inc()
			switch {
			case evalErr != nil:
				summary.Errors++
				m.metrics.RuleErrors.Inc()
				m.logger.Error().Err(evalErr).
					Str("rule", rule.Name).
					Stringer("rule_id", rule.ID).
					Msg("rule evaluation failed")
			case outcome == outcomeFired:
				summary.Fired++
				m.metrics.AlertsFired.Inc()
			case outcome == outcomeSuppressed:
				summary.Suppressed++
				m.metrics.AlertsSuppressed.Inc()
			default:
				summary.Skipped++
			}
		}(rule)
	}
	wg.Wait()

	summary.Duration = m.now().UTC().Sub(started)
	m.metrics.CyclesTotal.Inc()
	m.metrics.CycleDuration.Observe(summary.Duration.Seconds())
	m.logger.Info().
		Int("rules", summary.RulesTotal).
		Int("fired", summary.Fired).
		Int("suppressed", summary.Suppressed).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Dur("took", summary.Duration).
		Msg("cycle complete")

	return summary, nil
}

func (m *Monitor) evaluateRule(ctx context.Context, rule storage.AlertRule, at time.Time) (ruleOutcome, error) {
	bars1, err := m.bars.GetBarRange(ctx, rule.Symbol1, rule.Timeframe, m.opts.Lookback)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("load %s bars: %w", rule.Symbol1, err)
	}
	bars2, err := m.bars.GetBarRange(ctx, rule.Symbol2, rule.Timeframe, m.opts.Lookback)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("load %s bars: %w", rule.Symbol2, err)
	}

	ps, err := market.AlignPair(bars1, bars2)
	if err != nil {
		if errors.Is(err, market.ErrNotAligned) {
			m.logger.Debug().Str("rule", rule.Name).Msg("not enough aligned data yet")
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("align pair: %w", err)
	}

	res, err := analytics.AnalyzePair(ps, m.opts.Window)
	if err != nil {
		// thin or degenerate data is a wait-for-more condition
		if analytics.IsInsufficientData(err) || analytics.IsRegressionError(err) {
			m.logger.Debug().Err(err).Str("rule", rule.Name).Msg("analysis skipped")
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("analyze pair: %w", err)
	}

	decision := alerting.Evaluate(alerting.EvalInput{
		ZScore:         res.ZScore.Current,
		ZAvailable:     res.ZScore.Available,
		ThresholdUpper: rule.ThresholdUpper,
		ThresholdLower: rule.ThresholdLower,
		LastTriggered:  rule.LastTriggered,
		Cooldown:       rule.Cooldown,
		Now:            at,
	})

	switch decision.Outcome {
	case alerting.OutcomeSkip:
		return outcomeSkipped, nil
	case alerting.OutcomeSuppressed:
		m.logger.Info().
			Str("rule", rule.Name).
			Float64("zscore", res.ZScore.Current).
			Msg("breach suppressed by cooldown")
		return outcomeSuppressed, nil
	}

	return outcomeFired, m.fireAlert(ctx, rule, res, decision, at)
}

// fireAlert dispatches notifications and writes the audit trail. The
// history record is written even when every channel fails, so breaches
// are never silently lost.
func (m *Monitor) fireAlert(ctx context.Context, rule storage.AlertRule, res *analytics.PairAnalysisResult, decision alerting.Decision, at time.Time) error {
	note := alerting.Notification{
		RuleName:    rule.Name,
		Symbol1:     rule.Symbol1,
		Symbol2:     rule.Symbol2,
		Timeframe:   string(rule.Timeframe),
		ZScore:      res.ZScore.Current,
		Threshold:   decision.Threshold,
		Direction:   decision.Direction,
		Signal:      string(res.ZScore.Signal),
		HedgeRatio:  res.HedgeRatio.Ratio,
		Correlation: res.Correlation.Pearson,
		SpreadMean:  res.Spread.Mean,
		SpreadStd:   res.Spread.Std,
		TriggeredAt: at,
	}
	dispatch := m.dispatcher.Dispatch(ctx, rule.Channels, rule.ChannelConfig, note)
	for channel, ok := range dispatch.Sent {
		if !ok {
			m.metrics.NotifyFailures.WithLabelValues(channel).Inc()
		}
	}

	snapshot := storage.ContextSnapshot{
		Symbol1:       rule.Symbol1,
		Symbol2:       rule.Symbol2,
		Timeframe:     string(rule.Timeframe),
		DataPoints:    res.DataPoints,
		ZScore:        res.ZScore.Current,
		Signal:        string(res.ZScore.Signal),
		Pearson:       res.Correlation.Pearson,
		HedgeRatio:    res.HedgeRatio.Ratio,
		SpreadCurrent: res.Spread.Current,
		SpreadMean:    res.Spread.Mean,
		SpreadStd:     res.Spread.Std,
	}
	if res.Cointegration.Available {
		cointegrated := res.Cointegration.CointegratedAt5Pct
		snapshot.CointegratedAt5Pct = &cointegrated
	}

	event := storage.AlertEvent{
		RuleID:             rule.ID,
		TriggerValue:       res.ZScore.Current,
		ThresholdBreached:  decision.Threshold,
		Snapshot:           snapshot,
		TriggeredAt:        at,
		NotificationsSent:  dispatch.Sent,
		NotificationErrors: dispatch.Errors,
	}
	if _, err := m.rules.AppendHistory(ctx, event); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := m.rules.MarkRuleTriggered(ctx, rule.ID, at); err != nil {
		return fmt.Errorf("mark rule triggered: %w", err)
	}

	m.logger.Info().
		Str("rule", rule.Name).
		Float64("zscore", res.ZScore.Current).
		Float64("threshold", decision.Threshold).
		Str("direction", string(decision.Direction)).
		Msg("alert fired")
	return nil
}
