package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pairwatch/internal/market"
)

// RuleStatus is the lifecycle state of an alert rule.
type RuleStatus string

const (
	RuleActive RuleStatus = "active"
	RulePaused RuleStatus = "paused"
)

// AlertKind tags the rule variant. Each kind carries its own typed
// threshold payload; adding a kind means extending this closed set, not
// matching free-form strings.
type AlertKind string

const (
	// KindZScoreThreshold fires when the pair's current spread z-score
	// breaches an upper or lower bound.
	KindZScoreThreshold AlertKind = "zscore_threshold"
)

// ValidKind reports whether k names a known alert kind.
func ValidKind(k AlertKind) bool {
	return k == KindZScoreThreshold
}

// AlertRule is a persisted alert definition. Consumed read-only by the
// monitor; only last_triggered_at/trigger_count/status mutate after
// creation, always through the store.
type AlertRule struct {
	ID             uuid.UUID
	Name           string
	Kind           AlertKind
	Symbol1        string
	Symbol2        string
	Timeframe      market.Timeframe
	ThresholdUpper *float64
	ThresholdLower *float64
	Channels       []string
	ChannelConfig  map[string]json.RawMessage
	Cooldown       time.Duration
	Status         RuleStatus
	LastTriggered  *time.Time
	TriggerCount   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContextSnapshot is the compact copy of the analysis that triggered an
// alert, persisted alongside the event for auditing.
type ContextSnapshot struct {
	Symbol1            string  `json:"symbol1"`
	Symbol2            string  `json:"symbol2"`
	Timeframe          string  `json:"timeframe"`
	DataPoints         int     `json:"data_points"`
	ZScore             float64 `json:"zscore"`
	Signal             string  `json:"signal"`
	Pearson            float64 `json:"pearson"`
	HedgeRatio         float64 `json:"hedge_ratio"`
	SpreadCurrent      float64 `json:"spread_current"`
	SpreadMean         float64 `json:"spread_mean"`
	SpreadStd          float64 `json:"spread_std"`
	CointegratedAt5Pct *bool   `json:"is_cointegrated_at_5pct,omitempty"`
}

// AlertEvent is one append-only history record, created exactly once per
// fire decision. Only the acknowledged flag mutates afterwards.
type AlertEvent struct {
	ID                 uuid.UUID
	RuleID             uuid.UUID
	TriggerValue       float64
	ThresholdBreached  float64
	Snapshot           ContextSnapshot
	TriggeredAt        time.Time
	NotificationsSent  map[string]bool
	NotificationErrors map[string]string
	Acknowledged       bool
}

// HistoryFilter narrows ListHistory output.
type HistoryFilter struct {
	RuleID *uuid.UUID
	Since  *time.Time
}
