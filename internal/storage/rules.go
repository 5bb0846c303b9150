package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pairwatch/internal/market"
)

const (
	insertRuleSQL = `INSERT INTO alert_rules (
        id, name, kind, symbol1, symbol2, timeframe,
        threshold_upper, threshold_lower, channels, channel_config,
        cooldown_seconds, status, trigger_count, created_at, updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,now(),now()
    );`

	updateRuleSQL = `UPDATE alert_rules
    SET name = $2,
        symbol1 = $3,
        symbol2 = $4,
        timeframe = $5,
        threshold_upper = $6,
        threshold_lower = $7,
        channels = $8,
        channel_config = $9,
        cooldown_seconds = $10,
        status = $11,
        updated_at = now()
    WHERE id = $1;`

	deleteRuleSQL = `DELETE FROM alert_rules WHERE id = $1;`

	selectRuleColumns = `id, name, kind, symbol1, symbol2, timeframe,
        threshold_upper, threshold_lower, channels, channel_config,
        cooldown_seconds, status, last_triggered_at, trigger_count,
        created_at, updated_at`

	getRuleSQL = `SELECT ` + selectRuleColumns + ` FROM alert_rules WHERE id = $1;`

	listActiveRulesSQL = `SELECT ` + selectRuleColumns + `
    FROM alert_rules WHERE status = 'active' ORDER BY created_at;`

	listRulesSQL = `SELECT ` + selectRuleColumns + ` FROM alert_rules ORDER BY created_at;`

	markRuleTriggeredSQL = `UPDATE alert_rules
    SET last_triggered_at = $2, trigger_count = trigger_count + 1, updated_at = now()
    WHERE id = $1;`

	insertEventSQL = `INSERT INTO alert_history (
        id, rule_id, trigger_value, threshold_breached, snapshot,
        triggered_at, notifications_sent, notification_errors, acknowledged
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,false
    );`

	listHistorySQL = `SELECT
        id, rule_id, trigger_value, threshold_breached, snapshot,
        triggered_at, notifications_sent, notification_errors, acknowledged
    FROM alert_history
    WHERE ($2::uuid IS NULL OR rule_id = $2)
      AND ($3::timestamptz IS NULL OR triggered_at >= $3)
    ORDER BY triggered_at DESC
    LIMIT $1;`

	acknowledgeEventSQL = `UPDATE alert_history SET acknowledged = true WHERE id = $1;`
)

// RuleStore is the durable collection of alert rules and trigger history.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]AlertRule, error)
	ListRules(ctx context.Context) ([]AlertRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (AlertRule, error)
	CreateRule(ctx context.Context, rule AlertRule) (AlertRule, error)
	UpdateRule(ctx context.Context, rule AlertRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
	MarkRuleTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendHistory(ctx context.Context, event AlertEvent) (AlertEvent, error)
	ListHistory(ctx context.Context, limit int, filter HistoryFilter) ([]AlertEvent, error)
	AcknowledgeEvent(ctx context.Context, id uuid.UUID) error
}

// CreateRule persists a new rule. The store assigns the identifier.
func (s *Store) CreateRule(ctx context.Context, rule AlertRule) (AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRule{}, err
	}
	if !ValidKind(rule.Kind) {
		return AlertRule{}, fmt.Errorf("unknown alert kind %q", rule.Kind)
	}

	rule.ID = uuid.New()
	if rule.Status == "" {
		rule.Status = RuleActive
	}

	channels, cfg, marshalErr := marshalRuleJSON(rule)
	if marshalErr != nil {
		return AlertRule{}, marshalErr
	}

	_, execErr := pool.Exec(ctx, insertRuleSQL,
		rule.ID,
		rule.Name,
		string(rule.Kind),
		rule.Symbol1,
		rule.Symbol2,
		string(rule.Timeframe),
		rule.ThresholdUpper,
		rule.ThresholdLower,
		channels,
		cfg,
		int64(rule.Cooldown/time.Second),
		string(rule.Status),
	)
	if execErr != nil {
		return AlertRule{}, fmt.Errorf("%w: insert rule: %v", ErrUnavailable, execErr)
	}
	return s.GetRule(ctx, rule.ID)
}

// UpdateRule rewrites an existing rule definition.
func (s *Store) UpdateRule(ctx context.Context, rule AlertRule) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	channels, cfg, marshalErr := marshalRuleJSON(rule)
	if marshalErr != nil {
		return marshalErr
	}

	tag, execErr := pool.Exec(ctx, updateRuleSQL,
		rule.ID,
		rule.Name,
		rule.Symbol1,
		rule.Symbol2,
		string(rule.Timeframe),
		rule.ThresholdUpper,
		rule.ThresholdLower,
		channels,
		cfg,
		int64(rule.Cooldown/time.Second),
		string(rule.Status),
	)
	if execErr != nil {
		return fmt.Errorf("%w: update rule: %v", ErrUnavailable, execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule definition. History records remain.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, deleteRuleSQL, id)
	if execErr != nil {
		return fmt.Errorf("%w: delete rule: %v", ErrUnavailable, execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRule fetches one rule by id.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRule{}, err
	}
	rows, queryErr := pool.Query(ctx, getRuleSQL, id)
	if queryErr != nil {
		return AlertRule{}, fmt.Errorf("%w: get rule: %v", ErrUnavailable, queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return AlertRule{}, fmt.Errorf("%w: %v", ErrUnavailable, rows.Err())
		}
		return AlertRule{}, ErrNotFound
	}
	return scanRule(rows)
}

// ListActiveRules returns rules with status = active.
func (s *Store) ListActiveRules(ctx context.Context) ([]AlertRule, error) {
	return s.listRules(ctx, listActiveRulesSQL)
}

// ListRules returns all rules regardless of status.
func (s *Store) ListRules(ctx context.Context) ([]AlertRule, error) {
	return s.listRules(ctx, listRulesSQL)
}

func (s *Store) listRules(ctx context.Context, sql string) ([]AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, sql)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: list rules: %v", ErrUnavailable, queryErr)
	}
	defer rows.Close()

	rules := make([]AlertRule, 0)
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, rows.Err())
	}
	return rules, nil
}

// MarkRuleTriggered stamps last_triggered_at and bumps the trigger count
// in one statement, so per-rule updates cannot race.
func (s *Store) MarkRuleTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, markRuleTriggeredSQL, id, at)
	if execErr != nil {
		return fmt.Errorf("%w: mark rule triggered: %v", ErrUnavailable, execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory persists one alert event. The store assigns the id.
func (s *Store) AppendHistory(ctx context.Context, event AlertEvent) (AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertEvent{}, err
	}

	event.ID = uuid.New()
	if event.TriggeredAt.IsZero() {
		event.TriggeredAt = time.Now().UTC()
	}

	snapshot, marshalErr := json.Marshal(event.Snapshot)
	if marshalErr != nil {
		return AlertEvent{}, fmt.Errorf("marshal snapshot: %w", marshalErr)
	}
	sent, marshalErr := json.Marshal(event.NotificationsSent)
	if marshalErr != nil {
		return AlertEvent{}, fmt.Errorf("marshal notifications_sent: %w", marshalErr)
	}
	sendErrs, marshalErr := json.Marshal(event.NotificationErrors)
	if marshalErr != nil {
		return AlertEvent{}, fmt.Errorf("marshal notification_errors: %w", marshalErr)
	}

	_, execErr := pool.Exec(ctx, insertEventSQL,
		event.ID,
		event.RuleID,
		event.TriggerValue,
		event.ThresholdBreached,
		snapshot,
		event.TriggeredAt,
		sent,
		sendErrs,
	)
	if execErr != nil {
		return AlertEvent{}, fmt.Errorf("%w: append history: %v", ErrUnavailable, execErr)
	}
	return event, nil
}

// ListHistory returns the most recent events, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int, filter HistoryFilter) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistorySQL, limit, filter.RuleID, filter.Since)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: list history: %v", ErrUnavailable, queryErr)
	}
	defer rows.Close()

	events := make([]AlertEvent, 0, limit)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, rows.Err())
	}
	return events, nil
}

// AcknowledgeEvent flips the acknowledged flag on one history record.
func (s *Store) AcknowledgeEvent(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, acknowledgeEventSQL, id)
	if execErr != nil {
		return fmt.Errorf("%w: acknowledge event: %v", ErrUnavailable, execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalRuleJSON(rule AlertRule) (channels, cfg []byte, err error) {
	if rule.Channels == nil {
		rule.Channels = []string{}
	}
	channels, err = json.Marshal(rule.Channels)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal channels: %w", err)
	}
	if rule.ChannelConfig == nil {
		rule.ChannelConfig = map[string]json.RawMessage{}
	}
	cfg, err = json.Marshal(rule.ChannelConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal channel config: %w", err)
	}
	return channels, cfg, nil
}

func scanRule(rows pgx.Rows) (AlertRule, error) {
	var (
		rule            AlertRule
		kind            string
		tf              string
		status          string
		channelsRaw     []byte
		cfgRaw          []byte
		cooldownSeconds int64
	)

	if err := rows.Scan(
		&rule.ID,
		&rule.Name,
		&kind,
		&rule.Symbol1,
		&rule.Symbol2,
		&tf,
		&rule.ThresholdUpper,
		&rule.ThresholdLower,
		&channelsRaw,
		&cfgRaw,
		&cooldownSeconds,
		&status,
		&rule.LastTriggered,
		&rule.TriggerCount,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return AlertRule{}, fmt.Errorf("scan rule: %w", err)
	}

	rule.Kind = AlertKind(kind)
	rule.Timeframe = market.Timeframe(tf)
	rule.Status = RuleStatus(status)
	rule.Cooldown = time.Duration(cooldownSeconds) * time.Second

	if err := json.Unmarshal(channelsRaw, &rule.Channels); err != nil {
		return AlertRule{}, fmt.Errorf("parse channels: %w", err)
	}
	if err := json.Unmarshal(cfgRaw, &rule.ChannelConfig); err != nil {
		return AlertRule{}, fmt.Errorf("parse channel config: %w", err)
	}
	return rule, nil
}

func scanEvent(rows pgx.Rows) (AlertEvent, error) {
	var (
		event       AlertEvent
		snapshotRaw []byte
		sentRaw     []byte
		errsRaw     []byte
	)

	if err := rows.Scan(
		&event.ID,
		&event.RuleID,
		&event.TriggerValue,
		&event.ThresholdBreached,
		&snapshotRaw,
		&event.TriggeredAt,
		&sentRaw,
		&errsRaw,
		&event.Acknowledged,
	); err != nil {
		return AlertEvent{}, fmt.Errorf("scan event: %w", err)
	}

	if err := json.Unmarshal(snapshotRaw, &event.Snapshot); err != nil {
		return AlertEvent{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if err := json.Unmarshal(sentRaw, &event.NotificationsSent); err != nil {
		return AlertEvent{}, fmt.Errorf("parse notifications_sent: %w", err)
	}
	if err := json.Unmarshal(errsRaw, &event.NotificationErrors); err != nil {
		return AlertEvent{}, fmt.Errorf("parse notification_errors: %w", err)
	}
	return event, nil
}

var _ RuleStore = (*Store)(nil)
var _ BarStore = (*Store)(nil)
var _ BarWriter = (*Store)(nil)
