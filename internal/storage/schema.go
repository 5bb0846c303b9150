package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bar_series (
        symbol    TEXT NOT NULL,
        timeframe TEXT NOT NULL,
        PRIMARY KEY (symbol, timeframe)
    );`,

	`CREATE TABLE IF NOT EXISTS bars (
        bucket_ts   TIMESTAMPTZ NOT NULL,
        symbol      TEXT        NOT NULL,
        timeframe   TEXT        NOT NULL,
        open        NUMERIC     NOT NULL,
        high        NUMERIC     NOT NULL,
        low         NUMERIC     NOT NULL,
        close       NUMERIC     NOT NULL,
        volume      NUMERIC     NOT NULL,
        trade_count BIGINT      NOT NULL DEFAULT 0,
        PRIMARY KEY (symbol, timeframe, bucket_ts)
    );`,

	`CREATE TABLE IF NOT EXISTS alert_rules (
        id                UUID PRIMARY KEY,
        name              TEXT NOT NULL,
        kind              TEXT NOT NULL,
        symbol1           TEXT NOT NULL,
        symbol2           TEXT NOT NULL,
        timeframe         TEXT NOT NULL,
        threshold_upper   DOUBLE PRECISION,
        threshold_lower   DOUBLE PRECISION,
        channels          JSONB NOT NULL DEFAULT '[]',
        channel_config    JSONB NOT NULL DEFAULT '{}',
        cooldown_seconds  BIGINT NOT NULL DEFAULT 0,
        status            TEXT NOT NULL DEFAULT 'active',
        last_triggered_at TIMESTAMPTZ,
        trigger_count     BIGINT NOT NULL DEFAULT 0,
        created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,

	`CREATE TABLE IF NOT EXISTS alert_history (
        id                  UUID PRIMARY KEY,
        rule_id             UUID NOT NULL,
        trigger_value       DOUBLE PRECISION NOT NULL,
        threshold_breached  DOUBLE PRECISION NOT NULL,
        snapshot            JSONB NOT NULL DEFAULT '{}',
        triggered_at        TIMESTAMPTZ NOT NULL,
        notifications_sent  JSONB NOT NULL DEFAULT '{}',
        notification_errors JSONB NOT NULL DEFAULT '{}',
        acknowledged        BOOLEAN NOT NULL DEFAULT false
    );`,

	`CREATE INDEX IF NOT EXISTS idx_alert_history_rule_time
        ON alert_history (rule_id, triggered_at DESC);`,

	`CREATE INDEX IF NOT EXISTS idx_alert_rules_status
        ON alert_rules (status);`,
}

// EnsureSchema creates missing tables and indexes. Statements are
// idempotent, so running it on every startup is safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("%w: ensure schema: %v", ErrUnavailable, execErr)
		}
	}
	return nil
}
