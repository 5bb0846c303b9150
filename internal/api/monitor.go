package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"pairwatch/internal/analytics"
	"pairwatch/internal/cache"
	"pairwatch/internal/market"
	"pairwatch/internal/monitor"
	"pairwatch/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type historyResponse struct {
	ID                 uuid.UUID               `json:"id"`
	RuleID             uuid.UUID               `json:"rule_id"`
	TriggerValue       float64                 `json:"trigger_value"`
	ThresholdBreached  float64                 `json:"threshold_breached"`
	Snapshot           storage.ContextSnapshot `json:"snapshot"`
	TriggeredAt        time.Time               `json:"triggered_at"`
	NotificationsSent  map[string]bool         `json:"notifications_sent"`
	NotificationErrors map[string]string       `json:"notification_errors"`
	Acknowledged       bool                    `json:"acknowledged"`
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	var filter storage.HistoryFilter
	if raw := q.Get("rule_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid rule_id")
			return
		}
		filter.RuleID = &id
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = &since
	}

	events, err := s.rules.ListHistory(r.Context(), limit, filter)
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	out := make([]historyResponse, len(events))
	for i, e := range events {
		out[i] = historyResponse{
			ID:                 e.ID,
			RuleID:             e.RuleID,
			TriggerValue:       e.TriggerValue,
			ThresholdBreached:  e.ThresholdBreached,
			Snapshot:           e.Snapshot,
			TriggeredAt:        e.TriggeredAt,
			NotificationsSent:  e.NotificationsSent,
			NotificationErrors: e.NotificationErrors,
			Acknowledged:       e.Acknowledged,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.rules.AcknowledgeEvent(r.Context(), id); err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

type monitorStatusResponse struct {
	Running     bool   `json:"running"`
	State       string `json:"state"`
	Interval    string `json:"interval"`
	ActiveRules int    `json:"active_rules"`
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.monitor.Status(r.Context())
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, monitorStatusResponse{
		Running:     status.Running,
		State:       string(status.State),
		Interval:    status.Interval.String(),
		ActiveRules: status.ActiveRules,
	})
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Start(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.monitor.State())})
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.monitor.State())})
}

func (s *Server) handleMonitorCheck(w http.ResponseWriter, r *http.Request) {
	summary, err := s.monitor.CheckNow(r.Context())
	if err != nil {
		if errors.Is(err, monitor.ErrCycleInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, storageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol1 := q.Get("symbol1")
	symbol2 := q.Get("symbol2")
	if symbol1 == "" || symbol2 == "" {
		writeError(w, http.StatusBadRequest, "symbol1 and symbol2 are required")
		return
	}

	tf, err := market.ParseTimeframe(q.Get("timeframe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	window := s.opts.AnalysisWindow
	if raw := q.Get("window"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "window must be an integer")
			return
		}
		window = n
	}

	bars1, err := s.bars.GetBarRange(r.Context(), symbol1, tf, s.opts.AnalysisLookback)
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	bars2, err := s.bars.GetBarRange(r.Context(), symbol2, tf, s.opts.AnalysisLookback)
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}

	ps, err := market.AlignPair(bars1, bars2)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	res, err := analytics.AnalyzePair(ps, window)
	if err != nil {
		if analytics.IsInsufficientData(err) || analytics.IsRegressionError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type priceResponse struct {
	Symbol   string    `json:"symbol"`
	Price    string    `json:"price"`
	Quantity string    `json:"quantity"`
	TradeAt  time.Time `json:"trade_at"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "symbols query parameter is required")
		return
	}
	symbols := strings.Split(raw, ",")

	ticks, err := s.latest.LatestAll(r.Context(), symbols)
	if err != nil && !errors.Is(err, cache.ErrNoTick) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	out := make([]priceResponse, 0, len(ticks))
	for _, sym := range symbols {
		tick, ok := ticks[sym]
		if !ok {
			continue
		}
		out = append(out, priceResponse{
			Symbol:   tick.Symbol,
			Price:    tick.Price.String(),
			Quantity: tick.Quantity.String(),
			TradeAt:  tick.TradeTime,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
