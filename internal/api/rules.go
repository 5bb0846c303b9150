package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"pairwatch/internal/market"
	"pairwatch/internal/storage"
)

// rulePayload is the wire form of a rule for create and update.
type rulePayload struct {
	Name            string                     `json:"name"`
	Kind            string                     `json:"kind"`
	Symbol1         string                     `json:"symbol1"`
	Symbol2         string                     `json:"symbol2"`
	Timeframe       string                     `json:"timeframe"`
	ThresholdUpper  *float64                   `json:"threshold_upper"`
	ThresholdLower  *float64                   `json:"threshold_lower"`
	Channels        []string                   `json:"channels"`
	ChannelConfig   map[string]json.RawMessage `json:"channel_config"`
	CooldownSeconds int64                      `json:"cooldown_seconds"`
	Status          string                     `json:"status"`
}

type ruleResponse struct {
	ID              uuid.UUID                  `json:"id"`
	Name            string                     `json:"name"`
	Kind            string                     `json:"kind"`
	Symbol1         string                     `json:"symbol1"`
	Symbol2         string                     `json:"symbol2"`
	Timeframe       string                     `json:"timeframe"`
	ThresholdUpper  *float64                   `json:"threshold_upper"`
	ThresholdLower  *float64                   `json:"threshold_lower"`
	Channels        []string                   `json:"channels"`
	ChannelConfig   map[string]json.RawMessage `json:"channel_config"`
	CooldownSeconds int64                      `json:"cooldown_seconds"`
	Status          string                     `json:"status"`
	LastTriggered   *time.Time                 `json:"last_triggered_at"`
	TriggerCount    int64                      `json:"trigger_count"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func toRuleResponse(r storage.AlertRule) ruleResponse {
	return ruleResponse{
		ID:              r.ID,
		Name:            r.Name,
		Kind:            string(r.Kind),
		Symbol1:         r.Symbol1,
		Symbol2:         r.Symbol2,
		Timeframe:       string(r.Timeframe),
		ThresholdUpper:  r.ThresholdUpper,
		ThresholdLower:  r.ThresholdLower,
		Channels:        r.Channels,
		ChannelConfig:   r.ChannelConfig,
		CooldownSeconds: int64(r.Cooldown / time.Second),
		Status:          string(r.Status),
		LastTriggered:   r.LastTriggered,
		TriggerCount:    r.TriggerCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (p rulePayload) toRule() (storage.AlertRule, error) {
	if p.Name == "" {
		return storage.AlertRule{}, fmt.Errorf("name is required")
	}
	if p.Symbol1 == "" || p.Symbol2 == "" {
		return storage.AlertRule{}, fmt.Errorf("symbol1 and symbol2 are required")
	}
	if p.Symbol1 == p.Symbol2 {
		return storage.AlertRule{}, fmt.Errorf("symbol1 and symbol2 must differ")
	}

	tf, err := market.ParseTimeframe(p.Timeframe)
	if err != nil {
		return storage.AlertRule{}, err
	}

	kind := storage.AlertKind(p.Kind)
	if p.Kind == "" {
		kind = storage.KindZScoreThreshold
	}
	if !storage.ValidKind(kind) {
		return storage.AlertRule{}, fmt.Errorf("unknown alert kind %q", p.Kind)
	}

	if p.ThresholdUpper == nil && p.ThresholdLower == nil {
		return storage.AlertRule{}, fmt.Errorf("at least one of threshold_upper, threshold_lower is required")
	}
	if p.CooldownSeconds < 0 {
		return storage.AlertRule{}, fmt.Errorf("cooldown_seconds must not be negative")
	}

	status := storage.RuleStatus(p.Status)
	if p.Status == "" {
		status = storage.RuleActive
	}
	if status != storage.RuleActive && status != storage.RulePaused {
		return storage.AlertRule{}, fmt.Errorf("unknown status %q", p.Status)
	}

	return storage.AlertRule{
		Name:           p.Name,
		Kind:           kind,
		Symbol1:        p.Symbol1,
		Symbol2:        p.Symbol2,
		Timeframe:      tf,
		ThresholdUpper: p.ThresholdUpper,
		ThresholdLower: p.ThresholdLower,
		Channels:       p.Channels,
		ChannelConfig:  p.ChannelConfig,
		Cooldown:       time.Duration(p.CooldownSeconds) * time.Second,
		Status:         status,
	}, nil
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListRules(r.Context())
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	out := make([]ruleResponse, len(rules))
	for i, rule := range rules {
		out[i] = toRuleResponse(rule)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	rule, err := payload.toRule()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.rules.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(created))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	rule, err := payload.toRule()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule.ID = id

	if err := s.rules.UpdateRule(r.Context(), rule); err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	updated, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(updated))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.rules.DeleteRule(r.Context(), id); err != nil {
		writeError(w, storageStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.UUID{}, false
	}
	return id, true
}
