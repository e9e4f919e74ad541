// Package api provides the rule management HTTP API: custom and heuristic
// rule CRUD, category toggles, pattern testing, cooldown resets and the
// field vocabulary.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"
	"flock-sentinel/internal/vocab"

	"gopkg.in/yaml.v3"
)

const maxBodySize = 1 << 20

// RuleManager is the engine surface the API drives.
type RuleManager interface {
	AddCustomRule(rule rules.LiteralRule) (rules.LiteralRule, error)
	UpdateCustomRule(rule rules.LiteralRule) (rules.LiteralRule, error)
	DeleteCustomRule(id string) error
	ToggleCustomRule(id string, enabled bool) error
	CustomRule(id string) (rules.LiteralRule, bool)
	CustomRules() []rules.LiteralRule
	BuiltinRules() []rules.LiteralRule

	AddHeuristicRule(rule rules.HeuristicRule) (rules.HeuristicRule, error)
	UpdateHeuristicRule(rule rules.HeuristicRule) (rules.HeuristicRule, error)
	DeleteHeuristicRule(id string) error
	ToggleHeuristicRule(id string, enabled bool) error
	HeuristicRule(id string) (rules.HeuristicRule, bool)
	HeuristicRules() []rules.HeuristicRule

	ToggleCategory(name string, enabled bool) error
	Categories() []engine.CategoryState

	ImportRuleSet(rs *rules.RuleSet) error
	Snapshot() *rules.RuleSet

	ResetCooldown(ctx context.Context, ruleIDs ...string) error
	TestPattern(kind matcher.Kind, pattern, value string) (bool, error)
}

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Part names the rejected piece of a rule on validation errors.
	Part  string `json:"part,omitempty"`
	Index *int   `json:"index,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, apiErr APIError) {
	writeJSON(w, status, apiErr)
}

// writeError maps engine and rule errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	if ve, ok := rules.AsValidation(err); ok {
		apiErr := APIError{Code: "INVALID_RULE", Message: ve.Error(), Part: ve.Part}
		if ve.Index >= 0 {
			idx := ve.Index
			apiErr.Index = &idx
		}
		writeJSONError(w, http.StatusBadRequest, apiErr)
		return
	}
	switch {
	case errors.Is(err, rules.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, engine.ErrUnknownCategory):
		writeJSONError(w, http.StatusNotFound, APIError{Code: "UNKNOWN_CATEGORY", Message: err.Error()})
	case errors.Is(err, rules.ErrDuplicateID):
		writeJSONError(w, http.StatusConflict, APIError{Code: "DUPLICATE_ID", Message: err.Error()})
	case errors.Is(err, rules.ErrUnknownKind), errors.Is(err, rules.ErrPatternSyntax):
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_PATTERN", Message: err.Error(), Part: "pattern"})
	default:
		slog.Error("rule management request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: "INTERNAL", Message: "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_BODY", Message: "request body is empty"})
			return false
		}
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_BODY", Message: err.Error()})
		return false
	}
	return true
}

// RuleAPI serves the rule management endpoints.
type RuleAPI struct {
	rules           RuleManager
	defaultCooldown time.Duration
}

// NewRuleAPI creates the API. defaultCooldown applies to heuristic rules
// created without a cooldown_ms.
func NewRuleAPI(m RuleManager, defaultCooldown time.Duration) *RuleAPI {
	return &RuleAPI{rules: m, defaultCooldown: defaultCooldown}
}

// RegisterRoutes registers the API routes on mux.
func (a *RuleAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/rules/builtin", a.handleListBuiltin)

	mux.HandleFunc("GET /v1/rules/custom", a.handleListCustom)
	mux.HandleFunc("POST /v1/rules/custom", a.handleCreateCustom)
	mux.HandleFunc("GET /v1/rules/custom/{id}", a.handleGetCustom)
	mux.HandleFunc("PUT /v1/rules/custom/{id}", a.handleUpdateCustom)
	mux.HandleFunc("DELETE /v1/rules/custom/{id}", a.handleDeleteCustom)
	mux.HandleFunc("POST /v1/rules/custom/{id}/toggle", a.handleToggleCustom)

	mux.HandleFunc("GET /v1/rules/heuristic", a.handleListHeuristic)
	mux.HandleFunc("POST /v1/rules/heuristic", a.handleCreateHeuristic)
	mux.HandleFunc("GET /v1/rules/heuristic/{id}", a.handleGetHeuristic)
	mux.HandleFunc("PUT /v1/rules/heuristic/{id}", a.handleUpdateHeuristic)
	mux.HandleFunc("DELETE /v1/rules/heuristic/{id}", a.handleDeleteHeuristic)
	mux.HandleFunc("POST /v1/rules/heuristic/{id}/toggle", a.handleToggleHeuristic)

	mux.HandleFunc("GET /v1/rules/export", a.handleExport)
	mux.HandleFunc("POST /v1/rules/import", a.handleImport)

	mux.HandleFunc("GET /v1/categories", a.handleListCategories)
	mux.HandleFunc("POST /v1/categories/{name}/toggle", a.handleToggleCategory)

	mux.HandleFunc("POST /v1/patterns/test", a.handleTestPattern)
	mux.HandleFunc("POST /v1/cooldowns/reset", a.handleResetCooldowns)
	mux.HandleFunc("GET /v1/fields", a.handleListDomains)
	mux.HandleFunc("GET /v1/fields/{domain}", a.handleFields)
}

// literalRequest lets create and update tell an omitted enabled flag from
// false.
type literalRequest struct {
	rules.LiteralRule
	Enabled *bool `json:"enabled"`
}

func (req literalRequest) rule() rules.LiteralRule {
	r := req.LiteralRule
	r.Enabled = req.Enabled == nil || *req.Enabled
	return r
}

type heuristicRequest struct {
	rules.HeuristicRule
	Enabled    *bool  `json:"enabled"`
	CooldownMs *int64 `json:"cooldown_ms"`
}

func (req heuristicRequest) rule(defaultCooldown time.Duration) rules.HeuristicRule {
	r := req.HeuristicRule
	r.Enabled = req.Enabled == nil || *req.Enabled
	if req.CooldownMs != nil {
		r.CooldownMs = *req.CooldownMs
	} else {
		r.CooldownMs = defaultCooldown.Milliseconds()
	}
	return r
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func decodeToggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return false, false
	}
	if req.Enabled == nil {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_BODY", Message: "enabled is required", Part: "enabled"})
		return false, false
	}
	return *req.Enabled, true
}

func (a *RuleAPI) handleListBuiltin(w http.ResponseWriter, r *http.Request) {
	list := a.rules.BuiltinRules()
	if d := r.URL.Query().Get("domain"); d != "" {
		domain, err := vocab.ParseDomain(d)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, APIError{Code: "UNKNOWN_DOMAIN", Message: err.Error(), Part: "domain"})
			return
		}
		filtered := list[:0]
		for _, rule := range list {
			if rule.Domain == domain {
				filtered = append(filtered, rule)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list, "total": len(list)})
}

func (a *RuleAPI) handleListCustom(w http.ResponseWriter, r *http.Request) {
	list := a.rules.CustomRules()
	writeJSON(w, http.StatusOK, map[string]any{"rules": list, "total": len(list)})
}

func (a *RuleAPI) handleCreateCustom(w http.ResponseWriter, r *http.Request) {
	var req literalRequest
	if !decode(w, r, &req) {
		return
	}
	stored, err := a.rules.AddCustomRule(req.rule())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (a *RuleAPI) handleGetCustom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rule, ok := a.rules.CustomRule(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: "rule not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *RuleAPI) handleUpdateCustom(w http.ResponseWriter, r *http.Request) {
	var req literalRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	rule := req.rule()
	if req.Enabled == nil {
		if current, ok := a.rules.CustomRule(id); ok {
			rule.Enabled = current.Enabled
		}
	}
	rule.ID = id
	stored, err := a.rules.UpdateCustomRule(rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (a *RuleAPI) handleDeleteCustom(w http.ResponseWriter, r *http.Request) {
	if err := a.rules.DeleteCustomRule(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *RuleAPI) handleToggleCustom(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.rules.ToggleCustomRule(id, enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}

func (a *RuleAPI) handleListHeuristic(w http.ResponseWriter, r *http.Request) {
	list := a.rules.HeuristicRules()
	writeJSON(w, http.StatusOK, map[string]any{"rules": list, "total": len(list)})
}

func (a *RuleAPI) handleCreateHeuristic(w http.ResponseWriter, r *http.Request) {
	var req heuristicRequest
	if !decode(w, r, &req) {
		return
	}
	stored, err := a.rules.AddHeuristicRule(req.rule(a.defaultCooldown))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (a *RuleAPI) handleGetHeuristic(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rule, ok := a.rules.HeuristicRule(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: "rule not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *RuleAPI) handleUpdateHeuristic(w http.ResponseWriter, r *http.Request) {
	var req heuristicRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	rule := req.rule(a.defaultCooldown)
	if current, ok := a.rules.HeuristicRule(id); ok {
		if req.Enabled == nil {
			rule.Enabled = current.Enabled
		}
		if req.CooldownMs == nil {
			rule.CooldownMs = current.CooldownMs
		}
	}
	rule.ID = id
	stored, err := a.rules.UpdateHeuristicRule(rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (a *RuleAPI) handleDeleteHeuristic(w http.ResponseWriter, r *http.Request) {
	if err := a.rules.DeleteHeuristicRule(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *RuleAPI) handleToggleHeuristic(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.rules.ToggleHeuristicRule(id, enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}

func (a *RuleAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := rules.MarshalRuleSet(a.rules.Snapshot())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="rules.yaml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleImport accepts the export format (YAML) or the same document as
// JSON when the request says so.
func (a *RuleAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_BODY", Message: "request body is empty"})
		return
	}

	var rs rules.RuleSet
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		err = json.Unmarshal(data, &rs)
	} else {
		err = yaml.Unmarshal(data, &rs)
	}
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	if rs.Version > rules.RuleSetVersion {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "UNSUPPORTED_VERSION",
			Message: fmt.Sprintf("unsupported rule set version %d", rs.Version),
		})
		return
	}

	if err := a.rules.ImportRuleSet(&rs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"literal":    len(rs.Literal),
		"heuristic":  len(rs.Heuristic),
		"categories": len(rs.Categories),
	})
}

func (a *RuleAPI) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": a.rules.Categories()})
}

func (a *RuleAPI) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if err := a.rules.ToggleCategory(name, enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": enabled})
}

type patternTestRequest struct {
	Kind    matcher.Kind `json:"kind"`
	Pattern string       `json:"pattern"`
	Value   string       `json:"value"`
}

func (a *RuleAPI) handleTestPattern(w http.ResponseWriter, r *http.Request) {
	var req patternTestRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Pattern) == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_PATTERN", Message: "pattern is required", Part: "pattern"})
		return
	}
	matched, err := a.rules.TestPattern(req.Kind, req.Pattern, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matched": matched})
}

type cooldownResetRequest struct {
	RuleIDs []string `json:"rule_ids"`
}

func (a *RuleAPI) handleResetCooldowns(w http.ResponseWriter, r *http.Request) {
	// An empty body resets every rule.
	var req cooldownResetRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	if err := a.rules.ResetCooldown(r.Context(), req.RuleIDs...); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": len(req.RuleIDs), "all": len(req.RuleIDs) == 0})
}

func (a *RuleAPI) handleListDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"domains": vocab.AllDomains()})
}

func (a *RuleAPI) handleFields(w http.ResponseWriter, r *http.Request) {
	domain, err := vocab.ParseDomain(r.PathValue("domain"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "UNKNOWN_DOMAIN", Message: err.Error(), Part: "domain"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "fields": vocab.Fields(domain)})
}
