// Package handlers implements the gateway's admin API: routing rule
// management, rule dry-runs, statistics, and health checks. Rule
// mutations are persisted to the store and then republished wholesale to
// the router, so the live rule set always mirrors the persisted one.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"api-gateway/internal/common/errors"
	"api-gateway/internal/common/logging"
	"api-gateway/internal/gateway"
	"api-gateway/internal/registry"
	"api-gateway/internal/routing"
	"api-gateway/internal/store"
)

type Handlers struct {
	store     *store.Store
	router    *routing.Router
	registry  *registry.Registry
	forwarder *gateway.Forwarder
	health    map[string]HealthChecker
	logger    logging.Logger
}

// HealthChecker is anything with a liveness check the /health endpoint
// should aggregate (store, redis).
type HealthChecker interface {
	Health() error
}

func New(st *store.Store, router *routing.Router, reg *registry.Registry, fwd *gateway.Forwarder, health map[string]HealthChecker) *Handlers {
	return &Handlers{
		store:     st,
		router:    router,
		registry:  reg,
		forwarder: fwd,
		health:    health,
		logger:    logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "handlers"}),
	}
}

// republish loads the full persisted rule set and swaps it into the
// router. Called after every successful mutation.
func (h *Handlers) republish(r *http.Request) error {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		return err
	}
	h.router.UpdateRules(rules)
	return nil
}

// GetRules returns the active rule set in evaluation order.
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules": h.router.Rules(),
	})
}

// CreateRule persists a new rule and republishes the rule set.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule routing.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if err := validateRule(rule); err != nil {
		h.respondError(w, err)
		return
	}

	if err := h.store.CreateRule(r.Context(), rule); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.republish(r); err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("routing rule created",
		logging.Field{Key: "rule_id", Value: rule.ID},
		logging.Field{Key: "target_service", Value: rule.TargetService})
	h.respondJSON(w, http.StatusCreated, rule)
}

// GetRule returns a single persisted rule.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, rule)
}

// UpdateRule replaces a persisted rule and republishes the rule set. The
// rule ID comes from the URL; an ID in the body is ignored.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var rule routing.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	rule.ID = id
	if err := validateRule(rule); err != nil {
		h.respondError(w, err)
		return
	}

	if err := h.store.UpdateRule(r.Context(), rule); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.republish(r); err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("routing rule updated", logging.Field{Key: "rule_id", Value: id})
	h.respondJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a persisted rule and republishes the rule set.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.republish(r); err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("routing rule deleted", logging.Field{Key: "rule_id", Value: id})
	w.WriteHeader(http.StatusNoContent)
}

// TestRule dry-runs a path/method pair against the live router without
// forwarding anything.
func (h *Handlers) TestRule(w http.ResponseWriter, r *http.Request) {
	var req routing.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Method == "" {
		h.respondError(w, errors.ValidationError("path and method are required"))
		return
	}

	decision, matched := h.router.Route(req)
	response := map[string]interface{}{"matched": matched}
	if matched {
		response["decision"] = decision
	}
	h.respondJSON(w, http.StatusOK, response)
}

// GetStats returns the forwarder's routing counters and the state of the
// upstream circuit breakers.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"routing":  h.forwarder.Stats().Snapshot(),
		"breakers": h.forwarder.BreakerStats(),
	})
}

// GetServices returns the configured backend services.
func (h *Handlers) GetServices(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"services": h.registry.Names(),
	})
}

// HealthCheck aggregates the health of the gateway's dependencies.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "healthy"
	checks := map[string]string{}
	for name, checker := range h.health {
		if err := checker.Health(); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		} else {
			checks[name] = "ok"
		}
	}

	h.respondJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}

// validateRule enforces admin-layer schema requirements. The router
// itself accepts anything, including dead rules; only structurally
// unusable input is rejected here.
func validateRule(rule routing.Rule) error {
	if rule.ID == "" {
		return errors.ValidationError("rule id is required")
	}
	if rule.TargetService == "" {
		return errors.ValidationError("target_service is required")
	}
	return nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if appErr, ok := err.(*errors.AppError); ok {
		switch appErr.Type {
		case errors.ErrTypeValidation:
			status = http.StatusBadRequest
		case errors.ErrTypeNotFound:
			status = http.StatusNotFound
		case errors.ErrTypeRateLimit:
			status = http.StatusTooManyRequests
		case errors.ErrTypeConnection:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= 500 {
		h.logger.Error("request failed", err)
	}
	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}
