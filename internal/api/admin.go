package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"beamsched/internal/buildinfo"
	"beamsched/internal/model"
	"beamsched/internal/opt"
	"beamsched/internal/store"
)

// SearchConfigHandler returns the effective search settings of the
// caller's tenant: the service defaults overlaid with the tenant config.
func (s *Server) SearchConfigHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	cfg, err := s.Store.GetSearchConfig(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load search config failed", err.Error(), r.URL.Path)
		return
	}
	settings, err := resolveSettings(s.Config.Search, cfg)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Stored search config invalid", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": settings, "scorers": opt.ScorerNames()})
}

func (s *Server) AdminSearchConfigHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	cfg, err := s.Store.GetSearchConfig(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load search config failed", err.Error(), r.URL.Path)
		return
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
}

// AdminSaveSearchConfigHandler stores tenant overrides after checking
// that they resolve to a valid configuration.
func (s *Server) AdminSaveSearchConfigHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	var body struct {
		Config map[string]any `json:"config"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if body.Config == nil {
		writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
		return
	}
	if _, err := resolveSettings(s.Config.Search, body.Config); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid search config", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.SaveSearchConfig(r.Context(), p.Tenant, body.Config); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SearchMetricsHandler returns the in-process summaries of recent runs.
func (s *Server) SearchMetricsHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	writeJSON(w, http.StatusOK, map[string]any{"runs": opt.GetMetrics(p.Tenant)})
}

func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	var req model.SubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	req.TenantID = p.Tenant
	if err := validateStruct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
		return
	}
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
		return
	}
	for i := range items {
		items[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	err := s.Store.DeleteSubscription(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	q := r.URL.Query()
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// DebugJSON reports the build and the non-secret parts of the config.
func (s *Server) DebugJSON(w http.ResponseWriter, _ *http.Request) {
	c := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":               c.Port,
			"rateRps":            c.RateRPS,
			"rateBurst":          c.RateBurst,
			"search":             defaultSettings(c.Search),
			"webhookMaxAttempts": c.WebhookMaxAttempts,
			"tracesExporter":     c.TracesExporter,
			"hasDatabaseUrl":     c.DatabaseURL != "",
			"hasRedisUrl":        c.RedisURL != "",
		},
	})
}
