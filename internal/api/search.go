package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"beamsched/internal/metrics"
	"beamsched/internal/model"
	"beamsched/internal/opt"
	"beamsched/internal/store"
	"beamsched/internal/webhooks"
)

// SearchHandler handles POST /v1/search. The search runs inline unless
// the request asks for async, in which case 202 is returned with the
// queued run and progress is streamed to the broker.
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	var req model.SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.Instance.Agents == 0 {
		req.Instance.Agents = 1
	}
	if err := validateStruct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid search request", err.Error(), r.URL.Path)
		return
	}
	problem, err := req.Instance.Problem()
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid instance", err.Error(), r.URL.Path)
		return
	}
	tenantCfg, err := s.Store.GetSearchConfig(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load search config failed", err.Error(), r.URL.Path)
		return
	}
	settings, err := resolveSettings(s.Config.Search, tenantCfg, req.Options.Settings())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid search options", err.Error(), r.URL.Path)
		return
	}

	run := model.Run{
		TenantID: p.Tenant,
		Name:     req.Instance.Name,
		Status:   model.RunQueued,
		Horizon:  problem.Horizon,
		Agents:   problem.Agents,
		Scorer:   settings.Scorer,
		Ceiling:  settings.Ceiling,
	}
	run, err = s.Store.SaveRun(r.Context(), run)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
		return
	}

	if req.Async {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.execute(s.ctx, run, problem, settings.searchConfig())
		}()
		w.Header().Set("Location", "/v1/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, run)
		return
	}
	run, err = s.execute(r.Context(), run, problem, settings.searchConfig())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Search failed", err.Error(), "/v1/runs/"+run.ID)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// execute runs one search and records its outcome: the run row, tick
// snapshots, recent metrics, Prometheus collectors, webhooks and the
// terminal broker event.
func (s *Server) execute(ctx context.Context, run model.Run, p opt.Problem, cfg opt.Config) (model.Run, error) {
	log := s.Log.With(slog.String("run", run.ID), slog.String("tenant", run.TenantID))
	// bookkeeping must survive a canceled search
	bg := context.WithoutCancel(ctx)

	run.Status = model.RunRunning
	if _, err := s.Store.SaveRun(bg, run); err != nil {
		log.Warn("save run", slog.Any("error", err))
	}
	cfg.Logger = log
	cfg.Observer = func(t opt.TickReport) {
		s.Broker.Publish(run.ID, SSEEvent{Type: EventTick, Data: map[string]any{
			"runId":    run.ID,
			"tick":     t.Tick,
			"frontier": t.Frontier,
			"pruned":   t.Pruned,
			"best":     t.Best.Reward,
		}})
	}

	res, searchErr := opt.Search(ctx, p, cfg)
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	m := res.Metrics
	snaps := m.Snapshots
	m.Snapshots = nil
	run.Metrics = &m

	event, wh := EventCompleted, webhooks.EventSearchCompleted
	if searchErr != nil {
		run.Status = model.RunFailed
		run.Error = searchErr.Error()
		event, wh = EventFailed, webhooks.EventSearchFailed
		log.Warn("search failed", slog.Any("error", searchErr))
	} else {
		run.Status = model.RunSucceeded
		run.Reward = res.Reward
		run.Activated = res.Activated
		opt.RecordMetrics(run.TenantID, run.ID, res.Metrics)
		log.Info("search finished", slog.Int("reward", res.Reward), slog.Duration("took", m.Duration))
	}
	metrics.ObserveSearch(metrics.SearchSummary{
		Scorer:       m.Scorer,
		Status:       run.Status,
		Duration:     m.Duration,
		PeakFrontier: m.PeakFrontier,
		PruneRounds:  m.PruneRounds,
		Reward:       run.Reward,
	})

	var errs []error
	if _, err := s.Store.SaveRun(bg, run); err != nil {
		errs = append(errs, err)
	}
	if err := s.Store.SaveTickSnapshots(bg, run.TenantID, run.ID, snaps); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("persist run", slog.Any("error", err))
	}

	summary := runSummary(run)
	if _, err := s.Pub.Emit(bg, run.TenantID, wh, summary); err != nil {
		log.Warn("emit webhook", slog.Any("error", err))
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: event, Data: summary})
	return run, searchErr
}

func runSummary(run model.Run) map[string]any {
	out := map[string]any{
		"runId":     run.ID,
		"status":    run.Status,
		"reward":    run.Reward,
		"activated": run.Activated,
	}
	if run.Error != "" {
		out["error"] = run.Error
	}
	return out
}

// ListRunsHandler handles GET /v1/runs?status=&cursor=&limit=.
func (s *Server) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	q := r.URL.Query()
	items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) RunTicksHandler(w http.ResponseWriter, r *http.Request) {
	p := getPrincipal(r)
	snaps, err := s.Store.ListTickSnapshots(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List ticks failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": snaps})
}

// loadRun fetches the {id} run of the caller's tenant, writing the
// problem response itself when it fails.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (model.Run, bool) {
	p := getPrincipal(r)
	run, err := s.Store.GetRun(r.Context(), p.Tenant, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
		return model.Run{}, false
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load run failed", err.Error(), r.URL.Path)
		return model.Run{}, false
	}
	return run, true
}
