package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beamsched/internal/config"
	"beamsched/internal/metrics"
	"beamsched/internal/store"
	"beamsched/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Log    *slog.Logger
	Config config.Config

	limiter *tenantLimiter

	// background searches run under ctx and are awaited by Close
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func() error
}

// NewServer wires the store and broker from cfg. Without DATABASE_URL the
// in-memory store is used; without REDIS_URL the in-process broker.
func NewServer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	var (
		st      store.Store
		closers []func() error
	)
	if cfg.DatabaseURL == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		st = pg
		closers = append(closers, pg.Close)
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis broker unavailable, using in-process broker", slog.Any("error", err))
		} else {
			broker = rb
			closers = append(closers, rb.Close)
		}
	}
	s := newServer(st, broker, cfg, log)
	s.closers = closers
	return s, nil
}

func newServer(st store.Store, broker EventBroker, cfg config.Config, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Store:   st,
		Pub:     webhooks.NewPublisher(st, log),
		Broker:  broker,
		Log:     log,
		Config:  cfg,
		limiter: newTenantLimiter(cfg.RateRPS, cfg.RateBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts, s.Log)
}

// Close cancels running background searches, waits for them, and
// releases the store and broker connections.
func (s *Server) Close(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/openapi.yaml", s.OpenAPIHandler)
	r.Get("/openapi.json", s.OpenAPIJSONHandler)
	r.Get("/docs", s.DocsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Post("/search", s.SearchHandler)
		r.Get("/search/config", s.SearchConfigHandler)

		r.Get("/runs", s.ListRunsHandler)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.GetRunHandler)
			r.Get("/ticks", s.RunTicksHandler)
			r.Get("/events/stream", s.RunEventsHandler)
			r.Get("/ws", s.RunWSHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/subscriptions", s.CreateSubscriptionHandler)
			r.Get("/subscriptions", s.ListSubscriptionsHandler)
			r.Delete("/subscriptions/{id}", s.DeleteSubscriptionHandler)

			r.Get("/admin/search/config", s.AdminSearchConfigHandler)
			r.Put("/admin/search/config", s.AdminSaveSearchConfigHandler)
			r.Get("/admin/search-metrics", s.SearchMetricsHandler)
			r.Get("/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
			r.Post("/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)
			r.Get("/admin/debug", s.DebugJSON)
		})
	})
	return r
}

func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
