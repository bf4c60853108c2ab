package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"CastVault/internal/observability"
	"CastVault/internal/principal"
	"CastVault/internal/projection"
	"CastVault/internal/query"
)

// HTTPServer serves the read API over projections plus health and metrics
// endpoints. Writes go through NATS only; this surface is read-only except
// for the projection rebuild trigger.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	log        zerolog.Logger
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	DB            *sql.DB
	Query         *query.Service
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	h := &handlers{
		db:      deps.DB,
		query:   deps.Query,
		metrics: deps.Metrics,
		log:     deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", deps.HealthChecker.LivenessHandler)
	r.Get("/readyz", deps.HealthChecker.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/users/{principal}", func(r chi.Router) {
			r.Get("/claims", h.instrument("claims", h.getClaims))
			r.Get("/claims/{asset}", h.instrument("claim", h.getClaim))
			r.Get("/config", h.instrument("config", h.getConfig))
			r.Get("/purchases", h.instrument("purchases", h.getPurchases))
			r.Get("/journal", h.instrument("journal", h.getJournal))
		})
		r.Get("/freshness", h.instrument("freshness", h.getFreshness))
		r.Route("/admin", func(r chi.Router) {
			r.Get("/integrity", h.instrument("integrity", h.getIntegrity))
			r.Post("/projections/rebuild", h.instrument("rebuild", h.postRebuild))
		})
	})

	return &HTTPServer{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		addr: addr,
		log:  deps.Logger,
	}
}

// Start serves until the context is cancelled, then drains in-flight
// requests for up to 5 seconds.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type handlers struct {
	db      *sql.DB
	query   *query.Service
	metrics *observability.Metrics
	log     zerolog.Logger
}

type apiError struct {
	Error string `json:"error"`
}

// instrument wraps a handler with per-endpoint request count and latency
// metrics. The status label is coarse: ok, client_error, server_error.
func (h *handlers) instrument(endpoint string, fn func(w http.ResponseWriter, r *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		code := fn(w, r)

		status := "ok"
		switch {
		case code >= 500:
			status = "server_error"
		case code >= 400:
			status = "client_error"
		}
		if h.metrics != nil {
			h.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
			h.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

func (h *handlers) getClaims(w http.ResponseWriter, r *http.Request) int {
	user, code := h.userParam(w, r)
	if code != 0 {
		return code
	}

	balances, err := h.query.ClaimBalances(r.Context(), user)
	if err != nil {
		return h.serverError(w, "list claims", err)
	}
	if balances == nil {
		balances = []query.ClaimBalanceResponse{}
	}
	return writeJSON(w, http.StatusOK, balances)
}

func (h *handlers) getClaim(w http.ResponseWriter, r *http.Request) int {
	user, code := h.userParam(w, r)
	if code != 0 {
		return code
	}

	asset := chi.URLParam(r, "asset")
	if asset == "" {
		return writeJSON(w, http.StatusBadRequest, apiError{Error: "asset is required"})
	}

	balance, err := h.query.ClaimBalance(r.Context(), user, asset)
	if err != nil {
		return h.serverError(w, "get claim", err)
	}
	return writeJSON(w, http.StatusOK, balance)
}

func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) int {
	user, code := h.userParam(w, r)
	if code != 0 {
		return code
	}

	cfg, err := h.query.UserConfig(r.Context(), user)
	if err != nil {
		return h.serverError(w, "get config", err)
	}
	return writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) getPurchases(w http.ResponseWriter, r *http.Request) int {
	user, code := h.userParam(w, r)
	if code != 0 {
		return code
	}

	limit, before, errMsg := pagination(r, 50, 200)
	if errMsg != "" {
		return writeJSON(w, http.StatusBadRequest, apiError{Error: errMsg})
	}

	purchases, err := h.query.Purchases(r.Context(), user, limit, before)
	if err != nil {
		return h.serverError(w, "list purchases", err)
	}
	if purchases == nil {
		purchases = []query.PurchaseResponse{}
	}
	return writeJSON(w, http.StatusOK, purchases)
}

func (h *handlers) getJournal(w http.ResponseWriter, r *http.Request) int {
	user, code := h.userParam(w, r)
	if code != 0 {
		return code
	}

	limit, before, errMsg := pagination(r, 100, 500)
	if errMsg != "" {
		return writeJSON(w, http.StatusBadRequest, apiError{Error: errMsg})
	}

	entries, err := h.query.JournalHistory(r.Context(), user, limit, before)
	if err != nil {
		return h.serverError(w, "list journal", err)
	}
	if entries == nil {
		entries = []query.JournalEntryResponse{}
	}
	return writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) getFreshness(w http.ResponseWriter, r *http.Request) int {
	f, err := h.query.Freshness(r.Context())
	if err != nil {
		return h.serverError(w, "freshness", err)
	}
	if h.metrics != nil {
		h.metrics.QueryFreshnessLag.WithLabelValues("freshness").Observe(f.WatermarkAge)
	}
	return writeJSON(w, http.StatusOK, f)
}

func (h *handlers) getIntegrity(w http.ResponseWriter, r *http.Request) int {
	report, err := h.query.VerifyIntegrity(r.Context())
	if err != nil {
		return h.serverError(w, "verify integrity", err)
	}
	return writeJSON(w, http.StatusOK, report)
}

func (h *handlers) postRebuild(w http.ResponseWriter, r *http.Request) int {
	if err := projection.Rebuild(r.Context(), h.db, h.log); err != nil {
		return h.serverError(w, "rebuild projections", err)
	}
	return writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

func (h *handlers) userParam(w http.ResponseWriter, r *http.Request) (principal.Principal, int) {
	raw := chi.URLParam(r, "principal")
	user, err := principal.Parse(raw)
	if err != nil {
		return principal.Zero, writeJSON(w, http.StatusBadRequest,
			apiError{Error: fmt.Sprintf("invalid principal %q: %v", raw, err)})
	}
	return user, 0
}

func (h *handlers) serverError(w http.ResponseWriter, op string, err error) int {
	h.log.Error().Err(err).Str("op", op).Msg("query failed")
	return writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
}

func pagination(r *http.Request, defaultLimit, maxLimit int) (int, *int64, string) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return 0, nil, fmt.Sprintf("invalid limit %q", raw)
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}

	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, nil, fmt.Sprintf("invalid before cursor %q", raw)
		}
		before = &n
	}

	return limit, before, ""
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
	return code
}
