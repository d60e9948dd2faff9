package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 2 * time.Second

// Check reports whether a dependency is ready. A nil error means ready.
type Check func(ctx context.Context) error

// HealthConfig configures the health router.
type HealthConfig struct {
	// Checks are run on every readiness request, keyed by name.
	Checks map[string]Check
	// Stats, when set, is served as JSON at /stats.
	Stats func() any
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NewHealthRouter creates the router for the operational endpoints.
// /healthz reports liveness and always succeeds. /readyz returns 503 until
// every check passes.
func NewHealthRouter(cfg HealthConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(NewTraceMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			loggerFrom(r).Error("failed to write health check response", slog.String("error", err.Error()))
		}
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		names := make([]string, 0, len(cfg.Checks))
		for name := range cfg.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp := readiness{Status: "ready", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			err := cfg.Checks[name](ctx)
			cancel()

			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		if status != http.StatusOK {
			loggerFrom(r).Debug("readiness check failed", slog.Any("checks", resp.Checks))
		}
		RespondWithJSON(w, r, status, resp)
	})

	if cfg.Stats != nil {
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			RespondWithJSON(w, r, http.StatusOK, cfg.Stats())
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, r, http.StatusNotFound, "not found")
	})

	return r
}
