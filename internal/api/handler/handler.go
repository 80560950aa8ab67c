// Package handler provides HTTP handlers for the vakitd status server.
// Handlers read through the timings service and the settings repository;
// nothing here talks to a provider directly.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/vakit/internal/api/respond"
	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/mosque"
	"github.com/albapepper/vakit/internal/notifications"
	"github.com/albapepper/vakit/internal/settings"
	"github.com/albapepper/vakit/internal/store"
	"github.com/albapepper/vakit/internal/timings"
)

// storeProbeKey is read by the store health check. It never exists.
const storeProbeKey = "health:probe"

// PendingLister lists alerts waiting to fire.
type PendingLister interface {
	Pending() []notifications.Alert
}

// StatsReporter is implemented by stores that expose counters.
type StatsReporter interface {
	Stats() map[string]interface{}
}

// Deps are the components the handlers read from. Mosques and Alerts may be nil.
type Deps struct {
	Timings   *timings.Service
	Settings  *settings.Repository
	Locator   location.Locator
	Replanner *notifications.Replanner
	Alerts    PendingLister
	Mosques   *mosque.Finder
	Store     store.Store
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{deps: deps, now: time.Now, logger: logger}
}

// SetClock replaces the time source.
func (h *Handler) SetClock(now func() time.Time) { h.now = now }

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "vakitd",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckStore verifies the Cache Store answers reads.
// @Summary Cache Store health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/store [get]
func (h *Handler) HealthCheckStore(w http.ResponseWriter, r *http.Request) {
	ts := h.now().UTC().Format(time.RFC3339)
	if _, _, err := h.deps.Store.Get(r.Context(), storeProbeKey); err != nil {
		h.logger.Warn("Store health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"store":     "unreachable",
			"timestamp": ts,
		})
		return
	}
	body := map[string]interface{}{
		"status":    "healthy",
		"store":     "connected",
		"timestamp": ts,
	}
	if sr, ok := h.deps.Store.(StatsReporter); ok {
		body["stats"] = sr.Stats()
	}
	respond.WriteJSONObject(w, http.StatusOK, body)
}

// --------------------------------------------------------------------------
// Shared helpers
// --------------------------------------------------------------------------

// resolveContext loads settings and resolves the location. A nil fix means no
// location is available; the settings error is the only hard failure.
func (h *Handler) resolveContext(ctx context.Context) (settings.Settings, *location.Fix, error) {
	s, err := h.deps.Settings.Load(ctx)
	if err != nil {
		return s, nil, err
	}
	fix, err := location.Resolve(ctx, s, h.deps.Locator)
	if err != nil {
		if !errors.Is(err, errs.ErrPermissionDenied) {
			h.logger.Warn("Location unavailable", "error", err)
		}
		return s, nil, nil
	}
	return s, &fix, nil
}

// writeResolveError maps the shared sentinels onto HTTP statuses.
func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		respond.WriteErrorDetail(w, http.StatusNotFound, "NOT_FOUND", "No timings available", err.Error())
	case errors.Is(err, errs.ErrDataIntegrity):
		respond.WriteErrorDetail(w, http.StatusBadGateway, "DATA_INTEGRITY", "Provider returned unusable data", err.Error())
	case errors.Is(err, errs.ErrProviderUnavailable):
		respond.WriteErrorDetail(w, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Timings provider unavailable", err.Error())
	default:
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "INTERNAL", "Request failed", err.Error())
	}
}

func writeNoLocation(w http.ResponseWriter) {
	respond.WriteError(w, http.StatusConflict, "LOCATION_UNAVAILABLE",
		"Location permission denied and no manual location set")
}
