package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scalesync/internal/auth"
	"scalesync/internal/httpx"
	"scalesync/internal/sync/application"
)

// Runner is the sync orchestrator as seen by the trigger endpoints.
type Runner interface {
	ResyncEntity(ctx context.Context, entityID string) (application.RunReport, error)
	ResyncAll(ctx context.Context) (application.RunReport, error)
	SyncHourly(ctx context.Context) (application.RunReport, error)
	SyncDaily(ctx context.Context) (application.RunReport, error)
	RefreshCatalog(ctx context.Context) (application.RunReport, error)
}

// Handler exposes manual sync triggers.
type Handler struct {
	runner Runner
	logger *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(runner Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{runner: runner, logger: logger}
}

// Register mounts the trigger routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/v1/sync/scales/{id}/resync", h.resyncEntity)
	r.Post("/api/v1/sync/resync", h.trigger(func(ctx context.Context) (application.RunReport, error) {
		return h.runner.ResyncAll(ctx)
	}))
	r.Post("/api/v1/sync/hourly", h.trigger(func(ctx context.Context) (application.RunReport, error) {
		return h.runner.SyncHourly(ctx)
	}))
	r.Post("/api/v1/sync/daily", h.trigger(func(ctx context.Context) (application.RunReport, error) {
		return h.runner.SyncDaily(ctx)
	}))
	r.Post("/api/v1/catalog/refresh", h.trigger(func(ctx context.Context) (application.RunReport, error) {
		return h.runner.RefreshCatalog(ctx)
	}))
}

func (h *Handler) resyncEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")
	h.trigger(func(ctx context.Context) (application.RunReport, error) {
		return h.runner.ResyncEntity(ctx, entityID)
	})(w, r)
}

// trigger runs job detached from client cancellation so a disconnect never
// interrupts writes halfway through an entity.
func (h *Handler) trigger(job func(context.Context) (application.RunReport, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.runner == nil {
			httpx.RespondErrorString(w, http.StatusServiceUnavailable, "sync not ready")
			return
		}
		h.logger.Info("sync triggered", zap.String("path", r.URL.Path), zap.String("subject", auth.SubjectFromContext(r.Context())))
		report, err := job(context.WithoutCancel(r.Context()))
		if errors.Is(err, application.ErrNoCatalogSource) {
			httpx.RespondError(w, http.StatusServiceUnavailable, err)
			return
		}
		if err != nil {
			httpx.Fail(w, h.logger, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, report)
	}
}
