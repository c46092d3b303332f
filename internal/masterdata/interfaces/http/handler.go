package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scalesync/internal/httpx"
	masterdata "scalesync/internal/masterdata/domain"
)

const maxNameLength = 200

// Handler serves the scale catalog.
type Handler struct {
	repo   masterdata.ScaleRepository
	logger *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(repo masterdata.ScaleRepository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Register mounts the catalog routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/v1/scales", h.list)
	r.Get("/api/v1/scales/{id}", h.get)
	r.Patch("/api/v1/scales/{id}", h.rename)
}

type renameRequest struct {
	Name *string `json:"name"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "catalog not ready")
		return
	}
	scales, err := h.repo.List(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, scales)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "catalog not ready")
		return
	}
	scale, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, scale)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "catalog not ready")
		return
	}
	var req renameRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Name == nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "name is required")
		return
	}
	name := strings.TrimSpace(*req.Name)
	if len(name) > maxNameLength {
		httpx.RespondErrorString(w, http.StatusBadRequest, "name is too long")
		return
	}

	scale, err := h.repo.Rename(r.Context(), chi.URLParam(r, "id"), name)
	if errors.Is(err, masterdata.ErrScaleNotFound) {
		httpx.RespondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	h.logger.Info("scale renamed", zap.String("entity_id", scale.ID), zap.String("name", scale.Name))
	httpx.RespondJSON(w, http.StatusOK, scale)
}
