// Package handlers contains the HTTP handlers of the override API.
//
// This file implements the batch override endpoints:
//   - Cluster overrides (POST /api/create-cluster-override)
//   - Violation point overrides (POST /api/create-adas-override)
//   - Stop-sign overrides (POST /api/create-stop-override)
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/satyaLM/override-api/internal/core"
	"github.com/satyaLM/override-api/internal/types"
)

// OverrideServiceInterface defines the service contract for the override
// handler. *override.Service implements it.
type OverrideServiceInterface interface {
	CreateClusterOverrides(ctx context.Context, req types.ClusterBatchRequest) (*types.BatchReport, error)
	CreateViolationOverrides(ctx context.Context, req types.PointBatchRequest) (*types.BatchReport, error)
	CreateStopSignOverrides(ctx context.Context, req types.PointBatchRequest) (*types.BatchReport, error)
}

// OverrideHandler maps HTTP requests to override batches. Request validation
// happens in the service so every entry point gets the same rules.
type OverrideHandler struct {
	service OverrideServiceInterface
	logger  *slog.Logger
}

// NewOverrideHandler creates a new OverrideHandler.
func NewOverrideHandler(svc OverrideServiceInterface, logger *slog.Logger) *OverrideHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverrideHandler{
		service: svc,
		logger:  logger,
	}
}

// RegisterRoutes mounts the override endpoints onto the /api router.
func (h *OverrideHandler) RegisterRoutes(r chi.Router) {
	r.Post("/create-cluster-override", h.HandleCreateCluster)
	r.Post("/create-adas-override", h.HandleCreateViolation)
	r.Post("/create-stop-override", h.HandleCreateStopSign)
}

// HandleCreateCluster handles POST /api/create-cluster-override.
func (h *OverrideHandler) HandleCreateCluster(w http.ResponseWriter, r *http.Request) {
	var req types.ClusterBatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	report, err := h.service.CreateClusterOverrides(r.Context(), req)
	h.respond(w, r, types.CategoryCluster, report, err)
}

// HandleCreateViolation handles POST /api/create-adas-override.
func (h *OverrideHandler) HandleCreateViolation(w http.ResponseWriter, r *http.Request) {
	var req types.PointBatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	report, err := h.service.CreateViolationOverrides(r.Context(), req)
	h.respond(w, r, types.CategoryViolation, report, err)
}

// HandleCreateStopSign handles POST /api/create-stop-override.
func (h *OverrideHandler) HandleCreateStopSign(w http.ResponseWriter, r *http.Request) {
	var req types.PointBatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	report, err := h.service.CreateStopSignOverrides(r.Context(), req)
	h.respond(w, r, types.CategoryStopSign, report, err)
}

func (h *OverrideHandler) respond(w http.ResponseWriter, r *http.Request, category types.Category, report *types.BatchReport, err error) {
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.HTTPStatus() >= http.StatusInternalServerError {
			types.LoggerFromContext(r.Context(), h.logger).ErrorContext(r.Context(), "override batch failed",
				slog.String("category", string(category)),
				slog.Any("error", err),
			)
		}
		core.Error(w, r, err)
		return
	}
	report.RequestID = types.GetRequestID(r.Context())
	core.JSON(w, r, http.StatusOK, report)
}
