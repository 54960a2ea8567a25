package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftpad-ai/artifact-platform/internal/middleware"
	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/internal/store"
	"github.com/craftpad-ai/artifact-platform/pkg/logger"
)

// ArtifactHandler handles artifact CRUD endpoints. The same store backs the
// mid-stream artifact tools, so content created either way is visible here.
type ArtifactHandler struct {
	store  store.ArtifactStore
	logger *logger.Logger
}

// NewArtifactHandler creates a new artifact handler.
func NewArtifactHandler(s store.ArtifactStore, log *logger.Logger) *ArtifactHandler {
	return &ArtifactHandler{
		store:  s,
		logger: log,
	}
}

// Create handles POST /api/v1/artifacts
func (h *ArtifactHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req model.CreateArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateArtifactKind(string(req.Kind)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	now := time.Now()
	artifact := &model.Artifact{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		Kind:           req.Kind,
		Title:          req.Title,
		Content:        req.Content,
		Language:       req.Language,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.Create(ctx, artifact); err != nil {
		h.logger.Error("failed to create artifact", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create artifact")
		return
	}

	writeJSON(w, http.StatusCreated, artifact)
}

// List handles GET /api/v1/artifacts
func (h *ArtifactHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	conversationID := r.URL.Query().Get("conversation_id")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	artifacts, err := h.store.List(ctx, tenantID, conversationID, limit)
	if err != nil {
		h.logger.Error("failed to list artifacts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListArtifactsResponse{
		Artifacts: artifacts,
		Total:     len(artifacts),
	})
}

// Get handles GET /api/v1/artifacts/{id}
func (h *ArtifactHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateArtifactID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	artifact, err := h.store.Get(ctx, tenantID, artifactID)
	if err != nil {
		h.notFoundOrInternal(w, err, "failed to get artifact")
		return
	}

	writeJSON(w, http.StatusOK, artifact)
}

// Update handles PUT /api/v1/artifacts/{id}
func (h *ArtifactHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateArtifactID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" && req.Content == "" {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Title != "" {
		if err := middleware.ValidateTitle(req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	artifact, err := h.store.Get(ctx, tenantID, artifactID)
	if err != nil {
		h.notFoundOrInternal(w, err, "failed to get artifact")
		return
	}
	if req.Title != "" {
		artifact.Title = req.Title
	}
	if req.Content != "" {
		artifact.Content = req.Content
	}
	if err := h.store.Update(ctx, artifact); err != nil {
		h.notFoundOrInternal(w, err, "failed to update artifact")
		return
	}

	writeJSON(w, http.StatusOK, artifact)
}

// Delete handles DELETE /api/v1/artifacts/{id}
func (h *ArtifactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	artifactID := chi.URLParam(r, "id")

	if err := middleware.ValidateArtifactID(artifactID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Delete(ctx, tenantID, artifactID); err != nil {
		h.notFoundOrInternal(w, err, "failed to delete artifact")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ArtifactHandler) notFoundOrInternal(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}
