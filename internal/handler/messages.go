package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/craftpad-ai/artifact-platform/internal/gateway"
	"github.com/craftpad-ai/artifact-platform/internal/middleware"
	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	gateway gateway.Gateway
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(gw gateway.Gateway, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		gateway: gw,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Verify conversation exists and belongs to tenant
	if _, err := h.gateway.GetConversation(ctx, tenantID, conversationID); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to get conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	messages, err := h.gateway.History(ctx, tenantID, conversationID, limit)
	if err != nil {
		h.logger.Error("failed to get messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}

	resp := &model.ListMessagesResponse{Messages: messages}
	if len(messages) > 0 {
		resp.LastSequence = messages[len(messages)-1].Sequence
		resp.HasMore = len(messages) == limit
	}
	writeJSON(w, http.StatusOK, resp)
}
