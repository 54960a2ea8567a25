package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/craftpad-ai/artifact-platform/internal/middleware"
	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/internal/orchestrator"
	"github.com/craftpad-ai/artifact-platform/pkg/logger"
	"github.com/craftpad-ai/artifact-platform/pkg/metrics"
)

// ChatHandler handles the streaming chat endpoint.
type ChatHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(o *orchestrator.Orchestrator, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: o,
		logger:       log,
	}
}

// Stream handles POST /api/v1/chat/stream. Request validation happens before
// any SSE bytes are written, so invalid requests get plain HTTP errors; once
// the stream opens, failures are reported in-band as error events.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	userID := middleware.GetUserID(ctx)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMode(req.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	turn, err := h.orchestrator.Prepare(ctx, tenantID, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, orchestrator.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		default:
			h.logger.Error("failed to prepare chat turn", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start stream")
		}
		return
	}

	// Newly created conversations surface their id in a header; the SSE body
	// carries only stream events.
	w.Header().Set("X-Conversation-ID", turn.Conversation.ID)

	sink, err := orchestrator.NewSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.IncrementStreams()
	defer metrics.DecrementStreams()

	h.orchestrator.Run(ctx, turn, sink)
}
