// Package answer exposes the reference answerer over the same wire contract
// the chat client speaks to.
package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/remote"
	"github.com/zhouzirui/magic-chat/backend/pkg/utils"
)

// Answerer produces the assistant reply to one message.
type Answerer interface {
	Answer(ctx context.Context, sessionID, message string) (chat.Turn, error)
}

// Handler serves POST /answer.
type Handler struct {
	answerer Answerer
	logger   *zap.Logger
}

// New creates an answer handler.
func New(answerer Answerer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{answerer: answerer, logger: logger}
}

// RegisterRoutes registers the answer endpoint under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/answer", h.handleAnswer)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req remote.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(remote.SessionHeader))
	}
	if sessionID == "" || strings.TrimSpace(req.Message) == "" {
		_ = utils.RespondError(w, http.StatusBadRequest, "message and session_id are required")
		return
	}

	turn, err := h.answerer.Answer(r.Context(), sessionID, req.Message)
	if err != nil {
		h.logger.Error("answer failed", zap.String("session_id", sessionID), zap.Error(err))
		_ = utils.RespondError(w, http.StatusInternalServerError, "failed to generate answer")
		return
	}

	_ = utils.RespondJSON(w, http.StatusOK, []chat.Turn{turn})
}
