// Package webhook 接收回答工作流推送的消息。
package webhook

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
	"github.com/zhouzirui/magic-chat/backend/pkg/utils"
)

// Handler 将推送的消息写入会话记录
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
	now     func() time.Time
}

// New 创建 webhook 处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes 注册 webhook 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleMessages)
	r.Options("/messages", h.handlePreflight)
}

type inboundMessage struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`
}

type ingestResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	SessionID         string `json:"session_id"`
	MessagesProcessed int    `json:"messages_processed"`
	ReceivedAt        string `json:"received_at"`
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string            `json:"session_id"`
		Messages  *[]inboundMessage `json:"messages"`
		Timestamp string            `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Messages == nil {
		_ = utils.RespondError(w, http.StatusBadRequest, "Missing required fields: session_id, messages (array)")
		return
	}

	at := h.now()
	if req.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			at = parsed
		}
	}

	turns := make([]chat.Turn, 0, len(*req.Messages))
	for _, m := range *req.Messages {
		if m.ID == "" || m.Role == "" || m.Text == "" {
			_ = utils.RespondError(w, http.StatusBadRequest, "Invalid message format: each message must have id, role, and text")
			return
		}
		turn, ok := toTurn(m, at)
		if !ok {
			_ = utils.RespondError(w, http.StatusBadRequest, `Invalid message role: must be "user" or "assistant"`)
			return
		}
		turns = append(turns, turn)
	}

	appended, err := h.chatSvc.Ingest(r.Context(), req.SessionID, turns)
	if err != nil {
		h.logger.Error("ingest failed", zap.String("session_id", req.SessionID), zap.Error(err))
		_ = utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Info("received messages",
		zap.String("session_id", req.SessionID),
		zap.Int("message_count", len(turns)),
		zap.Int("new_turns", len(appended)))

	_ = utils.RespondJSON(w, http.StatusOK, ingestResponse{
		Success:           true,
		Message:           "Messages received successfully",
		SessionID:         req.SessionID,
		MessagesProcessed: len(turns),
		ReceivedAt:        h.now().Format(time.RFC3339),
	})
}

// toTurn 将推送消息转换为 Turn，助手文本按 markdown 处理
func toTurn(m inboundMessage, at time.Time) (chat.Turn, bool) {
	switch chat.Role(m.Role) {
	case chat.RoleUser:
		return chat.NewUserTurn(m.ID, m.Text, at), true
	case chat.RoleAssistant:
		return chat.Turn{ID: m.ID, Role: chat.RoleAssistant, Payload: chat.MarkdownBody{Markdown: m.Text}, CreatedAt: at}, true
	default:
		return chat.Turn{}, false
	}
}
