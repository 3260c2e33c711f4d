package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/render"
	chatService "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
	"github.com/zhouzirui/magic-chat/backend/pkg/utils"
)

// DefaultHeartbeat 空闲流的心跳间隔
const DefaultHeartbeat = 15 * time.Second

// Handler 通过 SSE 推送会话中新追加的消息
type Handler struct {
	broker    *chatService.Broker
	renderer  *render.Renderer
	logger    *zap.Logger
	heartbeat time.Duration
}

// New 创建流式处理器，heartbeat <= 0 时使用 DefaultHeartbeat
func New(broker *chatService.Broker, renderer *render.Renderer, logger *zap.Logger, heartbeat time.Duration) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{
		broker:    broker,
		renderer:  renderer,
		logger:    logger,
		heartbeat: heartbeat,
	}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

// StatusEvent 每个流的第一个事件
type StatusEvent struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TurnsEvent 携带新追加的消息
type TurnsEvent struct {
	SessionID string        `json:"session_id"`
	Turns     []render.View `json:"turns"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := h.broker.Subscribe(sessionID)
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	h.logger.Debug("opening event stream", zap.String("session_id", sessionID))

	if err := utils.SendSSEEvent(w, flusher, "status", StatusEvent{SessionID: sessionID, Message: "stream established"}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("closing event stream", zap.String("session_id", sessionID))
			return
		case turns, ok := <-events:
			if !ok {
				return
			}
			event := TurnsEvent{SessionID: sessionID, Turns: h.renderer.RenderAll(turns)}
			if err := utils.SendSSEEvent(w, flusher, "turns", event); err != nil {
				h.logger.Debug("event stream write failed", zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
