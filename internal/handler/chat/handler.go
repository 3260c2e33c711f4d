package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/render"
	chatService "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/remote"
	"github.com/zhouzirui/magic-chat/backend/internal/service/session"
	"github.com/zhouzirui/magic-chat/backend/pkg/utils"
)

// SessionOptions 控制浏览器会话 id 的解析与持久化。
type SessionOptions struct {
	StorageKey   string
	QueryParam   string
	CookieMaxAge time.Duration
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	renderer *render.Renderer
	sessions SessionOptions
	logger   *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, renderer *render.Renderer, sessions SessionOptions, logger *zap.Logger) *Handler {
	if sessions.StorageKey == "" {
		sessions.StorageKey = session.DefaultStorageKey
	}
	if sessions.QueryParam == "" {
		sessions.QueryParam = "session_id"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:  chatSvc,
		renderer: renderer,
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterPageRoutes 注册页面路由
func (h *Handler) RegisterPageRoutes(r chi.Router) {
	r.Get("/", h.handlePage)
	r.Post("/send", h.handleSendForm)
}

// RegisterRoutes 注册聊天相关的 API 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleSession)
	r.Get("/sessions/{sessionID}/turns", h.handleTurns)
	r.Post("/chat", h.handleChat)
}

type turnsResponse struct {
	SessionID string        `json:"session_id"`
	Turns     []render.View `json:"turns"`
}

type chatErrorResponse struct {
	Problem
	SessionID string        `json:"session_id,omitempty"`
	Turns     []render.View `json:"turns,omitempty"`
}

// resolveSession 按 显式 id → cookie → 新生成 的顺序确定会话。
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request, explicit string) chat.Session {
	storage := session.NewCookieStorage(w, r, h.sessions.CookieMaxAge)
	resolver := session.NewResolver(storage,
		session.WithKey(h.sessions.StorageKey),
		session.WithLogger(h.logger))
	return resolver.Resolve(explicit)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	s := h.resolveSession(w, r, r.URL.Query().Get(h.sessions.QueryParam))
	_ = utils.RespondJSON(w, http.StatusOK, map[string]string{"session_id": s.ID})
}

func (h *Handler) handleTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	turns, err := h.chatSvc.Transcript(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("load transcript failed", zap.String("session_id", sessionID), zap.Error(err))
		_ = utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	_ = utils.RespondJSON(w, http.StatusOK, turnsResponse{
		SessionID: sessionID,
		Turns:     h.renderer.RenderAll(turns),
	})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		_ = utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.resolveSession(w, r, payload.SessionID)
	ex, err := h.chatSvc.Send(r.Context(), s.ID, payload.Message)
	if err != nil {
		h.logSendError(s.ID, err)
		problem := Describe(err)
		resp := chatErrorResponse{Problem: problem, SessionID: s.ID}
		if ex.User.ID != "" {
			resp.Turns = []render.View{h.renderer.Render(ex.User)}
		}
		_ = utils.RespondJSON(w, problem.Status, resp)
		return
	}

	views := make([]render.View, 0, len(ex.Assistant)+1)
	views = append(views, h.renderer.Render(ex.User))
	views = append(views, h.renderer.RenderAll(ex.Assistant)...)
	_ = utils.RespondJSON(w, http.StatusOK, turnsResponse{SessionID: s.ID, Turns: views})
}

func (h *Handler) logSendError(sessionID string, err error) {
	var sendErr *remote.SendError
	if errors.As(err, &sendErr) {
		h.logger.Warn("answering service failed",
			zap.String("session_id", sessionID),
			zap.String("kind", sendErr.Kind.String()),
			zap.Int("status", sendErr.Status),
			zap.Error(err))
		return
	}
	h.logger.Info("send rejected", zap.String("session_id", sessionID), zap.Error(err))
}
