// Package live serves the chat over a websocket connection.
package live

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chathandler "github.com/zhouzirui/magic-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/render"
	chatservice "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
)

const (
	defaultReadTimeout = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler WebSocket聊天处理器
type WebSocketHandler struct {
	chatSvc    *chatservice.Service
	renderer   *render.Renderer
	logger     *zap.Logger
	queryParam string
	upgrader   websocket.Upgrader

	// readTimeout 为两次读取 (消息或 pong) 之间的最长间隔，发送期间不计时。
	readTimeout time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, renderer *render.Renderer, queryParam string, logger *zap.Logger) *WebSocketHandler {
	if queryParam == "" {
		queryParam = "session_id"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		chatSvc:     chatSvc,
		renderer:    renderer,
		logger:      logger,
		queryParam:  queryParam,
		readTimeout: defaultReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// TurnsFrame is the payload of a "turns" frame.
type TurnsFrame struct {
	Turns []render.View `json:"turns"`
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *conn) write(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get(h.queryParam))
	if sessionID == "" {
		http.Error(w, h.queryParam+" is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws, sessionID: sessionID}
	h.logger.Info("websocket connected", zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go h.pingLoop(ctx, c)

	if err := c.write("connected", map[string]string{"session_id": sessionID}); err != nil {
		return
	}

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}

		// 发送期间不会读取 pong，因此暂停读超时，结束后重新计时。
		_ = ws.SetReadDeadline(time.Time{})
		if err := h.handleMessage(ctx, c, msg); err != nil {
			h.logger.Debug("websocket write failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

// handleMessage runs one exchange. The read loop waits for it, so a
// connection never has more than one send outstanding.
func (h *WebSocketHandler) handleMessage(ctx context.Context, c *conn, msg inboundMessage) error {
	if msg.Type != "message" {
		return c.write("error", chathandler.Problem{Kind: "validation", Message: "unsupported message type: " + msg.Type})
	}

	ex, err := h.chatSvc.Send(ctx, c.sessionID, msg.Text)
	if ex.User.ID != "" {
		views := []render.View{h.renderer.Render(ex.User)}
		views = append(views, h.renderer.RenderAll(ex.Assistant)...)
		if werr := c.write("turns", TurnsFrame{Turns: views}); werr != nil {
			return werr
		}
	}
	if err != nil {
		problem := chathandler.Describe(err)
		h.logger.Info("websocket send failed",
			zap.String("session_id", c.sessionID),
			zap.String("kind", problem.Kind),
			zap.Error(err))
		return c.write("error", problem)
	}
	return nil
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
