package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/render"
	chatservice "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/remote"
)

type fakeSender struct {
	turns []chat.Turn
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(ctx context.Context, utterance, sessionID string) ([]chat.Turn, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.turns, f.err
}

type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, sender *fakeSender, query string, configure ...func(*WebSocketHandler)) *websocket.Conn {
	t.Helper()
	svc := chatservice.NewService(sender, nil)
	r := chi.NewRouter()
	h := NewWebSocketHandler(svc, render.New("", nil), "", nil)
	for _, fn := range configure {
		fn(h)
	}
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestWebSocketExchange(t *testing.T) {
	sender := &fakeSender{turns: []chat.Turn{{ID: "a1", Role: chat.RoleAssistant, Payload: chat.MarkdownBody{Markdown: "Add {G}"}}}}
	ws := dial(t, sender, "?session_id=s1")

	connected := read(t, ws)
	assert.Equal(t, "connected", connected.Type)
	assert.Equal(t, "s1", connected.SessionID)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "message", "text": "mana?"}))

	turns := read(t, ws)
	require.Equal(t, "turns", turns.Type)
	var data TurnsFrame
	require.NoError(t, json.Unmarshal(turns.Data, &data))
	require.Len(t, data.Turns, 2)
	assert.Equal(t, chat.RoleUser, data.Turns[0].Role)
	assert.Contains(t, string(data.Turns[1].HTML), "g.png")
}

func TestWebSocketErrorFrames(t *testing.T) {
	sender := &fakeSender{err: &remote.SendError{Kind: remote.KindMalformed, Err: errors.New("bad json")}}
	ws := dial(t, sender, "?session_id=s1")
	read(t, ws)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "message", "text": "hello"}))
	assert.Equal(t, "turns", read(t, ws).Type)

	errFrame := read(t, ws)
	require.Equal(t, "error", errFrame.Type)
	var problem map[string]string
	require.NoError(t, json.Unmarshal(errFrame.Data, &problem))
	assert.Equal(t, "malformed_response", problem["kind"])

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "audio"}))
	unsupported := read(t, ws)
	assert.Equal(t, "error", unsupported.Type)
	assert.Contains(t, string(unsupported.Data), "unsupported message type")
}

func TestWebSocketSlowSendKeepsConnection(t *testing.T) {
	sender := &fakeSender{
		turns: []chat.Turn{{ID: "", Role: chat.RoleAssistant, Payload: chat.PlainText{Text: "done"}}},
		delay: 300 * time.Millisecond,
	}
	ws := dial(t, sender, "?session_id=s1", func(h *WebSocketHandler) {
		h.readTimeout = 100 * time.Millisecond
	})
	read(t, ws)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "message", "text": "first"}))
	assert.Equal(t, "turns", read(t, ws).Type)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "message", "text": "second"}))
	second := read(t, ws)
	require.Equal(t, "turns", second.Type)
	var data TurnsFrame
	require.NoError(t, json.Unmarshal(second.Data, &data))
	require.Len(t, data.Turns, 2)
	assert.Contains(t, string(data.Turns[0].HTML), "second")
}

func TestWebSocketRequiresSession(t *testing.T) {
	r := chi.NewRouter()
	NewWebSocketHandler(chatservice.NewService(&fakeSender{}, nil), render.New("", nil), "", nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
