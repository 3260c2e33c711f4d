package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
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
}

func (f *fakeSender) Send(ctx context.Context, utterance, sessionID string) ([]chat.Turn, error) {
	return f.turns, f.err
}

func setupRouter(sender *fakeSender) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(sender, nil)
	handler := New(chatSvc, render.New("", nil), SessionOptions{}, nil)

	r := chi.NewRouter()
	handler.RegisterPageRoutes(r)
	r.Route("/api", handler.RegisterRoutes)
	return r, chatSvc
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSessionGeneratedAndPersistedInCookie(t *testing.T) {
	r, _ := setupRouter(&fakeSender{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var first map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	require.NotEmpty(t, first["session_id"])

	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "mtg_session_id", cookies[0].Name)
	assert.Equal(t, first["session_id"], cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookies[0])
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var second map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, first["session_id"], second["session_id"])
	assert.Empty(t, resp.Result().Cookies())
}

func TestSessionExplicitQueryWins(t *testing.T) {
	r, _ := setupRouter(&fakeSender{})

	req := httptest.NewRequest(http.MethodGet, "/api/session?session_id=abc", nil)
	req.AddCookie(&http.Cookie{Name: "mtg_session_id", Value: "stored"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "abc", body["session_id"])
}

func TestChatReturnsRenderedTurns(t *testing.T) {
	sender := &fakeSender{turns: []chat.Turn{{
		ID: "a1", Role: chat.RoleAssistant, Payload: chat.MarkdownBody{Markdown: "Tap it: {T}"},
	}}}
	r, chatSvc := setupRouter(sender)

	resp := postJSON(t, r, "/api/chat", map[string]string{"message": "What is {T}?", "session_id": "s1"})
	require.Equal(t, http.StatusOK, resp.Code)

	var body turnsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "s1", body.SessionID)
	require.Len(t, body.Turns, 2)
	assert.Equal(t, chat.RoleUser, body.Turns[0].Role)
	assert.Contains(t, string(body.Turns[0].HTML), `class="mana mana-symbol"`)
	assert.Equal(t, "a1", body.Turns[1].ID)
	assert.Contains(t, string(body.Turns[1].HTML), `src="/mana-symbols/t.png"`)

	turns, err := chatSvc.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestChatNetworkFailureKeepsUserTurn(t *testing.T) {
	sender := &fakeSender{err: &remote.SendError{Kind: remote.KindNetwork, Hint: remote.NetworkHint, Err: errors.New("refused")}}
	r, chatSvc := setupRouter(sender)

	resp := postJSON(t, r, "/api/chat", map[string]string{"message": "hello", "session_id": "s1"})
	require.Equal(t, http.StatusBadGateway, resp.Code)

	var body chatErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "network", body.Kind)
	assert.Equal(t, remote.NetworkHint, body.Message)
	require.Len(t, body.Turns, 1)
	assert.Equal(t, chat.RoleUser, body.Turns[0].Role)

	turns, err := chatSvc.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestChatValidation(t *testing.T) {
	r, _ := setupRouter(&fakeSender{})

	resp := postJSON(t, r, "/api/chat", map[string]string{"message": "   ", "session_id": "s1"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{"))
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestTurnsEndpoint(t *testing.T) {
	sender := &fakeSender{turns: []chat.Turn{{ID: "a1", Role: chat.RoleAssistant, Payload: chat.PlainText{Text: "ok"}}}}
	r, _ := setupRouter(sender)
	postJSON(t, r, "/api/chat", map[string]string{"message": "hi", "session_id": "s1"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/turns", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body turnsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Turns, 2)
	assert.Equal(t, "a1", body.Turns[1].ID)
}

func TestPageRendersTranscript(t *testing.T) {
	sender := &fakeSender{turns: []chat.Turn{{ID: "a1", Role: chat.RoleAssistant, Payload: chat.MarkdownBody{Markdown: "**Lightning Bolt** deals 3 damage"}}}}
	r, _ := setupRouter(sender)
	postJSON(t, r, "/api/chat", map[string]string{"message": "bolt?", "session_id": "s1"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/?session_id=s1", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	page := resp.Body.String()
	assert.Contains(t, page, `data-session="s1"`)
	assert.Contains(t, page, "<strong>Lightning Bolt</strong> deals 3 damage")
	assert.Contains(t, page, `data-turn-id="a1"`)
	assert.NotContains(t, page, `role="alert"`)
}

func TestSendFormShowsBanner(t *testing.T) {
	sender := &fakeSender{err: &remote.SendError{Kind: remote.KindHTTP, Status: 500, Body: "workflow crashed"}}
	r, _ := setupRouter(sender)

	form := url.Values{"message": {"hello"}, "session_id": {"s1"}}
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadGateway, resp.Code)
	page := resp.Body.String()
	assert.Contains(t, page, `class="banner banner-http"`)
	assert.Contains(t, page, "returned status 500")
	assert.Contains(t, page, "workflow crashed")
	// The user's turn stays visible after the failure.
	assert.Contains(t, page, "turn turn-user")
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{chatservice.ErrEmptyMessage, http.StatusBadRequest, "validation"},
		{chatservice.ErrSendInProgress, http.StatusConflict, "in_progress"},
		{&remote.SendError{Kind: remote.KindNetwork}, http.StatusBadGateway, "network"},
		{&remote.SendError{Kind: remote.KindHTTP, Status: 404}, http.StatusBadGateway, "http"},
		{&remote.SendError{Kind: remote.KindMalformed}, http.StatusBadGateway, "malformed_response"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		p := Describe(tc.err)
		assert.Equal(t, tc.status, p.Status, tc.kind)
		assert.Equal(t, tc.kind, p.Kind)
		assert.NotEmpty(t, p.Message)
	}

	p := Describe(&remote.SendError{Kind: remote.KindNetwork})
	assert.Equal(t, remote.NetworkHint, p.Message)
}
