package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
)

func setupRouter() (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(nil, nil)
	r := chi.NewRouter()
	r.Route("/api", New(chatSvc, nil).RegisterRoutes)
	return r, chatSvc
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestMessagesIngested(t *testing.T) {
	r, chatSvc := setupRouter()

	resp := post(r, `{"session_id":"s1","messages":[
		{"id":"m1","role":"user","text":"Does {T} use the stack?"},
		{"id":"m2","role":"assistant","text":"**No.** Mana abilities don't use the stack."}
	],"timestamp":"2024-05-01T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var body ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "Messages received successfully", body.Message)
	assert.Equal(t, "s1", body.SessionID)
	assert.Equal(t, 2, body.MessagesProcessed)
	assert.NotEmpty(t, body.ReceivedAt)

	turns, err := chatSvc.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.PlainText{Text: "Does {T} use the stack?"}, turns[0].Payload)
	assert.Equal(t, chat.MarkdownBody{Markdown: "**No.** Mana abilities don't use the stack."}, turns[1].Payload)
	assert.Equal(t, 2024, turns[0].CreatedAt.Year())
}

func TestMessagesValidation(t *testing.T) {
	r, _ := setupRouter()

	cases := map[string]string{
		"not json":        `{`,
		"missing session": `{"messages":[]}`,
		"missing array":   `{"session_id":"s1"}`,
		"missing text":    `{"session_id":"s1","messages":[{"id":"m1","role":"user"}]}`,
		"bad role":        `{"session_id":"s1","messages":[{"id":"m1","role":"system","text":"hi"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := post(r, body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			var payload map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestMessagesDuplicatesCountedButNotStored(t *testing.T) {
	r, chatSvc := setupRouter()
	body := `{"session_id":"s1","messages":[{"id":"m1","role":"assistant","text":"hi"}]}`

	require.Equal(t, http.StatusOK, post(r, body).Code)
	require.Equal(t, http.StatusOK, post(r, body).Code)

	turns, err := chatSvc.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestMessagesPreflight(t *testing.T) {
	r, _ := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodOptions, "/api/messages", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", resp.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", resp.Header().Get("Access-Control-Allow-Headers"))
}
