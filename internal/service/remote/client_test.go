package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
)

func serve(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSendBuildsRequest(t *testing.T) {
	var got Request
	var header, contentType, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		header = r.Header.Get(SessionHeader)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	turns, err := NewClient(srv.URL).Send(context.Background(), "What does {T}: add {G} do?", "sess-1")
	require.NoError(t, err)
	assert.Empty(t, turns)

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "sess-1", header)
	assert.Equal(t, Request{Message: "What does {T}: add {G} do?", SessionID: "sess-1"}, got)
}

func TestSendMapsReplyArray(t *testing.T) {
	body := `[
		{"id":"a1","role":"assistant","response":"**Lightning Bolt** deals 3 damage"},
		{"id":"a2","role":"assistant","content":{"overallExplanation":"Yes, it triggers.","cards":[{"name":"Birds of Paradise","type":"Creature","oracleText":"{T}: Add one mana of any color.","imageUrl":"https://x/y.png"}],"citations":[{"type":"rule","id":"106.2","text":"Mana is added..."}]}},
		{"id":"a3","role":"assistant"}
	]`
	srv, calls := serve(t, http.StatusOK, body)

	turns, err := NewClient(srv.URL).Send(context.Background(), "hi", "s")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	assert.Equal(t, "a1", turns[0].ID)
	assert.Equal(t, chat.MarkdownBody{Markdown: "**Lightning Bolt** deals 3 damage"}, turns[0].Payload)

	ruling, ok := turns[1].Payload.(chat.StructuredRuling)
	require.True(t, ok)
	assert.Equal(t, "Yes, it triggers.", ruling.OverallExplanation)
	require.Len(t, ruling.Cards, 1)
	require.Len(t, ruling.Citations, 1)

	assert.Equal(t, chat.PlainText{}, turns[2].Payload)
}

func TestSendNonArrayIsNoTurns(t *testing.T) {
	for _, body := range []string{`{"status":"queued"}`, `null`, `"ok"`, `42`} {
		srv, _ := serve(t, http.StatusOK, body)
		turns, err := NewClient(srv.URL).Send(context.Background(), "hi", "s")
		require.NoError(t, err, body)
		assert.Empty(t, turns, body)
	}
}

func TestSendMalformedBody(t *testing.T) {
	for _, body := range []string{"", "   ", "<html>oops</html>", `[{"id":`} {
		srv, _ := serve(t, http.StatusOK, body)
		_, err := NewClient(srv.URL).Send(context.Background(), "hi", "s")
		require.Error(t, err, body)
		assert.True(t, errors.Is(err, ErrMalformedResponse), body)

		var sendErr *SendError
		require.ErrorAs(t, err, &sendErr)
		assert.Equal(t, KindMalformed, sendErr.Kind)
	}
}

func TestSendHTTPError(t *testing.T) {
	srv, calls := serve(t, http.StatusBadGateway, `{"error":"workflow failed"}`)

	_, err := NewClient(srv.URL).Send(context.Background(), "hi", "s")
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, KindHTTP, sendErr.Kind)
	assert.Equal(t, http.StatusBadGateway, sendErr.Status)
	assert.Equal(t, `{"error":"workflow failed"}`, sendErr.Body)
	assert.True(t, errors.Is(err, ErrHTTP))
	assert.False(t, errors.Is(err, ErrNetwork))
	assert.EqualValues(t, 1, atomic.LoadInt32(calls), "no retries")
}

type failingDoer struct{ err error }

func (d failingDoer) Do(*http.Request) (*http.Response, error) { return nil, d.err }

func TestSendNetworkError(t *testing.T) {
	client := NewClient("http://answers.invalid/webhook", WithHTTPClient(failingDoer{err: errors.New("dial tcp: connection refused")}))

	_, err := client.Send(context.Background(), "hi", "s")
	require.Error(t, err)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, KindNetwork, sendErr.Kind)
	assert.Equal(t, NetworkHint, sendErr.Hint)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSendClosedServerIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Send(context.Background(), "hi", "s")
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestSendReplyTooLarge(t *testing.T) {
	body := "[" + strings.Repeat(" ", maxBodyBytes) + "]"
	srv, _ := serve(t, http.StatusOK, body)

	_, err := NewClient(srv.URL).Send(context.Background(), "hi", "s")
	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, KindMalformed, sendErr.Kind)
	assert.ErrorIs(t, err, ErrReplyTooLarge)
	assert.Contains(t, err.Error(), "exceeds")
	assert.NotContains(t, err.Error(), "not valid JSON")
}

func TestSendReplyAtLimitIsAccepted(t *testing.T) {
	body := "[" + strings.Repeat(" ", maxBodyBytes-2) + "]"
	srv, _ := serve(t, http.StatusOK, body)

	turns, err := NewClient(srv.URL).Send(context.Background(), "hi", "s")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

type countingTransport struct {
	calls int32
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	return http.DefaultTransport.RoundTrip(r)
}

func TestWithTimeoutKeepsCustomHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	orders := map[string]func(Doer) []Option{
		"client then timeout": func(d Doer) []Option { return []Option{WithHTTPClient(d), WithTimeout(50 * time.Millisecond)} },
		"timeout then client": func(d Doer) []Option { return []Option{WithTimeout(50 * time.Millisecond), WithHTTPClient(d)} },
	}
	for name, opts := range orders {
		t.Run(name, func(t *testing.T) {
			transport := &countingTransport{}
			client := NewClient(srv.URL, opts(&http.Client{Transport: transport})...)

			start := time.Now()
			_, err := client.Send(context.Background(), "hi", "s")
			assert.Less(t, time.Since(start), time.Second)

			var sendErr *SendError
			require.ErrorAs(t, err, &sendErr)
			assert.Equal(t, KindNetwork, sendErr.Kind)
			assert.Equal(t, int32(1), atomic.LoadInt32(&transport.calls))
		})
	}
}
