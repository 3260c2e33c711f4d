// Package remote 与生成助手回复的回答服务通信。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
)

// SessionHeader 在请求头中重复携带会话 id
const SessionHeader = "X-Session-ID"

// maxBodyBytes 回复体的读取上限
const maxBodyBytes = 4 << 20

// ErrReplyTooLarge 成功响应超过 maxBodyBytes 时由 KindMalformed 的 SendError 包装
var ErrReplyTooLarge = fmt.Errorf("reply exceeds %d bytes", maxBodyBytes)

// Doer 客户端所需的 *http.Client 子集
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request 发送给回答服务的请求体
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Client 向回答服务发送消息，每次 Send 只发出一个请求，不重试。
type Client struct {
	endpoint string
	http     Doer
	timeout  time.Duration
	logger   *zap.Logger
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout 限制每次 Send 的耗时，与使用的 HTTP 客户端无关。0 表示不限制。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient 创建回答服务客户端
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint 返回请求地址
func (c *Client) Endpoint() string { return c.endpoint }

// Send 发送一条消息并返回回复中的助手消息，失败时返回 *SendError。
func (c *Client) Send(ctx context.Context, utterance, sessionID string) ([]chat.Turn, error) {
	payload, err := json.Marshal(Request{Message: utterance, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SessionHeader, sessionID)

	c.logger.Debug("sending message",
		zap.String("endpoint", c.endpoint),
		zap.String("session_id", sessionID),
		zap.Int("length", len(utterance)))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("answering service unreachable", zap.String("session_id", sessionID), zap.Error(err))
		return nil, &SendError{Kind: KindNetwork, Hint: NetworkHint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &SendError{Kind: KindNetwork, Hint: NetworkHint, Err: fmt.Errorf("read response: %w", err)}
	}
	tooLarge := len(body) > maxBodyBytes
	if tooLarge {
		body = body[:maxBodyBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("answering service returned error status",
			zap.String("session_id", sessionID),
			zap.Int("status", resp.StatusCode))
		return nil, &SendError{
			Kind:   KindHTTP,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if tooLarge {
		c.logger.Error("reply too large", zap.String("session_id", sessionID), zap.Int("limit", maxBodyBytes))
		return nil, &SendError{Kind: KindMalformed, Status: resp.StatusCode, Err: ErrReplyTooLarge}
	}

	turns, err := decodeTurns(body)
	if err != nil {
		c.logger.Error("malformed response",
			zap.String("session_id", sessionID),
			zap.ByteString("body", body),
			zap.Error(err))
		return nil, &SendError{Kind: KindMalformed, Status: resp.StatusCode, Body: string(body), Err: err}
	}

	c.logger.Debug("received reply", zap.String("session_id", sessionID), zap.Int("turns", len(turns)))
	return turns, nil
}

var errEmptyBody = errors.New("empty response body")

// decodeTurns 解析回复体。非数组表示没有新消息，只有空回复或非法 JSON 才算错误。
func decodeTurns(body []byte) ([]chat.Turn, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errEmptyBody
	}
	if !json.Valid(trimmed) {
		return nil, errors.New("response body is not valid JSON")
	}
	if trimmed[0] != '[' {
		return []chat.Turn{}, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("decode reply array: %w", err)
	}

	turns := make([]chat.Turn, 0, len(elems))
	for _, elem := range elems {
		var wire chat.WireTurn
		if err := json.Unmarshal(elem, &wire); err != nil {
			// 非对象元素也生成一条消息，保持回复条数不变
			turns = append(turns, chat.Turn{Role: chat.RoleAssistant, Payload: chat.PlainText{}})
			continue
		}
		turns = append(turns, wire.Normalize())
	}
	return turns, nil
}
