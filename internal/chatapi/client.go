// Package chatapi is the widget's client for the session and history
// endpoints of the chat backend.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

const (
	sessionPath   = "/api/v1/chat/session"
	channelPrefix = "/ws/chat/"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// History is the body of the session history endpoint.
type History struct {
	SessionID     int64                  `json:"session_id"`
	Messages      []domain.StoredMessage `json:"messages"`
	TotalMessages int                    `json:"total_messages"`
}

// Client talks to the chat backend over HTTP.
type Client struct {
	baseURL string
	wsURL   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithChannelBase overrides the realtime endpoint base URL, which is derived
// from the API URL otherwise.
func WithChannelBase(wsURL string) Option {
	return func(c *Client) { c.wsURL = strings.TrimRight(wsURL, "/") }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.wsURL == "" {
		c.wsURL = toWebSocketURL(c.baseURL)
	}
	return c
}

// toWebSocketURL converts an http(s) base to ws(s). URLs that already use
// ws/wss are left unchanged.
func toWebSocketURL(u string) string {
	if strings.HasPrefix(u, "https://") {
		return "wss://" + u[len("https://"):]
	}
	if strings.HasPrefix(u, "http://") {
		return "ws://" + u[len("http://"):]
	}
	return u
}

// ChannelURL returns the realtime endpoint of a session.
func (c *Client) ChannelURL(sessionID int64) string {
	return c.wsURL + channelPrefix + strconv.FormatInt(sessionID, 10)
}

// CreateSession asks the backend for a session of visitorID with botID.
// The backend returns the visitor's existing session when there is one.
func (c *Client) CreateSession(ctx context.Context, botID int64, visitorID string) (*domain.SessionHandle, error) {
	body := map[string]any{
		"bot_id":     botID,
		"visitor_id": visitorID,
	}

	var sess domain.SessionHandle
	if err := c.do(ctx, http.MethodPost, sessionPath, body, &sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !sess.Valid() {
		return nil, fmt.Errorf("create session: backend returned invalid id %d", sess.ID)
	}
	return &sess, nil
}

// History fetches the message log of a session.
func (c *Client) History(ctx context.Context, sessionID int64) ([]domain.Message, error) {
	var h History
	path := sessionPath + "/" + strconv.FormatInt(sessionID, 10) + "/history"
	if err := c.do(ctx, http.MethodGet, path, nil, &h); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	messages := make([]domain.Message, 0, len(h.Messages))
	for _, m := range h.Messages {
		messages = append(messages, m.Message())
	}
	return messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
