// Package channel provides a reconnecting, message-oriented duplex
// connection to a session's realtime endpoint.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	defaultDialTimeout    = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	readLimit             = 1 << 20
)

// ErrNotOpen is returned by Publish when no connection is open. Nothing is
// queued; the caller should treat the message as not sent.
var ErrNotOpen = errors.New("channel is not open")

// State describes the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateWaiting // waiting out the reconnect delay
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// Handler receives inbound frames.
type Handler func(domain.InboundFrame)

// Options configures a Channel.
type Options struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// run is one attachment: a connect loop bound to one session.
type run struct {
	sessionID int64
	stop      chan struct{} // closed first on Detach: do not reconnect
	cancel    context.CancelFunc
	done      chan struct{}
}

type subscriber struct {
	id uint64
	fn Handler
}

// Channel keeps at most one live connection to one session endpoint and
// reconnects after unexpected closures until detached.
type Channel struct {
	urlFor func(sessionID int64) string
	opts   Options
	logger *slog.Logger

	lifecycle sync.Mutex // serializes Attach and Detach

	mu    sync.Mutex
	cur   *run
	conn  *websocket.Conn
	state State

	subMu   sync.RWMutex
	subs    []subscriber
	nextSub uint64
}

// New creates a detached channel. urlFor maps a session ID to its endpoint.
func New(urlFor func(sessionID int64) string, opts Options) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Channel{
		urlFor: urlFor,
		opts:   opts,
		logger: opts.Logger.With("component", "channel"),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the attached session, or 0 when detached.
func (c *Channel) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return 0
	}
	return c.cur.sessionID
}

// Attach connects to sessionID. Any connection to a different session is
// torn down first; attaching to the current session is a no-op.
func (c *Channel) Attach(sessionID int64) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	same := c.cur != nil && c.cur.sessionID == sessionID
	c.mu.Unlock()
	if same {
		return
	}

	c.detachLocked()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		sessionID: sessionID,
		stop:      make(chan struct{}),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.cur = r
	c.state = StateConnecting
	c.mu.Unlock()

	go c.loop(ctx, r)
}

// Detach closes the connection and stops reconnecting. It blocks until the
// connect loop has exited and is safe to call repeatedly. It must not be
// called from a Handler.
func (c *Channel) Detach() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.detachLocked()
}

func (c *Channel) detachLocked() {
	c.mu.Lock()
	r, conn := c.cur, c.conn
	c.cur = nil
	c.mu.Unlock()

	if r == nil {
		return
	}

	close(r.stop)
	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client detached"); err != nil {
			c.logger.Debug("Close after detach", "session_id", r.sessionID, "error", err)
		}
	}
	r.cancel()
	<-r.done

	c.logger.Info("Channel detached", "session_id", r.sessionID)
}

// Subscribe registers h for every inbound frame. Handlers run on the reader
// goroutine in arrival order. The returned function removes h.
func (c *Channel) Subscribe(h Handler) func() {
	c.subMu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: h})
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish sends text if a connection is open. Otherwise it logs a warning and
// returns ErrNotOpen without queueing anything.
func (c *Channel) Publish(ctx context.Context, text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Warn("WebSocket is not open, message not sent")
		return ErrNotOpen
	}

	data, err := json.Marshal(domain.OutboundFrame{Message: text})
	if err != nil {
		return fmt.Errorf("encode outbound frame: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		c.logger.Warn("WebSocket write failed, message not sent", "error", err)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (c *Channel) setState(r *run, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == r || s == StateIdle && c.cur == nil {
		c.state = s
	}
}

func (c *Channel) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer c.setState(r, StateIdle)

	url := c.urlFor(r.sessionID)
	for attempt := 1; ; attempt++ {
		c.setState(r, StateConnecting)
		err := c.connectOnce(ctx, r, url)

		select {
		case <-r.stop:
			return
		default:
		}

		c.logger.Warn("WebSocket disconnected, scheduling reconnect",
			"session_id", r.sessionID,
			"attempt", attempt,
			"delay", c.opts.ReconnectDelay,
			"error", err)
		c.setState(r, StateWaiting)

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-r.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connectOnce dials, then reads until the connection ends. The returned
// error describes why it ended.
func (c *Channel) connectOnce(ctx context.Context, r *run, url string) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	if c.cur != r {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client detached")
		return errors.New("detached during dial")
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.logger.Info("WebSocket connected", "session_id", r.sessionID)

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.CloseNow()
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("closed with status %d: %w", status, err)
			}
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.MessageText {
			c.logger.Debug("Ignoring non-text frame", "session_id", r.sessionID)
			continue
		}

		var frame domain.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("Ignoring malformed frame", "session_id", r.sessionID, "error", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Channel) dispatch(frame domain.InboundFrame) {
	c.subMu.RLock()
	handlers := make([]Handler, len(c.subs))
	for i, s := range c.subs {
		handlers[i] = s.fn
	}
	c.subMu.RUnlock()

	for _, h := range handlers {
		h(frame)
	}
}
