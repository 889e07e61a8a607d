// Package widget implements the conversation state machine of the embeddable
// chat widget: session bootstrap on open, the message log, the typing
// indicator and reset.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/warrior-ram/demo-ai-chatbot/internal/bootstrap"
	"github.com/warrior-ram/demo-ai-chatbot/internal/channel"
	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

// DefaultTypingTimeout bounds how long the typing indicator stays visible
// without a following message.
const DefaultTypingTimeout = 3 * time.Second

var (
	// ErrEmptyMessage is returned for blank submissions; nothing is sent.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoSession is returned when submitting before a session exists.
	ErrNoSession = errors.New("no chat session")
)

// Phase is the session lifecycle of the widget.
type Phase int

const (
	PhaseNoSession Phase = iota
	PhaseBootstrapping
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseNoSession:
		return "no_session"
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Bootstrapper resolves the session to use.
type Bootstrapper interface {
	Resolve(ctx context.Context, botID int64, visitorID string) (*bootstrap.Result, error)
}

// Identity provides and resets the durable visitor identity.
type Identity interface {
	GetOrCreateVisitorID(ctx context.Context) (string, error)
	Reset(ctx context.Context) error
}

// Transport is the realtime channel the widget talks through.
type Transport interface {
	Attach(sessionID int64)
	Detach()
	Publish(ctx context.Context, text string) error
	Subscribe(h channel.Handler) func()
}

// Options configures a Widget.
type Options struct {
	BotID         int64
	TypingTimeout time.Duration
	Logger        *slog.Logger
}

// State is a point-in-time copy of the widget.
type State struct {
	Messages     []domain.Message
	IsTyping     bool
	IsOpen       bool
	SessionID    int64
	Phase        Phase
	InputEnabled bool
}

// Widget is one chat widget instance. All mutations come from user calls
// (Open, Close, Submit, Reset) or from frames delivered by the transport.
type Widget struct {
	boot   Bootstrapper
	ids    Identity
	ch     Transport
	opts   Options
	logger *slog.Logger

	ops sync.Mutex // serializes session changes: bootstrap completion and reset

	mu          sync.Mutex
	messages    []domain.Message
	isTyping    bool
	typingGen   uint64
	typingTimer *time.Timer
	isOpen      bool
	sessionID   int64
	phase       Phase
	bootGen     uint64

	notifyMu    sync.Mutex
	listeners   []func(State)
	unsubscribe func()
}

// New creates a closed widget without a session.
func New(boot Bootstrapper, ids Identity, ch Transport, opts Options) *Widget {
	if opts.BotID <= 0 {
		opts.BotID = 1
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = DefaultTypingTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	w := &Widget{
		boot:     boot,
		ids:      ids,
		ch:       ch,
		opts:     opts,
		logger:   opts.Logger.With("component", "widget", "bot_id", opts.BotID),
		messages: []domain.Message{},
	}
	w.unsubscribe = ch.Subscribe(w.handleFrame)
	return w
}

// OnChange registers fn to receive a snapshot after every state change.
// Listeners are called one at a time and must not call back into the widget.
func (w *Widget) OnChange(fn func(State)) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Snapshot returns a copy of the current state.
func (w *Widget) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Widget) snapshotLocked() State {
	return State{
		Messages:     append([]domain.Message(nil), w.messages...),
		IsTyping:     w.isTyping,
		IsOpen:       w.isOpen,
		SessionID:    w.sessionID,
		Phase:        w.phase,
		InputEnabled: w.sessionID != 0,
	}
}

// InputEnabled reports whether a session exists to send messages to.
func (w *Widget) InputEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID != 0
}

func (w *Widget) notify() {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	if len(w.listeners) == 0 {
		return
	}
	s := w.Snapshot()
	for _, fn := range w.listeners {
		fn(s)
	}
}

// Open expands the widget. Without a session, and with no bootstrap already
// running, it resolves one; failures are logged and returned and leave the
// input disabled.
func (w *Widget) Open(ctx context.Context) error {
	w.mu.Lock()
	w.isOpen = true
	if w.sessionID != 0 || w.phase == PhaseBootstrapping {
		w.mu.Unlock()
		w.notify()
		return nil
	}
	w.phase = PhaseBootstrapping
	gen := w.bootGen
	w.mu.Unlock()
	w.notify()

	return w.bootstrap(ctx, gen)
}

// Close collapses the widget. The channel stays attached.
func (w *Widget) Close() {
	w.mu.Lock()
	w.isOpen = false
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) bootstrap(ctx context.Context, gen uint64) error {
	var res *bootstrap.Result
	visitorID, err := w.ids.GetOrCreateVisitorID(ctx)
	if err == nil {
		res, err = w.boot.Resolve(ctx, w.opts.BotID, visitorID)
	}

	w.ops.Lock()
	defer w.ops.Unlock()

	w.mu.Lock()
	if gen != w.bootGen {
		// A reset happened while resolving; its own bootstrap wins.
		w.mu.Unlock()
		return nil
	}
	if err != nil {
		w.phase = PhaseNoSession
		w.mu.Unlock()
		w.logger.Error("Failed to bootstrap chat session", "error", err)
		w.notify()
		return fmt.Errorf("bootstrap session: %w", err)
	}

	w.sessionID = res.Session.ID
	w.messages = append([]domain.Message{}, res.History...)
	w.phase = PhaseReady
	w.mu.Unlock()

	w.ch.Attach(res.Session.ID)
	w.logger.Info("Chat session ready", "session_id", res.Session.ID, "resumed", res.Resumed, "history", len(res.History))
	w.notify()
	return nil
}

// Submit publishes text to the channel. The message is not appended
// locally; it appears in the log once the backend echoes it.
func (w *Widget) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	w.mu.Lock()
	sid := w.sessionID
	w.mu.Unlock()
	if sid == 0 {
		return ErrNoSession
	}

	if err := w.ch.Publish(ctx, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Reset detaches the channel, forgets the session and visitor, and clears
// the log and typing indicator. An open widget immediately bootstraps a
// fresh session.
func (w *Widget) Reset(ctx context.Context) error {
	w.ops.Lock()
	w.ch.Detach()
	idErr := w.ids.Reset(ctx)

	w.mu.Lock()
	w.bootGen++
	w.stopTypingLocked()
	w.messages = []domain.Message{}
	w.sessionID = 0
	w.phase = PhaseNoSession
	open := w.isOpen
	if open {
		w.phase = PhaseBootstrapping
	}
	gen := w.bootGen
	w.mu.Unlock()
	w.ops.Unlock()

	w.logger.Info("Chat reset", "reopen", open)
	w.notify()

	if idErr != nil {
		idErr = fmt.Errorf("reset identity: %w", idErr)
	}
	if !open {
		return idErr
	}
	return errors.Join(idErr, w.bootstrap(ctx, gen))
}

// Shutdown detaches the channel and stops timers. The widget must not be
// used afterwards.
func (w *Widget) Shutdown() {
	w.unsubscribe()
	w.ch.Detach()

	w.mu.Lock()
	w.stopTypingLocked()
	w.mu.Unlock()
}

func (w *Widget) handleFrame(f domain.InboundFrame) {
	w.mu.Lock()
	if f.IsTyping() {
		w.isTyping = true
		w.typingGen++
		gen := w.typingGen
		if w.typingTimer != nil {
			w.typingTimer.Stop()
		}
		w.typingTimer = time.AfterFunc(w.opts.TypingTimeout, func() { w.expireTyping(gen) })
	} else {
		w.stopTypingLocked()
		w.messages = append(w.messages, f.Message())
	}
	w.mu.Unlock()
	w.notify()
}

// expireTyping clears the indicator unless a newer typing signal or a real
// message superseded the timer that fired.
func (w *Widget) expireTyping(gen uint64) {
	w.mu.Lock()
	if gen != w.typingGen || !w.isTyping {
		w.mu.Unlock()
		return
	}
	w.isTyping = false
	w.typingTimer = nil
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) stopTypingLocked() {
	w.isTyping = false
	w.typingGen++
	if w.typingTimer != nil {
		w.typingTimer.Stop()
		w.typingTimer = nil
	}
}
