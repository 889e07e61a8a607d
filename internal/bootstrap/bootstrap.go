// Package bootstrap resolves the conversation session a widget should use.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warrior-ram/demo-ai-chatbot/internal/chatapi"
	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

// SessionAPI is the subset of the backend the bootstrapper needs.
type SessionAPI interface {
	CreateSession(ctx context.Context, botID int64, visitorID string) (*domain.SessionHandle, error)
	History(ctx context.Context, sessionID int64) ([]domain.Message, error)
}

// SessionStore persists the active session ID.
type SessionStore interface {
	SessionID(ctx context.Context) (int64, bool, error)
	SetSessionID(ctx context.Context, id int64) error
}

// Result is a resolved session and the history to replay.
type Result struct {
	Session domain.SessionHandle
	History []domain.Message
	Resumed bool
}

// Bootstrapper obtains or creates a session.
type Bootstrapper struct {
	api    SessionAPI
	ids    SessionStore
	logger *slog.Logger
}

// New creates a bootstrapper. Pass nil logger for default.
func New(api SessionAPI, ids SessionStore, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		api:    api,
		ids:    ids,
		logger: logger.With("component", "bootstrap"),
	}
}

// Resolve returns the stored session with its history, or creates a new
// session and persists its ID. History is best effort: any failure to fetch
// it yields an empty log.
func (b *Bootstrapper) Resolve(ctx context.Context, botID int64, visitorID string) (*Result, error) {
	storedID, ok, err := b.ids.SessionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stored session: %w", err)
	}

	if ok {
		res := &Result{
			Session: domain.SessionHandle{ID: storedID, BotID: botID, VisitorID: visitorID},
			History: []domain.Message{},
			Resumed: true,
		}

		history, err := b.api.History(ctx, storedID)
		switch {
		case chatapi.IsNotFound(err):
			b.logger.Warn("Session history not found, starting empty", "session_id", storedID)
		case err != nil:
			b.logger.Error("Failed to load history", "session_id", storedID, "error", err)
		case history != nil:
			res.History = history
		}

		b.logger.Info("Resumed stored session", "session_id", storedID, "messages", len(res.History))
		return res, nil
	}

	sess, err := b.api.CreateSession(ctx, botID, visitorID)
	if err != nil {
		return nil, fmt.Errorf("create session for bot %d: %w", botID, err)
	}
	if err := b.ids.SetSessionID(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("store session %d: %w", sess.ID, err)
	}

	b.logger.Info("Created session", "session_id", sess.ID, "bot_id", botID, "visitor_id", visitorID)
	return &Result{Session: *sess, History: []domain.Message{}}, nil
}
