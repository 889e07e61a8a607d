// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

// ErrBotNotFound is returned when a session is requested for an unknown bot.
var ErrBotNotFound = errors.New("bot not found")

// StateStore is the widget's durable key/value storage. Keys are scoped to
// one embedding origin; values survive process restarts for persistent
// implementations.
type StateStore interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes all given keys in one step. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Close releases the underlying storage.
	Close() error
}

// Repository defines the interface for persisting bots, chat sessions and
// their messages on the backend side.
type Repository interface {
	// UpsertBot creates or updates a bot. A zero ID allocates a new one.
	UpsertBot(ctx context.Context, bot *domain.Bot) error

	// GetBot retrieves a bot by ID. Returns nil if it does not exist.
	GetBot(ctx context.Context, botID int64) (*domain.Bot, error)

	// CreateOrGetSession returns the most recent session of visitorID with
	// botID, creating one if none exists. The boolean reports creation.
	CreateOrGetSession(ctx context.Context, botID int64, visitorID string) (*domain.SessionHandle, bool, error)

	// GetSession retrieves a session by ID. Returns nil if it does not exist.
	GetSession(ctx context.Context, sessionID int64) (*domain.SessionHandle, error)

	// TouchSession records activity on a session.
	TouchSession(ctx context.Context, sessionID int64, at time.Time) error

	// AppendMessage persists a message at the end of a session's log.
	AppendMessage(ctx context.Context, sessionID int64, role domain.Role, content string) (*domain.StoredMessage, error)

	// ListMessages returns the last limit messages of a session in
	// chronological order. A limit <= 0 returns the whole log.
	ListMessages(ctx context.Context, sessionID int64, limit int) ([]domain.StoredMessage, error)

	// GetIdleSessions returns sessions with no activity within ttl.
	GetIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionHandle, error)

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, sessionID int64) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
