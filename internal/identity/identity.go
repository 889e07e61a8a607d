// Package identity provides the widget's durable visitor and session
// identifiers.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
)

const (
	VisitorKey = "chat_visitor_id"
	SessionKey = "chat_session_id"
)

// Store persists the visitor identifier and the active session identifier
// for one embedding origin.
type Store struct {
	state  store.StateStore
	logger *slog.Logger
	newID  func() string
}

// NewStore wraps a state store. Pass nil logger for default.
func NewStore(state store.StateStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state:  state,
		logger: logger.With("component", "identity"),
		newID:  uuid.NewString,
	}
}

func isValidVisitorID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

// GetOrCreateVisitorID returns the stored visitor ID, generating and
// persisting a new one when none exists.
func (s *Store) GetOrCreateVisitorID(ctx context.Context) (string, error) {
	id, ok, err := s.state.Get(ctx, VisitorKey)
	if err != nil {
		return "", fmt.Errorf("read visitor id: %w", err)
	}
	if ok && isValidVisitorID(id) {
		return id, nil
	}
	if ok {
		s.logger.Warn("Discarding malformed visitor id", "value", id)
	}

	id = s.newID()
	if err := s.state.Set(ctx, VisitorKey, id); err != nil {
		return "", fmt.Errorf("persist visitor id: %w", err)
	}
	s.logger.Info("Generated visitor id", "visitor_id", id)
	return id, nil
}

// SessionID returns the stored session ID, if any. A stored value that is
// not a positive integer is treated as absent.
func (s *Store) SessionID(ctx context.Context) (int64, bool, error) {
	raw, ok, err := s.state.Get(ctx, SessionKey)
	if err != nil {
		return 0, false, fmt.Errorf("read session id: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		s.logger.Warn("Ignoring malformed stored session id", "value", raw)
		return 0, false, nil
	}
	return id, true, nil
}

// SetSessionID persists the active session ID.
func (s *Store) SetSessionID(ctx context.Context, id int64) error {
	if err := s.state.Set(ctx, SessionKey, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("persist session id: %w", err)
	}
	return nil
}

// ClearSession forgets the active session ID but keeps the visitor.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.state.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("clear session id: %w", err)
	}
	return nil
}

// Reset forgets both the session and the visitor, so the next bootstrap is
// treated as an entirely new visitor.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.state.Delete(ctx, SessionKey, VisitorKey); err != nil {
		return fmt.Errorf("reset identity: %w", err)
	}
	s.logger.Info("Identity reset")
	return nil
}
