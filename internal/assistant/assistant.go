// Package assistant produces assistant replies for the development backend.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

// ErrEmptyReply is returned when a responder produced no content.
var ErrEmptyReply = errors.New("assistant returned an empty reply")

// Request is the input for one reply.
type Request struct {
	SessionID    int64
	BotID        int64
	SystemPrompt string
	// History is the recent conversation, oldest first, ending with Query.
	History []domain.Message
	Query   string
}

// Reply is an assistant answer with its metadata.
type Reply struct {
	Content    string
	Confidence float64
	Sources    []string
}

// Responder answers visitor messages.
type Responder interface {
	Reply(ctx context.Context, req Request) (*Reply, error)
}

// Fallback answers with Primary and falls back to Secondary on error.
type Fallback struct {
	Primary   Responder
	Secondary Responder
	Logger    *slog.Logger
}

// Reply implements Responder.
func (f *Fallback) Reply(ctx context.Context, req Request) (*Reply, error) {
	reply, err := f.Primary.Reply(ctx, req)
	if err == nil {
		return reply, nil
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("Primary responder failed, using fallback", "session_id", req.SessionID, "error", err)

	reply, fbErr := f.Secondary.Reply(ctx, req)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback responder: %w", errors.Join(err, fbErr))
	}
	return reply, nil
}
