// Package sweeper removes chat sessions that have been idle longer than the
// retention window.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
)

// DefaultInterval is how often idle sessions are swept.
const DefaultInterval = 5 * time.Minute

// CleanupCallback is called for each session before it is deleted.
type CleanupCallback func(sessionID int64)

// Sweeper periodically deletes idle sessions and their messages.
type Sweeper struct {
	repo      store.Repository
	retention time.Duration
	interval  time.Duration
	onCleanup []CleanupCallback
	logger    *slog.Logger
}

// New creates a sweeper. A zero interval selects DefaultInterval.
func New(repo store.Repository, retention, interval time.Duration, logger *slog.Logger, onCleanup ...CleanupCallback) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		repo:      repo,
		retention: retention,
		interval:  interval,
		onCleanup: onCleanup,
		logger:    logger.With("component", "sweeper"),
	}
}

// Run sweeps on every tick until ctx is done. It always returns nil so it
// can run in an errgroup without stopping its peers.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("Session sweeper started", "interval", s.interval, "retention", s.retention)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Sweep deletes every session idle longer than the retention window and
// returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	idle, err := s.repo.GetIdleSessions(ctx, s.retention)
	if err != nil {
		s.logger.Error("Failed to get idle sessions", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	s.logger.Info("Found idle sessions", "count", len(idle))

	deleted := 0
	for _, sess := range idle {
		for _, fn := range s.onCleanup {
			fn(sess.ID)
		}

		if err := s.repo.DeleteSession(ctx, sess.ID); err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("Context canceled during sweep, cleanup may be incomplete", "session_id", sess.ID)
				return deleted
			}
			s.logger.Warn("Failed to delete idle session", "error", err, "session_id", sess.ID)
			continue
		}
		deleted++
	}

	s.logger.Info("Session sweep completed", "deleted", deleted)
	return deleted
}
