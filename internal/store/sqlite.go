package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
	"github.com/warrior-ram/demo-ai-chatbot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes create-or-get so one visitor never gets two sessions
}

// openSQLite opens a SQLite database at dbPath, creating parent directories.
func openSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS bots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		welcome_message TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bot_id INTEGER NOT NULL REFERENCES bots(id),
		visitor_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_visitor ON chat_sessions(visitor_id, bot_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON chat_sessions(last_active_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// UpsertBot creates or updates a bot record.
func (s *SQLiteStore) UpsertBot(ctx context.Context, bot *domain.Bot) error {
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now()
	}

	if bot.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO bots (name, welcome_message, system_prompt, created_at) VALUES (?, ?, ?, ?)`,
			bot.Name, bot.WelcomeMessage, bot.SystemPrompt, bot.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert bot: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("bot last insert id: %w", err)
		}
		bot.ID = id
		return nil
	}

	query := `
	INSERT INTO bots (id, name, welcome_message, system_prompt, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		welcome_message = excluded.welcome_message,
		system_prompt = excluded.system_prompt`

	if _, err := s.db.ExecContext(ctx, query,
		bot.ID, bot.Name, bot.WelcomeMessage, bot.SystemPrompt, bot.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("upsert bot: %w", err)
	}
	return nil
}

// GetBot retrieves a bot by ID.
func (s *SQLiteStore) GetBot(ctx context.Context, botID int64) (*domain.Bot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, welcome_message, system_prompt, created_at FROM bots WHERE id = ?`, botID)

	var bot domain.Bot
	var createdAt int64
	err := row.Scan(&bot.ID, &bot.Name, &bot.WelcomeMessage, &bot.SystemPrompt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan bot row: %w", err)
	}
	bot.CreatedAt = time.Unix(createdAt, 0)
	return &bot, nil
}

// CreateOrGetSession returns the latest session for the visitor and bot,
// creating one when none exists.
func (s *SQLiteStore) CreateOrGetSession(ctx context.Context, botID int64, visitorID string) (*domain.SessionHandle, bool, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, visitor_id, created_at FROM chat_sessions
		WHERE visitor_id = ? AND bot_id = ?
		ORDER BY id DESC LIMIT 1`, visitorID, botID)
	existing, err := scanSession(row)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	bot, err := s.GetBot(ctx, botID)
	if err != nil {
		return nil, false, err
	}
	if bot == nil {
		return nil, false, fmt.Errorf("bot %d: %w", botID, ErrBotNotFound)
	}

	now := time.Now()
	var res sql.Result
	err = shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`INSERT INTO chat_sessions (bot_id, visitor_id, created_at, last_active_at) VALUES (?, ?, ?, ?)`,
			botID, visitorID, now.Unix(), now.Unix())
		return execErr
	})
	if err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("session last insert id: %w", err)
	}

	return &domain.SessionHandle{
		ID:        id,
		BotID:     botID,
		VisitorID: visitorID,
		CreatedAt: time.Unix(now.Unix(), 0),
	}, true, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID int64) (*domain.SessionHandle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, bot_id, visitor_id, created_at FROM chat_sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*domain.SessionHandle, error) {
	var sess domain.SessionHandle
	var createdAt int64
	err := row.Scan(&sess.ID, &sess.BotID, &sess.VisitorID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	return &sess, nil
}

// TouchSession updates the last activity timestamp of a session.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET last_active_at = ? WHERE id = ?`, at.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchSession affected 0 rows", "session_id", sessionID)
	}
	return nil
}

// AppendMessage persists a message for a session.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID int64, role domain.Role, content string) (*domain.StoredMessage, error) {
	now := time.Now()
	var res sql.Result
	err := shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, string(role), content, now.Unix())
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message last insert id: %w", err)
	}

	return &domain.StoredMessage{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Unix(now.Unix(), 0),
	}, nil
}

// ListMessages returns the last limit messages of a session, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64, limit int) ([]domain.StoredMessage, error) {
	query := `
		SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at FROM messages
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	messages := make([]domain.StoredMessage, 0)
	for rows.Next() {
		var msg domain.StoredMessage
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// GetIdleSessions retrieves sessions without activity within ttl.
func (s *SQLiteStore) GetIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionHandle, error) {
	threshold := time.Now().Add(-ttl).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, visitor_id, created_at FROM chat_sessions
		WHERE last_active_at < ?`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.SessionHandle
	for rows.Next() {
		var sess domain.SessionHandle
		var createdAt int64
		if err := rows.Scan(&sess.ID, &sess.BotID, &sess.VisitorID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan idle session row: %w", err)
		}
		sess.CreatedAt = time.Unix(createdAt, 0)
		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and, through the foreign key cascade, its
// messages. Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID int64) error {
	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete session %d: %w", sessionID, err)
	}
	return nil
}
