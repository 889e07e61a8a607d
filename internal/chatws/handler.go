package chatws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/warrior-ram/demo-ai-chatbot/internal/assistant"
	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
)

const (
	// HistoryWindow is how many recent messages are given to the responder.
	HistoryWindow = 10

	writeTimeout = 5 * time.Second
	readLimit    = 64 << 10

	replyFailedMessage = "Sorry, I couldn't process that right now. Please try again."
)

// Handler serves /ws/chat/{sessionID}.
type Handler struct {
	repo           store.Repository
	sm             *SessionManager
	responder      assistant.Responder
	originPatterns []string
	logger         *slog.Logger
}

// NewHandler creates a chat WebSocket handler. originPatterns follow
// websocket.AcceptOptions; "*" accepts any origin.
func NewHandler(repo store.Repository, sm *SessionManager, responder assistant.Responder, originPatterns []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:           repo,
		sm:             sm,
		responder:      responder,
		originPatterns: originPatterns,
		logger:         logger.With("component", "chatws"),
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || sessionID <= 0 {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	h.logger.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() { _ = ws.CloseNow() }()
	ws.SetReadLimit(readLimit)

	ctx := r.Context()

	sess, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID)
		_ = ws.Close(websocket.StatusInternalError, "Internal server error")
		return
	}
	if sess == nil {
		_ = ws.Close(websocket.StatusPolicyViolation, "Session not found")
		return
	}

	bot, err := h.repo.GetBot(ctx, sess.BotID)
	if err != nil {
		h.logger.Error("Failed to load bot", "error", err, "session_id", sessionID, "bot_id", sess.BotID)
		_ = ws.Close(websocket.StatusInternalError, "Internal server error")
		return
	}
	if bot == nil {
		_ = ws.Close(websocket.StatusPolicyViolation, "Bot configuration not found")
		return
	}

	h.sm.Register(sessionID, ws)
	defer h.sm.Unregister(sessionID, ws)

	if err := h.send(ctx, ws, assistantFrame(sessionID, bot.WelcomeMessage, nil, nil)); err != nil {
		h.logger.Debug("Failed to send welcome message", "error", err, "session_id", sessionID)
		return
	}

	h.messageLoop(ctx, ws, sess, bot)

	_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	h.logger.Info("Chat connection ended", "session_id", sessionID)
}

func (h *Handler) messageLoop(ctx context.Context, ws *websocket.Conn, sess *domain.SessionHandle, bot *domain.Bot) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "session_id", sess.ID)
			} else {
				h.logger.Debug("WebSocket read ended", "error", err, "session_id", sess.ID)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var in domain.OutboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			h.logger.Warn("Ignoring malformed client frame", "error", err, "session_id", sess.ID)
			continue
		}
		if strings.TrimSpace(in.Message) == "" {
			continue
		}

		if err := h.handleMessage(ctx, ws, sess, bot, in.Message); err != nil {
			h.logger.Debug("Failed to write to WebSocket", "error", err, "session_id", sess.ID)
			return
		}
	}
}

// handleMessage persists and echoes one user message, then answers it. Only
// write errors are returned.
func (h *Handler) handleMessage(ctx context.Context, ws *websocket.Conn, sess *domain.SessionHandle, bot *domain.Bot, text string) error {
	if _, err := h.repo.AppendMessage(ctx, sess.ID, domain.RoleUser, text); err != nil {
		h.logger.Error("Failed to save user message", "error", err, "session_id", sess.ID)
	}
	if err := h.repo.TouchSession(ctx, sess.ID, time.Now()); err != nil {
		h.logger.Warn("Failed to update session activity", "error", err, "session_id", sess.ID)
	}

	now := time.Now().UTC()
	echo := domain.InboundFrame{Role: domain.RoleUser, Content: text, SessionID: sess.ID, Timestamp: &now}
	if err := h.send(ctx, ws, echo); err != nil {
		return err
	}
	if err := h.send(ctx, ws, domain.TypingFrame(sess.ID)); err != nil {
		return err
	}

	req := assistant.Request{
		SessionID:    sess.ID,
		BotID:        bot.ID,
		SystemPrompt: bot.SystemPrompt,
		Query:        text,
	}
	history, err := h.repo.ListMessages(ctx, sess.ID, HistoryWindow)
	if err != nil {
		h.logger.Warn("Failed to load history for reply", "error", err, "session_id", sess.ID)
	}
	for _, m := range history {
		req.History = append(req.History, m.Message())
	}

	reply, err := h.responder.Reply(ctx, req)
	if err != nil {
		h.logger.Error("Failed to generate reply", "error", err, "session_id", sess.ID)
		reply = &assistant.Reply{Content: replyFailedMessage, Sources: []string{}}
	}

	if _, err := h.repo.AppendMessage(ctx, sess.ID, domain.RoleAssistant, reply.Content); err != nil {
		h.logger.Error("Failed to save assistant message", "error", err, "session_id", sess.ID)
	}

	sources := reply.Sources
	if sources == nil {
		sources = []string{}
	}
	return h.send(ctx, ws, assistantFrame(sess.ID, reply.Content, &reply.Confidence, sources))
}

func assistantFrame(sessionID int64, content string, confidence *float64, sources []string) domain.InboundFrame {
	now := time.Now().UTC()
	return domain.InboundFrame{
		Role:       domain.RoleAssistant,
		Content:    content,
		SessionID:  sessionID,
		Timestamp:  &now,
		Confidence: confidence,
		Sources:    sources,
	}
}

func (h *Handler) send(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
