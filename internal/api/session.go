package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
)

const maxVisitorIDLength = 255

type createSessionRequest struct {
	BotID     *int64 `json:"bot_id"`
	VisitorID string `json:"visitor_id"`
}

type historyResponse struct {
	SessionID     int64                  `json:"session_id"`
	Messages      []domain.StoredMessage `json:"messages"`
	TotalMessages int                    `json:"total_messages"`
}

// CreateSession returns the latest session of a visitor with a bot,
// creating one when none exists.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	botID := int64(1)
	if req.BotID != nil {
		botID = *req.BotID
	}
	if botID < 1 {
		Error(w, http.StatusUnprocessableEntity, "bot_id must be >= 1")
		return
	}
	if n := utf8.RuneCountInString(req.VisitorID); n < 1 || n > maxVisitorIDLength {
		Error(w, http.StatusUnprocessableEntity, "visitor_id must be 1 to 255 characters")
		return
	}

	sess, created, err := h.repo.CreateOrGetSession(r.Context(), botID, req.VisitorID)
	if errors.Is(err, store.ErrBotNotFound) {
		Error(w, http.StatusNotFound, fmt.Sprintf("Bot with id %d not found", botID))
		return
	}
	if err != nil {
		h.logger.Error("Failed to create session", "error", err, "bot_id", botID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if created {
		h.logger.Info("Session created", "session_id", sess.ID, "bot_id", botID, "visitor_id", req.VisitorID)
	}
	JSON(w, http.StatusOK, sess)
}

// History returns the full message log of a session.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || sessionID < 1 {
		Error(w, http.StatusUnprocessableEntity, "invalid session id")
		return
	}

	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, fmt.Sprintf("Session with id %d not found", sessionID))
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), sessionID, 0)
	if err != nil {
		h.logger.Error("Failed to load history", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []domain.StoredMessage{}
	}

	JSON(w, http.StatusOK, historyResponse{
		SessionID:     sessionID,
		Messages:      messages,
		TotalMessages: len(messages),
	})
}
