// Package api provides HTTP handlers for the chat session API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
)

const defaultHealthTimeout = 5 * time.Second

// Handler serves the session, history and health endpoints.
type Handler struct {
	repo          store.Repository
	logger        *slog.Logger
	healthTimeout time.Duration
}

// NewHandler creates a new Handler. Pass nil logger for default.
func NewHandler(repo store.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:          repo,
		logger:        logger.With("component", "api"),
		healthTimeout: defaultHealthTimeout,
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/chat/session", h.CreateSession)
		r.Get("/chat/session/{sessionID}/history", h.History)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
