// Package domain contains core domain types shared by the chat widget and
// the development backend.
package domain

import (
	"time"
)

// Bot is a configured assistant that visitors can chat with.
type Bot struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	WelcomeMessage string    `json:"welcome_message"`
	SystemPrompt   string    `json:"system_prompt"`
	CreatedAt      time.Time `json:"created_at"`
}
