package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrior-ram/demo-ai-chatbot/internal/assistant"
	"github.com/warrior-ram/demo-ai-chatbot/internal/config"
	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
)

func TestSeedDefaultBot(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	cfg := config.DefaultBotConfig{Seed: true, Name: "Helper", WelcomeMessage: "Hello there"}
	require.NoError(t, seedDefaultBot(ctx, repo, cfg))

	bot, err := repo.GetBot(ctx, defaultBotID)
	require.NoError(t, err)
	require.NotNil(t, bot)
	assert.Equal(t, "Hello there", bot.WelcomeMessage)

	require.NoError(t, repo.UpsertBot(ctx, &domain.Bot{ID: defaultBotID, Name: "Custom", WelcomeMessage: "Edited"}))
	require.NoError(t, seedDefaultBot(ctx, repo, cfg))

	bot, err = repo.GetBot(ctx, defaultBotID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", bot.WelcomeMessage, "existing bot is not overwritten")
}

func TestNewResponder(t *testing.T) {
	demo := assistant.NewDemoResponder()

	assert.Same(t, demo, newResponder(config.OpenAIConfig{}, demo, nil))

	r := newResponder(config.OpenAIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"}, demo, nil)
	fb, ok := r.(*assistant.Fallback)
	require.True(t, ok)
	assert.Same(t, demo, fb.Secondary)
}
