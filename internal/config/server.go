package config

import (
	"fmt"
	"time"
)

// ServerConfig holds the development backend configuration.
type ServerConfig struct {
	Port             string
	GRPCPort         string
	DBPath           string
	AllowedOrigins   []string
	LogLevel         string
	SessionRetention time.Duration
	SweepInterval    time.Duration
	OpenAI           OpenAIConfig
	DefaultBot       DefaultBotConfig
}

// OpenAIConfig enables the OpenAI responder when APIKey is set.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled reports whether an API key is configured.
func (c OpenAIConfig) Enabled() bool { return c.APIKey != "" }

// DefaultBotConfig describes the bot seeded on startup.
type DefaultBotConfig struct {
	Seed           bool
	Name           string
	WelcomeMessage string
	SystemPrompt   string
}

// LoadServer reads configuration from environment variables.
func LoadServer() (*ServerConfig, error) {
	cfg := &ServerConfig{
		Port:             getEnv("PORT", "8000"),
		GRPCPort:         getEnv("GRPC_PORT", "9000"),
		DBPath:           getEnv("DB_PATH", "./data/chatbot.db"),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		SessionRetention: getEnvDuration("SESSION_RETENTION", 30*24*time.Hour),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		DefaultBot: DefaultBotConfig{
			Seed:           getEnvBool("SEED_DEFAULT_BOT", true),
			Name:           getEnv("DEFAULT_BOT_NAME", "Support Assistant"),
			WelcomeMessage: getEnv("DEFAULT_WELCOME_MESSAGE", "Hi! How can I help you today?"),
			SystemPrompt:   getEnv("DEFAULT_SYSTEM_PROMPT", "You are a friendly customer support assistant. Answer briefly."),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GRPCPort == "" {
		return fmt.Errorf("GRPC_PORT cannot be empty")
	}
	if c.Port == c.GRPCPort {
		return fmt.Errorf("PORT and GRPC_PORT must differ")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	if c.SessionRetention <= 0 {
		return fmt.Errorf("SESSION_RETENTION must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.DefaultBot.Seed && c.DefaultBot.WelcomeMessage == "" {
		return fmt.Errorf("DEFAULT_WELCOME_MESSAGE cannot be empty when seeding")
	}
	return nil
}
