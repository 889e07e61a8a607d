package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WidgetConfig holds the chat widget configuration.
type WidgetConfig struct {
	APIURL     string `yaml:"api_url"`
	WSURL      string `yaml:"ws_url"`
	BotID      int64  `yaml:"bot_id"`
	StatePath  string `yaml:"state_path"`
	StateScope string `yaml:"state_scope"`
	LogLevel   string `yaml:"log_level"`

	ReconnectDelayRaw string        `yaml:"reconnect_delay"`
	ReconnectDelay    time.Duration `yaml:"-"`
	TypingTimeoutRaw  string        `yaml:"typing_timeout"`
	TypingTimeout     time.Duration `yaml:"-"`
}

// DefaultWidget returns the built-in widget defaults.
func DefaultWidget() *WidgetConfig {
	return &WidgetConfig{
		APIURL:         "http://localhost:8000",
		BotID:          1,
		StatePath:      "./data/widget-state.db",
		LogLevel:       "info",
		ReconnectDelay: 3 * time.Second,
		TypingTimeout:  3 * time.Second,
	}
}

// LoadWidget builds the widget configuration from defaults, the YAML file
// named by CHAT_WIDGET_CONFIG if set, and environment variables, in
// increasing precedence.
func LoadWidget() (*WidgetConfig, error) {
	cfg := DefaultWidget()

	if path := os.Getenv("CHAT_WIDGET_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.APIURL = getEnv("CHAT_API_URL", cfg.APIURL)
	cfg.WSURL = getEnv("CHAT_WS_URL", cfg.WSURL)
	cfg.BotID = getEnvInt64("CHAT_BOT_ID", cfg.BotID)
	cfg.StatePath = getEnv("CHAT_STATE_PATH", cfg.StatePath)
	cfg.StateScope = getEnv("CHAT_STATE_SCOPE", cfg.StateScope)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ReconnectDelay = getEnvDuration("CHAT_RECONNECT_DELAY", cfg.ReconnectDelay)
	cfg.TypingTimeout = getEnvDuration("CHAT_TYPING_TIMEOUT", cfg.TypingTimeout)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *WidgetConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if c.ReconnectDelayRaw != "" {
		if c.ReconnectDelay, err = time.ParseDuration(c.ReconnectDelayRaw); err != nil {
			return fmt.Errorf("parsing reconnect_delay %q: %w", c.ReconnectDelayRaw, err)
		}
	}
	if c.TypingTimeoutRaw != "" {
		if c.TypingTimeout, err = time.ParseDuration(c.TypingTimeoutRaw); err != nil {
			return fmt.Errorf("parsing typing_timeout %q: %w", c.TypingTimeoutRaw, err)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or an empty
// string when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are set.
func (c *WidgetConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("CHAT_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	if c.WSURL != "" {
		u, err := url.Parse(c.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("CHAT_WS_URL must be a ws(s) URL, got %q", c.WSURL)
		}
	}
	if c.BotID < 1 {
		return fmt.Errorf("CHAT_BOT_ID must be >= 1")
	}
	if c.StatePath == "" {
		return fmt.Errorf("CHAT_STATE_PATH cannot be empty")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("CHAT_RECONNECT_DELAY must be > 0")
	}
	if c.TypingTimeout <= 0 {
		return fmt.Errorf("CHAT_TYPING_TIMEOUT must be > 0")
	}
	return nil
}

// Scope returns the storage scope: StateScope when set, otherwise the host
// of the API URL, which plays the part of the embedding origin.
func (c *WidgetConfig) Scope() string {
	if c.StateScope != "" {
		return c.StateScope
	}
	if u, err := url.Parse(c.APIURL); err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	return "default"
}
