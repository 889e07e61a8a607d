// Terminal chat widget: keeps a durable visitor identity, resumes the
// visitor's session and chats with the backend over a reconnecting
// WebSocket.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/warrior-ram/demo-ai-chatbot/internal/bootstrap"
	"github.com/warrior-ram/demo-ai-chatbot/internal/channel"
	"github.com/warrior-ram/demo-ai-chatbot/internal/chatapi"
	"github.com/warrior-ram/demo-ai-chatbot/internal/config"
	"github.com/warrior-ram/demo-ai-chatbot/internal/identity"
	"github.com/warrior-ram/demo-ai-chatbot/internal/store"
	"github.com/warrior-ram/demo-ai-chatbot/internal/widget"
)

const helpText = `commands:
  /open    open the chat (starts or resumes a session)
  /close   hide the chat, the session stays connected
  /reset   forget this visitor and start a new conversation
  /status  show session and connection state
  /quit    exit
anything else is sent as a message`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apiURL    string
		wsURL     string
		botID     int64
		statePath string
		scope     string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:          "chatwidget",
		Short:        "Chat with the support assistant from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWidget()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("api-url") {
				cfg.APIURL = apiURL
			}
			if flags.Changed("ws-url") {
				cfg.WSURL = wsURL
			}
			if flags.Changed("bot-id") {
				cfg.BotID = botID
			}
			if flags.Changed("state-path") {
				cfg.StatePath = statePath
			}
			if flags.Changed("scope") {
				cfg.StateScope = scope
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&apiURL, "api-url", "", "chat backend base URL (CHAT_API_URL)")
	flags.StringVar(&wsURL, "ws-url", "", "chat WebSocket base URL (CHAT_WS_URL)")
	flags.Int64Var(&botID, "bot-id", 1, "bot to chat with (CHAT_BOT_ID)")
	flags.StringVar(&statePath, "state-path", "", "visitor state database (CHAT_STATE_PATH)")
	flags.StringVar(&scope, "scope", "", "visitor state scope (CHAT_STATE_SCOPE)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	return cmd
}

func newLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(level)}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(parent context.Context, cfg *config.WidgetConfig, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		color.NoColor = true
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	state, err := store.NewSQLiteState(cfg.StatePath, cfg.Scope())
	if err != nil {
		return fmt.Errorf("open visitor state: %w", err)
	}
	defer func() {
		if closeErr := state.Close(); closeErr != nil {
			logger.Error("Failed to close visitor state", "error", closeErr)
		}
	}()

	var clientOpts []chatapi.Option
	if cfg.WSURL != "" {
		clientOpts = append(clientOpts, chatapi.WithChannelBase(cfg.WSURL))
	}
	client := chatapi.New(cfg.APIURL, clientOpts...)

	ids := identity.NewStore(state, logger)
	boot := bootstrap.New(client, ids, logger)
	ch := channel.New(client.ChannelURL, channel.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	})

	w := widget.New(boot, ids, ch, widget.Options{
		BotID:         cfg.BotID,
		TypingTimeout: cfg.TypingTimeout,
		Logger:        logger,
	})
	defer w.Shutdown()

	r := newRenderer(out)
	w.OnChange(r.Render)

	fmt.Fprintln(out, "type /help for commands")
	if err := w.Open(ctx); err != nil {
		logger.Warn("Chat bootstrap failed", "error", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, w, line, out, logger); quit {
				return nil
			}
		}
	}
}

// handleLine runs one REPL line and reports whether to exit.
func handleLine(ctx context.Context, w *widget.Widget, line string, out io.Writer, logger *slog.Logger) bool {
	text := strings.TrimSpace(line)
	switch text {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, helpText)
	case "/open":
		if err := w.Open(ctx); err != nil {
			logger.Warn("Chat bootstrap failed", "error", err)
		}
	case "/close":
		w.Close()
		fmt.Fprintln(out, "chat closed, type /open to continue")
	case "/reset":
		if err := w.Reset(ctx); err != nil {
			logger.Warn("Chat reset failed", "error", err)
		}
	case "/status":
		s := w.Snapshot()
		fmt.Fprintf(out, "open=%t phase=%s session=%d messages=%d input=%t\n",
			s.IsOpen, s.Phase, s.SessionID, len(s.Messages), s.InputEnabled)
	default:
		if err := w.Submit(ctx, line); err != nil {
			switch {
			case errors.Is(err, widget.ErrNoSession):
				fmt.Fprintln(out, "no active chat, type /open first")
			case errors.Is(err, channel.ErrNotOpen):
				fmt.Fprintln(out, "not connected yet, message not sent")
			default:
				logger.Warn("Send failed", "error", err)
			}
		}
	}
	return false
}
