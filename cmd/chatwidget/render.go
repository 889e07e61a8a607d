package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
	"github.com/warrior-ram/demo-ai-chatbot/internal/widget"
)

// renderer prints widget state changes as an append-only transcript.
type renderer struct {
	out io.Writer

	mu      sync.Mutex
	printed int
	typing  bool
	phase   widget.Phase
	session int64

	user   *color.Color
	bot    *color.Color
	system *color.Color
	status *color.Color
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:    out,
		user:   color.New(color.FgCyan, color.Bold),
		bot:    color.New(color.FgGreen),
		system: color.New(color.FgYellow),
		status: color.New(color.Faint, color.Italic),
	}
}

// Render prints what changed since the previous state. Messages that arrive
// while the widget is closed are printed when it reopens.
func (r *renderer) Render(s widget.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(s.Messages) < r.printed {
		r.status.Fprintln(r.out, "--- new conversation ---")
		r.printed = 0
	}

	if s.Phase != r.phase {
		switch {
		case s.Phase == widget.PhaseBootstrapping:
			r.status.Fprintln(r.out, "connecting...")
		case s.Phase == widget.PhaseReady && s.SessionID != r.session:
			r.status.Fprintf(r.out, "connected (session %d)\n", s.SessionID)
		case s.Phase == widget.PhaseNoSession && s.IsOpen:
			r.status.Fprintln(r.out, "chat is unavailable right now, type /open to retry")
		}
		r.phase = s.Phase
		if s.Phase == widget.PhaseReady {
			r.session = s.SessionID
		}
	}

	if !s.IsOpen {
		r.typing = false
		return
	}

	for _, m := range s.Messages[r.printed:] {
		r.printMessage(m)
	}
	r.printed = len(s.Messages)

	if s.IsTyping && !r.typing {
		r.status.Fprintln(r.out, "assistant is typing...")
	}
	r.typing = s.IsTyping
}

func (r *renderer) printMessage(m domain.Message) {
	switch m.Role {
	case domain.RoleUser:
		r.user.Fprint(r.out, "you")
	case domain.RoleAssistant:
		r.bot.Fprint(r.out, "assistant")
	default:
		r.system.Fprint(r.out, string(m.Role))
	}
	fmt.Fprintf(r.out, ": %s\n", m.Content)
}
