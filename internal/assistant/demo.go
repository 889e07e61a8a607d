package assistant

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

const (
	fallbackIntent = "fallback"

	// maxFallbacks consecutive unmatched messages trigger a handoff offer.
	maxFallbacks = 3
	// longConversation is the history length after which a human is offered.
	longConversation = 20
)

type intent struct {
	name      string
	keywords  []string
	responses []string
}

var intents = []intent{
	{
		name:     "greetings",
		keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "greetings"},
		responses: []string{
			"Hello! How can I assist you today?",
			"Hi there! I'm here to help. What can I do for you?",
		},
	},
	{
		name:     "pricing",
		keywords: []string{"price", "prices", "pricing", "cost", "costs", "how much", "pay", "payment", "plan", "subscription", "fee"},
		responses: []string{
			"We have three tiers:\n- Starter: $49/month\n- Pro: $149/month\n- Enterprise: custom pricing\n\nAll plans come with a 14-day free trial.",
			"Plans start at $49/month for small businesses, with Professional ($149/month) and Enterprise options. Would you like details on a specific plan?",
		},
	},
	{
		name:     "enterprise",
		keywords: []string{"enterprise", "large team", "unlimited", "dedicated"},
		responses: []string{
			"Our Enterprise plan includes unlimited conversations, a dedicated support team, custom integrations and SLA guarantees. Would you like to speak with our enterprise team?",
		},
	},
	{
		name:     "features",
		keywords: []string{"feature", "features", "what can", "what does", "how does", "capability", "able to", "functionality"},
		responses: []string{
			"The platform offers AI-powered chat, a document knowledge base, lead capture, analytics and integrations with your existing tools. What would you like to know more about?",
		},
	},
	{
		name:     "getting_started",
		keywords: []string{"get started", "how to start", "begin", "setup", "install", "onboard"},
		responses: []string{
			"Getting started is easy: sign up, customize your bot, add your knowledge, test it, then paste the embed code into your website.",
		},
	},
	{
		name:     "support",
		keywords: []string{"help", "support", "issue", "problem", "error", "bug", "not working", "broken"},
		responses: []string{
			"I'm here to help! Can you tell me more about the issue you're experiencing?",
			"Sorry to hear you're having trouble. What specifically isn't working as expected?",
		},
	},
	{
		name:     "contact",
		keywords: []string{"contact", "email", "phone", "call", "reach", "talk to", "speak with", "get in touch"},
		responses: []string{
			"You can reach us at support@example.com or 1-800-SUPPORT, Monday to Friday, 9 AM to 6 PM EST.",
		},
	},
	{
		name:     "demo",
		keywords: []string{"demo", "demonstration", "show me", "trial"},
		responses: []string{
			"You can try the platform with a 14-day free trial, no credit card required, or schedule a live demo with our team.",
		},
	},
	{
		name:     "integration",
		keywords: []string{"integrate", "integration", "api", "webhook", "slack", "salesforce", "crm"},
		responses: []string{
			"We integrate with Salesforce, HubSpot, Slack, Microsoft Teams and more, and offer a REST API and webhooks for custom work. What tool are you looking to connect?",
		},
	},
	{
		name:     "security",
		keywords: []string{"security", "secure", "privacy", "gdpr", "compliance", "encryption"},
		responses: []string{
			"All data is encrypted, we are GDPR compliant and SOC 2 certified, and we offer data residency options for enterprises.",
		},
	},
	{
		name:      "thanks",
		keywords:  []string{"thank", "thanks", "appreciate", "helpful"},
		responses: []string{"You're very welcome! Happy to help.", "Glad I could help! Feel free to ask if you have more questions."},
	},
	{
		name:      "goodbye",
		keywords:  []string{"bye", "goodbye", "see you", "gotta go"},
		responses: []string{"Goodbye! Feel free to come back anytime.", "Thanks for chatting! Take care."},
	},
	{
		name:     "complaint",
		keywords: []string{"frustrated", "angry", "terrible", "awful", "useless", "waste"},
		responses: []string{
			"I'm really sorry to hear that. Can you tell me more about what went wrong so I can help make it right?",
		},
	},
}

var fallbackResponses = []string{
	"Could you provide a bit more detail about what you're looking for?",
	"I want to make sure I give you accurate information. Could you rephrase that or give me more context?",
	"I'm here to help! Can you tell me more about what you need?",
}

// precedence lists intents that win over keyword counting when present.
var precedence = []struct {
	intent     string
	confidence float64
}{
	{"getting_started", 0.95},
	{"thanks", 0.95},
	{"goodbye", 0.95},
	{"complaint", 0.9},
}

type sessionTrack struct {
	next      map[string]int
	fallbacks int
}

// DemoResponder answers from canned, keyword-matched intents. Choices are
// deterministic: each session cycles through an intent's responses.
type DemoResponder struct {
	mu       sync.Mutex
	sessions map[int64]*sessionTrack
}

// NewDemoResponder creates a DemoResponder.
func NewDemoResponder() *DemoResponder {
	return &DemoResponder{sessions: make(map[int64]*sessionTrack)}
}

// Reply implements Responder.
func (d *DemoResponder) Reply(ctx context.Context, req Request) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, confidence := MatchIntent(req.Query)

	d.mu.Lock()
	track := d.sessions[req.SessionID]
	if track == nil {
		track = &sessionTrack{next: make(map[string]int)}
		d.sessions[req.SessionID] = track
	}

	responses := fallbackResponses
	for _, in := range intents {
		if in.name == name {
			responses = in.responses
			break
		}
	}
	i := track.next[name]
	track.next[name] = i + 1
	content := responses[i%len(responses)]

	if name == fallbackIntent {
		track.fallbacks++
	} else {
		track.fallbacks = 0
	}
	escalate := track.fallbacks >= maxFallbacks
	d.mu.Unlock()

	switch {
	case escalate:
		content += "\n\nIt seems I'm not finding the right answer. Would you like me to connect you with our team?"
	case len(req.History) > longConversation:
		content += "\n\nIf you'd like to talk to a person, I can have someone from our team reach out."
	}

	return &Reply{Content: content, Confidence: confidence, Sources: []string{}}, nil
}

// Forget drops the per-session rotation state.
func (d *DemoResponder) Forget(sessionID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, sessionID)
}

// MatchIntent classifies a query. Keywords match whole words; confidence
// grows with the number of matched keywords.
func MatchIntent(query string) (string, float64) {
	q := normalize(query)
	if strings.TrimSpace(q) == "" {
		return fallbackIntent, 0.3
	}

	for _, p := range precedence {
		for _, in := range intents {
			if in.name == p.intent && containsAny(q, in.keywords) {
				return p.intent, p.confidence
			}
		}
	}

	best, bestConf := fallbackIntent, 0.0
	for _, in := range intents {
		matches := 0
		for _, kw := range in.keywords {
			if strings.Contains(q, " "+kw+" ") {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		conf := min(0.9, 0.5+0.2*float64(matches))
		if conf > bestConf {
			best, bestConf = in.name, conf
		}
	}
	return best, bestConf
}

func containsAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, " "+kw+" ") {
			return true
		}
	}
	return false
}

// normalize lowercases and reduces punctuation to single spaces, padded so
// keywords can be matched as " word ".
func normalize(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if r == '\'' {
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
