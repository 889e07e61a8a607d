package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

func TestMatchIntent(t *testing.T) {
	tests := []struct {
		query      string
		intent     string
		confidence float64
	}{
		{"Hello there", "greetings", 0.7},
		{"What are your prices?", "pricing", 0.7},
		{"How much does the pro plan cost?", "pricing", 0.9},
		{"How do I get started?", "getting_started", 0.95},
		{"Thanks, that was helpful!", "thanks", 0.95},
		{"ok bye", "goodbye", 0.95},
		{"I'm frustrated with this", "complaint", 0.9},
		{"Do you integrate with Slack?", "integration", 0.9},
		{"this is something else", "fallback", 0},
		{"   ", "fallback", 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			intent, confidence := MatchIntent(tt.query)
			assert.Equal(t, tt.intent, intent)
			assert.InDelta(t, tt.confidence, confidence, 1e-9)
		})
	}
}

func TestMatchIntent_WholeWordsOnly(t *testing.T) {
	// "this" must not match the "hi" greeting keyword.
	intent, _ := MatchIntent("this")
	assert.Equal(t, "fallback", intent)
}

func TestDemoResponder_RotatesPerSession(t *testing.T) {
	d := NewDemoResponder()
	ctx := context.Background()
	req := Request{SessionID: 1, Query: "what is the pricing"}

	first, err := d.Reply(ctx, req)
	require.NoError(t, err)
	second, err := d.Reply(ctx, req)
	require.NoError(t, err)
	third, err := d.Reply(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Content, second.Content)
	assert.Equal(t, first.Content, third.Content)
	assert.NotNil(t, first.Sources)

	other, err := d.Reply(ctx, Request{SessionID: 2, Query: "what is the pricing"})
	require.NoError(t, err)
	assert.Equal(t, first.Content, other.Content)

	d.Forget(1)
	again, err := d.Reply(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Content, again.Content)
}

func TestDemoResponder_EscalatesAfterRepeatedFallbacks(t *testing.T) {
	d := NewDemoResponder()
	ctx := context.Background()
	req := Request{SessionID: 1, Query: "qwerty"}

	for i := 0; i < maxFallbacks-1; i++ {
		reply, err := d.Reply(ctx, req)
		require.NoError(t, err)
		assert.NotContains(t, reply.Content, "connect you with our team")
	}

	reply, err := d.Reply(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "connect you with our team")
}

func TestDemoResponder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDemoResponder().Reply(ctx, Request{Query: "hi"})
	require.ErrorIs(t, err, context.Canceled)
}

func newCompletionServer(t *testing.T, content, finish string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": finish,
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIResponder_SendsPromptAndHistory(t *testing.T) {
	var body map[string]any
	srv := newCompletionServer(t, " Plans start at $49. ", "stop", &body)

	r := NewOpenAIResponder("test-key", "", nil, WithBaseURL(srv.URL+"/v1"))
	reply, err := r.Reply(context.Background(), Request{
		SessionID:    3,
		SystemPrompt: "You are a helpful assistant.",
		History: []domain.Message{
			{Role: domain.RoleAssistant, Content: "Welcome!"},
			{Role: domain.RoleUser, Content: "What are your prices?"},
		},
		Query: "What are your prices?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Plans start at $49.", reply.Content)
	assert.InDelta(t, 0.9, reply.Confidence, 1e-9)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "What are your prices?", msgs[2].(map[string]any)["content"])
}

func TestOpenAIResponder_TruncatedReplyHasLowerConfidence(t *testing.T) {
	srv := newCompletionServer(t, "partial", "length", nil)

	r := NewOpenAIResponder("test-key", "gpt-4o-mini", nil, WithBaseURL(srv.URL+"/v1"))
	reply, err := r.Reply(context.Background(), Request{Query: "hi"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, reply.Confidence, 1e-9)
}

func TestOpenAIResponder_EmptyContent(t *testing.T) {
	srv := newCompletionServer(t, "  ", "stop", nil)

	r := NewOpenAIResponder("test-key", "", nil, WithBaseURL(srv.URL+"/v1"))
	_, err := r.Reply(context.Background(), Request{Query: "hi"})
	require.ErrorIs(t, err, ErrEmptyReply)
}

type failingResponder struct{ err error }

func (f failingResponder) Reply(context.Context, Request) (*Reply, error) { return nil, f.err }

func TestFallback(t *testing.T) {
	ctx := context.Background()

	f := &Fallback{Primary: failingResponder{errors.New("quota exceeded")}, Secondary: NewDemoResponder()}
	reply, err := f.Reply(ctx, Request{Query: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Content)

	f = &Fallback{Primary: failingResponder{errors.New("a")}, Secondary: failingResponder{errors.New("b")}}
	_, err = f.Reply(ctx, Request{Query: "hello"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "a")
	assert.ErrorContains(t, err, "b")
}
