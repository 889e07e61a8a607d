package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("bot").Valid())
	assert.False(t, Role("").Valid())
}

func TestInboundFrame_IsTyping(t *testing.T) {
	tests := []struct {
		name  string
		frame InboundFrame
		want  bool
	}{
		{"typing signal", InboundFrame{Role: RoleSystem, Content: "typing"}, true},
		{"other system message", InboundFrame{Role: RoleSystem, Content: "Session ended"}, false},
		{"assistant says typing", InboundFrame{Role: RoleAssistant, Content: "typing"}, false},
		{"user message", InboundFrame{Role: RoleUser, Content: "hi"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.frame.IsTyping())
		})
	}
}

func TestTypingFrame(t *testing.T) {
	f := TypingFrame(9)
	assert.True(t, f.IsTyping())
	assert.Equal(t, int64(9), f.SessionID)
}

func TestInboundFrame_DecodesBackendReply(t *testing.T) {
	raw := `{"role":"assistant","content":"Plans start at $49.","session_id":3,
		"timestamp":"2026-01-02T03:04:05Z","confidence":0.7,"sources":["pricing"]}`

	var f InboundFrame
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	assert.Equal(t, Message{Role: RoleAssistant, Content: "Plans start at $49."}, f.Message())
	require.NotNil(t, f.Timestamp)
	require.NotNil(t, f.Confidence)
	assert.InDelta(t, 0.7, *f.Confidence, 1e-9)
	assert.Equal(t, []string{"pricing"}, f.Sources)
}

func TestInboundFrame_OmitsEmptyMetadata(t *testing.T) {
	data, err := json.Marshal(TypingFrame(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"system","content":"typing"}`, string(data))
}

func TestOutboundFrame_Shape(t *testing.T) {
	data, err := json.Marshal(OutboundFrame{Message: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hello"}`, string(data))
}

func TestSessionHandle_Valid(t *testing.T) {
	var nilHandle *SessionHandle
	assert.False(t, nilHandle.Valid())
	assert.False(t, (&SessionHandle{}).Valid())
	assert.True(t, (&SessionHandle{ID: 1}).Valid())
}

func TestStoredMessage_Message(t *testing.T) {
	sm := StoredMessage{ID: 5, SessionID: 2, Role: RoleUser, Content: "hi"}
	assert.Equal(t, Message{Role: RoleUser, Content: "hi"}, sm.Message())
}
