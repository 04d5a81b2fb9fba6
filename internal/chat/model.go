package chat

import "time"

// Role identifies who wrote a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one persisted turn of a session's conversation.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SendRequest is a user message addressed to a session's chat.
type SendRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	// IncludeContext defaults to true when omitted.
	IncludeContext *bool `json:"include_context,omitempty"`
}

// State describes a chat channel.
type State struct {
	SessionID   string `json:"session_id"`
	Open        bool   `json:"open"`
	Generating  bool   `json:"generating"`
	HasAnalysis bool   `json:"has_analysis"`
	Messages    int    `json:"messages"`
}
