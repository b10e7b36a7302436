package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// WebSocket frame types from the server.
const (
	FrameHistory     = "history"
	FrameUser        = "user"
	FrameAI          = "ai"
	FrameAssistant   = "assistant"
	FrameProcessing  = "processing"
	FrameError       = "error"
	FramePing        = "ping"
	FramePong        = "pong"
	FramePlanUpdated = "plan_updated"
)

// Raw heartbeat frames exchanged as plain text, not JSON.
const (
	RawPing = "ping"
	RawPong = "pong"
)

// WelcomeSessionTag marks the client-only welcome entry. Messages
// carrying it are never transmitted, archived, or matched against
// server echoes.
const WelcomeSessionTag = "welcome"

// ChatMessage is a single conversation turn. IDs are server-issued for
// persisted messages; optimistic client entries use a unix-millisecond
// timestamp as a temporary id.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// IsWelcome reports whether this is the client-only welcome entry.
func (m ChatMessage) IsWelcome() bool {
	return m.ID == 0 && m.SessionID == WelcomeSessionTag
}

// NewWelcomeMessage builds the sentinel entry seeded at position 0 of
// every fresh message log.
func NewWelcomeMessage(text string) ChatMessage {
	return ChatMessage{
		ID:        0,
		Role:      RoleAssistant,
		Content:   text,
		Timestamp: time.Now(),
		SessionID: WelcomeSessionTag,
	}
}

// BaseFrame is the base structure for all JSON frames.
type BaseFrame struct {
	Type string `json:"type"`
}

// Server -> Client frames

type HistoryFrame struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

type MessageFrame struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

type ProcessingFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type PlanUpdatedFrame struct {
	Type string `json:"type"`
}

// Client -> Server frames

type OutboundMessage struct {
	Content string `json:"content"`
}
