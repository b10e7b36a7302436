package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/wellnest-io/chat-client/internal/domain"
)

// recordedHooks captures callback activity for assertions.
type recordedHooks struct {
	mu      sync.Mutex
	errors  []string
	typing  []bool
	plans   int
	updates int
}

func (h *recordedHooks) hooks() Hooks {
	return Hooks{
		OnUpdate: func() {
			h.mu.Lock()
			h.updates++
			h.mu.Unlock()
		},
		OnTyping: func(active bool) {
			h.mu.Lock()
			h.typing = append(h.typing, active)
			h.mu.Unlock()
		},
		OnError: func(msg string) {
			h.mu.Lock()
			h.errors = append(h.errors, msg)
			h.mu.Unlock()
		},
		OnPlanUpdated: func() {
			h.mu.Lock()
			h.plans++
			h.mu.Unlock()
		},
	}
}

func (h *recordedHooks) lastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errors) == 0 {
		return ""
	}
	return h.errors[len(h.errors)-1]
}

func (h *recordedHooks) planCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plans
}

func setupSession(t *testing.T) (*Session, *recordedHooks) {
	t.Helper()
	hooks := &recordedHooks{}
	s := NewSession(Options{
		WelcomeText: "welcome",
		Hooks:       hooks.hooks(),
	})
	s.log.SeedWelcome("welcome")
	return s, hooks
}

func TestRouterHistoryFrame(t *testing.T) {
	s, _ := setupSession(t)

	s.handleFrame([]byte(`{"type":"history","messages":[{"id":5,"role":"user","content":"hi","timestamp":"2026-01-02T15:04:05Z","session_id":"sess-1"}]}`))

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected [welcome, history], got %d entries", len(msgs))
	}
	if !msgs[0].IsWelcome() {
		t.Error("welcome entry lost on history load")
	}
	if msgs[1].ID != 5 || msgs[1].Content != "hi" {
		t.Errorf("unexpected history entry: %+v", msgs[1])
	}
}

func TestRouterUserEchoDeduped(t *testing.T) {
	s, _ := setupSession(t)

	now := time.Now()
	s.log.Append(domain.ChatMessage{
		ID:        now.UnixMilli(),
		Role:      domain.RoleUser,
		Content:   "hello",
		Timestamp: now,
		SessionID: "sess-1",
	})

	echo := domain.MessageFrame{
		Type: domain.FrameUser,
		Message: domain.ChatMessage{
			ID:        42,
			Role:      domain.RoleUser,
			Content:   "hello",
			Timestamp: now.Add(2 * time.Second),
			SessionID: "sess-1",
		},
	}
	s.handleFrame(mustJSON(t, echo))

	if got := s.log.Len(); got != 2 {
		t.Errorf("expected echo to be discarded, log has %d entries", got)
	}
}

func TestRouterUserFrameAppendedWhenNotEcho(t *testing.T) {
	s, _ := setupSession(t)

	frame := domain.MessageFrame{
		Type: domain.FrameUser,
		Message: domain.ChatMessage{
			ID:        7,
			Role:      domain.RoleUser,
			Content:   "from another device",
			Timestamp: time.Now(),
			SessionID: "sess-1",
		},
	}
	s.handleFrame(mustJSON(t, frame))

	if got := s.log.Len(); got != 2 {
		t.Errorf("expected user frame appended, log has %d entries", got)
	}
}

func TestRouterAssistantFrameClearsPendingAndTyping(t *testing.T) {
	s, _ := setupSession(t)

	s.mu.Lock()
	s.pending = true
	s.typing = true
	s.mu.Unlock()

	frame := domain.MessageFrame{
		Type: domain.FrameAI,
		Message: domain.ChatMessage{
			ID:        8,
			Role:      domain.RoleAssistant,
			Content:   "here to help",
			Timestamp: time.Now(),
			SessionID: "sess-1",
		},
	}
	s.handleFrame(mustJSON(t, frame))

	if s.SendPending() {
		t.Error("assistant reply should clear the pending send")
	}
	if s.Typing() {
		t.Error("assistant reply should clear the typing indicator")
	}
	if got := s.log.Len(); got != 2 {
		t.Errorf("expected assistant entry appended, log has %d entries", got)
	}
}

func TestRouterProcessingSetsTyping(t *testing.T) {
	s, _ := setupSession(t)

	s.handleFrame([]byte(`{"type":"processing"}`))

	if !s.Typing() {
		t.Error("processing frame should set the typing indicator")
	}
	if got := s.log.Len(); got != 1 {
		t.Errorf("processing frame must not append a message, log has %d entries", got)
	}
}

func TestRouterErrorFrame(t *testing.T) {
	s, hooks := setupSession(t)

	s.mu.Lock()
	s.pending = true
	s.typing = true
	s.mu.Unlock()

	s.handleFrame([]byte(`{"type":"error","message":"assistant unavailable"}`))

	if hooks.lastError() != "assistant unavailable" {
		t.Errorf("expected error surfaced, got %q", hooks.lastError())
	}
	if s.SendPending() {
		t.Error("error frame should release the in-flight send")
	}
	if s.Typing() {
		t.Error("error frame should clear the typing indicator")
	}
}

func TestRouterMalformedFrame(t *testing.T) {
	s, hooks := setupSession(t)

	s.mu.Lock()
	s.typing = true
	s.mu.Unlock()

	s.handleFrame([]byte(`{not json`))

	if hooks.lastError() != "invalid message received" {
		t.Errorf("expected generic invalid-message error, got %q", hooks.lastError())
	}
	if s.Typing() {
		t.Error("malformed frame should clear the typing indicator")
	}

	// The router keeps processing subsequent frames.
	s.handleFrame([]byte(`{"type":"processing"}`))
	if !s.Typing() {
		t.Error("router stopped processing after a malformed frame")
	}
}

func TestRouterUnknownFrameIgnored(t *testing.T) {
	s, hooks := setupSession(t)

	s.handleFrame([]byte(`{"type":"avatar_ready","url":"x"}`))

	if got := s.log.Len(); got != 1 {
		t.Errorf("unknown frame must not touch the log, got %d entries", got)
	}
	if hooks.lastError() != "" {
		t.Errorf("unknown frame must not surface an error, got %q", hooks.lastError())
	}
}

func TestRouterPlanUpdatedCallback(t *testing.T) {
	s, hooks := setupSession(t)

	s.handleFrame([]byte(`{"type":"plan_updated"}`))

	if hooks.planCount() != 1 {
		t.Errorf("expected plan callback once, got %d", hooks.planCount())
	}
	if got := s.log.Len(); got != 1 {
		t.Errorf("side-effect frame must not touch the log, got %d entries", got)
	}
}

func TestRouterRawPongIgnored(t *testing.T) {
	s, hooks := setupSession(t)

	s.handleFrame([]byte(`pong`))
	s.handleFrame([]byte(`"pong"`))

	if got := s.log.Len(); got != 1 {
		t.Errorf("heartbeat frames must not touch the log, got %d entries", got)
	}
	if hooks.lastError() != "" {
		t.Errorf("heartbeat frames must not surface errors, got %q", hooks.lastError())
	}
}

func TestSendEmptyIsNoop(t *testing.T) {
	s, hooks := setupSession(t)

	s.Send("")
	s.Send("   \n\t")

	if got := s.log.Len(); got != 1 {
		t.Errorf("empty send must not append, log has %d entries", got)
	}
	if hooks.lastError() != "" {
		t.Errorf("empty send must be silent, got error %q", hooks.lastError())
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	s, hooks := setupSession(t)

	s.Send("hello")

	if got := s.log.Len(); got != 1 {
		t.Errorf("disconnected send must not append, log has %d entries", got)
	}
	if hooks.lastError() != "not connected" {
		t.Errorf("expected soft not-connected message, got %q", hooks.lastError())
	}
	if s.SendPending() {
		t.Error("failed send must not leave the in-flight flag set")
	}
}

func TestSendWhileBusyIsNoop(t *testing.T) {
	s, hooks := setupSession(t)

	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()

	s.Send("second message")

	if got := s.log.Len(); got != 1 {
		t.Errorf("busy send must not append, log has %d entries", got)
	}
	if hooks.lastError() != "" {
		t.Errorf("busy send must be silent, got %q", hooks.lastError())
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}
