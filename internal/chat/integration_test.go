package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wellnest-io/chat-client/internal/auth"
	"github.com/wellnest-io/chat-client/internal/config"
	"github.com/wellnest-io/chat-client/internal/devserver"
	"github.com/wellnest-io/chat-client/internal/domain"
	sessionstore "github.com/wellnest-io/chat-client/internal/session"
	"github.com/wellnest-io/chat-client/internal/transport"
)

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		HandshakeTimeout: 2 * time.Second,
		PingInterval:     50 * time.Millisecond,
		PongWait:         time.Second,
		WriteWait:        time.Second,
		MaxMessageSize:   65536,
		ReconnectCap:     200 * time.Millisecond,
		MaxRetries:       3,
	}
}

func startSession(t *testing.T, srvCfg devserver.Config) (*Session, *devserver.Server, *recordedHooks) {
	t.Helper()

	if srvCfg.Secret == "" {
		srvCfg.Secret = "test-secret"
	}
	srv := devserver.New(srvCfg)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	hooks := &recordedHooks{}
	sess := NewSession(Options{
		Endpoint:     "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat",
		WelcomeText:  "welcome aboard",
		DedupeWindow: 5 * time.Second,
		WebSocket:    testWSConfig(),
		Tokens:       auth.NewHTTPTokenProvider(ts.URL+"/auth/token", "u1"),
		Identity:     sessionstore.NewIdentityStore(sessionstore.NewMemoryStore()),
		UserID:       "u1",
		Hooks:        hooks.hooks(),
	})
	t.Cleanup(sess.Close)

	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, 3*time.Second, "session open", func() bool {
		return sess.ConnectionState() == transport.StateOpen
	})
	return sess, srv, hooks
}

func countByRole(msgs []domain.ChatMessage, role string) int {
	n := 0
	for _, m := range msgs {
		if !m.IsWelcome() && m.Role == role {
			n++
		}
	}
	return n
}

func TestSessionRoundTrip(t *testing.T) {
	sess, _, _ := startSession(t, devserver.Config{})

	sess.Send("hello")

	waitFor(t, 3*time.Second, "assistant reply", func() bool {
		return countByRole(sess.Messages(), domain.RoleAssistant) == 1
	})

	msgs := sess.Messages()
	if !msgs[0].IsWelcome() {
		t.Error("welcome entry not at index 0")
	}
	// The server echoes the user message back; dedupe must leave
	// exactly one copy.
	if got := countByRole(msgs, domain.RoleUser); got != 1 {
		t.Errorf("expected exactly 1 user entry after echo, got %d", got)
	}
	if sess.SendPending() {
		t.Error("pending send not cleared by assistant reply")
	}
}

func TestSessionResetRotatesIdentity(t *testing.T) {
	sess, _, _ := startSession(t, devserver.Config{})

	sess.Send("hello")
	waitFor(t, 3*time.Second, "assistant reply", func() bool {
		return countByRole(sess.Messages(), domain.RoleAssistant) == 1
	})

	oldID := sess.SessionID()
	if err := sess.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if sess.SessionID() == oldID {
		t.Error("Reset did not rotate the session id")
	}

	waitFor(t, 3*time.Second, "reconnect under new id", func() bool {
		return sess.ConnectionState() == transport.StateOpen
	})

	msgs := sess.Messages()
	if len(msgs) != 1 || !msgs[0].IsWelcome() {
		t.Fatalf("expected a single welcome entry after reset, got %d entries", len(msgs))
	}

	// The new conversation works end to end.
	sess.Send("fresh start")
	waitFor(t, 3*time.Second, "reply in new session", func() bool {
		return countByRole(sess.Messages(), domain.RoleAssistant) == 1
	})
}

func TestSessionPlanUpdatedSideEffect(t *testing.T) {
	sess, _, hooks := startSession(t, devserver.Config{})

	sess.Send("please update my plan")

	waitFor(t, 3*time.Second, "plan callback", func() bool {
		return hooks.planCount() == 1
	})
}

func TestSecondSendWhileInFlightNotTransmitted(t *testing.T) {
	slowReply := func(content string) string {
		time.Sleep(250 * time.Millisecond)
		return "done thinking"
	}
	sess, srv, _ := startSession(t, devserver.Config{Reply: slowReply})

	sess.Send("one")
	sess.Send("two")

	waitFor(t, 3*time.Second, "assistant reply", func() bool {
		return countByRole(sess.Messages(), domain.RoleAssistant) == 1
	})

	history := srv.History(sess.SessionID())
	users := 0
	for _, m := range history {
		if m.Role == domain.RoleUser {
			users++
		}
	}
	if users != 1 {
		t.Errorf("expected exactly 1 transmitted frame, server saw %d user messages", users)
	}
}

func TestSessionHistoryReplay(t *testing.T) {
	srv := devserver.New(devserver.Config{Secret: "test-secret"})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	identity := sessionstore.NewIdentityStore(sessionstore.NewMemoryStore())
	newSession := func() *Session {
		hooks := &recordedHooks{}
		s := NewSession(Options{
			Endpoint:     "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat",
			WelcomeText:  "welcome aboard",
			DedupeWindow: 5 * time.Second,
			WebSocket:    testWSConfig(),
			Tokens:       auth.NewHTTPTokenProvider(ts.URL+"/auth/token", "u1"),
			Identity:     identity,
			UserID:       "u1",
			Hooks:        hooks.hooks(),
		})
		t.Cleanup(s.Close)
		if err := s.Open(context.Background()); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		waitFor(t, 3*time.Second, "session open", func() bool {
			return s.ConnectionState() == transport.StateOpen
		})
		return s
	}

	first := newSession()
	first.Send("remember this")
	waitFor(t, 3*time.Second, "assistant reply", func() bool {
		return countByRole(first.Messages(), domain.RoleAssistant) == 1
	})
	first.Close()

	// A later surface with the same durable session id receives the
	// stored history after its own welcome entry.
	second := newSession()
	waitFor(t, 3*time.Second, "history replay", func() bool {
		return countByRole(second.Messages(), domain.RoleAssistant) == 1
	})

	msgs := second.Messages()
	if !msgs[0].IsWelcome() {
		t.Error("welcome entry not at index 0 after history replay")
	}
	if countByRole(msgs, domain.RoleUser) != 1 {
		t.Errorf("expected replayed user message, got %+v", msgs)
	}
}
