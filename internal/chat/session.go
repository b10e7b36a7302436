package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wellnest-io/chat-client/internal/auth"
	"github.com/wellnest-io/chat-client/internal/config"
	"github.com/wellnest-io/chat-client/internal/domain"
	"github.com/wellnest-io/chat-client/internal/log"
	sessionstore "github.com/wellnest-io/chat-client/internal/session"
	"github.com/wellnest-io/chat-client/internal/transport"
)

var (
	ErrAlreadyOpen = errors.New("chat session already open")
	ErrClosed      = errors.New("chat session closed")
)

// Hooks are the UI-facing callbacks. Widgets (floating or full-screen)
// are thin views over one Session; all reconnection and dedupe logic
// lives here.
type Hooks struct {
	// OnUpdate fires whenever the message log or connection state
	// changes and the surface should re-render.
	OnUpdate func()
	// OnTyping reports the assistant typing/loading indicator.
	OnTyping func(active bool)
	// OnError surfaces an inline error message in the conversation
	// context.
	OnError func(message string)
	// OnPlanUpdated fires when the backend reports the user's daily
	// plan changed. No log mutation is involved.
	OnPlanUpdated func()
}

// Recorder receives persisted conversation turns, e.g. for a local
// transcript archive. The welcome entry is never recorded.
type Recorder interface {
	Record(msg domain.ChatMessage) error
}

// Options configures a Session.
type Options struct {
	Endpoint     string
	WelcomeText  string
	DedupeWindow time.Duration
	WebSocket    config.WebSocketConfig
	Tokens       auth.TokenProvider
	Identity     *sessionstore.IdentityStore
	UserID       string
	Hooks        Hooks
	Recorder     Recorder
}

// Session owns one persistent conversation against the streaming
// backend: the durable session identity, the transport connection, the
// message log, and the outbound send pipeline with its in-flight guard.
type Session struct {
	opts Options
	log  *MessageLog

	mu        sync.Mutex
	sessionID string
	conn      *transport.Conn
	pending   bool
	typing    bool
	connErr   string
	opened    bool
	closed    bool
}

func NewSession(opts Options) *Session {
	return &Session{
		opts: opts,
		log:  NewMessageLog(opts.DedupeWindow),
	}
}

// Open resolves the durable session id, seeds the welcome entry, and
// starts the transport connection.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.opened = true
	s.mu.Unlock()

	sid, err := s.opts.Identity.GetOrCreate(ctx, s.opts.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve session id: %w", err)
	}

	s.mu.Lock()
	s.sessionID = sid
	s.mu.Unlock()

	s.log.SeedWelcome(s.opts.WelcomeText)
	return s.dial(ctx)
}

// Close tears the session down: the connection closes with the
// normal-closure code and no further frames are processed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Reset starts a new conversation: it rotates the session id, replaces
// the log with a fresh welcome entry, and reconnects under the new id.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || !s.opened {
		s.mu.Unlock()
		return ErrClosed
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	sid, err := s.opts.Identity.Reset(ctx, s.opts.UserID)
	if err != nil {
		return fmt.Errorf("failed to rotate session id: %w", err)
	}

	s.mu.Lock()
	s.sessionID = sid
	s.pending = false
	s.connErr = ""
	s.mu.Unlock()

	s.log.ReplaceAll(s.opts.WelcomeText)
	s.notifyUpdate()
	return s.dial(ctx)
}

// Send validates, optimistically appends, and transmits a user turn.
// Preconditions: connection open, non-empty text after trimming, no
// send already in flight. Violations are no-ops; a closed connection
// additionally surfaces a soft "not connected" message.
func (s *Session) Send(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	sid := s.sessionID
	if conn == nil || conn.State() != transport.StateOpen {
		s.mu.Unlock()
		s.surfaceError("not connected")
		return
	}
	s.pending = true
	s.mu.Unlock()

	now := time.Now()
	msg := domain.ChatMessage{
		ID:        now.UnixMilli(), // temporary client id
		Role:      domain.RoleUser,
		Content:   trimmed,
		Timestamp: now,
		SessionID: sid,
	}
	s.log.Append(msg)
	s.record(msg)

	payload, err := json.Marshal(domain.OutboundMessage{Content: trimmed})
	if err == nil {
		err = conn.Send(payload)
	}
	if err != nil {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
		s.surfaceError("not connected")
	}

	s.notifyUpdate()
}

// Messages returns a snapshot of the conversation log.
func (s *Session) Messages() []domain.ChatMessage {
	return s.log.Messages()
}

// SessionID returns the current durable session identifier.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ConnectionState returns the transport state, or StateClosed when the
// surface has been torn down.
func (s *Session) ConnectionState() transport.State {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return transport.StateClosed
	}
	return conn.State()
}

// ConnectionError returns the current connection-level error message,
// empty when the connection is healthy.
func (s *Session) ConnectionError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connErr
}

// Typing reports whether the assistant typing indicator is active.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// SendPending reports whether an optimistic send is awaiting its
// assistant reply.
func (s *Session) SendPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Session) dial(ctx context.Context) error {
	conn := transport.NewConn(s.opts.Endpoint, s.opts.WebSocket, s.opts.Tokens, s.SessionID, transport.Hooks{
		OnFrame: s.handleFrame,
		OnState: s.handleState,
		OnError: s.handleConnError,
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	return conn.Open(ctx)
}

func (s *Session) handleState(state transport.State) {
	switch state {
	case transport.StateOpen:
		// A successful open clears any displayed connection error.
		s.mu.Lock()
		s.connErr = ""
		s.mu.Unlock()
	case transport.StateClosed:
		s.setTyping(false)
	}
	s.notifyUpdate()
}

func (s *Session) handleConnError(err error, terminal bool) {
	msg := "connection error"
	if errors.Is(err, auth.ErrTokenFetch) {
		msg = "authentication failed"
	}
	if terminal {
		msg = "connection lost, please reload to reconnect"
	}

	s.mu.Lock()
	s.connErr = msg
	s.mu.Unlock()

	s.setTyping(false)
	s.notifyUpdate()
}

func (s *Session) record(msg domain.ChatMessage) {
	if s.opts.Recorder == nil || msg.IsWelcome() {
		return
	}
	if err := s.opts.Recorder.Record(msg); err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldSessionID, msg.SessionID).Msg("failed to archive message")
	}
}

func (s *Session) setTyping(active bool) {
	s.mu.Lock()
	changed := s.typing != active
	s.typing = active
	s.mu.Unlock()
	if changed && s.opts.Hooks.OnTyping != nil {
		s.opts.Hooks.OnTyping(active)
	}
}

func (s *Session) clearPending() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

func (s *Session) surfaceError(message string) {
	if s.opts.Hooks.OnError != nil {
		s.opts.Hooks.OnError(message)
	}
}

func (s *Session) notifyUpdate() {
	if s.opts.Hooks.OnUpdate != nil {
		s.opts.Hooks.OnUpdate()
	}
}
