package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wellnest-io/chat-client/internal/auth"
	"github.com/wellnest-io/chat-client/internal/config"
	"github.com/wellnest-io/chat-client/internal/domain"
	"github.com/wellnest-io/chat-client/internal/log"
)

var (
	ErrNotOpen        = errors.New("connection is not open")
	ErrAlreadyStarted = errors.New("connection already started")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Hooks are the callbacks a Conn invokes as frames arrive and the
// connection changes state. OnError's terminal flag is set once the
// retry budget is exhausted; recovery then requires a fresh Conn.
type Hooks struct {
	OnFrame func(data []byte)
	OnState func(state State)
	OnError func(err error, terminal bool)
}

// Conn is a single-use client connection to the streaming chat
// endpoint. Each attempt fetches a fresh bearer token, composes the
// target URL with token and session_id query parameters, and dials.
// Abnormal closures are retried with exponential backoff up to a
// configured bound; normal closure and teardown never reconnect.
type Conn struct {
	endpoint  string
	cfg       config.WebSocketConfig
	tokens    auth.TokenProvider
	sessionID func() string
	hooks     Hooks

	mu         sync.Mutex
	state      State
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	gen        int
	attempt    int
	retryTimer *time.Timer
	torndown   bool
}

func NewConn(endpoint string, cfg config.WebSocketConfig, tokens auth.TokenProvider, sessionID func() string, hooks Hooks) *Conn {
	return &Conn{
		endpoint:  endpoint,
		cfg:       cfg,
		tokens:    tokens,
		sessionID: sessionID,
		hooks:     hooks,
		state:     StateIdle,
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open starts the connection. It returns immediately; the dial and any
// reconnects happen in the background. A Conn can only be opened once.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.notifyState(StateConnecting)
	go c.connect(ctx)
	return nil
}

// Close tears the connection down with the normal-closure code and
// cancels any pending reconnect timer. No frames are delivered and no
// reconnect fires after Close returns.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return
	}
	c.torndown = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	done := c.done
	c.done = nil
	c.ws = nil
	c.state = StateClosing
	c.mu.Unlock()

	c.notifyState(StateClosing)
	if done != nil {
		// writePump writes the close frame and closes the socket.
		close(done)
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.notifyState(StateClosed)
}

// Send queues a payload for transmission. It fails when the connection
// is not open; queued payloads are dropped with the connection if it
// is lost before they are written.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	if c.state != StateOpen || c.send == nil {
		c.mu.Unlock()
		return ErrNotOpen
	}
	send := c.send
	c.mu.Unlock()

	select {
	case send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) connect(ctx context.Context) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		// Surfaced as a connection error; retried only through the
		// normal backoff path.
		c.connectFailed(ctx, fmt.Errorf("authentication failed: %w", err))
		return
	}

	target, err := c.buildURL(token)
	if err != nil {
		c.connectFailed(ctx, err)
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.connectFailed(ctx, fmt.Errorf("dial failed: %w", err))
		return
	}

	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.Close()
		return
	}
	c.ws = ws
	c.send = make(chan []byte, 256)
	c.done = make(chan struct{})
	c.gen++
	c.attempt = 0
	c.state = StateOpen
	gen, send, done := c.gen, c.send, c.done
	c.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldSessionID, c.sessionID()).Msg("chat connection open")
	c.notifyState(StateOpen)

	go c.writePump(ws, send, done)
	go c.readPump(ctx, ws, gen)
}

func (c *Conn) buildURL(token string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("session_id", c.sessionID())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) readPump(ctx context.Context, ws *websocket.Conn, gen int) {
	ws.SetReadLimit(c.cfg.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.connLost(ctx, gen, err)
			return
		}

		if isPong(data) {
			ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		}

		c.mu.Lock()
		stale := c.torndown || c.gen != gen
		c.mu.Unlock()
		if stale {
			return
		}

		if c.hooks.OnFrame != nil {
			c.hooks.OnFrame(data)
		}
	}
}

func (c *Conn) writePump(ws *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-done:
			ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-send:
			ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			// Application-level heartbeat; the server answers "pong".
			ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, []byte(domain.RawPing)); err != nil {
				return
			}
		}
	}
}

// connLost handles a failed read on an established connection. Normal
// closure ends the connection without retrying; anything else goes
// through the backoff policy.
func (c *Conn) connLost(ctx context.Context, gen int, err error) {
	c.mu.Lock()
	if c.torndown || c.gen != gen {
		c.mu.Unlock()
		return
	}
	done := c.done
	c.done = nil
	c.ws = nil
	c.send = nil
	c.mu.Unlock()

	if done != nil {
		close(done)
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		c.notifyState(StateClosed)
		return
	}

	if c.hooks.OnError != nil {
		c.hooks.OnError(err, false)
	}
	c.scheduleReconnect(ctx, err)
}

func (c *Conn) connectFailed(ctx context.Context, err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(err, false)
	}
	c.scheduleReconnect(ctx, err)
}

func (c *Conn) scheduleReconnect(ctx context.Context, cause error) {
	c.mu.Lock()
	if c.torndown {
		c.mu.Unlock()
		return
	}
	c.attempt++
	attempt := c.attempt

	if attempt > c.cfg.MaxRetries {
		c.state = StateClosed
		c.mu.Unlock()
		c.notifyState(StateClosed)
		if c.hooks.OnError != nil {
			c.hooks.OnError(fmt.Errorf("connection failed after %d attempts: %w", c.cfg.MaxRetries, cause), true)
		}
		return
	}

	delay := Delay(attempt, c.cfg.ReconnectCap)
	c.state = StateConnecting
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		torn := c.torndown
		c.retryTimer = nil
		c.mu.Unlock()
		if torn {
			return
		}
		c.connect(ctx)
	})
	c.mu.Unlock()

	l := log.L()
	l.Warn().Err(cause).Int(log.FieldAttempt, attempt).Dur("delay", delay).Msg("scheduling reconnect")
	c.notifyState(StateConnecting)
}

func (c *Conn) notifyState(state State) {
	if c.hooks.OnState != nil {
		c.hooks.OnState(state)
	}
}

// isPong recognises heartbeat replies, whether sent as a raw text
// frame, a JSON string, or a typed frame.
func isPong(data []byte) bool {
	s := strings.TrimSpace(string(data))
	if s == domain.RawPong || s == `"`+domain.RawPong+`"` {
		return true
	}
	var base domain.BaseFrame
	if err := json.Unmarshal(data, &base); err == nil && base.Type == domain.FramePong {
		return true
	}
	return false
}
