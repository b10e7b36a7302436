// Package devserver implements a small in-memory chat backend speaking
// the production frame protocol. It exists for local development and
// for integration tests; it is not the real assistant.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/wellnest-io/chat-client/internal/domain"
	"github.com/wellnest-io/chat-client/internal/log"
)

const defaultTokenTTL = 15 * time.Minute

type Config struct {
	Secret   string
	TokenTTL time.Duration
	// Reply produces the assistant's answer for a user message.
	// Defaults to a canned acknowledgement.
	Reply func(content string) string
}

type Server struct {
	secret   []byte
	tokenTTL time.Duration
	reply    func(string) string
	upgrader websocket.Upgrader

	mu        sync.Mutex
	histories map[string][]domain.ChatMessage
	nextID    int64
}

func New(cfg Config) *Server {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	reply := cfg.Reply
	if reply == nil {
		reply = func(content string) string {
			return fmt.Sprintf("You said: %s", content)
		}
	}
	return &Server{
		secret:   []byte(cfg.Secret),
		tokenTTL: ttl,
		reply:    reply,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		histories: make(map[string][]domain.ChatMessage),
		nextID:    1,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/token", s.handleToken)
	mux.HandleFunc("/ws/chat", s.handleWebSocket)
}

type tokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   req.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		http.Error(w, "failed to sign token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{Token: token})
}

func (s *Server) validateToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	sessionID := r.URL.Query().Get("session_id")
	l := log.Ctx(r.Context())

	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	if err := s.validateToken(token); err != nil {
		l.Warn().Err(err).Msg("rejected chat connection")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Replay the session's history before anything else.
	s.mu.Lock()
	history := make([]domain.ChatMessage, len(s.histories[sessionID]))
	copy(history, s.histories[sessionID])
	s.mu.Unlock()

	if err := conn.WriteJSON(domain.HistoryFrame{Type: domain.FrameHistory, Messages: history}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if s.handleMessage(conn, sessionID, data) != nil {
			return
		}
	}
}

func (s *Server) handleMessage(conn *websocket.Conn, sessionID string, data []byte) error {
	if strings.TrimSpace(string(data)) == domain.RawPing {
		return conn.WriteMessage(websocket.TextMessage, []byte(domain.RawPong))
	}

	var in domain.OutboundMessage
	if err := json.Unmarshal(data, &in); err != nil || strings.TrimSpace(in.Content) == "" {
		return conn.WriteJSON(domain.ErrorFrame{Type: domain.FrameError, Message: "invalid message format"})
	}

	userMsg := s.store(sessionID, domain.RoleUser, in.Content)
	if err := conn.WriteJSON(domain.MessageFrame{Type: domain.FrameUser, Message: userMsg}); err != nil {
		return err
	}

	if err := conn.WriteJSON(domain.ProcessingFrame{Type: domain.FrameProcessing}); err != nil {
		return err
	}

	// A message mentioning the plan also triggers the side-effect
	// notification, mirroring the production backend.
	if strings.Contains(strings.ToLower(in.Content), "plan") {
		if err := conn.WriteJSON(domain.PlanUpdatedFrame{Type: domain.FramePlanUpdated}); err != nil {
			return err
		}
	}

	aiMsg := s.store(sessionID, domain.RoleAssistant, s.reply(in.Content))
	return conn.WriteJSON(domain.MessageFrame{Type: domain.FrameAI, Message: aiMsg})
}

func (s *Server) store(sessionID, role, content string) domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.ChatMessage{
		ID:        s.nextID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
	s.nextID++
	s.histories[sessionID] = append(s.histories[sessionID], msg)
	return msg
}

// History returns a copy of the stored history for a session.
func (s *Server) History(sessionID string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.histories[sessionID]))
	copy(out, s.histories[sessionID])
	return out
}
