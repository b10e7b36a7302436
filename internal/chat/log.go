package chat

import (
	"sync"
	"time"

	"github.com/wellnest-io/chat-client/internal/domain"
)

// defaultDedupeWindow is how far apart an optimistic entry and its
// server echo may be timestamped and still count as the same message.
const defaultDedupeWindow = 5 * time.Second

// MessageLog is the ordered, append-only sequence of conversation
// turns. Entries are never reordered or mutated; the whole log is only
// replaced on session reset or when server history arrives.
type MessageLog struct {
	mu           sync.RWMutex
	entries      []domain.ChatMessage
	dedupeWindow time.Duration
}

func NewMessageLog(dedupeWindow time.Duration) *MessageLog {
	if dedupeWindow <= 0 {
		dedupeWindow = defaultDedupeWindow
	}
	return &MessageLog{dedupeWindow: dedupeWindow}
}

// Append adds a message to the end of the log.
func (l *MessageLog) Append(msg domain.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
}

// SeedWelcome inserts the sentinel welcome entry at position 0. It is
// a no-op if the log already starts with one, so repeated session
// initialization cannot duplicate it.
func (l *MessageLog) SeedWelcome(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) > 0 && l.entries[0].IsWelcome() {
		return
	}
	l.entries = append([]domain.ChatMessage{domain.NewWelcomeMessage(text)}, l.entries...)
}

// ReplaceHistory installs server-delivered history after the welcome
// entry. The welcome entry is a client-only affordance: it stays at
// index 0 and history is appended after it, never merged
// chronologically.
func (l *MessageLog) ReplaceHistory(msgs []domain.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fresh := make([]domain.ChatMessage, 0, len(msgs)+1)
	if len(l.entries) > 0 && l.entries[0].IsWelcome() {
		fresh = append(fresh, l.entries[0])
	}
	fresh = append(fresh, msgs...)
	l.entries = fresh
}

// ReplaceAll discards the log and seeds a single fresh welcome entry.
// Used only by session reset.
func (l *MessageLog) ReplaceAll(welcomeText string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = []domain.ChatMessage{domain.NewWelcomeMessage(welcomeText)}
}

// IsDuplicateEcho reports whether candidate is a server echo of a user
// entry already appended optimistically: same content, user role, and
// a timestamp within the tolerance window. The welcome entry never
// matches.
func (l *MessageLog) IsDuplicateEcho(candidate domain.ChatMessage) bool {
	if candidate.Role != domain.RoleUser {
		return false
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.IsWelcome() || e.Role != domain.RoleUser {
			continue
		}
		if e.Content != candidate.Content {
			continue
		}
		diff := candidate.Timestamp.Sub(e.Timestamp)
		if diff < 0 {
			diff = -diff
		}
		if diff <= l.dedupeWindow {
			return true
		}
	}
	return false
}

// Messages returns a snapshot copy of the log.
func (l *MessageLog) Messages() []domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ChatMessage, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries, including the welcome entry.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
