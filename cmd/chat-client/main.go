package main

import (
	"bufio"
	"context"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync"

	"github.com/wellnest-io/chat-client/internal/archive"
	"github.com/wellnest-io/chat-client/internal/auth"
	"github.com/wellnest-io/chat-client/internal/chat"
	"github.com/wellnest-io/chat-client/internal/config"
	"github.com/wellnest-io/chat-client/internal/domain"
	"github.com/wellnest-io/chat-client/internal/log"
	"github.com/wellnest-io/chat-client/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	log.Init(cfg.Log)
	l := log.L()

	userID := cfg.Auth.UserID
	if userID == "" {
		userID = "local"
	}

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize session store")
	}
	defer cleanup()

	identity := session.NewIdentityStore(store)
	tokens := auth.NewHTTPTokenProvider(cfg.Auth.TokenURL, userID)

	var recorder chat.Recorder
	if cfg.Archive.Enabled {
		arch, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to open transcript archive")
		}
		defer arch.Close()
		recorder = arch
	}

	printer := newPrinter()
	var sess *chat.Session
	sess = chat.NewSession(chat.Options{
		Endpoint:     cfg.Chat.Endpoint,
		WelcomeText:  cfg.Chat.WelcomeText,
		DedupeWindow: cfg.Chat.DedupeWindow,
		WebSocket:    cfg.WebSocket,
		Tokens:       tokens,
		Identity:     identity,
		UserID:       userID,
		Recorder:     recorder,
		Hooks: chat.Hooks{
			OnUpdate: func() {
				printer.render(sess.Messages())
			},
			OnTyping: printer.typing,
			OnError:  printer.errorLine,
			OnPlanUpdated: func() {
				printer.infoLine("your daily plan was updated")
			},
		},
	})

	ctx := context.Background()
	if err := sess.Open(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to open chat session")
	}
	defer sess.Close()

	if identity.Degraded() {
		printer.infoLine("session storage unavailable; this conversation will not survive a restart")
	}

	printer.render(sess.Messages())
	fmt.Println("Type a message, /reset for a new conversation, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "/quit":
			return
		case "/reset":
			if err := sess.Reset(ctx); err != nil {
				printer.errorLine(err.Error())
			}
		default:
			sess.Send(line)
		}
	}
}

func buildStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Session.Backend {
	case "redis":
		store, err := session.NewRedisStore(cfg.Session.Redis)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "memory":
		return session.NewMemoryStore(), func() {}, nil
	default:
		path := cfg.Session.Path
		if path == "" {
			var err error
			path, err = session.DefaultPath()
			if err != nil {
				return nil, nil, err
			}
		}
		store, err := session.NewFileStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// printer serializes terminal output across the session's callback
// goroutines.
type printer struct {
	mu      sync.Mutex
	printed int
}

func newPrinter() *printer {
	return &printer{}
}

func (p *printer) render(msgs []domain.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(msgs) < p.printed {
		// The log was replaced (reset or history load); reprint it.
		p.printed = 0
	}
	for _, m := range msgs[p.printed:] {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	}
	p.printed = len(msgs)
}

func (p *printer) typing(active bool) {
	if active {
		p.mu.Lock()
		fmt.Println("... assistant is typing")
		p.mu.Unlock()
	}
}

func (p *printer) errorLine(msg string) {
	p.mu.Lock()
	fmt.Printf("! %s\n", msg)
	p.mu.Unlock()
}

func (p *printer) infoLine(msg string) {
	p.mu.Lock()
	fmt.Printf("* %s\n", msg)
	p.mu.Unlock()
}
