package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wellnest-io/chat-client/internal/devserver"
	"github.com/wellnest-io/chat-client/internal/log"
)

func main() {
	log.Init(log.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		ServiceName: "chat-devserver",
	})
	l := log.L()

	port := getEnv("PORT", "8088")
	secret := getEnv("CHAT_SECRET", "dev-secret")

	srv := devserver.New(devserver.Config{Secret: secret})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", port),
		Handler:     log.HTTPMiddleware(l)(mux),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		l.Info().Str("port", port).Msg("chat devserver listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stdlog.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chat devserver")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
