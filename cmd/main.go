package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"care-link/api"
	"care-link/auth"
	"care-link/feed"
	"care-link/moderation"
	"care-link/observability"
	"care-link/profiles"
	"care-link/repositories"
	"care-link/runtime"
	"care-link/runtime/workers"
	"care-link/search"
	"care-link/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/rs/cors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so deferred cleanups always execute before
// the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + bluge index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = blugeWriter.Close()
	}()

	// 3. Components
	censoredChar, err := config.characterRune()
	if err != nil {
		return err
	}
	var moderator moderation.Moderator
	if words := config.censoredWordList(); len(words) > 0 {
		moderator, err = moderation.NewModerator(words, censoredChar)
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		log.Info("Moderation enabled", "words", len(words))
	}

	monitor := observability.NewMonitor(log)
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	registry := feed.NewRegistry()
	repository := repositories.NewMessageRepository(db, log)
	index := search.NewMessageIndex(blugeWriter, log)

	orchestrator := runtime.NewOrchestrator(log, supervisor, registry,
		repository, index, moderator, monitor,
		config.BufferSize, config.SessionBufferSize, config.SinkTimeout)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start the feed pipeline
	orchestrator.Start(ctx)

	// 6. HTTP server
	directory := profiles.NewInMemoryDirectory()
	credentials := auth.NewCredentialStore()
	tokens := auth.NewTokenService(config.JWTSecret, config.AuthTokenDuration)
	service := services.NewMessagingService(log, orchestrator, repository, index, directory)
	handler := api.NewHandler(log, service, orchestrator, repository,
		tokens, credentials, directory, monitor, config.origins())

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   config.origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:    address,
		Handler: corsMiddleware.Handler(handler.Router()),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", serveErr)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	orchestrator.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
