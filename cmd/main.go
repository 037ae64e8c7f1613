package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"

	"darkroom/domain"
	"darkroom/infrastructure/web"
	"darkroom/infrastructure/ws"
	"darkroom/moderation"
	"darkroom/observability"
	"darkroom/repositories"
	"darkroom/runtime"
	"darkroom/runtime/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so that every defer executes before the
// process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB) & Search Index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	// 3. Core state & routing
	bannedWords := lo.FilterMap(strings.Split(config.BannedWords, ","), func(w string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(w)
		return trimmed, trimmed != ""
	})
	moderator, err := moderation.NewModerator(bannedWords, config.ModerationCharReplacement)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	health := observability.NewHealth()
	registry := runtime.NewRegistry(config.BufferSize, config.GracePeriod)
	conns := runtime.NewConnections(registry)
	persistQueue := make(chan domain.Message, config.PersistQueueSize)
	router := runtime.NewRouter(log, registry, conns, &moderator, health, persistQueue, config.MaxBodyLength)

	store := repositories.NewMessageRepository(db, log)
	index := repositories.NewMessageIndex(indexWriter, log)
	history := runtime.NewHistory(log, registry, store, health, config.HistoryTimeout)

	// The janitor closes sockets through the transport; the transport
	// reports disconnects to the janitor. The closure breaks the cycle.
	var socketHandler *ws.Handler
	janitor := runtime.NewJanitor(log, registry, conns, router,
		config.SweepInterval, config.IdleThreshold,
		func(connID string) { socketHandler.CloseConn(connID) })

	socketHandler = ws.NewHandler(log, registry, conns, router, history, janitor,
		[]byte(config.TokenSecret), config.HistoryLimit, config.ReadLimit,
		splitOrigins(config.AllowedOrigins))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers under supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(janitor, workers.NewPersister(log, persistQueue, store, index, health))
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP & WebSocket server
	webServer := web.NewServer(log, registry, conns, health, index,
		[]byte(config.TokenSecret), config.TokenTTL)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{
		Addr:              address,
		Handler:           webServer.Routes(socketHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup: stop accepting, then let the persister drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}

func splitOrigins(raw string) []string {
	return lo.FilterMap(strings.Split(raw, ","), func(o string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(o)
		return trimmed, trimmed != ""
	})
}
