package main

import (
	"chat-live/api"
	"chat-live/auth"
	"chat-live/internal"
	"chat-live/moderation"
	"chat-live/observability"
	"chat-live/repositories"
	"chat-live/runtime"
	"chat-live/search"
	"chat-live/services"
	"chat-live/storage"
	"chat-live/transport/ws"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred closes flush Badger and Bluge.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	censorChar, _ := internal.CharacterRune(config.CensorCharacter)

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (Badger, Bluge, uploads)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.Open(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	files, err := storage.NewDiskStore(config.UploadDir, config.MaxUploadBytes, logger)
	if err != nil {
		return exitRuntime, err
	}

	filter, err := moderation.NewContentFilterFromDictionaries(logger, moderation.NewCensoredLoader(nil), config.CensoredWords, censorChar)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
	}

	// 3. Services
	users := repositories.NewUserRepository(db)
	chats := repositories.NewChatRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	tokens := auth.NewTokenManager(config.AuthSecret, config.AuthTokenDuration)

	authService := services.NewAuthService(logger, users, tokens)
	chatService := services.NewChatService(logger, users, chats, messages)
	messageService := services.NewMessageService(logger, users, chats, messages, files, index, filter)

	// 4. Event layer
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	orchestrator := runtime.NewOrchestrator(logger, runtime.Config{
		BufferSize:      config.BufferSize,
		DispatchTimeout: config.DispatchTimeout,
		SelfEcho:        runtime.SelfEcho(config.SelfEcho),
		RestartInterval: config.RestartInterval,
		MetricInterval:  config.MetricInterval,
	}, metrics)

	events := ws.NewHandler(ctx, logger, ws.Config{
		PingInterval:   config.PingInterval,
		PongWait:       config.PongWait,
		WriteWait:      config.WriteWait,
		MaxFrameSize:   config.MaxFrameSize,
		BufferSize:     config.ConnectionBufferSize,
		AllowedOrigins: config.Origins(),
	}, orchestrator.Registry(), orchestrator.Router())

	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		orchestrator.Start(ctx)
	}()

	// 5. HTTP server
	routes := api.NewServer(logger, authService, chatService, messageService, config.MaxUploadBytes).
		Routes(api.Options{
			Tokens:         tokens,
			Metrics:        metrics,
			Gatherer:       registry,
			Monitoring:     orchestrator.Monitoring(),
			Events:         events,
			UploadDir:      config.UploadDir,
			RateLimit:      api.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst),
			AllowedOrigins: config.Origins(),
		})
	handler := routes
	if logger.Enabled(ctx, slog.LevelDebug) {
		mux := http.NewServeMux()
		mux.Handle("/debug/inspect", internal.InspectHandler(db, nil))
		mux.Handle("/", routes)
		handler = mux
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://%s/debug/inspect?prefix=msg:", config.Address()))
	}

	srv := &http.Server{
		Addr:              config.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", srv.Addr, "at", time.Now().UTC())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
		stop()
	}

	// 7. Graceful shutdown: stop accepting requests, close sockets, stop workers
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	events.Wait()
	orchestrator.Stop()
	<-orchestratorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}
