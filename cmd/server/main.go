package main

import (
	"context"
	"dm-lab/auth"
	"dm-lab/contract"
	grpcserver "dm-lab/infrastructure/grpc/server"
	"dm-lab/infrastructure/pubsub"
	"dm-lab/infrastructure/rest"
	"dm-lab/infrastructure/storage"
	"dm-lab/infrastructure/ws"
	"dm-lab/internal"
	"dm-lab/moderation"
	"dm-lab/runtime"
	"dm-lab/runtime/workers"
	"dm-lab/services"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
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

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every deferred close runs before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf(".env error: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	tokens, err := auth.NewTokenService(config.JWTSecret, config.AuthTokenDuration)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB, Bluge, uploads)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugInspectorPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugInspectorPort, endpoint, MessageMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messageRepository, err := storage.NewMessageRepository(db, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("message repository: %w", err)
	}
	defer func() { _ = messageRepository.Close() }()
	userRepository := storage.NewUserRepository(db)
	searchIndex := storage.NewSearchIndex(blugeWriter, logger)
	objectStore, err := storage.NewDiskObjectStore(config.UploadDir, config.UploadURL(), int64(config.MaxUploadSize))
	if err != nil {
		return exitRuntime, fmt.Errorf("upload directory: %w", err)
	}

	var moderator *moderation.Moderator
	if config.EnableModeration {
		words, err := moderation.LoadDefault()
		if err != nil {
			return exitConfig, fmt.Errorf("censored words: %w", err)
		}
		if moderator, err = moderation.NewModerator(words.Words, charReplacement, logger); err != nil {
			return exitConfig, err
		}
		logger.Info("Moderation enabled", "words", len(words.Words), "languages", words.Languages)
	}

	// 3. Runtime: presence, typing, deliveries
	registry := runtime.NewRegistry()
	typing := runtime.NewTypingTracker(config.TypingTimeout)
	defer typing.Close()
	fanout := workers.NewEventFanout(logger, registry, config.BufferSize, config.SinkTimeout, config.DeliveryTimeout)
	healthGRPC, healthStatus := grpcserver.NewHealthServer(logger)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		fanout,
		workers.NewHeartbeatWorker(logger, registry, config.MetricInterval),
		workers.NewHealthWorker(logger, messageRepository, healthStatus, config.MetricInterval),
		workers.NewChannelCapacityWorker(logger, []workers.NamedChannel{
			{Name: "deliveries", Channel: fanout.Queue()},
		}, config.MetricInterval),
	)

	// Deliveries go through Redis when several processes serve the same users
	var publisher contract.Publisher = fanout
	if config.RedisURL != "" {
		broker, err := pubsub.NewRedisBroker(ctx, logger, config.RedisURL, config.RedisChannel)
		if err != nil {
			return exitRuntime, fmt.Errorf("redis broker: %w", err)
		}
		defer func() { _ = broker.Close() }()
		publisher = broker
		sup.Add(workers.NewBrokerBridge(logger, broker, fanout))
		logger.Info("Redis broker enabled", "channel", config.RedisChannel)
	}

	chatService := services.NewChatService(logger, messageRepository, userRepository, searchIndex,
		publisher, moderator, config.MaxContentLength)
	router := runtime.NewRouter(logger, chatService, registry, typing, publisher)

	// Error (HTTP, gRPC & workers)
	errChan := make(chan error, 2)

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		logger.Info("Starting workers...")
		sup.Run(ctx)
	}()

	// 4. HTTP Server Setup
	engine := rest.NewEngine(
		rest.Options{
			AllowedOrigins: config.Origins(),
			UploadDir:      config.UploadDir,
			Ping:           messageRepository.Ping,
		},
		tokens,
		rest.NewMessageHandler(logger, chatService, objectStore),
		rest.NewUserHandler(logger, userRepository),
		ws.NewHandler(ctx, logger, tokens, router, config.Origins(), config.ConnectionBufferSize).Serve,
		rest.Logger(logger), rest.Metrics(),
	)
	httpServer := &http.Server{
		Addr:              config.HTTPAddress(),
		Handler:           engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 5. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.HTTPHost, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	go func() {
		logger.Info("Starting gRPC health server", "address", grpcAddress)
		if err := healthGRPC.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	exitCode := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		exitCode = exitRuntime
	}

	// 7. Final Cleanup (Graceful Shutdown)
	// Sessions watch ctx, stopping it closes every socket before the store goes away.
	logger.Info("Shutting down gracefully...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}
	healthGRPC.GracefulStop()
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitCode, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
