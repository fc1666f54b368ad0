package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"tchat/contract"
	"tchat/internal"
	"tchat/moderation"
	"tchat/observability"
	"tchat/repositories"
	"tchat/runtime"
	"tchat/runtime/workers"
	"tchat/server"
	"tchat/transport"
	"time"

	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until SIGINT/SIGTERM.
// Returning instead of exiting lets the deferred badger close run.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	config.PrintBanner(os.Stdout)

	// 2. Database (BadgerDB)
	db, err := repositories.OpenBadger(config.BadgerFilepath)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	profiles := repositories.NewProfileRepository(db, log)

	// 3. Chat core
	sessions := runtime.NewSessionRegistry(log)
	rooms := runtime.NewRoomDirectory(log)
	rooms.EnsureGlobalRoom()
	metrics := observability.NewMonitoringManager(log, sessions, rooms)
	broadcaster := runtime.NewBroadcaster(log, sessions, rooms).OnSlowConsumer(metrics.IncrSlowConsumers)

	opts := []server.HandlerOption{
		server.WithMetrics(metrics),
		server.WithColours(config.Colours),
		server.WithRateLimit(server.RateLimitConfig{
			Burst:          config.RateLimitBurst,
			RefillInterval: config.RateLimitRefillInterval,
		}),
	}
	if config.ModerationEnabled {
		moderator, err := prepareModeration(config, log)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithModerator(moderator))
	}
	handler := server.NewHandler(log, sessions, rooms, broadcaster, profiles, opts...)

	// 4. Supervised workers
	connOpts := transport.Options{
		BufferSize:   config.ConnectionBufferSize,
		MaxLineSize:  config.MaxMessageSize,
		IdleTimeout:  config.IdleTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	// Sockets are bound here: a busy port is fatal, not a restart loop.
	listener := server.NewListener(log, config.Address(), handler, connOpts)
	if err := listener.Bind(); err != nil {
		return err
	}
	toRun := []contract.Worker{
		listener,
		workers.NewHealthMonitoringWorker(log, metrics, config.MetricInterval),
	}
	if config.HTTPPort > 0 {
		httpServer := server.NewHTTPServer(log, config.HTTPAddress(), handler, rooms, metrics, connOpts, config.ShutdownTimeout)
		if err := httpServer.Bind(); err != nil {
			return err
		}
		toRun = append(toRun, httpServer)
	}
	if config.ReapInterval > 0 {
		toRun = append(toRun, workers.NewReaperWorker(log, rooms, config.ReapInterval))
	}
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(toRun...)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervised := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervised)
	}()

	// 6. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	// 7. Final Cleanup
	select {
	case <-supervised:
	case <-time.After(config.ShutdownTimeout):
		log.Warn("Shutdown timeout reached, closing remaining sessions")
	}
	if n := sessions.CloseAll(""); n > 0 {
		log.Info("Sessions force-closed", "count", n)
	}
	log.Info("Program stopped cleanly")
	return nil
}

func prepareModeration(config internal.Config, log *slog.Logger) (*moderation.Moderator, error) {
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := moderation.NewEmbeddedLoader().LoadAll(moderation.DefaultCensoredDir)
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, char, log)
}
