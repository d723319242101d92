package main

import (
	"context"
	"fmt"
	"inchat/auth"
	"inchat/contract"
	"inchat/domain"
	"inchat/internal"
	"inchat/observability"
	"inchat/repositories"
	"inchat/runtime"
	"inchat/services"
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

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "inchat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the storage core and keeps it open until a signal arrives, so
// that every deferred close runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	lock, err := runtime.NewLockStrategy(config.LockStrategy)
	if err != nil {
		return exitConfig, err
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLogger(internal.NewBadgerLogger(log)).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Metrics, stores and coordination
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	waiters := runtime.NewWaiters[domain.Channel](metrics)
	defer waiters.Close()

	stores, err := repositories.NewStores(db, waiters, log, metrics)
	if err != nil {
		return exitRuntime, fmt.Errorf("stores initialisation failed: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("failed to release event sequence", "error", err)
		}
	}()

	coordinator := runtime.NewCoordinator(db, lock, log, metrics)
	var chat contract.IChatService = services.NewChatService(
		log, coordinator, stores, auth.NewArgon2Hasher(),
		config.SessionDuration, config.MaxUpdateAttempts,
	)
	log.Info("Chat core ready",
		"lock_strategy", config.LockStrategy,
		"session_duration", config.SessionDuration,
	)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.EnableDebugServer {
		server := internal.StartDebugServer(db, chat, config.DebugPort, registry, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	// 5. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	return exitOK, nil
}
