// Package main is the entry point for the avaria chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"

	"github.com/avaria-tracker/backend/internal/api"
	"github.com/avaria-tracker/backend/internal/auth"
	"github.com/avaria-tracker/backend/internal/chat"
	"github.com/avaria-tracker/backend/internal/config"
	"github.com/avaria-tracker/backend/internal/storage"
	"github.com/avaria-tracker/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Read()
	if err != nil {
		return exitConfig, err
	}

	// Flags override the environment.
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for the SQLite database")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	issueToken := flag.String("issue-token", "", "Print a one hour token for the given user id and exit")
	flag.Parse()

	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			return exitRuntime, fmt.Errorf("health check failed: %w", err)
		}
		return exitOK, nil
	}

	if err := cfg.Validate(); err != nil {
		return exitConfig, err
	}

	tokens := auth.NewTokenValidator([]byte(cfg.JWTKey), cfg.JWTIssuer, cfg.JWTAudience)
	if *issueToken != "" {
		token, err := tokens.GenerateToken(*issueToken, "", time.Hour)
		if err != nil {
			return exitRuntime, err
		}
		fmt.Println(token)
		return exitOK, nil
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)
	log.Info("Starting avaria chat server", "version", version, "addr", cfg.Addr)

	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "avaria-chat.db"))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		log.Info("Closing database...")
		_ = db.Close()
	}()

	if err := storage.RunMigrations(context.Background(), db, log); err != nil {
		return exitRuntime, fmt.Errorf("failed to run migrations: %w", err)
	}

	svc := chat.NewService(storage.NewChatMessageRepository(db), storage.NewReadReceiptRepository(db), log)
	registry := websocket.NewRegistry(log)

	sweeper := websocket.NewSweeper(registry, cfg.RegistrySweepSpec, log)
	if err := sweeper.Start(); err != nil {
		return exitConfig, err
	}
	defer sweeper.Stop()

	// Cancelled on shutdown; every chat socket watches it.
	serverCtx, closeSockets := context.WithCancel(context.Background())
	defer closeSockets()

	router := api.NewRouter(api.Dependencies{
		ServerContext: serverCtx,
		DB:            db,
		Chat:          svc,
		Registry:      registry,
		Tokens:        tokens,
		Socket: websocket.Options{
			WriteWait:      cfg.WSWriteWait,
			PongWait:       cfg.WSPongWait,
			PingPeriod:     cfg.WSPingPeriod,
			MaxMessageSize: cfg.WSMaxMessageSize,
		},
		Version: version,
		Log:     log,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return exitRuntime, fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("Shutting down server...")
	closeSockets()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return exitRuntime, fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("Server stopped")
	return exitOK, nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	resp, err := http.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
