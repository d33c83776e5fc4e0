package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/persona-relay/internal/config"
	"github.com/zhouzirui/persona-relay/internal/handler"
	"github.com/zhouzirui/persona-relay/internal/service/ai"
	"github.com/zhouzirui/persona-relay/internal/service/relay"
	"github.com/zhouzirui/persona-relay/internal/service/session"
	"github.com/zhouzirui/persona-relay/internal/store/usage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// A missing credential is not fatal: turns answer with a configuration error.
	var opener relay.ConversationOpener
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
		} else {
			opener = aiService
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Printf("warning: %s", config.MissingCredentialMessage)
	}

	var recorder usage.Recorder = usage.NopRecorder{}
	if cfg.Usage.Enabled() {
		ledger, err := usage.NewSQLite(cfg.Usage.DBPath)
		if err != nil {
			log.Fatalf("failed to open usage ledger: %v", err)
		}
		recorder = ledger
		log.Printf("usage ledger opened at %s", cfg.Usage.DBPath)
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Printf("failed to close usage ledger: %v", err)
		}
	}()

	relaySvc := relay.NewService(session.NewStore(), opener, cfg.Relay, relay.WithRecorder(recorder))
	relaySvc.StartJanitor(ctx)

	router := handler.NewRouter(relaySvc, cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("persona relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Printf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
