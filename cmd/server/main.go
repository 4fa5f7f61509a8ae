// Command server runs the HTTP gateway: authentication, tenant and bot
// management, source ingestion triggers, chat, webhooks, and stats.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/config"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/httpapi"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/platform"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	plat, err := platform.New(cfg)
	if err != nil {
		log.Fatalf("failed to init platform: %v", err)
	}
	defer plat.Close()

	gateway, err := httpapi.New(httpapi.Config{
		Store:        plat.Store,
		Vectors:      plat.Vectors,
		Queue:        plat.Queue,
		Providers:    plat.Providers,
		Webhooks:     plat.Webhooks,
		Orchestrator: plat.Orchestrator,
		Validator:    plat.Validator,
		AuthResolver: plat.AuthResolver,
		Signer:       plat.Signer,
		Cipher:       plat.Cipher,
		Stats:        plat.Stats,

		AllowedOrigins:    cfg.AllowedOrigins,
		TrustedProxyCIDRs: cfg.TrustedProxyCIDRs,

		RedisAddr:                cfg.QueueURL,
		RedisPassword:            cfg.QueuePassword,
		BootstrapRateLimitPerMin: cfg.BootstrapRateLimitPerMin,
		LoginRateLimitPerMin:     cfg.LoginRateLimitPerMin,
	})
	if err != nil {
		log.Fatalf("failed to init gateway: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      gateway.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway server error", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown error", "err", err)
	}
}
