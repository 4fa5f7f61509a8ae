// Command worker runs the background job processor: source ingestion
// and the periodic refresh sweep. It never serves HTTP.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/config"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/platform"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/queue"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/scheduler"
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

	plat.Queue.RegisterHandler("ingest_source", func(ctx context.Context, job queue.Job) error {
		return plat.Ingest.IngestSource(ctx, job.Args["source_id"], job.Args["tenant_id"])
	})
	scheduler.Register(plat.Queue, plat.Store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting", "concurrency", cfg.WorkerConcurrency)
	plat.Queue.Start(ctx, cfg.WorkerConcurrency)

	<-ctx.Done()
	slog.Info("worker shutting down")
}
