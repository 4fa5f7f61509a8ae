// Package scheduler runs the periodic job that re-enqueues sources due
// for a refresh. It never performs ingestion itself; it only finds
// eligible sources and hands them to the queue.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/queue"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store"
)

const interval = 15 * time.Minute

// Register wires the refresh sweep into q as a cron job. Call once at
// worker startup, before q.Start.
func Register(q queue.Queue, s store.Store) {
	q.RegisterCron("refresh_sources", interval, func(ctx context.Context) {
		sweep(ctx, q, s)
	})
}

func sweep(ctx context.Context, q queue.Queue, s store.Store) {
	due, err := s.ListSourcesDueForRefresh(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("scheduler: list sources due for refresh", "err", err)
		return
	}
	for _, src := range due {
		if _, err := q.Enqueue(ctx, "ingest_source", map[string]string{
			"source_id": src.ID,
			"tenant_id": src.TenantID,
		}); err != nil {
			slog.Error("scheduler: enqueue ingest_source", "source_id", src.ID, "err", err)
			continue
		}
	}
	if len(due) > 0 {
		slog.Info("scheduler: enqueued due sources", "count", len(due))
	}
}
