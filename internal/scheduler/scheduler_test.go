package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/domain"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/queue"
	"github.com/mrwind-up-bird/mini-chat-rag/internal/store/memstore"
)

type fakeQueue struct {
	jobs []map[string]string
}

func (q *fakeQueue) Enqueue(_ context.Context, jobName string, args map[string]string) (string, error) {
	q.jobs = append(q.jobs, args)
	return "job-" + jobName, nil
}

func (q *fakeQueue) RegisterHandler(string, queue.Handler) {}

func (q *fakeQueue) RegisterCron(string, time.Duration, func(context.Context)) {}

func (q *fakeQueue) Start(context.Context, int) {}

func (q *fakeQueue) Ping(context.Context) error { return nil }

func (q *fakeQueue) Close() error { return nil }

func seedSourceDue(t *testing.T, ms *memstore.Store, id string, schedule domain.RefreshSchedule, lastRefreshed *time.Time) {
	t.Helper()
	now := time.Now().UTC()
	src := domain.Source{
		ID: id, TenantID: "tenant-1", BotProfileID: "bot-1",
		SourceType: domain.SourceTypeText, Status: domain.SourceStatusReady,
		RefreshSchedule: schedule, LastRefreshedAt: lastRefreshed,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := ms.CreateSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
}

func TestSweepEnqueuesDueSources(t *testing.T) {
	ms := memstore.New()
	longAgo := time.Now().UTC().Add(-48 * time.Hour)
	seedSourceDue(t, ms, "src-daily-due", domain.RefreshDaily, &longAgo)
	seedSourceDue(t, ms, "src-none", domain.RefreshNone, &longAgo)

	q := &fakeQueue{}
	sweep(context.Background(), q, ms)

	if len(q.jobs) != 1 {
		t.Fatalf("expected exactly one enqueued job, got %d: %+v", len(q.jobs), q.jobs)
	}
	if q.jobs[0]["source_id"] != "src-daily-due" {
		t.Fatalf("expected src-daily-due to be enqueued, got %+v", q.jobs[0])
	}
}

func TestSweepSkipsRecentlyRefreshedSources(t *testing.T) {
	ms := memstore.New()
	recent := time.Now().UTC().Add(-1 * time.Hour)
	seedSourceDue(t, ms, "src-daily-fresh", domain.RefreshDaily, &recent)

	q := &fakeQueue{}
	sweep(context.Background(), q, ms)

	if len(q.jobs) != 0 {
		t.Fatalf("expected no jobs enqueued, got %+v", q.jobs)
	}
}

func TestSweepEnqueuesNeverRefreshedSource(t *testing.T) {
	ms := memstore.New()
	seedSourceDue(t, ms, "src-hourly-new", domain.RefreshHourly, nil)

	q := &fakeQueue{}
	sweep(context.Background(), q, ms)

	if len(q.jobs) != 1 {
		t.Fatalf("expected the never-refreshed source to be enqueued, got %+v", q.jobs)
	}
}
