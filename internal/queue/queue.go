package queue

import (
	"context"
	"time"
)

// Job is one durable unit of work: a named handler plus its arguments.
type Job struct {
	ID   string
	Name string
	Args map[string]string
}

// Handler processes one job. Handlers MUST be idempotent since delivery is
// at-least-once: a crash between processing and ack redelivers the job.
type Handler func(ctx context.Context, job Job) error

// Queue enqueues named jobs and runs a background worker loop dispatching
// them to registered handlers. It also owns periodic cron jobs registered
// at startup, since both share the same "run this on a schedule, durably"
// concern.
type Queue interface {
	Enqueue(ctx context.Context, jobName string, args map[string]string) (string, error)
	RegisterHandler(jobName string, handler Handler)
	// RegisterCron runs fn every interval, starting one interval after
	// Start is called. Cron ticks run in-process, not through the durable
	// stream: they are pure enqueue-triggers with no state worth
	// persisting across restarts.
	RegisterCron(name string, interval time.Duration, fn func(ctx context.Context))
	Start(ctx context.Context, concurrency int)
	Ping(ctx context.Context) error
	Close() error
}
