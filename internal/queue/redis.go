package queue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrwind-up-bird/mini-chat-rag/internal/util"
)

const (
	defaultBlock      = 5 * time.Second
	defaultClaimIdle  = 30 * time.Second
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 5
	defaultReadCount  = 10
	defaultClaimCount = 10
	defaultMaxLen     = 100000
)

// RedisQueue implements Queue on a Redis Stream consumer group, giving
// durable at-least-once delivery: XReadGroup consumes new entries,
// XAutoClaim reclaims entries abandoned by a dead consumer, and a job is
// only XAck'd once its handler returns nil.
type RedisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	crons []cronJob

	groupOnce sync.Once
}

type cronJob struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
}

// NewRedisQueue connects to addr and prepares the named stream/group. The
// consumer group is created lazily on Start so Enqueue works even before a
// worker process is running.
func NewRedisQueue(addr, password, stream, group string) (*RedisQueue, error) {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = "minirag:jobs"
	}
	group = strings.TrimSpace(group)
	if group == "" {
		group = "minirag-workers"
	}
	return &RedisQueue{
		client:   redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		stream:   stream,
		group:    group,
		consumer: util.NewID(),
		handlers: make(map[string]Handler),
	}, nil
}

// Ping verifies the Redis connection backing the stream is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobName string, args map[string]string) (string, error) {
	jobName = strings.TrimSpace(jobName)
	if jobName == "" {
		return "", errors.New("queue: job name required")
	}
	id := util.NewID()
	values := map[string]any{"job_id": id, "job_name": jobName}
	for k, v := range args {
		values["arg."+k] = v
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: defaultMaxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return "", err
	}
	return id, nil
}

func (q *RedisQueue) RegisterHandler(jobName string, handler Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobName] = handler
}

func (q *RedisQueue) RegisterCron(name string, interval time.Duration, fn func(ctx context.Context)) {
	q.crons = append(q.crons, cronJob{name: name, interval: interval, fn: fn})
}

func (q *RedisQueue) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, i)
	}
	for _, c := range q.crons {
		go q.runCron(ctx, c)
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) ensureGroup(ctx context.Context) {
	q.groupOnce.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Error("queue: create consumer group failed", "error", err)
		}
	})
}

func (q *RedisQueue) runCron(ctx context.Context, c cronJob) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.fn(ctx)
		}
	}
}

func (q *RedisQueue) consumeLoop(ctx context.Context, index int) {
	consumer := q.consumer + "-" + strconv.Itoa(index)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    defaultReadCount,
			Block:    defaultBlock,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				time.Sleep(defaultRetryDelay)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg)
			}
		}
	}
}

func (q *RedisQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  defaultClaimIdle,
		Start:    "0-0",
		Count:    defaultClaimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func (q *RedisQueue) handleMessage(ctx context.Context, msg redis.XMessage) {
	job := decodeJob(msg)
	if job.Name == "" {
		q.ack(ctx, msg.ID)
		return
	}
	q.handlersMu.RLock()
	handler, ok := q.handlers[job.Name]
	q.handlersMu.RUnlock()
	if !ok {
		slog.Warn("queue: no handler registered", "job_name", job.Name)
		q.ack(ctx, msg.ID)
		return
	}
	if err := handler(ctx, job); err != nil {
		slog.Error("queue: handler failed, will retry via redelivery", "job_name", job.Name, "job_id", job.ID, "error", err)
		return
	}
	q.ack(ctx, msg.ID)
}

func (q *RedisQueue) ack(ctx context.Context, msgID string) {
	if err := q.client.XAck(ctx, q.stream, q.group, msgID).Err(); err != nil {
		slog.Error("queue: ack failed", "error", err)
	}
}

func decodeJob(msg redis.XMessage) Job {
	job := Job{Args: make(map[string]string)}
	for k, v := range msg.Values {
		s, _ := v.(string)
		switch {
		case k == "job_id":
			job.ID = s
		case k == "job_name":
			job.Name = s
		case strings.HasPrefix(k, "arg."):
			job.Args[strings.TrimPrefix(k, "arg.")] = s
		}
	}
	return job
}
