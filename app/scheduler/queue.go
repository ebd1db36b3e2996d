// Package scheduler runs the provisioning worker pool and the recovery sweeps
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueFull   = errors.New("provisioning queue is full")
	ErrQueueClosed = errors.New("provisioning queue is closed")
)

// Job is one provisioning attempt for a local order. Attempt starts at 1.
type Job struct {
	OrderID uint `json:"order_id"`
	Attempt int  `json:"attempt"`
}

// ProvisioningQueue carries jobs from producers (webhook, sweep, admin retry) to the worker pool
type ProvisioningQueue interface {
	// Enqueue makes the job visible to consumers once delay has elapsed
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
	// Dequeue blocks until a job is ready or ctx is done
	Dequeue(ctx context.Context) (Job, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

// MemoryQueue is a process-local queue backed by a buffered channel.
// Jobs are lost on restart; the recovery sweep re-enqueues what was pending.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    chan Job
	timers  map[*time.Timer]struct{}
	delayed int64
	closed  bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{
		jobs:   make(chan Job, size),
		timers: make(map[*time.Timer]struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.push(job)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		delete(q.timers, timer)
		q.delayed--
		q.mu.Unlock()
		// A full queue drops the retry; the order stays failed and can be re-triggered
		_ = q.push(job)
	})
	q.timers[timer] = struct{}{}
	q.delayed++
	return nil
}

func (q *MemoryQueue) push(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	}
}

// Len counts ready and delayed jobs
func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)) + q.delayed, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = nil
	q.delayed = 0
	close(q.jobs)
	return nil
}

// RedisQueue keeps ready jobs in a list and delayed jobs in a sorted set scored by due time (unix ms).
// Several processes may share it; promotion of a delayed job is won by whoever removes it first.
type RedisQueue struct {
	client      *redis.Client
	readyKey    string
	delayedKey  string
	pollTimeout time.Duration
	promoteMax  int64
}

func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{
		client:      client,
		readyKey:    prefix + "provisioning:ready",
		delayedKey:  prefix + "provisioning:delayed",
		pollTimeout: time.Second,
		promoteMax:  100,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	if delay <= 0 {
		if err := q.client.LPush(ctx, q.readyKey, payload).Err(); err != nil {
			return fmt.Errorf("push job for order %d: %w", job.OrderID, err)
		}
		return nil
	}

	due := time.Now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(due), Member: payload}).Err(); err != nil {
		return fmt.Errorf("schedule job for order %d: %w", job.OrderID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		if err := q.promoteDue(ctx); err != nil {
			return Job{}, err
		}

		res, err := q.client.BRPop(ctx, q.pollTimeout, q.readyKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("pop job: %w", err)
		}
		// BRPOP replies with [key, value]
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode job %q: %w", res[1], err)
		}
		return job, nil
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: q.promoteMax,
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("list delayed jobs: %w", err)
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return fmt.Errorf("claim delayed job: %w", err)
		}
		if removed != 1 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey, member).Err(); err != nil {
			return fmt.Errorf("promote delayed job: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey)
	delayed := pipe.ZCard(ctx, q.delayedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return ready.Val() + delayed.Val(), nil
}

// Close is a no-op; the redis client is owned by the caller
func (q *RedisQueue) Close() error {
	return nil
}
