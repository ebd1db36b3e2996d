package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/esim-fulfillment/app/metrics"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/amirphl/esim-fulfillment/config"
)

const defaultMaxAttempts = 3

// ProvisioningWorker drains the provisioning queue with a fixed pool of goroutines.
// A job is re-enqueued after RetryDelay only when the executor reports a retryable
// failure, so an order is executed at most MaxAttempts times per trigger.
type ProvisioningWorker struct {
	queue    ProvisioningQueue
	executor businessflow.ProvisioningFlow
	cfg      config.WorkerConfig
	logger   *log.Logger

	wg sync.WaitGroup
}

func NewProvisioningWorker(
	queue ProvisioningQueue,
	executor businessflow.ProvisioningFlow,
	cfg config.WorkerConfig,
	logger *log.Logger,
) *ProvisioningWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}

	return &ProvisioningWorker{
		queue:    queue,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// Enqueue schedules the first attempt for an order
func (w *ProvisioningWorker) Enqueue(ctx context.Context, orderID uint) error {
	if err := w.queue.Enqueue(ctx, Job{OrderID: orderID, Attempt: 1}, 0); err != nil {
		return fmt.Errorf("enqueue order %d: %w", orderID, err)
	}
	w.observeDepth(ctx)
	return nil
}

// Start launches the workers and returns a stop function that waits for in-flight jobs
func (w *ProvisioningWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.loop(ctx, id)
		}(i + 1)
	}
	w.logger.Printf("worker: started %d provisioning workers", w.cfg.Concurrency)

	return func() {
		cancel()
		w.wg.Wait()
	}
}

func (w *ProvisioningWorker) loop(ctx context.Context, id int) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Printf("worker %d: dequeue failed: %v", id, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		w.observeDepth(ctx)
		w.process(ctx, job)
	}
}

func (w *ProvisioningWorker) process(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ProvisioningJobsTotal.WithLabelValues("panic").Inc()
			w.logger.Printf("worker: panic while provisioning order %d (attempt %d): %v", job.OrderID, job.Attempt, r)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err := w.executor.Execute(jobCtx, job.OrderID)
	cancel()

	if err == nil {
		metrics.ProvisioningJobsTotal.WithLabelValues("done").Inc()
		return
	}
	if !businessflow.IsRetryable(err) {
		metrics.ProvisioningJobsTotal.WithLabelValues("done").Inc()
		w.logger.Printf("worker: order %d failed permanently: %v", job.OrderID, err)
		return
	}
	if job.Attempt >= w.cfg.MaxAttempts {
		metrics.ProvisioningJobsTotal.WithLabelValues("exhausted").Inc()
		w.logger.Printf("worker: order %d exhausted %d attempts: %v", job.OrderID, job.Attempt, err)
		return
	}

	next := Job{OrderID: job.OrderID, Attempt: job.Attempt + 1}
	// Shutdown must not lose the retry of a redis-backed queue
	if err := w.queue.Enqueue(context.WithoutCancel(ctx), next, w.cfg.RetryDelay); err != nil {
		metrics.ProvisioningJobsTotal.WithLabelValues("exhausted").Inc()
		w.logger.Printf("worker: re-enqueue order %d failed: %v", job.OrderID, err)
		return
	}
	metrics.ProvisioningJobsTotal.WithLabelValues("retry").Inc()
	w.logger.Printf("worker: order %d attempt %d failed, retrying in %s: %v", job.OrderID, job.Attempt, w.cfg.RetryDelay, err)
}

func (w *ProvisioningWorker) observeDepth(ctx context.Context) {
	n, err := w.queue.Len(ctx)
	if err != nil {
		return
	}
	metrics.ProvisioningQueueDepth.Set(float64(n))
}
