package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/esim-fulfillment/app/services"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = log.New(io.Discard, "", 0)

// fakeExecutor mimics the provisioning executor: it keeps a status per order and
// answers each run with the next scripted result.
type fakeExecutor struct {
	mu      sync.Mutex
	script  func(orderID uint, run int) error
	runs    map[uint]int
	status  map[uint]models.LocalOrderStatus
	panicOn map[uint]bool
}

func newFakeExecutor(script func(orderID uint, run int) error) *fakeExecutor {
	return &fakeExecutor{
		script:  script,
		runs:    map[uint]int{},
		status:  map[uint]models.LocalOrderStatus{},
		panicOn: map[uint]bool{},
	}
}

func (e *fakeExecutor) Execute(ctx context.Context, orderID uint) error {
	e.mu.Lock()
	e.runs[orderID]++
	run := e.runs[orderID]
	shouldPanic := e.panicOn[orderID]
	e.mu.Unlock()

	if shouldPanic {
		panic("provider client exploded")
	}

	err := e.script(orderID, run)

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case err == nil:
		e.status[orderID] = models.LocalOrderStatusCompleted
	default:
		e.status[orderID] = models.LocalOrderStatusFailed
	}
	if businessflow.IsRetryable(err) {
		return err
	}
	return nil
}

func (e *fakeExecutor) runsOf(orderID uint) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[orderID]
}

func (e *fakeExecutor) statusOf(orderID uint) models.LocalOrderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status[orderID]
}

func retryable(orderID uint) error {
	return fmt.Errorf("%w: order %d: %v", businessflow.ErrRetryable, orderID,
		&services.TransportError{Provider: "airalo", Op: "create order", Err: context.DeadlineExceeded})
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency: 2,
		QueueSize:   16,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		JobTimeout:  time.Second,
	}
}

func startWorker(t *testing.T, exec *fakeExecutor) (*ProvisioningWorker, *MemoryQueue) {
	t.Helper()
	queue := NewMemoryQueue(16)
	worker := NewProvisioningWorker(queue, exec, testWorkerConfig(), quietLogger)
	stop := worker.Start(context.Background())
	t.Cleanup(func() {
		stop()
		_ = queue.Close()
	})
	return worker, queue
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)

	require.NoError(t, q.Enqueue(ctx, Job{OrderID: 1, Attempt: 1}, 0))
	require.NoError(t, q.Enqueue(ctx, Job{OrderID: 2, Attempt: 1}, 0))
	assert.ErrorIs(t, q.Enqueue(ctx, Job{OrderID: 3, Attempt: 1}, 0), ErrQueueFull)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Job{OrderID: 1, Attempt: 1}, job)
	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), job.OrderID)

	require.NoError(t, q.Enqueue(ctx, Job{OrderID: 4, Attempt: 2}, 20*time.Millisecond))
	n, _ := q.Len(ctx)
	assert.Equal(t, int64(1), n, "delayed jobs are counted")

	timeout, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	_, err = q.Dequeue(timeout)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded, "delayed job is not ready yet")

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Job{OrderID: 4, Attempt: 2}, job)

	require.NoError(t, q.Close())
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Enqueue(ctx, Job{OrderID: 5}, 0), ErrQueueClosed)
	assert.NoError(t, q.Close())
}

func TestProvisioningWorker_RetryBound(t *testing.T) {
	exec := newFakeExecutor(func(orderID uint, run int) error { return retryable(orderID) })
	worker, _ := startWorker(t, exec)

	require.NoError(t, worker.Enqueue(context.Background(), 42))

	assert.Eventually(t, func() bool { return exec.runsOf(42) == 3 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, exec.runsOf(42), "exactly three executions")
	assert.Equal(t, models.LocalOrderStatusFailed, exec.statusOf(42))
}

func TestProvisioningWorker_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		script func(orderID uint, run int) error
		runs   int
		status models.LocalOrderStatus
	}{
		{
			name:   "success first time",
			script: func(uint, int) error { return nil },
			runs:   1,
			status: models.LocalOrderStatusCompleted,
		},
		{
			name: "succeeds on second attempt",
			script: func(orderID uint, run int) error {
				if run == 1 {
					return retryable(orderID)
				}
				return nil
			},
			runs:   2,
			status: models.LocalOrderStatusCompleted,
		},
		{
			name: "rejected by provider is not retried",
			script: func(uint, int) error {
				return &services.RemoteError{Provider: "airalo", Status: 422, Body: "bad package"}
			},
			runs:   1,
			status: models.LocalOrderStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor(tt.script)
			worker, _ := startWorker(t, exec)

			require.NoError(t, worker.Enqueue(context.Background(), 7))

			assert.Eventually(t, func() bool { return exec.statusOf(7) == tt.status && exec.runsOf(7) == tt.runs }, 2*time.Second, 5*time.Millisecond)
			time.Sleep(30 * time.Millisecond)
			assert.Equal(t, tt.runs, exec.runsOf(7))
		})
	}
}

func TestProvisioningWorker_RecoversFromPanic(t *testing.T) {
	exec := newFakeExecutor(func(uint, int) error { return nil })
	exec.panicOn[1] = true
	worker, _ := startWorker(t, exec)

	require.NoError(t, worker.Enqueue(context.Background(), 1))
	require.NoError(t, worker.Enqueue(context.Background(), 2))

	assert.Eventually(t, func() bool { return exec.statusOf(2) == models.LocalOrderStatusCompleted }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, exec.runsOf(1))
}

func TestProvisioningWorker_StopWaitsAndQueueFull(t *testing.T) {
	exec := newFakeExecutor(func(uint, int) error { return nil })
	queue := NewMemoryQueue(1)
	worker := NewProvisioningWorker(queue, exec, testWorkerConfig(), quietLogger)

	require.NoError(t, worker.Enqueue(context.Background(), 1))
	err := worker.Enqueue(context.Background(), 2)
	assert.ErrorIs(t, err, ErrQueueFull)

	stop := worker.Start(context.Background())
	assert.Eventually(t, func() bool { return exec.runsOf(1) == 1 }, time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, 0, exec.runsOf(2))
}

// sweepOrders serves the two sweep listings; the rest of the repository is unused here.
type sweepOrders struct {
	repository.LocalOrderRepository
	stale       []*models.LocalOrder
	unconfirmed []*models.LocalOrder
	listErr     error
	limits      []int
	maxConfirm  []int
}

func (r *sweepOrders) ListStaleReceived(ctx context.Context, olderThan time.Time, limit int) ([]*models.LocalOrder, error) {
	r.limits = append(r.limits, limit)
	return r.stale, r.listErr
}

func (r *sweepOrders) ListUnconfirmed(ctx context.Context, olderThan time.Time, maxConfirmAttempts, limit int) ([]*models.LocalOrder, error) {
	r.maxConfirm = append(r.maxConfirm, maxConfirmAttempts)
	return r.unconfirmed, nil
}

type recordingEnqueuer struct {
	mu     sync.Mutex
	ids    []uint
	failOn map[uint]bool
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, orderID uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failOn[orderID] {
		return ErrQueueFull
	}
	e.ids = append(e.ids, orderID)
	return nil
}

func (e *recordingEnqueuer) enqueued() []uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint(nil), e.ids...)
}

type fakeDelivery struct {
	mu        sync.Mutex
	failOn    map[uint]bool
	confirmed []uint
}

func (d *fakeDelivery) Confirm(ctx context.Context, code string) (*services.ConfirmationResult, error) {
	return &services.ConfirmationResult{TransactionCode: code}, nil
}

func (d *fakeDelivery) ConfirmOrder(ctx context.Context, order *models.LocalOrder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn[order.ID] {
		return errors.New("storefront unavailable")
	}
	d.confirmed = append(d.confirmed, order.ID)
	return nil
}

func TestRecoverySweep_RunOnce(t *testing.T) {
	orders := &sweepOrders{
		stale: []*models.LocalOrder{
			{ID: 1, Status: models.LocalOrderStatusReceived},
			{ID: 2, Status: models.LocalOrderStatusReceived},
		},
		unconfirmed: []*models.LocalOrder{
			{ID: 3, Status: models.LocalOrderStatusCompleted, TransactionCode: "C3"},
			{ID: 4, Status: models.LocalOrderStatusCompleted, TransactionCode: "C4"},
		},
	}
	enqueuer := &recordingEnqueuer{failOn: map[uint]bool{2: true}}
	delivery := &fakeDelivery{failOn: map[uint]bool{4: true}}
	sweep := NewRecoverySweep(orders, enqueuer, delivery, config.WorkerConfig{SweepBatchSize: 10}, quietLogger)

	res, err := sweep.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{
		Requeued:       1,
		EnqueueFailed:  1,
		Confirmed:      1,
		ConfirmFailed:  1,
		StaleScanned:   2,
		PendingConfirm: 2,
	}, res)
	assert.Equal(t, []uint{1}, enqueuer.enqueued())
	assert.Equal(t, []uint{3}, delivery.confirmed)
	assert.Equal(t, []int{10}, orders.limits)
	assert.Equal(t, []int{5}, orders.maxConfirm, "default confirmation bound")
}

func TestRecoverySweep_ListError(t *testing.T) {
	orders := &sweepOrders{listErr: errors.New("db down")}
	sweep := NewRecoverySweep(orders, &recordingEnqueuer{}, nil, config.WorkerConfig{}, quietLogger)

	_, err := sweep.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRecoverySweep_StartRunsOnSchedule(t *testing.T) {
	orders := &sweepOrders{stale: []*models.LocalOrder{{ID: 9, Status: models.LocalOrderStatusReceived}}}
	enqueuer := &recordingEnqueuer{}
	sweep := NewRecoverySweep(orders, enqueuer, nil, config.WorkerConfig{SweepInterval: time.Second}, quietLogger)

	stop, err := sweep.Start(context.Background())
	require.NoError(t, err)
	defer stop()

	assert.Eventually(t, func() bool { return len(enqueuer.enqueued()) > 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, uint(9), enqueuer.enqueued()[0])
}

func TestRedisQueue(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	prefix := fmt.Sprintf("esim-test-%d:", time.Now().UnixNano())
	q := NewRedisQueue(client, prefix)
	t.Cleanup(func() {
		client.Del(context.Background(), q.readyKey, q.delayedKey)
	})

	require.NoError(t, q.Enqueue(ctx, Job{OrderID: 1, Attempt: 1}, 0))
	require.NoError(t, q.Enqueue(ctx, Job{OrderID: 2, Attempt: 2}, 300*time.Millisecond))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Job{OrderID: 1, Attempt: 1}, job)

	start := time.Now()
	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Job{OrderID: 2, Attempt: 2}, job)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(timeout)
	assert.Error(t, err)
}
