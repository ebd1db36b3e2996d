package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/esim-fulfillment/app/metrics"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/robfig/cron/v3"
)

// SweepResult counts what one sweep did
type SweepResult struct {
	Requeued       int
	Confirmed      int
	ConfirmFailed  int
	EnqueueFailed  int
	StaleScanned   int
	PendingConfirm int
}

// RecoverySweep periodically re-enqueues orders stuck in received (lost enqueue, restart
// with the memory queue) and retries delivery confirmation of completed orders.
type RecoverySweep struct {
	orderRepo repository.LocalOrderRepository
	enqueuer  businessflow.ProvisioningEnqueuer
	delivery  businessflow.DeliveryFlow
	cfg       config.WorkerConfig
	logger    *log.Logger
}

func NewRecoverySweep(
	orderRepo repository.LocalOrderRepository,
	enqueuer businessflow.ProvisioningEnqueuer,
	delivery businessflow.DeliveryFlow,
	cfg config.WorkerConfig,
	logger *log.Logger,
) *RecoverySweep {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.StaleReceivedAfter <= 0 {
		cfg.StaleReceivedAfter = 10 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 50
	}
	if cfg.MaxConfirmAttempts <= 0 {
		cfg.MaxConfirmAttempts = 5
	}
	if logger == nil {
		logger = log.Default()
	}

	return &RecoverySweep{
		orderRepo: orderRepo,
		enqueuer:  enqueuer,
		delivery:  delivery,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start registers the sweep on a cron runner and returns a stop function.
// Overlapping runs are skipped.
func (s *RecoverySweep) Start(parent context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(parent)

	cronLogger := cron.PrintfLogger(s.logger)
	runner := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	spec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	if _, err := runner.AddFunc(spec, func() { s.run(ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule recovery sweep %q: %w", spec, err)
	}
	runner.Start()
	s.logger.Printf("sweep: scheduled %s", spec)

	return func() {
		cancel()
		<-runner.Stop().Done()
	}, nil
}

func (s *RecoverySweep) run(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Printf("sweep: %v", err)
	}
	if res.Requeued > 0 || res.Confirmed > 0 || res.ConfirmFailed > 0 || res.EnqueueFailed > 0 {
		s.logger.Printf("sweep: requeued=%d enqueue_failed=%d confirmed=%d confirm_failed=%d",
			res.Requeued, res.EnqueueFailed, res.Confirmed, res.ConfirmFailed)
	}
}

// RunOnce performs a single sweep. Per-order errors are counted, not returned.
func (s *RecoverySweep) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	olderThan := utils.UTCNow().Add(-s.cfg.StaleReceivedAfter)

	stale, err := s.orderRepo.ListStaleReceived(ctx, olderThan, s.cfg.SweepBatchSize)
	if err != nil {
		return res, fmt.Errorf("list stale received orders: %w", err)
	}
	res.StaleScanned = len(stale)
	for _, order := range stale {
		if s.enqueuer == nil {
			break
		}
		if err := s.enqueuer.Enqueue(ctx, order.ID); err != nil {
			res.EnqueueFailed++
			s.logger.Printf("sweep: enqueue order %d failed: %v", order.ID, err)
			continue
		}
		res.Requeued++
		metrics.RecoverySweepTotal.WithLabelValues("requeued").Inc()
	}

	if s.delivery == nil {
		return res, nil
	}

	// Least recently attempted first, so rejected confirmations cannot starve newer ones
	unconfirmed, err := s.orderRepo.ListUnconfirmed(ctx, olderThan, s.cfg.MaxConfirmAttempts, s.cfg.SweepBatchSize)
	if err != nil {
		return res, fmt.Errorf("list unconfirmed orders: %w", err)
	}
	res.PendingConfirm = len(unconfirmed)
	for _, order := range unconfirmed {
		if err := s.delivery.ConfirmOrder(ctx, order); err != nil {
			res.ConfirmFailed++
			metrics.RecoverySweepTotal.WithLabelValues("confirm_failed").Inc()
			continue
		}
		res.Confirmed++
		metrics.RecoverySweepTotal.WithLabelValues("confirmed").Inc()
	}

	return res, nil
}
