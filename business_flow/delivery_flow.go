package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/amirphl/esim-fulfillment/app/metrics"
	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
)

// DeliveryFlow tells the storefront that a purchase has been fulfilled
type DeliveryFlow interface {
	Confirm(ctx context.Context, transactionCode string) (*services.ConfirmationResult, error)
	ConfirmOrder(ctx context.Context, order *models.LocalOrder) error
}

type DeliveryFlowImpl struct {
	storefront services.StorefrontClient
	orderRepo  repository.LocalOrderRepository
	recorder
}

func NewDeliveryFlow(
	storefront services.StorefrontClient,
	orderRepo repository.LocalOrderRepository,
	auditRepo repository.AuditLogRepository,
	failureRepo repository.FailureRecordRepository,
	logger *log.Logger,
) DeliveryFlow {
	return &DeliveryFlowImpl{
		storefront: storefront,
		orderRepo:  orderRepo,
		recorder: recorder{
			auditRepo:   auditRepo,
			failureRepo: failureRepo,
			logger:      loggerOrDefault(logger, "delivery"),
		},
	}
}

// Confirm issues a single confirmation call. The client refreshes an expired token once on its own.
func (f *DeliveryFlowImpl) Confirm(ctx context.Context, transactionCode string) (*services.ConfirmationResult, error) {
	code := strings.TrimSpace(transactionCode)
	if code == "" {
		return nil, ErrTransactionCodeRequired
	}

	res, err := f.storefront.ConfirmDelivery(ctx, code)
	if err != nil {
		metrics.DeliveryConfirmationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to confirm delivery of %s: %w", code, err)
	}
	metrics.DeliveryConfirmationsTotal.WithLabelValues("ok").Inc()
	return res, nil
}

// ConfirmOrder confirms delivery of a completed order and stamps DeliveryConfirmedAt.
// Failures are recorded and returned; the order status is never changed.
func (f *DeliveryFlowImpl) ConfirmOrder(ctx context.Context, order *models.LocalOrder) error {
	if order == nil {
		return ErrOrderNotFound
	}
	if order.Status != models.LocalOrderStatusCompleted {
		return NewBusinessErrorf("ORDER_NOT_COMPLETED", "order %d is %s", ErrOrderNotCompleted, order.ID, order.Status)
	}

	res, err := f.Confirm(ctx, order.TransactionCode)
	if err != nil {
		f.failure(ctx, models.FailureSourceDelivery, err.Error(), &order.ID, map[string]any{
			"transaction_code": order.TransactionCode,
		})
		f.audit(ctx, &order.ID, models.AuditActionDeliveryConfirmFailed, "Delivery confirmation failed", false, errString(err), nil)
		if rerr := f.orderRepo.RecordConfirmFailure(ctx, order.ID); rerr != nil {
			f.logger.Printf("failed to count confirmation attempt of order %d: %v", order.ID, rerr)
		} else {
			now := utils.UTCNow()
			order.ConfirmAttempts++
			order.LastConfirmAttemptAt = &now
			order.UpdatedAt = now
		}
		return err
	}

	confirmedAt := res.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = utils.UTCNow()
	}
	order.DeliveryConfirmedAt = &confirmedAt
	if err := f.orderRepo.Update(ctx, order); err != nil {
		f.logger.Printf("delivery of order %d confirmed but not stored: %v", order.ID, err)
		return fmt.Errorf("failed to store delivery confirmation of order %d: %w", order.ID, err)
	}

	f.audit(ctx, &order.ID, models.AuditActionDeliveryConfirmed,
		fmt.Sprintf("Delivery of %s confirmed", order.TransactionCode), true, nil, nil)
	return nil
}
