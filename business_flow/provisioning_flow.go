package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/esim-fulfillment/app/metrics"
	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/lib/pq"
)

// ProvisioningFlow runs one provisioning attempt for a local order
type ProvisioningFlow interface {
	Execute(ctx context.Context, orderID uint) error
}

type ProvisioningFlowImpl struct {
	orderRepo     repository.LocalOrderRepository
	provOrderRepo repository.ProvisionerOrderRepository
	unitRepo      repository.ProvisionedUnitRepository
	provisioner   services.ProvisionerClient
	delivery      DeliveryFlow
	tx            repository.Transactor
	copyAddresses []string
	recorder
}

func NewProvisioningFlow(
	orderRepo repository.LocalOrderRepository,
	provOrderRepo repository.ProvisionerOrderRepository,
	unitRepo repository.ProvisionedUnitRepository,
	provisioner services.ProvisionerClient,
	delivery DeliveryFlow,
	tx repository.Transactor,
	auditRepo repository.AuditLogRepository,
	failureRepo repository.FailureRecordRepository,
	copyAddresses []string,
	logger *log.Logger,
) ProvisioningFlow {
	return &ProvisioningFlowImpl{
		orderRepo:     orderRepo,
		provOrderRepo: provOrderRepo,
		unitRepo:      unitRepo,
		provisioner:   provisioner,
		delivery:      delivery,
		tx:            tx,
		copyAddresses: copyAddresses,
		recorder: recorder{
			auditRepo:   auditRepo,
			failureRepo: failureRepo,
			logger:      loggerOrDefault(logger, "provisioning"),
		},
	}
}

// Execute drives an order from received (or failed) to completed, failed or invalid.
// Only transport failures return an error wrapping ErrRetryable; every other outcome is final for this run.
func (f *ProvisioningFlowImpl) Execute(ctx context.Context, orderID uint) error {
	start := time.Now()
	result := "skipped"
	defer func() {
		metrics.ProvisioningAttemptsTotal.WithLabelValues(result).Inc()
		metrics.ProvisioningDuration.Observe(time.Since(start).Seconds())
	}()

	order, err := f.orderRepo.ByID(ctx, orderID)
	if err != nil {
		result = "error"
		return fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if order == nil {
		f.logger.Printf("order %d not found, nothing to provision", orderID)
		return nil
	}
	if !order.IsClaimable() {
		return nil
	}

	if order.ResolvedPackageRef == "" || order.Quantity <= 0 {
		result = "invalid"
		return f.markInvalid(ctx, order)
	}

	// Only one run may hold the order; a second run would buy the SIMs twice
	claimed, err := f.orderRepo.ClaimForProcessing(ctx, order.ID)
	if err != nil {
		result = "error"
		return fmt.Errorf("failed to mark order %d processing: %w", order.ID, err)
	}
	if !claimed {
		f.logger.Printf("order %d is already being provisioned or was finished by another run", order.ID)
		return nil
	}
	order, err = f.orderRepo.ByID(ctx, orderID)
	if err != nil || order == nil {
		result = "error"
		return fmt.Errorf("failed to reload claimed order %d: %v", orderID, err)
	}
	f.audit(ctx, &order.ID, models.AuditActionProvisioningStarted,
		fmt.Sprintf("Provisioning attempt %d for %s x%d", order.Attempts, order.ResolvedPackageRef, order.Quantity), true, nil, nil)

	payload, err := f.provisioner.CreateProvisioningOrder(ctx, services.ProvisioningRequest{
		PackageRef:   order.ResolvedPackageRef,
		Quantity:     order.Quantity,
		BuyerContact: order.BuyerContact,
	})
	if err != nil {
		if services.IsTransportError(err) {
			result = "retryable"
		} else {
			result = "failed"
		}
		return f.markFailed(ctx, order, err)
	}

	provOrder := buildProvisionerOrder(payload, order, f.copyAddresses)
	err = f.withTransaction(ctx, func(txCtx context.Context) error {
		if err := f.provOrderRepo.Save(txCtx, provOrder); err != nil {
			return err
		}
		order.ProvisionerOrderID = &provOrder.ID
		order.Status = models.LocalOrderStatusCompleted
		order.ErrorDetail = nil
		return f.orderRepo.Update(txCtx, order)
	})
	if err != nil {
		// The provider has already fulfilled the order; a rerun would buy twice
		result = "failed"
		order.ProvisionerOrderID = nil
		f.failure(ctx, models.FailureSourceExecutor,
			fmt.Sprintf("provider order %s created but not stored: %v", provOrder.ProviderOrderID, err), &order.ID, payload.Raw)
		return f.storeFailure(ctx, order, fmt.Sprintf("provider order %s not stored: %v", provOrder.ProviderOrderID, err))
	}
	result = "completed"

	units := buildProvisionedUnits(payload, provOrder)
	if err := f.unitRepo.SaveBatch(ctx, units); err != nil {
		f.failure(ctx, models.FailureSourceExecutor,
			fmt.Sprintf("failed to store %d units of provider order %s: %v", len(units), provOrder.ProviderOrderID, err), &order.ID, payload.Raw)
	}

	f.audit(ctx, &order.ID, models.AuditActionProvisioningCompleted,
		fmt.Sprintf("Provider order %s (%s) created with %d SIMs", provOrder.ProviderOrderID, provOrder.Code, len(units)), true, nil, nil)

	if f.delivery != nil {
		if err := f.delivery.ConfirmOrder(ctx, order); err != nil {
			f.logger.Printf("order %d completed, delivery confirmation deferred: %v", order.ID, err)
		}
	}
	return nil
}

func (f *ProvisioningFlowImpl) withTransaction(ctx context.Context, fn func(context.Context) error) error {
	if f.tx == nil {
		return fn(ctx)
	}
	return f.tx.WithTransaction(ctx, fn)
}

func (f *ProvisioningFlowImpl) markInvalid(ctx context.Context, order *models.LocalOrder) error {
	detail := fmt.Sprintf("order cannot be provisioned: package %q quantity %d", order.ResolvedPackageRef, order.Quantity)
	order.Status = models.LocalOrderStatusInvalid
	order.ErrorDetail = &detail
	if err := f.orderRepo.Update(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order %d invalid: %w", order.ID, err)
	}
	f.failure(ctx, models.FailureSourceExecutor, detail, &order.ID, nil)
	f.audit(ctx, &order.ID, models.AuditActionOrderInvalid, "Order marked invalid", false, &detail, nil)
	return nil
}

// markFailed records a rejected or unreachable provisioning call
func (f *ProvisioningFlowImpl) markFailed(ctx context.Context, order *models.LocalOrder, cause error) error {
	var payload any
	if remote, ok := services.AsRemoteError(cause); ok {
		payload = map[string]any{"status": remote.Status, "body": remote.Body}
	}
	f.failure(ctx, models.FailureSourceProvisioner, cause.Error(), &order.ID, payload)

	if err := f.storeFailure(ctx, order, cause.Error()); err != nil {
		return err
	}
	if services.IsTransportError(cause) {
		return fmt.Errorf("%w: order %d: %v", ErrRetryable, order.ID, cause)
	}
	return nil
}

func (f *ProvisioningFlowImpl) storeFailure(ctx context.Context, order *models.LocalOrder, detail string) error {
	order.Status = models.LocalOrderStatusFailed
	order.ErrorDetail = &detail
	if err := f.orderRepo.Update(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order %d failed: %w", order.ID, err)
	}
	f.audit(ctx, &order.ID, models.AuditActionProvisioningFailed,
		fmt.Sprintf("Provisioning attempt %d failed", order.Attempts), false, &detail, nil)
	return nil
}

func buildProvisionerOrder(p *services.ProviderOrderPayload, order *models.LocalOrder, copyAddresses []string) *models.ProvisionerOrder {
	quantity := order.Quantity
	if q, err := p.Quantity.Int64(); err == nil && q > 0 {
		quantity = int(q)
	}
	packageRef := p.PackageID
	if packageRef == "" {
		packageRef = order.ResolvedPackageRef
	}
	raw := p.Raw
	if len(raw) == 0 || !json.Valid(raw) {
		raw = json.RawMessage("{}")
	}
	var guides json.RawMessage
	if len(p.InstallationGuides) > 0 && json.Valid(p.InstallationGuides) {
		guides = p.InstallationGuides
	}
	var copies pq.StringArray
	if order.BuyerContact != "" && len(copyAddresses) > 0 {
		copies = pq.StringArray(copyAddresses)
	}

	return &models.ProvisionerOrder{
		ProviderOrderID:    p.ID.String(),
		Code:               p.Code,
		PackageRef:         packageRef,
		Quantity:           quantity,
		Price:              p.Price.String(),
		NetPrice:           p.NetPrice.String(),
		Currency:           p.Currency,
		Type:               p.Type,
		Description:        p.Description,
		EsimType:           p.EsimType,
		Validity:           p.Validity.String(),
		PackageName:        p.Package,
		DataAmount:         p.Data,
		ManualInstallation: p.ManualInstallation,
		QRCodeInstallation: p.QRCodeInstallation,
		InstallationGuides: guides,
		CopyAddresses:      copies,
		ProviderCreatedAt:  p.CreatedAtTime(),
		RawPayload:         raw,
		CreatedAt:          utils.UTCNow(),
	}
}

func buildProvisionedUnits(p *services.ProviderOrderPayload, provOrder *models.ProvisionerOrder) []*models.ProvisionedUnit {
	units := make([]*models.ProvisionedUnit, 0, len(p.Sims))
	for i, sim := range p.Sims {
		unitID := sim.ID.String()
		if unitID == "" {
			unitID = fmt.Sprintf("%s-%d", provOrder.ProviderOrderID, i+1)
		}
		activation, _ := json.Marshal(models.ActivationPayload{
			LPA:                        sim.LPA,
			QRCode:                     sim.QRCode,
			QRCodeURL:                  sim.QRCodeURL,
			DirectAppleInstallationURL: sim.DirectAppleInstallationURL,
			APNType:                    sim.APNType,
			APNValue:                   sim.APNValue,
			IsRoaming:                  sim.IsRoaming,
		})
		raw := sim.Raw
		if len(raw) == 0 || !json.Valid(raw) {
			raw = json.RawMessage("{}")
		}
		units = append(units, &models.ProvisionedUnit{
			UnitID:             unitID,
			ProvisionerOrderID: provOrder.ID,
			ICCID:              sim.ICCID,
			ActivationPayload:  activation,
			RawPayload:         raw,
		})
	}
	return units
}
