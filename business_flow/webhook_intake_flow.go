package businessflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/app/metrics"
	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
)

// ProvisioningEnqueuer hands a materialized order to the provisioning workers
type ProvisioningEnqueuer interface {
	Enqueue(ctx context.Context, orderID uint) error
}

// IntakeOutcome is the tagged result of handling one notification
type IntakeOutcome string

const (
	IntakeProcessed IntakeOutcome = "processed"
	IntakeIgnored   IntakeOutcome = "ignored"
	IntakeFailed    IntakeOutcome = "failed"
)

// IntakeResult describes what happened to a notification.
// Created is false when the order already existed.
type IntakeResult struct {
	Outcome IntakeOutcome
	Order   *models.LocalOrder
	Created bool
	Reason  string
}

// WebhookIntakeFlow turns storefront payment notifications into local orders
type WebhookIntakeFlow interface {
	HandleNotification(ctx context.Context, req *dto.StorefrontNotificationRequest, metadata *ClientMetadata) (*IntakeResult, error)
}

type WebhookIntakeFlowImpl struct {
	productRepo repository.StorefrontProductRepository
	orderRepo   repository.LocalOrderRepository
	resolver    VariantResolver
	storefront  services.StorefrontClient
	enqueuer    ProvisioningEnqueuer
	cfg         config.StorefrontConfig
	recorder
}

func NewWebhookIntakeFlow(
	productRepo repository.StorefrontProductRepository,
	orderRepo repository.LocalOrderRepository,
	resolver VariantResolver,
	storefront services.StorefrontClient,
	enqueuer ProvisioningEnqueuer,
	auditRepo repository.AuditLogRepository,
	failureRepo repository.FailureRecordRepository,
	cfg config.StorefrontConfig,
	logger *log.Logger,
) WebhookIntakeFlow {
	return &WebhookIntakeFlowImpl{
		productRepo: productRepo,
		orderRepo:   orderRepo,
		resolver:    resolver,
		storefront:  storefront,
		enqueuer:    enqueuer,
		cfg:         cfg,
		recorder: recorder{
			auditRepo:   auditRepo,
			failureRepo: failureRepo,
			logger:      loggerOrDefault(logger, "intake"),
		},
	}
}

// HandleNotification materializes at most one local order per storefront order id.
// Skip conditions yield IntakeIgnored with a nil error. Any returned error means the sender should retry.
func (f *WebhookIntakeFlowImpl) HandleNotification(ctx context.Context, req *dto.StorefrontNotificationRequest, metadata *ClientMetadata) (result *IntakeResult, err error) {
	defer func() {
		outcome := IntakeFailed
		if result != nil {
			outcome = result.Outcome
		}
		metrics.WebhookNotificationsTotal.WithLabelValues(string(outcome)).Inc()
	}()

	if req == nil {
		return failed(ErrNotificationRequired), ErrNotificationRequired
	}
	externalID := strings.TrimSpace(req.InvoiceID.String())
	productRef, perr := req.ProductID.Int64()
	if externalID == "" || perr != nil {
		err := NewBusinessError("INVALID_NOTIFICATION", "notification has no usable order or product id", ErrNotificationRequired)
		return failed(err), err
	}

	if err := f.verifySignature(req); err != nil {
		f.failure(ctx, models.FailureSourceIntake, err.Error(), nil, req)
		return failed(err), err
	}

	product, err := f.productRepo.ByIDGoods(ctx, productRef)
	if err != nil {
		return failed(err), fmt.Errorf("failed to look up product %d: %w", productRef, err)
	}
	if product == nil {
		return f.ignore(ctx, externalID, NewBusinessErrorf("UNKNOWN_PRODUCT", "product %d", ErrUnknownProduct, productRef), metadata), nil
	}

	// Fast path: repeated notifications never reach the storefront again
	existing, err := f.orderRepo.ByExternalOrderID(ctx, externalID)
	if err != nil {
		return failed(err), fmt.Errorf("failed to look up order %s: %w", externalID, err)
	}
	if existing != nil {
		f.audit(ctx, &existing.ID, models.AuditActionOrderDuplicate, fmt.Sprintf("Repeated notification for order %s", externalID), true, nil, metadata)
		return &IntakeResult{Outcome: IntakeProcessed, Order: existing, Created: false}, nil
	}

	info, err := f.storefront.FetchPurchaseInfo(ctx, externalID)
	if err != nil {
		f.failure(ctx, models.FailureSourceStorefront, fmt.Sprintf("purchase info for %s: %v", externalID, err), nil, req)
		return failed(err), fmt.Errorf("failed to fetch purchase info for %s: %w", externalID, err)
	}

	if info.ProductID != productRef {
		err := NewBusinessErrorf("PRODUCT_MISMATCH", "notified product %d, purchased product %d", ErrProductMismatch, productRef, info.ProductID)
		return f.ignore(ctx, externalID, err, metadata), nil
	}

	if f.cfg.RequirePaidState && !slices.Contains(f.acceptedStates(), info.InvoiceState) {
		err := NewBusinessErrorf("PURCHASE_NOT_PAID", "invoice state %d", ErrPurchaseNotPaid, info.InvoiceState)
		return f.ignore(ctx, externalID, err, metadata), nil
	}

	resolved, err := f.resolver.Resolve(ctx, productRef, info.Options)
	if err != nil {
		if IsNoMatch(err) {
			return f.ignore(ctx, externalID, err, metadata), nil
		}
		return failed(err), err
	}
	if len(resolved) > 1 {
		f.logger.Printf("order %s resolved to %d packages, provisioning only %s", externalID, len(resolved), resolved[0].PackageRef)
	}
	target := resolved[0]

	transactionCode := firstNonEmpty(info.UniqueCode, req.UniqueCode)
	if transactionCode == "" {
		err := NewBusinessErrorf("TRANSACTION_CODE_REQUIRED", "order %s", ErrTransactionCodeRequired, externalID)
		f.failure(ctx, models.FailureSourceIntake, err.Error(), nil, info.Raw)
		return failed(err), err
	}

	order := &models.LocalOrder{
		ExternalOrderID:    externalID,
		TransactionCode:    transactionCode,
		ProductRef:         productRef,
		VariantRef:         target.VariantRef,
		ResolvedPackageRef: target.PackageRef,
		Quantity:           info.Quantity,
		BuyerContact:       firstNonEmpty(info.BuyerEmail, req.Email),
		PurchaseAmount:     firstNonEmpty(info.Amount, req.Amount.String()),
		PurchaseCurrency:   firstNonEmpty(info.Currency, req.Currency),
		PurchaseTimestamp:  utils.ParseProviderTimePtr(firstNonEmpty(info.PurchaseDate, req.Date)),
		Status:             models.LocalOrderStatusReceived,
		Metadata:           intakeMetadata(req, info),
	}
	if order.Quantity <= 0 {
		order.Quantity = utils.DefaultQuantity
	}

	if err := f.orderRepo.Save(ctx, order); err != nil {
		if !repository.IsDuplicateKey(err) {
			return failed(err), fmt.Errorf("failed to create order %s: %w", externalID, err)
		}
		// A concurrent notification won the insert
		winner, lerr := f.orderRepo.ByExternalOrderID(ctx, externalID)
		if lerr != nil || winner == nil {
			return failed(err), fmt.Errorf("order %s collided but could not be reloaded: %w", externalID, err)
		}
		return &IntakeResult{Outcome: IntakeProcessed, Order: winner, Created: false}, nil
	}

	f.audit(ctx, &order.ID, models.AuditActionOrderMaterialized,
		fmt.Sprintf("Order %s materialized for package %s x%d", externalID, order.ResolvedPackageRef, order.Quantity), true, nil, metadata)

	if f.enqueuer != nil {
		if err := f.enqueuer.Enqueue(ctx, order.ID); err != nil {
			// The recovery sweep re-enqueues orders left in received
			f.logger.Printf("failed to enqueue order %d: %v", order.ID, err)
		}
	}

	return &IntakeResult{Outcome: IntakeProcessed, Order: order, Created: true}, nil
}

func (f *WebhookIntakeFlowImpl) ignore(ctx context.Context, externalID string, reason error, metadata *ClientMetadata) *IntakeResult {
	f.logger.Printf("ignoring notification for order %s: %v", externalID, reason)
	f.audit(ctx, nil, models.AuditActionNotificationIgnored, fmt.Sprintf("Notification for order %s ignored", externalID), true, errString(reason), metadata)
	return &IntakeResult{Outcome: IntakeIgnored, Reason: reason.Error()}
}

func (f *WebhookIntakeFlowImpl) acceptedStates() []int {
	if len(f.cfg.AcceptedStates) == 0 {
		return []int{3, 4}
	}
	return f.cfg.AcceptedStates
}

// verifySignature checks sha256(id_i;id_d;amount;curr;email;date;secret) when a secret is configured
func (f *WebhookIntakeFlowImpl) verifySignature(req *dto.StorefrontNotificationRequest) error {
	if f.cfg.NotifySecret == "" {
		return nil
	}
	if req.Signature == "" {
		return NewBusinessError("INVALID_SIGNATURE", "notification is not signed", ErrInvalidSignature)
	}
	expected := NotificationSignature(req, f.cfg.NotifySecret)
	if !strings.EqualFold(expected, strings.TrimSpace(req.Signature)) {
		return NewBusinessError("INVALID_SIGNATURE", "notification signature mismatch", ErrInvalidSignature)
	}
	return nil
}

// NotificationSignature computes the hex signature the storefront attaches to a notification
func NotificationSignature(req *dto.StorefrontNotificationRequest, secret string) string {
	parts := []string{
		req.InvoiceID.String(),
		req.ProductID.String(),
		req.Amount.String(),
		req.Currency,
		req.Email,
		req.Date,
		secret,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}

func intakeMetadata(req *dto.StorefrontNotificationRequest, info *services.PurchaseInfo) json.RawMessage {
	payload := map[string]any{
		"notification":  req,
		"invoice_state": info.InvoiceState,
	}
	if len(info.Raw) > 0 && json.Valid(info.Raw) {
		payload["purchase"] = info.Raw
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func failed(err error) *IntakeResult {
	return &IntakeResult{Outcome: IntakeFailed, Reason: err.Error()}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func loggerOrDefault(logger *log.Logger, component string) *log.Logger {
	if logger != nil {
		return logger
	}
	return log.New(log.Writer(), component+": ", log.LstdFlags)
}
