package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookIntake_MaterializesOrder(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})

	res, err := p.intake.HandleNotification(context.Background(), sampleNotification(), NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, IntakeProcessed, res.Outcome)
	assert.True(t, res.Created)

	order := p.orders.only(t)
	assert.Equal(t, testOrderID, order.ExternalOrderID)
	assert.Equal(t, testUniqueCode, order.TransactionCode)
	assert.Equal(t, testProductRef, order.ProductRef)
	assert.Equal(t, testVariant, order.VariantRef)
	assert.Equal(t, testPackageRef, order.ResolvedPackageRef)
	assert.Equal(t, 1, order.Quantity)
	assert.Equal(t, "buyer@example.com", order.BuyerContact)
	assert.Equal(t, "9.99", order.PurchaseAmount)
	assert.Equal(t, models.LocalOrderStatusReceived, order.Status)
	require.NotNil(t, order.PurchaseTimestamp)
	assert.Equal(t, 2024, order.PurchaseTimestamp.Year())

	assert.Equal(t, []uint{order.ID}, p.enqueuer.enqueued())
	assert.Contains(t, p.audits.actions(), models.AuditActionOrderMaterialized)
}

func TestWebhookIntake_Idempotent(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	ctx := context.Background()

	first, err := p.intake.HandleNotification(ctx, sampleNotification(), nil)
	require.NoError(t, err)
	second, err := p.intake.HandleNotification(ctx, sampleNotification(), nil)
	require.NoError(t, err)

	assert.Equal(t, IntakeProcessed, second.Outcome)
	assert.False(t, second.Created)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, p.orders.len())
	assert.Equal(t, 1, p.storefront.purchaseCalls, "repeated notification must not fetch purchase info again")
	assert.Len(t, p.enqueuer.enqueued(), 1)

	// Both deliveries run the executor: the second run is a no-op
	require.NoError(t, p.executor.Execute(ctx, first.Order.ID))
	require.NoError(t, p.executor.Execute(ctx, second.Order.ID))
	assert.Equal(t, 1, p.provOrders.len())
	assert.Equal(t, 1, p.provisioner.calls())
}

func TestWebhookIntake_ConcurrentNotifications(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})

	const n = 8
	var wg sync.WaitGroup
	ids := make([]uint, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.intake.HandleNotification(context.Background(), sampleNotification(), nil)
			errs[i] = err
			if res != nil && res.Order != nil {
				ids[i] = res.Order.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, p.orders.len())
}

func TestWebhookIntake_SkipConditions(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorefrontConfig
		mutate  func(p *pipeline)
		reason  error
		fetches int
	}{
		{
			name:    "unknown product",
			mutate:  func(p *pipeline) { p.storefront.purchases["2002"] = samplePurchase() },
			reason:  ErrUnknownProduct,
			fetches: 0,
		},
		{
			name: "product mismatch",
			mutate: func(p *pipeline) {
				p.storefront.purchases[testOrderID].ProductID = 78
			},
			reason:  ErrProductMismatch,
			fetches: 1,
		},
		{
			name: "no mapped variant",
			mutate: func(p *pipeline) {
				p.storefront.purchases[testOrderID].Options = []services.VariantCandidate{{Identifier: 6}, {Identifier: 99}}
			},
			reason:  ErrNoMatch,
			fetches: 1,
		},
		{
			name: "unpaid invoice",
			cfg:  config.StorefrontConfig{RequirePaidState: true},
			mutate: func(p *pipeline) {
				p.storefront.purchases[testOrderID].InvoiceState = 1
			},
			reason:  ErrPurchaseNotPaid,
			fetches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.cfg)
			tt.mutate(p)

			req := sampleNotification()
			if errors.Is(tt.reason, ErrUnknownProduct) {
				req.ProductID = json.Number("12345")
			}

			res, err := p.intake.HandleNotification(context.Background(), req, nil)
			require.NoError(t, err)
			assert.Equal(t, IntakeIgnored, res.Outcome)
			assert.Contains(t, res.Reason, tt.reason.Error())
			assert.Equal(t, 0, p.orders.len())
			assert.Equal(t, 0, p.failures.len(), "skip conditions are not faults")
			assert.Equal(t, tt.fetches, p.storefront.purchaseCalls)
			assert.Empty(t, p.enqueuer.enqueued())
		})
	}
}

func TestWebhookIntake_PaidStateAccepted(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{RequirePaidState: true, AcceptedStates: []int{4}})
	p.storefront.purchases[testOrderID].InvoiceState = 4

	res, err := p.intake.HandleNotification(context.Background(), sampleNotification(), nil)
	require.NoError(t, err)
	assert.Equal(t, IntakeProcessed, res.Outcome)
}

func TestWebhookIntake_PurchaseInfoTimeout(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	p.storefront.purchaseErr = &services.TransportError{Provider: "digiseller", Op: "purchase info", Err: context.DeadlineExceeded}

	res, err := p.intake.HandleNotification(context.Background(), sampleNotification(), nil)
	require.Error(t, err)
	assert.True(t, services.IsTransportError(err))
	assert.Equal(t, IntakeFailed, res.Outcome)
	assert.Equal(t, 0, p.orders.len())
	assert.Len(t, p.failures.bySource(models.FailureSourceStorefront), 1)
}

func TestWebhookIntake_FirstResolvedVariantWins(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	product, _ := p.products.ByIDGoods(context.Background(), testProductRef)
	p.variants.add(product, 7, "30days-10gb")
	p.storefront.purchases[testOrderID].Options = []services.VariantCandidate{
		{Identifier: 6}, {Identifier: 7}, {Identifier: testVariant},
	}

	_, err := p.intake.HandleNotification(context.Background(), sampleNotification(), nil)
	require.NoError(t, err)
	order := p.orders.only(t)
	assert.Equal(t, "30days-10gb", order.ResolvedPackageRef)
	assert.Equal(t, int64(7), order.VariantRef)
}

func TestWebhookIntake_EnqueueFailureTolerated(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	p.enqueuer.err = errors.New("queue full")

	res, err := p.intake.HandleNotification(context.Background(), sampleNotification(), nil)
	require.NoError(t, err)
	assert.Equal(t, IntakeProcessed, res.Outcome)
	assert.Equal(t, models.LocalOrderStatusReceived, p.orders.only(t).Status)
}

func TestWebhookIntake_MissingTransactionCode(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	p.storefront.purchases[testOrderID].UniqueCode = ""
	req := sampleNotification()
	req.UniqueCode = ""

	res, err := p.intake.HandleNotification(context.Background(), req, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionCodeRequired)
	assert.Equal(t, IntakeFailed, res.Outcome)
	assert.Equal(t, 0, p.orders.len())
}

func TestWebhookIntake_Signature(t *testing.T) {
	const secret = "s3cret"
	cfg := config.StorefrontConfig{NotifySecret: secret}

	t.Run("valid", func(t *testing.T) {
		p := newPipeline(t, cfg)
		req := sampleNotification()
		req.Signature = NotificationSignature(req, secret)

		res, err := p.intake.HandleNotification(context.Background(), req, nil)
		require.NoError(t, err)
		assert.Equal(t, IntakeProcessed, res.Outcome)
	})

	t.Run("uppercase hex accepted", func(t *testing.T) {
		p := newPipeline(t, cfg)
		req := sampleNotification()
		sig := []byte(NotificationSignature(req, secret))
		for i, c := range sig {
			if c >= 'a' && c <= 'f' {
				sig[i] = c - 32
			}
		}
		req.Signature = string(sig)

		_, err := p.intake.HandleNotification(context.Background(), req, nil)
		require.NoError(t, err)
	})

	for name, sig := range map[string]string{"missing": "", "wrong": "deadbeef"} {
		t.Run(name, func(t *testing.T) {
			p := newPipeline(t, cfg)
			req := sampleNotification()
			req.Signature = sig

			res, err := p.intake.HandleNotification(context.Background(), req, nil)
			require.Error(t, err)
			assert.True(t, IsInvalidSignature(err))
			assert.Equal(t, IntakeFailed, res.Outcome)
			assert.Equal(t, 0, p.storefront.purchaseCalls)
			assert.Equal(t, 0, p.orders.len())
		})
	}
}

func TestWebhookIntake_InvalidNotification(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})

	_, err := p.intake.HandleNotification(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNotificationRequired)

	req := sampleNotification()
	req.ProductID = json.Number("abc")
	_, err = p.intake.HandleNotification(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrNotificationRequired)
	assert.True(t, IsValidationError(err))
}
