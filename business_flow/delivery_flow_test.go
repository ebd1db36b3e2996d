package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelivery_Confirm(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})

	res, err := p.delivery.Confirm(context.Background(), " ABC123 ")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", res.TransactionCode)
	assert.Equal(t, []string{"ABC123"}, p.storefront.confirmed)

	_, err = p.delivery.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, ErrTransactionCodeRequired)

	p.storefront.confirmErr = &services.TransportError{Provider: "digiseller", Op: "deliver", Err: errors.New("timeout")}
	_, err = p.delivery.Confirm(context.Background(), "ABC123")
	assert.True(t, services.IsTransportError(err))
}

func TestDelivery_ConfirmOrderRequiresCompleted(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	order := &models.LocalOrder{ID: 1, TransactionCode: "X", Status: models.LocalOrderStatusProcessing}

	err := p.delivery.ConfirmOrder(context.Background(), order)
	assert.True(t, IsOrderNotCompleted(err))
	assert.Empty(t, p.storefront.confirmed)

	assert.ErrorIs(t, p.delivery.ConfirmOrder(context.Background(), nil), ErrOrderNotFound)
}

func TestDelivery_ConfirmOrderCountsFailures(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	ctx := context.Background()
	p.storefront.confirmErr = &services.RemoteError{Provider: services.ProviderStorefront, Status: 404, Body: "unknown code"}
	order := materialize(t, p)
	require.NoError(t, p.executor.Execute(ctx, order.ID))

	stored, _ := p.orders.ByID(ctx, order.ID)
	assert.Equal(t, 1, stored.ConfirmAttempts)
	require.NotNil(t, stored.LastConfirmAttemptAt)

	require.Error(t, p.delivery.ConfirmOrder(ctx, stored))
	assert.Equal(t, 2, stored.ConfirmAttempts)
	stored, _ = p.orders.ByID(ctx, order.ID)
	assert.Equal(t, 2, stored.ConfirmAttempts)
	assert.Equal(t, models.LocalOrderStatusCompleted, stored.Status)

	future := time.Now().Add(time.Hour)
	pending, err := p.orders.ListUnconfirmed(ctx, future, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "bound reached")
	pending, err = p.orders.ListUnconfirmed(ctx, future, 3, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	p.storefront.confirmErr = nil
	require.NoError(t, p.delivery.ConfirmOrder(ctx, stored))
	stored, _ = p.orders.ByID(ctx, order.ID)
	assert.NotNil(t, stored.DeliveryConfirmedAt)
	assert.Equal(t, 2, stored.ConfirmAttempts)
	assert.Len(t, p.failures.bySource(models.FailureSourceDelivery), 2)
}

func TestBuyerDelivery_Lookup(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := NewBuyerDeliveryFlow(p.orders)
	order := materialize(t, p)

	res, err := flow.Lookup(context.Background(), testUniqueCode)
	require.NoError(t, err)
	assert.Equal(t, "received", res.Status)
	assert.False(t, res.Ready)
	assert.Empty(t, res.Sims)

	require.NoError(t, p.executor.Execute(context.Background(), order.ID))

	res, err = flow.Lookup(context.Background(), testUniqueCode)
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	assert.True(t, res.Ready)
	require.Len(t, res.Sims, 1)
	assert.Equal(t, "8901000000000000001", res.Sims[0].ICCID)
	assert.Equal(t, "LPA:1$lpa.example.com$X", res.Sims[0].QRCode)

	_, err = flow.Lookup(context.Background(), "unknown")
	assert.True(t, IsOrderNotFound(err))

	_, err = flow.Lookup(context.Background(), "  ")
	assert.True(t, IsValidationError(err))
}

func TestVariantResolver(t *testing.T) {
	products := newFakeProductRepo()
	variants := newFakeVariantRepo(products)
	product := products.add(testProductRef, "eSIM")
	variants.add(product, 5, "7days-1gb")
	variants.add(product, 6, "")
	variants.add(product, 7, "30days-10gb")
	resolver := NewVariantResolver(variants)

	tests := []struct {
		name       string
		candidates []int64
		want       []string
		noMatch    bool
	}{
		{"single", []int64{5}, []string{"7days-1gb"}, false},
		{"keeps order and drops unmapped", []int64{7, 6, 42, 5}, []string{"30days-10gb", "7days-1gb"}, false},
		{"package-less only", []int64{6}, nil, true},
		{"no candidates", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := make([]services.VariantCandidate, 0, len(tt.candidates))
			for _, id := range tt.candidates {
				candidates = append(candidates, services.VariantCandidate{Identifier: id})
			}

			got, err := resolver.Resolve(context.Background(), testProductRef, candidates)
			if tt.noMatch {
				assert.True(t, IsNoMatch(err))
				assert.True(t, IsSkipCondition(err))
				return
			}
			require.NoError(t, err)
			refs := make([]string, 0, len(got))
			for _, r := range got {
				refs = append(refs, r.PackageRef)
			}
			assert.Equal(t, tt.want, refs)
		})
	}

	variants.err = errors.New("db down")
	_, err := resolver.Resolve(context.Background(), testProductRef, []services.VariantCandidate{{Identifier: 5}})
	require.Error(t, err)
	assert.False(t, IsNoMatch(err))
}
