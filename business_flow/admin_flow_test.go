package businessflow

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

func newAdminOrderFlow(p *pipeline) AdminOrderFlow {
	return NewAdminOrderFlow(p.orders, p.delivery, p.enqueuer, p.audits, p.failures, log.New(io.Discard, "", 0))
}

func seedOrders(t *testing.T, p *pipeline, statuses ...models.LocalOrderStatus) []*models.LocalOrder {
	t.Helper()
	out := make([]*models.LocalOrder, 0, len(statuses))
	for i, status := range statuses {
		code := string(rune('a' + i))
		order := &models.LocalOrder{
			ExternalOrderID:    "ext-" + code,
			TransactionCode:    "code-" + code,
			ProductRef:         testProductRef,
			ResolvedPackageRef: testPackageRef,
			Quantity:           1,
			Status:             status,
			CreatedAt:          utils.UTCNow(),
		}
		require.NoError(t, p.orders.Save(context.Background(), order))
		out = append(out, order)
	}
	return out
}

func TestAdminOrders_List(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := newAdminOrderFlow(p)
	seedOrders(t, p,
		models.LocalOrderStatusReceived,
		models.LocalOrderStatusFailed,
		models.LocalOrderStatusCompleted,
		models.LocalOrderStatusFailed,
	)

	res, err := flow.ListOrders(context.Background(), dto.ListOrdersRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Pagination.Total)
	assert.Equal(t, 1, res.Pagination.TotalPages)
	require.Len(t, res.Items, 4)
	assert.Greater(t, res.Items[0].ID, res.Items[1].ID, "newest first")

	failed := "failed"
	res, err = flow.ListOrders(context.Background(), dto.ListOrdersRequest{Page: 1, Limit: 1, Filter: dto.ListOrdersFilter{Status: &failed}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Pagination.Total)
	assert.Equal(t, 2, res.Pagination.TotalPages)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "failed", res.Items[0].Status)
}

func TestAdminOrders_ListValidation(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := newAdminOrderFlow(p)
	bogus := "shipped"
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  dto.ListOrdersRequest
		want error
	}{
		{"negative page", dto.ListOrdersRequest{Page: -1}, ErrInvalidPage},
		{"limit too large", dto.ListOrdersRequest{Page: 1, Limit: utils.MaxPageSize + 1}, ErrInvalidPageSize},
		{"unknown status", dto.ListOrdersRequest{Filter: dto.ListOrdersFilter{Status: &bogus}}, ErrInvalidStatus},
		{"inverted dates", dto.ListOrdersRequest{Filter: dto.ListOrdersFilter{StartDate: &start, EndDate: &end}}, ErrStartDateAfterEndDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.ListOrders(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestAdminOrders_GetOrderWithDetails(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	order := materialize(t, p)
	require.NoError(t, p.executor.Execute(context.Background(), order.ID))
	flow := newAdminOrderFlow(p)

	res, err := flow.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Order.Status)
	require.NotNil(t, res.ProvisionerOrder)
	assert.Equal(t, "PX1", res.ProvisionerOrder.ProviderOrderID)
	require.Len(t, res.Units, 1)
	assert.Equal(t, "8901000000000000001", res.Units[0].ICCID)
	assert.NotEmpty(t, res.AuditTrail)

	_, err = flow.GetOrder(context.Background(), 999)
	assert.True(t, IsOrderNotFound(err))
}

func TestAdminOrders_Retry(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := newAdminOrderFlow(p)
	orders := seedOrders(t, p, models.LocalOrderStatusFailed, models.LocalOrderStatusCompleted, models.LocalOrderStatusReceived)

	res, err := flow.RetryOrder(context.Background(), orders[0].ID, nil)
	require.NoError(t, err)
	assert.True(t, res.Enqueued)
	assert.Equal(t, "failed", res.Status)

	_, err = flow.RetryOrder(context.Background(), orders[1].ID, nil)
	assert.True(t, IsOrderNotRetryable(err))

	_, err = flow.RetryOrder(context.Background(), orders[2].ID, nil)
	require.NoError(t, err)

	_, err = flow.RetryOrder(context.Background(), 999, nil)
	assert.True(t, IsOrderNotFound(err))

	assert.Equal(t, []uint{orders[0].ID, orders[2].ID}, p.enqueuer.enqueued())
}

func TestAdminOrders_RetryEnqueueFailure(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := newAdminOrderFlow(p)
	orders := seedOrders(t, p, models.LocalOrderStatusFailed)
	p.enqueuer.err = errors.New("redis down")

	_, err := flow.RetryOrder(context.Background(), orders[0].ID, nil)
	require.Error(t, err)
	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "RETRY_ORDER_FAILED", be.Code)
}

func TestAdminOrders_ConfirmDelivery(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := newAdminOrderFlow(p)
	orders := seedOrders(t, p, models.LocalOrderStatusCompleted, models.LocalOrderStatusFailed)

	res, err := flow.ConfirmDelivery(context.Background(), orders[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "code-a", res.TransactionCode)
	assert.False(t, res.ConfirmedAt.IsZero())

	stored, _ := p.orders.ByID(context.Background(), orders[0].ID)
	assert.NotNil(t, stored.DeliveryConfirmedAt)

	_, err = flow.ConfirmDelivery(context.Background(), orders[1].ID, nil)
	assert.True(t, IsOrderNotCompleted(err))

	p.storefront.confirmErr = &services.RemoteError{Provider: "digiseller", Status: 400, Body: "bad code"}
	_, err = flow.ConfirmDelivery(context.Background(), orders[0].ID, nil)
	require.Error(t, err)
	_, ok := services.AsRemoteError(err)
	assert.True(t, ok)
}

func TestAdminOrders_Export(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := newAdminOrderFlow(p)
	seedOrders(t, p, models.LocalOrderStatusCompleted, models.LocalOrderStatusFailed)

	res, err := flow.ExportOrders(context.Background(), dto.ListOrdersFilter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Contains(t, res.Filename, ".xlsx")

	xl, err := excelize.OpenReader(bytes.NewReader(res.Content))
	require.NoError(t, err)
	defer func() { _ = xl.Close() }()

	rows, err := xl.GetRows("orders")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "external_order_id", rows[0][1])
	assert.Equal(t, "ext-a", rows[1][1])
	assert.Equal(t, "failed", rows[2][10])
	assert.Contains(t, p.audits.actions(), models.AuditActionOrdersExported)
}

func TestAdminOrders_ListFailures(t *testing.T) {
	p := newPipeline(t, config.StorefrontConfig{})
	flow := newAdminOrderFlow(p)
	p.provisioner.err = &services.RemoteError{Provider: "airalo", Status: 422, Body: `{"code":1}`}
	order := materialize(t, p)
	require.NoError(t, p.executor.Execute(context.Background(), order.ID))

	source := models.FailureSourceProvisioner
	res, err := flow.ListFailures(context.Background(), dto.ListFailuresRequest{Source: &source})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, source, res.Items[0].Source)
	assert.Equal(t, order.ID, *res.Items[0].LocalOrderID)
	payload, ok := res.Items[0].Context.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 422, payload["status"])
}

func TestAdminAuth_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := services.NewTokenService(time.Hour, "esim-fulfillment", "esim-admin", "test-secret-key-with-enough-length")
	require.NoError(t, err)
	audits := newFakeAuditRepo()
	flow := NewAdminAuthFlow(config.AdminConfig{Username: "operator", PasswordHash: string(hash)}, tokens, audits, log.New(io.Discard, "", 0))

	res, err := flow.Login(context.Background(), &dto.AdminLoginRequest{Username: "operator", Password: "correct-horse"}, NewClientMetadata("10.0.0.1", "curl"))
	require.NoError(t, err)
	assert.Equal(t, "operator", res.Username)
	assert.Equal(t, "Bearer", res.Session.TokenType)
	assert.Greater(t, res.Session.ExpiresIn, 0)

	claims, err := tokens.ValidateAdminToken(res.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "operator", "wrong-password"},
		{"wrong username", "root", "correct-horse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flow.Login(context.Background(), &dto.AdminLoginRequest{Username: tt.username, Password: tt.password}, nil)
			assert.True(t, IsInvalidCredentials(err))
		})
	}

	assert.Contains(t, audits.actions(), models.AuditActionAdminLoginSuccess)
	assert.Contains(t, audits.actions(), models.AuditActionAdminLoginFailed)
}

func TestAdminAuth_NotConfigured(t *testing.T) {
	tokens, err := services.NewTokenService(time.Hour, "esim-fulfillment", "esim-admin", "test-secret-key-with-enough-length")
	require.NoError(t, err)
	flow := NewAdminAuthFlow(config.AdminConfig{}, tokens, nil, nil)

	_, err = flow.Login(context.Background(), &dto.AdminLoginRequest{Username: "operator", Password: "whatever1"}, nil)
	assert.True(t, IsAdminNotConfigured(err))
}
