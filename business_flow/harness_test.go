package businessflow

import (
	"encoding/json"
	"io"
	"log"
	"testing"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/config"
)

const (
	testOrderID    = "1001"
	testProductRef = int64(77)
	testVariant    = int64(5)
	testPackageRef = "7days-1gb"
	testUniqueCode = "ABC123"
)

type pipeline struct {
	products    *fakeProductRepo
	variants    *fakeVariantRepo
	orders      *fakeOrderRepo
	provOrders  *fakeProvOrderRepo
	units       *fakeUnitRepo
	failures    *fakeFailureRepo
	audits      *fakeAuditRepo
	tx          *fakeTransactor
	storefront  *fakeStorefront
	provisioner *fakeProvisioner
	enqueuer    *fakeEnqueuer

	intake   WebhookIntakeFlow
	executor ProvisioningFlow
	delivery DeliveryFlow
}

func newPipeline(t *testing.T, cfg config.StorefrontConfig) *pipeline {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	p := &pipeline{
		products:    newFakeProductRepo(),
		provOrders:  newFakeProvOrderRepo(),
		units:       newFakeUnitRepo(),
		failures:    newFakeFailureRepo(),
		audits:      newFakeAuditRepo(),
		tx:          &fakeTransactor{},
		storefront:  newFakeStorefront(),
		provisioner: &fakeProvisioner{payload: samplePayload()},
		enqueuer:    &fakeEnqueuer{},
	}
	p.variants = newFakeVariantRepo(p.products)
	p.orders = newFakeOrderRepo(p.provOrders, p.units)

	product := p.products.add(testProductRef, "eSIM Europe")
	p.variants.add(product, testVariant, testPackageRef)
	p.variants.add(product, 6, "")
	p.storefront.purchases[testOrderID] = samplePurchase()

	p.delivery = NewDeliveryFlow(p.storefront, p.orders, p.audits, p.failures, logger)
	p.intake = NewWebhookIntakeFlow(p.products, p.orders, NewVariantResolver(p.variants), p.storefront, p.enqueuer, p.audits, p.failures, cfg, logger)
	p.executor = NewProvisioningFlow(p.orders, p.provOrders, p.units, p.provisioner, p.delivery, p.tx, p.audits, p.failures, nil, logger)
	return p
}

func sampleNotification() *dto.StorefrontNotificationRequest {
	return &dto.StorefrontNotificationRequest{
		InvoiceID:  json.Number(testOrderID),
		ProductID:  json.Number("77"),
		Amount:     json.Number("9.99"),
		Currency:   "USD",
		Email:      "buyer@example.com",
		Date:       "2024-05-01 10:00:00",
		UniqueCode: testUniqueCode,
	}
}

func samplePurchase() *services.PurchaseInfo {
	return &services.PurchaseInfo{
		ProductID:    testProductRef,
		ProductName:  "eSIM Europe",
		Quantity:     1,
		Amount:       "9.99",
		Currency:     "USD",
		InvoiceState: 3,
		PurchaseDate: "01.05.2024 10:00:00",
		UniqueCode:   testUniqueCode,
		BuyerEmail:   "buyer@example.com",
		Options: []services.VariantCandidate{
			{OptionID: 1, Name: "Plan", Value: "7 days 1GB", Identifier: testVariant},
		},
		Raw: json.RawMessage(`{"retval":0}`),
	}
}

func samplePayload() *services.ProviderOrderPayload {
	return &services.ProviderOrderPayload{
		ID:        "PX1",
		Code:      "ABC123",
		Currency:  "USD",
		PackageID: testPackageRef,
		Quantity:  "1",
		Type:      "sim",
		Price:     "4.5",
		NetPrice:  "3.6",
		CreatedAt: "2024-05-01 10:00:05",
		Sims: []services.ProviderSim{
			{ID: "11", ICCID: "8901000000000000001", LPA: "lpa.example.com", QRCode: "LPA:1$lpa.example.com$X", Raw: json.RawMessage(`{"id":11}`)},
		},
		Raw: json.RawMessage(`{"id":"PX1","code":"ABC123"}`),
	}
}
