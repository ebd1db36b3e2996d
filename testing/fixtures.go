package testing

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CatalogFixture is a storefront product with one mapped and one unmapped variant
type CatalogFixture struct {
	Product  *models.StorefrontProduct
	Package  *models.ProvisioningPackage
	Mapped   *models.VariantMapping
	Unmapped *models.VariantMapping
}

// CreateCatalog inserts product idGoods whose variant mappedValue points at packageID.
// Variant mappedValue+1 exists without a package.
func (tf *TestFixtures) CreateCatalog(idGoods, mappedValue int64, packageID string) (*CatalogFixture, error) {
	product := &models.StorefrontProduct{
		IDGoods:   idGoods,
		NameGoods: fmt.Sprintf("eSIM product %d", idGoods),
		Currency:  "USD",
		Price:     "4.50",
	}
	if err := tf.DB.DB.Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create storefront product: %w", err)
	}

	day, amount := 7, 1024
	pkg := &models.ProvisioningPackage{
		PackageID: packageID,
		Title:     "1 GB - 7 Days",
		Type:      "sim",
		Price:     4.5,
		Day:       &day,
		Amount:    &amount,
		Data:      "1 GB",
		RawData:   json.RawMessage(`{}`),
	}
	if err := tf.DB.DB.Create(pkg).Error; err != nil {
		return nil, fmt.Errorf("failed to create provisioning package: %w", err)
	}

	mapped := &models.VariantMapping{
		StorefrontProductID: product.ID,
		VariantValue:        mappedValue,
		Text:                "7 days",
		IsDefault:           true,
		Visible:             true,
		PackageID:           &pkg.ID,
	}
	unmapped := &models.VariantMapping{
		StorefrontProductID: product.ID,
		VariantValue:        mappedValue + 1,
		Text:                "not for sale",
		Visible:             true,
	}
	for _, v := range []*models.VariantMapping{mapped, unmapped} {
		if err := tf.DB.DB.Create(v).Error; err != nil {
			return nil, fmt.Errorf("failed to create variant %d: %w", v.VariantValue, err)
		}
	}

	return &CatalogFixture{Product: product, Package: pkg, Mapped: mapped, Unmapped: unmapped}, nil
}

// CreateLocalOrder inserts an order in the given status with random storefront identifiers
func (tf *TestFixtures) CreateLocalOrder(status models.LocalOrderStatus) (*models.LocalOrder, error) {
	n := rand.Intn(900000000) + 100000000
	purchasedAt := utils.UTCNow().Add(-time.Hour)
	order := &models.LocalOrder{
		UUID:               uuid.New(),
		ExternalOrderID:    fmt.Sprintf("%d", n),
		TransactionCode:    fmt.Sprintf("UC%d", n),
		ProductRef:         1001,
		VariantRef:         77,
		ResolvedPackageRef: "7days-1gb",
		Quantity:           1,
		BuyerContact:       fmt.Sprintf("buyer.%d@example.com", n),
		PurchaseAmount:     "4.50",
		PurchaseCurrency:   "USD",
		PurchaseTimestamp:  &purchasedAt,
		Status:             status,
		Metadata:           json.RawMessage(`{}`),
	}

	if err := tf.DB.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create local order: %w", err)
	}
	return order, nil
}

// CreateProvisionerOrder inserts a provider order with count units and links it to order
func (tf *TestFixtures) CreateProvisionerOrder(order *models.LocalOrder, count int) (*models.ProvisionerOrder, error) {
	providerID := fmt.Sprintf("PX%d", order.ID)
	provOrder := &models.ProvisionerOrder{
		ProviderOrderID: providerID,
		Code:            fmt.Sprintf("CODE-%d", order.ID),
		PackageRef:      order.ResolvedPackageRef,
		Quantity:        count,
		Price:           "4.5",
		Currency:        "USD",
		Type:            "sim",
		RawPayload:      json.RawMessage(`{"id":"` + providerID + `"}`),
	}
	if err := tf.DB.DB.Create(provOrder).Error; err != nil {
		return nil, fmt.Errorf("failed to create provisioner order: %w", err)
	}

	for i := 0; i < count; i++ {
		activation, _ := json.Marshal(models.ActivationPayload{
			LPA:    "lpa.example.com",
			QRCode: fmt.Sprintf("LPA:1$lpa.example.com$%s-%d", providerID, i),
		})
		unit := &models.ProvisionedUnit{
			UnitID:             fmt.Sprintf("%s-U%d", providerID, i),
			ProvisionerOrderID: provOrder.ID,
			ICCID:              fmt.Sprintf("8901%012d", int(order.ID)*100+i),
			ActivationPayload:  activation,
			RawPayload:         json.RawMessage(`{}`),
		}
		if err := tf.DB.DB.Create(unit).Error; err != nil {
			return nil, fmt.Errorf("failed to create provisioned unit: %w", err)
		}
	}

	order.ProvisionerOrderID = &provOrder.ID
	order.Status = models.LocalOrderStatusCompleted
	if err := tf.DB.DB.Save(order).Error; err != nil {
		return nil, fmt.Errorf("failed to link provisioner order: %w", err)
	}
	return provOrder, nil
}

// AgeOrder moves updated_at into the past, bypassing gorm's autoUpdateTime
func (tf *TestFixtures) AgeOrder(order *models.LocalOrder, by time.Duration) error {
	return tf.DB.DB.Model(&models.LocalOrder{}).
		Where("id = ?", order.ID).
		UpdateColumn("updated_at", utils.UTCNow().Add(-by)).Error
}
