package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/shopspring/decimal"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// RandomSKU returns a SKU unlikely to collide within one test database
func RandomSKU() string {
	return fmt.Sprintf("SKU-%06d-%04d", rand.Intn(1000000), rand.Intn(10000))
}

// CreateTestProduct creates an active product. An empty gtin leaves the product waiting for one.
func (tf *TestFixtures) CreateTestProduct(sku, gtin string) (*models.Product, error) {
	if sku == "" {
		sku = RandomSKU()
	}

	product := &models.Product{
		SKU:      sku,
		Name:     "Test product " + sku,
		GTIN:     utils.TrimToNil(gtin),
		IsActive: utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create test product %s: %w", sku, err)
	}
	return product, nil
}

// CreateTestReceipt creates a receipt with the given number
func (tf *TestFixtures) CreateTestReceipt(number int64, vendor string) (*models.Receipt, error) {
	receipt := &models.Receipt{
		ReceiptNumber: number,
		VendorName:    vendor,
		ReceivedAt:    utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(receipt).Error; err != nil {
		return nil, fmt.Errorf("failed to create test receipt %d: %w", number, err)
	}
	return receipt, nil
}

// CreateTestLot creates a lot for productID with an explicit lot number
func (tf *TestFixtures) CreateTestLot(productID uint, receiptID *uint, lotNumber string, packDate time.Time) (*models.Lot, error) {
	lot := &models.Lot{
		LotNumber:     lotNumber,
		ProductID:     productID,
		ReceiptID:     receiptID,
		Quantity:      decimal.NewFromInt(10),
		UnitOfMeasure: "EA",
		PackDate:      utils.DateOnly(packDate),
	}
	if err := tf.DB.DB.Create(lot).Error; err != nil {
		return nil, fmt.Errorf("failed to create test lot %s: %w", lotNumber, err)
	}
	return lot, nil
}
