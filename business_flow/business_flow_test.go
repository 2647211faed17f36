package businessflow

import (
	"testing"
	"time"

	"github.com/covxx/pelattahub-sub002/gs1"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLabelDTO(t *testing.T) {
	expiry := mustDate("2026-01-31")
	lot := models.Lot{
		LotNumber:     "LOT-123",
		Quantity:      decimal.RequireFromString("12.5"),
		UnitOfMeasure: "KG",
		PackDate:      time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC),
		ExpiryDate:    &expiry,
	}
	product := models.Product{SKU: "SKU-001", Name: "Apples", GTIN: utils.ToPtr("00012345678905")}

	label, err := ToLabelDTO(lot, product)
	require.NoError(t, err)

	assert.Equal(t, "LOT-123", label.LotNumber)
	assert.Equal(t, "SKU-001", label.SKU)
	assert.Equal(t, "Apples", label.ProductName)
	assert.Equal(t, "00012345678905", label.GTIN)
	assert.Equal(t, "2025-11-27", label.PackDate)
	require.NotNil(t, label.ExpiryDate)
	assert.Equal(t, "2026-01-31", *label.ExpiryDate)
	assert.Equal(t, "12.5", label.Quantity)
	assert.Equal(t, "KG", label.UnitOfMeasure)
	assert.Equal(t, "(01)00012345678905(17)260131(10)LOT-123", label.Barcode)
	assert.Equal(t, "(01) 00012345678905 (17) 260131 (10) LOT-123", label.HumanReadable)
	assert.Equal(t, "6839", label.VoicePick.Code)
	assert.Equal(t, "68", label.VoicePick.Small)
	assert.Equal(t, "39", label.VoicePick.Large)
}

func TestToLabelDTOWithoutExpiry(t *testing.T) {
	lot := models.Lot{
		LotNumber: "01000007",
		Quantity:  decimal.NewFromInt(3),
		PackDate:  time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC),
	}
	product := models.Product{SKU: "SKU-001", GTIN: utils.ToPtr("00012345678905")}

	label, err := ToLabelDTO(lot, product)
	require.NoError(t, err)
	assert.Nil(t, label.ExpiryDate)
	assert.Equal(t, "(01)00012345678905(10)01000007", label.Barcode)
	assert.Equal(t, "2060", label.VoicePick.Code)
}

func TestToLabelDTORejectsMissingGTIN(t *testing.T) {
	lot := models.Lot{LotNumber: "01000001", PackDate: time.Now().UTC()}

	_, err := ToLabelDTO(lot, models.Product{SKU: "SKU-001"})
	assert.ErrorIs(t, err, gs1.ErrValidation)
}

func TestToLotDTO(t *testing.T) {
	receiptID := uint(9)
	lot := models.Lot{
		ID:            4,
		LotNumber:     "01000004",
		ProductID:     2,
		ReceiptID:     &receiptID,
		Quantity:      decimal.NewFromInt(10),
		UnitOfMeasure: "EA",
		PackDate:      mustDate("2025-03-01"),
		Product:       &models.Product{SKU: "SKU-9"},
	}

	out := ToLotDTO(lot)
	assert.Equal(t, "01000004", out.LotNumber)
	assert.Equal(t, "SKU-9", out.SKU)
	assert.Equal(t, "10", out.Quantity)
	assert.Equal(t, "2025-03-01", out.PackDate)
	assert.Nil(t, out.ExpiryDate)
	require.NotNil(t, out.ReceiptID)
	assert.Equal(t, uint(9), *out.ReceiptID)
}

func TestClientMetadataPointers(t *testing.T) {
	var nilMeta *ClientMetadata
	assert.Nil(t, nilMeta.actorPtr())
	assert.Nil(t, nilMeta.requestIDPtr())

	md := NewClientMetadata("10.0.0.1", "scanner/1.0")
	assert.Nil(t, md.actorPtr())

	md.SetActor("alice")
	md.SetRequestID("req-1")
	md.AddAdditional("station", "dock-3")
	assert.Equal(t, "alice", *md.actorPtr())
	assert.Equal(t, "req-1", *md.requestIDPtr())
	assert.Equal(t, "dock-3", md.Additional["station"])

	assert.Equal(t, "system:gtin_repair", SystemMetadata("gtin_repair").Actor)
}

func TestWrapGS1Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"configuration", gs1.ErrConfiguration, "GS1_CONFIGURATION_INVALID"},
		{"exhausted", gs1.ErrExhaustedRetry, "GTIN_EXHAUSTED"},
		{"validation", gs1.ErrValidation, "GS1_VALIDATION_FAILED"},
		{"other", errInjected, "GTIN_GENERATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapGS1Error(tt.err)
			var be *BusinessError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.code, be.Code)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	original := NewBusinessError("LOT_NOT_FOUND", "Lot not found", ErrLotNotFound)
	assert.Same(t, original, wrapGS1Error(original))
	assert.NoError(t, wrapGS1Error(nil))
}
