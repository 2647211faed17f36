package businessflow

import (
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/gs1"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds the caller information attached to audit entries
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
	// Actor is the subject of the verified bearer token, empty for system jobs.
	Actor      string            `json:"actor,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// SystemMetadata identifies background jobs in the audit trail
func SystemMetadata(job string) *ClientMetadata {
	return &ClientMetadata{Actor: "system:" + job}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetActor sets the authenticated actor
func (cm *ClientMetadata) SetActor(actor string) {
	cm.Actor = actor
}

func (cm *ClientMetadata) actorPtr() *string {
	if cm == nil {
		return nil
	}
	return utils.TrimToNil(cm.Actor)
}

func (cm *ClientMetadata) requestIDPtr() *string {
	if cm == nil {
		return nil
	}
	return utils.TrimToNil(cm.RequestID)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(utils.DateLayout)
	return &s
}

// ToLotDTO converts a lot model for responses. The product relation is optional.
func ToLotDTO(lot models.Lot) dto.LotDTO {
	out := dto.LotDTO{
		ID:            lot.ID,
		UUID:          lot.UUID.String(),
		LotNumber:     lot.LotNumber,
		ProductID:     lot.ProductID,
		ReceiptID:     lot.ReceiptID,
		Quantity:      lot.Quantity.String(),
		UnitOfMeasure: lot.UnitOfMeasure,
		PackDate:      lot.PackDate.UTC().Format(utils.DateLayout),
		ExpiryDate:    formatDatePtr(lot.ExpiryDate),
		CreatedAt:     lot.CreatedAt.UTC().Format(time.RFC3339),
	}
	if lot.Product != nil {
		out.SKU = lot.Product.SKU
	}
	return out
}

// ToLabelDTO assembles the printable label for a lot of product.
func ToLabelDTO(lot models.Lot, product models.Product) (dto.LabelDTO, error) {
	gtin := utils.StringOrEmpty(product.GTIN)

	var expiry string
	if lot.ExpiryDate != nil {
		expiry = lot.ExpiryDate.UTC().Format(gs1.PackDateLayout)
	}
	payload, err := gs1.Assemble(gtin, lot.LotNumber, expiry)
	if err != nil {
		return dto.LabelDTO{}, err
	}

	pick, err := gs1.VoicePickCodeForDate(payload.GTIN, lot.LotNumber, lot.PackDate.UTC())
	if err != nil {
		return dto.LabelDTO{}, err
	}

	return dto.LabelDTO{
		LotNumber:     lot.LotNumber,
		SKU:           product.SKU,
		ProductName:   product.Name,
		GTIN:          payload.GTIN,
		PackDate:      lot.PackDate.UTC().Format(utils.DateLayout),
		ExpiryDate:    formatDatePtr(lot.ExpiryDate),
		Quantity:      lot.Quantity.String(),
		UnitOfMeasure: lot.UnitOfMeasure,
		Barcode:       payload.Encoded,
		HumanReadable: payload.HumanReadable,
		VoicePick: dto.VoicePickDTO{
			Code:  pick.Code,
			Small: pick.Small,
			Large: pick.Large,
		},
	}, nil
}

// ToReceiptDTO converts a receipt with its lots
func ToReceiptDTO(receipt models.Receipt) dto.ReceiptDTO {
	lots := make([]dto.LotDTO, 0, len(receipt.Lots))
	for _, lot := range receipt.Lots {
		lots = append(lots, ToLotDTO(lot))
	}
	return dto.ReceiptDTO{
		ID:              receipt.ID,
		UUID:            receipt.UUID.String(),
		ReceiptNumber:   receipt.ReceiptNumber,
		VendorName:      receipt.VendorName,
		ReferenceNumber: receipt.ReferenceNumber,
		ReceivedAt:      receipt.ReceivedAt.UTC().Format(time.RFC3339),
		Lots:            lots,
	}
}
