package dto

// CreateReceiptRequest records one delivery and all of its lots atomically
type CreateReceiptRequest struct {
	VendorName      string              `json:"vendor_name" validate:"required,max=255"`
	ReferenceNumber *string             `json:"reference_number,omitempty" validate:"omitempty,max=64"`
	ReceivedAt      *string             `json:"received_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Lots            []ReceiveLotRequest `json:"lots" validate:"required,min=1,max=200,dive"`
}

type ReceiptDTO struct {
	ID              uint       `json:"id"`
	UUID            string     `json:"uuid"`
	ReceiptNumber   int64      `json:"receipt_number"`
	VendorName      string     `json:"vendor_name"`
	ReferenceNumber *string    `json:"reference_number,omitempty"`
	ReceivedAt      string     `json:"received_at"`
	Lots            []LotDTO   `json:"lots"`
	Labels          []LabelDTO `json:"labels,omitempty"`
}

// NextSequenceResponse is returned by the admin sequence endpoint
type NextSequenceResponse struct {
	Key       string `json:"key"`
	Value     int64  `json:"value"`
	Formatted string `json:"formatted,omitempty"`
}
