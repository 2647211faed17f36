package dto

// ReceiveLotRequest records a received quantity of one product.
// ProductID or SKU identifies the product; ProductID wins when both are set.
// Dates use YYYY-MM-DD.
type ReceiveLotRequest struct {
	ProductID     *uint   `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	SKU           *string `json:"sku,omitempty" validate:"omitempty,max=64"`
	Quantity      string  `json:"quantity" validate:"required,max=24"`
	UnitOfMeasure string  `json:"unit_of_measure,omitempty" validate:"omitempty,max=16"`
	PackDate      string  `json:"pack_date" validate:"required,datetime=2006-01-02"`
	ExpiryDate    *string `json:"expiry_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type LotDTO struct {
	ID            uint    `json:"id"`
	UUID          string  `json:"uuid"`
	LotNumber     string  `json:"lot_number"`
	ProductID     uint    `json:"product_id"`
	SKU           string  `json:"sku,omitempty"`
	ReceiptID     *uint   `json:"receipt_id,omitempty"`
	Quantity      string  `json:"quantity"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	PackDate      string  `json:"pack_date"`
	ExpiryDate    *string `json:"expiry_date,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// VoicePickDTO is the 4-digit pick code and its two printed halves
type VoicePickDTO struct {
	Code  string `json:"code"`
	Small string `json:"small"`
	Large string `json:"large"`
}

// LabelDTO is everything a printer template needs for one lot label
type LabelDTO struct {
	LotNumber     string       `json:"lot_number"`
	SKU           string       `json:"sku"`
	ProductName   string       `json:"product_name"`
	GTIN          string       `json:"gtin"`
	PackDate      string       `json:"pack_date"`
	ExpiryDate    *string      `json:"expiry_date,omitempty"`
	Quantity      string       `json:"quantity"`
	UnitOfMeasure string       `json:"unit_of_measure"`
	Barcode       string       `json:"barcode"`
	HumanReadable string       `json:"human_readable"`
	VoicePick     VoicePickDTO `json:"voice_pick"`
}

type ReceiveLotResponse struct {
	Lot   LotDTO   `json:"lot"`
	Label LabelDTO `json:"label"`
}

// VerifyPickRequest carries either what the picker said or what the scanner read
type VerifyPickRequest struct {
	SpokenCode     *string `json:"spoken_code,omitempty" validate:"omitempty,max=16"`
	ScannedBarcode *string `json:"scanned_barcode,omitempty" validate:"omitempty,max=128"`
}

// Pick verification methods
const (
	PickMethodVoice = "voice"
	PickMethodScan  = "scan"
)

type VerifyPickResponse struct {
	LotNumber string `json:"lot_number"`
	Method    string `json:"method"`
	Match     bool   `json:"match"`
	Reason    string `json:"reason,omitempty"`
}

// ExportLotsRequest filters the lots written to a label spreadsheet
type ExportLotsRequest struct {
	ProductID  *uint   `json:"product_id,omitempty" query:"product_id" validate:"omitempty,gt=0"`
	ReceiptID  *uint   `json:"receipt_id,omitempty" query:"receipt_id" validate:"omitempty,gt=0"`
	PackedFrom *string `json:"packed_from,omitempty" query:"packed_from" validate:"omitempty,datetime=2006-01-02"`
	PackedTo   *string `json:"packed_to,omitempty" query:"packed_to" validate:"omitempty,datetime=2006-01-02"`
}

type PrintLabelRequest struct {
	Copies  int    `json:"copies" validate:"required,gt=0"`
	Printer string `json:"printer,omitempty" validate:"omitempty,max=64"`
}

type PrintLabelResponse struct {
	JobID     string `json:"job_id"`
	LotNumber string `json:"lot_number"`
	Copies    int    `json:"copies"`
	QueuedAt  string `json:"queued_at"`
}

// LabelPrintJob is the message published to the print transport
type LabelPrintJob struct {
	JobID     string   `json:"job_id"`
	Printer   string   `json:"printer,omitempty"`
	Copies    int      `json:"copies"`
	Label     LabelDTO `json:"label"`
	RequestID string   `json:"request_id,omitempty"`
	QueuedAt  string   `json:"queued_at"`
}
