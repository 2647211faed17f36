package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AuditAction names the kind of event an audit entry records.
type AuditAction string

const (
	AuditActionLotCreated           AuditAction = "lot_created"
	AuditActionReceiptCreated       AuditAction = "receipt_created"
	AuditActionGTINAssigned         AuditAction = "gtin_assigned"
	AuditActionGTINRepaired         AuditAction = "gtin_repaired"
	AuditActionGTINImported         AuditAction = "gtin_imported"
	AuditActionCompanyPrefixChanged AuditAction = "company_prefix_changed"
	AuditActionLabelPrintQueued     AuditAction = "label_print_queued"
)

// Valid checks if the action is valid
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionLotCreated, AuditActionReceiptCreated,
		AuditActionGTINAssigned, AuditActionGTINRepaired, AuditActionGTINImported,
		AuditActionCompanyPrefixChanged, AuditActionLabelPrintQueued:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for AuditAction
func (a *AuditAction) Scan(value any) error {
	if value == nil {
		*a = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*a = AuditAction(v)
	case []byte:
		*a = AuditAction(string(v))
	default:
		return fmt.Errorf("cannot scan %T into AuditAction", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for AuditAction
func (a AuditAction) Value() (driver.Value, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid AuditAction: %s", a)
	}
	return string(a), nil
}

// AuditDetail is the payload of an audit entry. The set of implementations is closed;
// each one maps to exactly one AuditAction.
type AuditDetail interface {
	Action() AuditAction
	// Subject identifies the entity the event is about, e.g. a lot number or SKU.
	Subject() string
	auditDetail()
}

type LotCreated struct {
	LotNumber     string `json:"lot_number"`
	ProductID     uint   `json:"product_id"`
	GTIN          string `json:"gtin"`
	VoicePick     string `json:"voice_pick"`
	ReceiptNumber *int64 `json:"receipt_number,omitempty"`
}

type ReceiptCreated struct {
	ReceiptNumber int64    `json:"receipt_number"`
	VendorName    string   `json:"vendor_name"`
	LotNumbers    []string `json:"lot_numbers"`
}

type GTINAssigned struct {
	SKU  string `json:"sku"`
	GTIN string `json:"gtin"`
}

type GTINRepaired struct {
	SKU      string  `json:"sku"`
	Previous *string `json:"previous,omitempty"`
	GTIN     string  `json:"gtin"`
}

type GTINImported struct {
	SKU      string  `json:"sku"`
	Previous *string `json:"previous,omitempty"`
	GTIN     string  `json:"gtin"`
	Row      int     `json:"row"`
}

type CompanyPrefixChanged struct {
	Previous string `json:"previous"`
	Prefix   string `json:"prefix"`
}

type LabelPrintQueued struct {
	LotNumber string `json:"lot_number"`
	JobID     string `json:"job_id"`
	Copies    int    `json:"copies"`
}

func (LotCreated) Action() AuditAction           { return AuditActionLotCreated }
func (ReceiptCreated) Action() AuditAction       { return AuditActionReceiptCreated }
func (GTINAssigned) Action() AuditAction         { return AuditActionGTINAssigned }
func (GTINRepaired) Action() AuditAction         { return AuditActionGTINRepaired }
func (GTINImported) Action() AuditAction         { return AuditActionGTINImported }
func (CompanyPrefixChanged) Action() AuditAction { return AuditActionCompanyPrefixChanged }
func (LabelPrintQueued) Action() AuditAction     { return AuditActionLabelPrintQueued }

func (d LotCreated) Subject() string         { return d.LotNumber }
func (d ReceiptCreated) Subject() string     { return fmt.Sprintf("receipt:%d", d.ReceiptNumber) }
func (d GTINAssigned) Subject() string       { return d.SKU }
func (d GTINRepaired) Subject() string       { return d.SKU }
func (d GTINImported) Subject() string       { return d.SKU }
func (CompanyPrefixChanged) Subject() string { return SettingGS1CompanyPrefix }
func (d LabelPrintQueued) Subject() string   { return d.LotNumber }

func (LotCreated) auditDetail()           {}
func (ReceiptCreated) auditDetail()       {}
func (GTINAssigned) auditDetail()         {}
func (GTINRepaired) auditDetail()         {}
func (GTINImported) auditDetail()         {}
func (CompanyPrefixChanged) auditDetail() {}
func (LabelPrintQueued) auditDetail()     {}

// AuditLog is an append-only record of a state change.
type AuditLog struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Action    AuditAction     `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Subject   string          `gorm:"size:128;not null;index:idx_audit_subject" json:"subject"`
	Actor     *string         `gorm:"size:255" json:"actor,omitempty"`
	RequestID *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata  json.RawMessage `gorm:"type:jsonb;not null" json:"metadata"`
	CreatedAt time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// NewAuditLog builds an entry for detail.
func NewAuditLog(detail AuditDetail, actor, requestID *string) (*AuditLog, error) {
	if detail == nil {
		return nil, fmt.Errorf("audit detail is required")
	}
	metadata, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit detail: %w", err)
	}
	return &AuditLog{
		Action:    detail.Action(),
		Subject:   detail.Subject(),
		Actor:     actor,
		RequestID: requestID,
		Metadata:  metadata,
	}, nil
}

// Detail decodes Metadata into the concrete type for Action.
func (a *AuditLog) Detail() (AuditDetail, error) {
	var detail AuditDetail
	switch a.Action {
	case AuditActionLotCreated:
		detail = &LotCreated{}
	case AuditActionReceiptCreated:
		detail = &ReceiptCreated{}
	case AuditActionGTINAssigned:
		detail = &GTINAssigned{}
	case AuditActionGTINRepaired:
		detail = &GTINRepaired{}
	case AuditActionGTINImported:
		detail = &GTINImported{}
	case AuditActionCompanyPrefixChanged:
		detail = &CompanyPrefixChanged{}
	case AuditActionLabelPrintQueued:
		detail = &LabelPrintQueued{}
	default:
		return nil, fmt.Errorf("unknown audit action %q", a.Action)
	}
	if err := json.Unmarshal(a.Metadata, detail); err != nil {
		return nil, fmt.Errorf("failed to decode %s detail: %w", a.Action, err)
	}
	return detail, nil
}

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	Action        *AuditAction
	Subject       *string
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
