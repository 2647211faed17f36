// Package dto contains Data Transfer Objects for API request and response structures
package dto

// ValidateGTINRequest checks a GTIN typed or scanned by an operator
type ValidateGTINRequest struct {
	GTIN string `json:"gtin" validate:"required,max=32"`
}

// ValidateGTINResponse reports both the length predicate and the check digit result
type ValidateGTINResponse struct {
	Input           string `json:"input"`
	Normalized      string `json:"normalized,omitempty"`
	Valid           bool   `json:"valid"`
	CheckDigitValid bool   `json:"check_digit_valid"`
	Reason          string `json:"reason,omitempty"`
}

// PreviewGTINRequest asks which GTIN a SKU would receive right now
type PreviewGTINRequest struct {
	SKU string `json:"sku" validate:"required,max=64"`
}

type PreviewGTINResponse struct {
	SKU           string `json:"sku"`
	CompanyPrefix string `json:"company_prefix"`
	GTIN          string `json:"gtin"`
}

// AssignGTINRequest assigns a GTIN to a product. Force regenerates even a valid GTIN.
type AssignGTINRequest struct {
	Force bool `json:"force"`
}

type ProductGTINResponse struct {
	ProductID uint    `json:"product_id"`
	SKU       string  `json:"sku"`
	GTIN      string  `json:"gtin"`
	Previous  *string `json:"previous,omitempty"`
	Changed   bool    `json:"changed"`
}

// GTINRepairResponse summarizes one repair run over the catalog
type GTINRepairResponse struct {
	Scanned  int                   `json:"scanned"`
	Repaired int                   `json:"repaired"`
	Failed   int                   `json:"failed"`
	Items    []ProductGTINResponse `json:"items"`
	Errors   []GTINRepairFailure   `json:"errors,omitempty"`
}

type GTINRepairFailure struct {
	ProductID uint   `json:"product_id"`
	SKU       string `json:"sku"`
	Error     string `json:"error"`
}

// GTIN import row statuses
const (
	GTINImportStatusAssigned  = "assigned"
	GTINImportStatusUnchanged = "unchanged"
	GTINImportStatusSkipped   = "skipped"
	GTINImportStatusFailed    = "failed"
)

type GTINImportRowResult struct {
	Row    int    `json:"row"`
	SKU    string `json:"sku"`
	GTIN   string `json:"gtin,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type GTINImportResponse struct {
	Rows     int                   `json:"rows"`
	Assigned int                   `json:"assigned"`
	Failed   int                   `json:"failed"`
	Results  []GTINImportRowResult `json:"results"`
}

// Company prefix sources
const (
	CompanyPrefixSourceSetting = "setting"
	CompanyPrefixSourceConfig  = "config"
	CompanyPrefixSourceDefault = "default"
)

type CompanyPrefixResponse struct {
	Prefix string `json:"prefix"`
	Source string `json:"source"`
}

type SetCompanyPrefixRequest struct {
	Prefix string `json:"prefix" validate:"required,max=16"`
}
