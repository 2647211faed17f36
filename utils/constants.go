package utils

import (
	"time"
)

// Token constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Date and label constants
const (
	// DateLayout is the wire format for calendar dates in requests and exports
	DateLayout = "2006-01-02"

	// MaxLotsPerReceipt bounds the number of lots created by one receipt
	MaxLotsPerReceipt = 200

	// MaxExportRows bounds a lot export spreadsheet
	MaxExportRows = 10000

	// MaxPrintCopies bounds the copies requested by one print job
	MaxPrintCopies = 500

	// DefaultUnitOfMeasure is used when a lot is received without one
	DefaultUnitOfMeasure = "EA"
)
