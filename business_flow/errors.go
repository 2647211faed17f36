// Package businessflow contains the use cases of the lot labelling service
package businessflow

import (
	"errors"
	"fmt"

	"github.com/covxx/pelattahub-sub002/gs1"
	"github.com/covxx/pelattahub-sub002/repository"
)

// Business flow error constants
var (
	// Core numbering errors. The gs1 sentinels are shared so callers can match
	// either package's value with errors.Is.
	ErrValidation          = gs1.ErrValidation
	ErrConfiguration       = gs1.ErrConfiguration
	ErrExhaustedRetry      = gs1.ErrExhaustedRetry
	ErrConcurrencyConflict = errors.New("concurrent update conflict")

	// Catalog errors
	ErrProductNotFound     = errors.New("product not found")
	ErrProductInactive     = errors.New("product is inactive")
	ErrProductNeedsGTIN    = errors.New("product has no valid GTIN")
	ErrGTINAlreadyAssigned = errors.New("gtin already assigned to another product")

	// Lot and receipt errors
	ErrLotNotFound          = errors.New("lot not found")
	ErrReceiptNotFound      = errors.New("receipt not found")
	ErrQuantityInvalid      = errors.New("quantity must be greater than zero")
	ErrExpiryBeforePackDate = errors.New("expiry date is before pack date")
	ErrTooManyLots          = errors.New("too many lots in one receipt")
	ErrPickInputRequired    = errors.New("spoken code or scanned barcode is required")

	// Sequence errors
	ErrUnknownSequenceKey = errors.New("unknown sequence key")

	// Background and transport errors
	ErrRepairInProgress  = errors.New("gtin repair already running")
	ErrRepairLockLost    = errors.New("gtin repair lock expired")
	ErrPrintQueueOffline = errors.New("print queue is not configured")
	ErrCopiesOutOfRange  = errors.New("copies out of range")
	ErrSpreadsheetFormat = errors.New("spreadsheet format invalid")

	// Filter errors
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// wrapStoreError classifies an error coming back from a repository call. Lock timeouts,
// deadlocks and serialization failures become ErrConcurrencyConflict; anything that is
// already a BusinessError passes through.
func wrapStoreError(code, message string, err error) error {
	if err == nil {
		return nil
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return err
	}
	if repository.IsConcurrencyAbort(err) {
		return NewBusinessError("CONCURRENCY_CONFLICT", message, errors.Join(ErrConcurrencyConflict, err))
	}
	return NewBusinessError(code, message, err)
}

// wrapGS1Error maps gs1 failures onto business codes.
func wrapGS1Error(err error) error {
	if err == nil {
		return nil
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return err
	}
	switch {
	case errors.Is(err, gs1.ErrConfiguration):
		return NewBusinessError("GS1_CONFIGURATION_INVALID", "GS1 company prefix is not usable", err)
	case errors.Is(err, gs1.ErrExhaustedRetry):
		return NewBusinessError("GTIN_EXHAUSTED", "No free GTIN could be generated", err)
	case errors.Is(err, gs1.ErrValidation):
		return NewBusinessError("GS1_VALIDATION_FAILED", "GS1 value is invalid", err)
	}
	return wrapStoreError("GTIN_GENERATION_FAILED", "Failed to generate GTIN", err)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsExhaustedRetry(err error) bool {
	return errors.Is(err, ErrExhaustedRetry)
}

func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

func IsProductNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}

func IsLotNotFound(err error) bool {
	return errors.Is(err, ErrLotNotFound)
}

func IsReceiptNotFound(err error) bool {
	return errors.Is(err, ErrReceiptNotFound)
}

func IsRepairInProgress(err error) bool {
	return errors.Is(err, ErrRepairInProgress)
}

func IsPrintQueueOffline(err error) bool {
	return errors.Is(err, ErrPrintQueueOffline)
}
