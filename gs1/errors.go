// Package gs1 implements GS1 identifiers used on lot labels: GTIN-14 generation and
// validation, voice pick codes and GS1-128 application identifier payloads.
package gs1

import "errors"

var (
	// ErrValidation is returned when an input GTIN, lot number or date is malformed.
	ErrValidation = errors.New("gs1 validation failed")
	// ErrConfiguration is returned when the configured company prefix is unusable.
	ErrConfiguration = errors.New("gs1 configuration invalid")
	// ErrExhaustedRetry is returned when no unique GTIN candidate could be found.
	ErrExhaustedRetry = errors.New("gtin candidates exhausted")
)
