package gs1

import (
	"fmt"
	"strings"
	"time"
)

// Application identifiers carried on lot labels.
const (
	AIGTIN   = "01"
	AIExpiry = "17"
	AILot    = "10"

	maxLotLength = 20
)

const (
	// FNC1 is the rune Code 128 encoders use for the GS1-128 function 1 character.
	FNC1 = 'ñ'
	// GroupSeparator terminates a variable-length field in a transmitted element string.
	GroupSeparator = '\x1d'
)

// Payload is the data carried by a GS1-128 lot barcode.
type Payload struct {
	GTIN      string `json:"gtin"`
	LotNumber string `json:"lot_number"`
	Expiry    string `json:"expiry,omitempty"`

	// Encoded is the bracketed form, e.g. (01)00012345678905(10)01000007.
	Encoded string `json:"encoded"`
	// HumanReadable is the interpretation line printed under the symbol.
	HumanReadable string `json:"human_readable"`
	// ElementString is the symbol data: FNC1 followed by the AIs without brackets.
	ElementString string `json:"-"`
}

// Assemble builds the payload for a GTIN and lot number. expiry is an optional YYMMDD
// date; pass "" when the lot has none. AIs are ordered 01, 17, 10 so the variable-length
// lot field is always last and needs no separator.
func Assemble(gtin, lotNumber, expiry string) (Payload, error) {
	normalized, err := NormalizeGTIN(gtin)
	if err != nil {
		return Payload{}, err
	}
	if err := validateLotNumber(lotNumber); err != nil {
		return Payload{}, err
	}
	if expiry != "" {
		if err := validateYYMMDD(expiry); err != nil {
			return Payload{}, err
		}
	}

	p := Payload{GTIN: normalized, LotNumber: lotNumber, Expiry: expiry}

	var enc, hri, elem strings.Builder
	elem.WriteRune(FNC1)

	fields := [][2]string{{AIGTIN, normalized}}
	if expiry != "" {
		fields = append(fields, [2]string{AIExpiry, expiry})
	}
	fields = append(fields, [2]string{AILot, lotNumber})

	for i, f := range fields {
		fmt.Fprintf(&enc, "(%s)%s", f[0], f[1])
		if i > 0 {
			hri.WriteByte(' ')
		}
		fmt.Fprintf(&hri, "(%s) %s", f[0], f[1])
		elem.WriteString(f[0])
		elem.WriteString(f[1])
	}

	p.Encoded = enc.String()
	p.HumanReadable = hri.String()
	p.ElementString = elem.String()
	return p, nil
}

// AssembleWithExpiry is Assemble with the expiry given as a time.
func AssembleWithExpiry(gtin, lotNumber string, expiry time.Time) (Payload, error) {
	return Assemble(gtin, lotNumber, expiry.Format(PackDateLayout))
}

// validateLotNumber enforces the AI 10 rules: 1-20 characters from the GS1 character
// set, without parentheses so the bracketed forms stay unambiguous.
func validateLotNumber(lot string) error {
	if lot == "" {
		return fmt.Errorf("%w: lot number is required", ErrValidation)
	}
	if len(lot) > maxLotLength {
		return fmt.Errorf("%w: lot number %q exceeds %d characters", ErrValidation, lot, maxLotLength)
	}
	for i := 0; i < len(lot); i++ {
		if !isLotChar(lot[i]) {
			return fmt.Errorf("%w: lot number %q contains %q", ErrValidation, lot, lot[i])
		}
	}
	return nil
}

func isLotChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		return true
	}
	return strings.IndexByte(`!"%&'*+,-./:;<=>?_`, c) >= 0
}
