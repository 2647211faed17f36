package gs1

import (
	"fmt"
	"strings"
)

// ScanResult holds the AIs recovered from a scanned barcode.
type ScanResult struct {
	GTIN      string `json:"gtin"`
	Expiry    string `json:"expiry,omitempty"`
	LotNumber string `json:"lot_number,omitempty"`
}

// fixed lengths of the fixed-length AIs we understand
var fixedAILengths = map[string]int{
	AIGTIN:   14,
	AIExpiry: 6,
}

// Parse decodes scanner output. It accepts the bracketed form, a transmitted element
// string (optionally prefixed with the ]C1 symbology identifier or FNC1 and using GS
// as field separator) and plain GTIN-14, EAN-13 or shorter codes.
func Parse(code string) (*ScanResult, error) {
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, "]C1")
	code = strings.TrimLeft(code, string(FNC1)+string(GroupSeparator))
	if code == "" {
		return nil, fmt.Errorf("%w: barcode is empty", ErrValidation)
	}

	if strings.HasPrefix(code, "(") {
		return parseBracketed(code)
	}

	if len(code) <= GTINLength && isDigits(code) {
		gtin, err := NormalizeGTIN(code)
		if err != nil {
			return nil, err
		}
		return &ScanResult{GTIN: gtin}, nil
	}

	if !strings.HasPrefix(code, AIGTIN) {
		return nil, fmt.Errorf("%w: barcode %q does not start with AI (01)", ErrValidation, code)
	}
	return parseElementString(code)
}

func parseBracketed(code string) (*ScanResult, error) {
	result := &ScanResult{}
	rest := code
	for rest != "" {
		if rest[0] != '(' {
			return nil, fmt.Errorf("%w: expected '(' in %q", ErrValidation, code)
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated AI in %q", ErrValidation, code)
		}
		ai := rest[1:end]
		rest = rest[end+1:]
		next := strings.IndexByte(rest, '(')
		var data string
		if next < 0 {
			data, rest = rest, ""
		} else {
			data, rest = rest[:next], rest[next:]
		}
		if err := result.set(ai, strings.TrimSpace(data)); err != nil {
			return nil, err
		}
	}
	return result.finish()
}

func parseElementString(code string) (*ScanResult, error) {
	result := &ScanResult{}
	i := 0
	for i < len(code) {
		if code[i] == GroupSeparator {
			i++
			continue
		}
		if i+2 > len(code) {
			return nil, fmt.Errorf("%w: truncated AI at offset %d", ErrValidation, i)
		}
		ai := code[i : i+2]
		i += 2

		if n, ok := fixedAILengths[ai]; ok {
			if i+n > len(code) {
				return nil, fmt.Errorf("%w: AI (%s) needs %d characters", ErrValidation, ai, n)
			}
			if err := result.set(ai, code[i:i+n]); err != nil {
				return nil, err
			}
			i += n
			continue
		}

		if ai != AILot {
			return nil, fmt.Errorf("%w: unsupported AI (%s)", ErrValidation, ai)
		}
		end := strings.IndexByte(code[i:], GroupSeparator)
		if end < 0 {
			end = len(code) - i
		}
		if err := result.set(ai, code[i:i+end]); err != nil {
			return nil, err
		}
		i += end
	}
	return result.finish()
}

func (r *ScanResult) set(ai, data string) error {
	switch ai {
	case AIGTIN:
		if len(data) != GTINLength || !isDigits(data) {
			return fmt.Errorf("%w: AI (01) must carry %d digits, got %q", ErrValidation, GTINLength, data)
		}
		r.GTIN = data
	case AIExpiry:
		if err := validateYYMMDD(data); err != nil {
			return err
		}
		r.Expiry = data
	case AILot:
		if err := validateLotNumber(data); err != nil {
			return err
		}
		r.LotNumber = data
	}
	// other AIs in bracketed input are ignored
	return nil
}

func (r *ScanResult) finish() (*ScanResult, error) {
	if r.GTIN == "" {
		return nil, fmt.Errorf("%w: barcode carries no AI (01)", ErrValidation)
	}
	return r, nil
}
