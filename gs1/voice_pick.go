package gs1

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	crc16Polynomial = 0x1021
	crc16Initial    = 0xFFFF

	voicePickDigits = 4
	voicePickModulo = 10000

	// PackDateLayout is the YYMMDD layout used by voice pick codes and AI 17.
	PackDateLayout = "060102"
)

// VoicePick is a 4-digit code printed on a lot label and read aloud during picking.
// Small and Large are the halves printed in the small and large boxes of the label.
type VoicePick struct {
	Code  string `json:"code"`
	Small string `json:"small"`
	Large string `json:"large"`
}

// VoicePickCode derives the voice pick code for a GTIN, lot number and YYMMDD pack date.
func VoicePickCode(gtin, lotNumber, packDate string) (VoicePick, error) {
	if len(gtin) != GTINLength || !isDigits(gtin) {
		return VoicePick{}, fmt.Errorf("%w: voice pick gtin must be %d digits, got %q", ErrValidation, GTINLength, gtin)
	}
	if err := validateLotNumber(lotNumber); err != nil {
		return VoicePick{}, err
	}
	if err := validateYYMMDD(packDate); err != nil {
		return VoicePick{}, err
	}

	code := voicePickFromCRC(CRC16CCITT([]byte(gtin + lotNumber + packDate)))
	small, large := SplitVoicePick(code)
	return VoicePick{Code: code, Small: small, Large: large}, nil
}

// VoicePickCodeForDate is VoicePickCode with the pack date given as a time.
func VoicePickCodeForDate(gtin, lotNumber string, packDate time.Time) (VoicePick, error) {
	return VoicePickCode(gtin, lotNumber, packDate.Format(PackDateLayout))
}

// CRC16CCITT computes CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF,
// no reflection and no final xor.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(crc16Initial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func voicePickFromCRC(crc uint16) string {
	return fmt.Sprintf("%0*d", voicePickDigits, int(crc)%voicePickModulo)
}

// SplitVoicePick splits a 4-digit code into its small (first two) and large (last two) halves.
func SplitVoicePick(code string) (small, large string) {
	if len(code) != voicePickDigits {
		return "", code
	}
	return code[:2], code[2:]
}

// ValidateVoicePick compares a picker's input with the expected code. Whitespace in
// the input is ignored and short inputs are left-padded with zeros.
func ValidateVoicePick(input, expected string) bool {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	if normalized == "" || len(normalized) > voicePickDigits || !isDigits(normalized) {
		return false
	}
	normalized = strings.Repeat("0", voicePickDigits-len(normalized)) + normalized
	return normalized == expected
}

func validateYYMMDD(s string) error {
	if len(s) != 6 || !isDigits(s) {
		return fmt.Errorf("%w: date must be YYMMDD, got %q", ErrValidation, s)
	}
	// GS1 allows day 00 meaning "end of month".
	if s[4:] == "00" {
		if _, err := time.Parse("0601", s[:4]); err != nil {
			return fmt.Errorf("%w: date %q is not a valid YYMMDD", ErrValidation, s)
		}
		return nil
	}
	if _, err := time.Parse(PackDateLayout, s); err != nil {
		return fmt.Errorf("%w: date %q is not a valid YYMMDD", ErrValidation, s)
	}
	return nil
}
