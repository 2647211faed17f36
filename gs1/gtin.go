package gs1

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// GTINLength is the number of digits in a GTIN-14 including its check digit.
	GTINLength = 14
	// CompanyPrefixLength is the number of digits taken by the GS1 company prefix.
	CompanyPrefixLength = 6
	// DefaultCompanyPrefix is used when no company prefix has been configured.
	DefaultCompanyPrefix = "000000"

	identifierHashDigits = 6
	identifierHashModulo = 1000000
	maxDisambiguation    = 100

	// digits of the hash that fit between the prefix and the index
	hashBaseDigits = GTINLength - 1 - CompanyPrefixLength - 2
)

// ExistsFunc reports whether a GTIN candidate is already assigned.
// Implementations must be safe for concurrent use.
type ExistsFunc func(ctx context.Context, gtin string) (bool, error)

// Generator derives GTIN-14 values from a company prefix and a product identifier.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator that uses the wall clock for its fallback hash.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock creates a generator with a fixed clock.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Generate returns the first candidate GTIN for identifier that exists reports as free.
//
// Candidates are prefix(6) + the low 5 digits of the identifier hash + index(2) + check
// digit, which keeps the base at 13 digits. Index 0..99 is tried for
// the identifier's hash and then, once, for a hash of the identifier salted with the
// current time. ErrExhaustedRetry is returned if both passes collide on every index.
func (g *Generator) Generate(ctx context.Context, companyPrefix, identifier string, exists ExistsFunc) (string, error) {
	prefix, err := NormalizeCompanyPrefix(companyPrefix)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(identifier) == "" {
		return "", fmt.Errorf("%w: product identifier is required", ErrValidation)
	}
	if exists == nil {
		exists = func(context.Context, string) (bool, error) { return false, nil }
	}

	hash := IdentifierHash(identifier)
	for pass := 0; pass < 2; pass++ {
		if pass == 1 {
			hash = IdentifierHash(identifier + strconv.FormatInt(g.now().UnixMilli(), 10))
		}
		for index := 0; index < maxDisambiguation; index++ {
			candidate, err := candidateGTIN(prefix, hash, index)
			if err != nil {
				return "", err
			}
			taken, err := exists(ctx, candidate)
			if err != nil {
				return "", fmt.Errorf("gtin existence check failed: %w", err)
			}
			if !taken {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("%w: no free candidate for %q", ErrExhaustedRetry, identifier)
}

// Candidate returns the GTIN for identifier at the given disambiguation index
// without consulting any existence check.
func Candidate(companyPrefix, identifier string, index int) (string, error) {
	prefix, err := NormalizeCompanyPrefix(companyPrefix)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= maxDisambiguation {
		return "", fmt.Errorf("%w: disambiguation index %d out of range", ErrValidation, index)
	}
	return candidateGTIN(prefix, IdentifierHash(identifier), index)
}

func candidateGTIN(prefix, hash string, index int) (string, error) {
	base := prefix + hash[identifierHashDigits-hashBaseDigits:] + fmt.Sprintf("%02d", index)
	check, err := CheckDigit(base)
	if err != nil {
		return "", err
	}
	return base + strconv.Itoa(check), nil
}

// IdentifierHash reduces an identifier to a stable 6-digit string.
// It is the 32-bit polynomial string hash (h = 31*h + c) folded to its absolute value.
func IdentifierHash(identifier string) string {
	var h int32
	for _, r := range identifier {
		h = 31*h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%0*d", identifierHashDigits, v%identifierHashModulo)
}

// CheckDigit computes the GTIN-14 check digit for a 13-digit base.
func CheckDigit(base string) (int, error) {
	if len(base) != GTINLength-1 || !isDigits(base) {
		return 0, fmt.Errorf("%w: check digit base must be %d digits, got %q", ErrValidation, GTINLength-1, base)
	}
	sum := 0
	for i := 0; i < len(base); i++ {
		d := int(base[i] - '0')
		if i%2 == 0 {
			sum += d * 3
		} else {
			sum += d
		}
	}
	return (10 - sum%10) % 10, nil
}

// IsValidGTIN reports whether s is exactly 14 digits once non-digit characters are removed.
func IsValidGTIN(s string) bool {
	return len(digitsOnly(s)) == GTINLength
}

// HasValidCheckDigit reports whether gtin is 14 digits with a correct check digit.
func HasValidCheckDigit(gtin string) bool {
	if len(gtin) != GTINLength || !isDigits(gtin) {
		return false
	}
	check, err := CheckDigit(gtin[:GTINLength-1])
	if err != nil {
		return false
	}
	return int(gtin[GTINLength-1]-'0') == check
}

// ValidateGTIN accepts only a 14 digit GTIN with a correct check digit.
// Surrounding whitespace is ignored.
func ValidateGTIN(s string) (string, error) {
	gtin := strings.TrimSpace(s)
	if len(gtin) != GTINLength || !isDigits(gtin) {
		return "", fmt.Errorf("%w: gtin must be %d digits, got %q", ErrValidation, GTINLength, s)
	}
	if !HasValidCheckDigit(gtin) {
		return "", fmt.Errorf("%w: gtin %s has an invalid check digit", ErrValidation, gtin)
	}
	return gtin, nil
}

// NormalizeGTIN strips non-digit characters and left-pads the result to 14 digits.
func NormalizeGTIN(s string) (string, error) {
	d := digitsOnly(s)
	if d == "" {
		return "", fmt.Errorf("%w: gtin %q has no digits", ErrValidation, s)
	}
	if len(d) > GTINLength {
		return "", fmt.Errorf("%w: gtin %q has more than %d digits", ErrValidation, s, GTINLength)
	}
	return strings.Repeat("0", GTINLength-len(d)) + d, nil
}

// NormalizeCompanyPrefix returns the 6-digit company prefix for a configured value.
// An empty value yields DefaultCompanyPrefix; spaces and hyphens are ignored.
func NormalizeCompanyPrefix(prefix string) (string, error) {
	p := strings.TrimSpace(prefix)
	if p == "" {
		return DefaultCompanyPrefix, nil
	}
	p = strings.NewReplacer(" ", "", "-", "").Replace(p)
	if len(p) != CompanyPrefixLength || !isDigits(p) {
		return "", fmt.Errorf("%w: company prefix %q is not %d digits", ErrConfiguration, prefix, CompanyPrefixLength)
	}
	return p, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
