package gs1

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neverExists(context.Context, string) (bool, error) { return false, nil }

func TestCheckDigit(t *testing.T) {
	tests := []struct {
		base string
		want int
	}{
		{"0001234567890", 5},
		{"0123453193500", 8},
		{"0123450000000", 3},
		{"1234567890123", 1},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := CheckDigit(tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CheckDigit("123")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = CheckDigit("12345678901a3")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateKnownCandidate(t *testing.T) {
	gtin, err := NewGenerator().Generate(context.Background(), "012345", "SKU-001", neverExists)
	require.NoError(t, err)
	assert.Equal(t, "01234531935008", gtin)
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := NewGenerator()
	first, err := g.Generate(context.Background(), "012345", "SKU-001", neverExists)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), "012345", "SKU-001", neverExists)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "00", first[11:13], "first candidate uses index 0")
}

func TestGenerateDefaultPrefix(t *testing.T) {
	gtin, err := NewGenerator().Generate(context.Background(), "", "SKU-001", neverExists)
	require.NoError(t, err)
	assert.Equal(t, DefaultCompanyPrefix, gtin[:CompanyPrefixLength])
	assert.True(t, HasValidCheckDigit(gtin))
}

func TestGenerateChecksumAlwaysValid(t *testing.T) {
	g := NewGenerator()
	for i := 0; i < 500; i++ {
		sku := fmt.Sprintf("SKU-%05d", i)
		gtin, err := g.Generate(context.Background(), "861234", sku, neverExists)
		require.NoError(t, err)
		require.Len(t, gtin, GTINLength)

		check, err := CheckDigit(gtin[:13])
		require.NoError(t, err)
		assert.Equal(t, int(gtin[13]-'0'), check, "gtin %s", gtin)
		assert.True(t, HasValidCheckDigit(gtin))
	}
}

func TestGenerateSkipsCollisions(t *testing.T) {
	first, err := Candidate("012345", "SKU-001", 0)
	require.NoError(t, err)
	second, err := Candidate("012345", "SKU-001", 1)
	require.NoError(t, err)
	third, err := Candidate("012345", "SKU-001", 2)
	require.NoError(t, err)

	var seen []string
	exists := func(_ context.Context, gtin string) (bool, error) {
		seen = append(seen, gtin)
		return gtin == first || gtin == second, nil
	}

	got, err := NewGenerator().Generate(context.Background(), "012345", "SKU-001", exists)
	require.NoError(t, err)
	assert.Equal(t, third, got)
	assert.NotEqual(t, first, got)
	assert.NotEqual(t, second, got)
	assert.Equal(t, []string{first, second, third}, seen)
	assert.Equal(t, "01234531935015", second)
	assert.Equal(t, "01234531935022", got)
}

func TestGenerateFallsBackToSaltedHash(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 11, 27, 8, 0, 0, 0, time.UTC) }
	primary := "01234531935"

	exists := func(_ context.Context, gtin string) (bool, error) {
		return gtin[:11] == primary, nil
	}

	got, err := NewGeneratorWithClock(clock).Generate(context.Background(), "012345", "SKU-001", exists)
	require.NoError(t, err)

	salted := IdentifierHash(fmt.Sprintf("SKU-001%d", clock().UnixMilli()))
	assert.Equal(t, "180582", salted)
	assert.Equal(t, "0123458058200", got[:13])
	assert.True(t, HasValidCheckDigit(got))
}

func TestGenerateExhausted(t *testing.T) {
	calls := 0
	always := func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}

	_, err := NewGenerator().Generate(context.Background(), "012345", "SKU-001", always)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhaustedRetry))
	assert.Equal(t, 200, calls)
}

func TestGenerateExistenceCheckError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewGenerator().Generate(context.Background(), "012345", "SKU-001",
		func(context.Context, string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	g := NewGenerator()

	_, err := g.Generate(context.Background(), "12AB56", "SKU-001", neverExists)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = g.Generate(context.Background(), "1234567", "SKU-001", neverExists)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = g.Generate(context.Background(), "012345", "   ", neverExists)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizeCompanyPrefix(t *testing.T) {
	p, err := NormalizeCompanyPrefix("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCompanyPrefix, p)

	p, err = NormalizeCompanyPrefix(" 012-345 ")
	require.NoError(t, err)
	assert.Equal(t, "012345", p)

	_, err = NormalizeCompanyPrefix("01234")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestIdentifierHash(t *testing.T) {
	assert.Equal(t, "531935", IdentifierHash("SKU-001"))
	assert.Equal(t, "000000", IdentifierHash(""))
	assert.Len(t, IdentifierHash("a very long product identifier that overflows int32 many times"), 6)
}

func TestIsValidGTIN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"fourteen digits", "00012345678905", true},
		{"fourteen digits with separators", "0-0012345-67890-5", true},
		{"empty", "", false},
		{"thirteen digits", "0001234567890", false},
		{"fifteen digits", "000123456789051", false},
		{"letters only", "ABCDEFGHIJKLMN", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidGTIN(tt.input))
		})
	}
}

func TestValidateGTIN(t *testing.T) {
	gtin, err := ValidateGTIN(" 00012345678905 ")
	require.NoError(t, err)
	assert.Equal(t, "00012345678905", gtin)

	_, err = ValidateGTIN("00012345678904")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ValidateGTIN("0001234567890")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizeGTIN(t *testing.T) {
	gtin, err := NormalizeGTIN("123")
	require.NoError(t, err)
	assert.Equal(t, "00000000000123", gtin)

	_, err = NormalizeGTIN("123456789012345")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NormalizeGTIN("--")
	assert.ErrorIs(t, err, ErrValidation)
}
