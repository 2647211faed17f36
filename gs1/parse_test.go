package gs1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    ScanResult
		wantErr bool
	}{
		{
			name: "bracketed with expiry",
			code: "(01)00012345678905(17)261231(10)LOT-123",
			want: ScanResult{GTIN: "00012345678905", Expiry: "261231", LotNumber: "LOT-123"},
		},
		{
			name: "human readable spacing",
			code: "(01) 00012345678905 (10) 01000007",
			want: ScanResult{GTIN: "00012345678905", LotNumber: "01000007"},
		},
		{
			name: "element string with symbology id",
			code: "]C1010001234567890517261231" + "10LOT-123",
			want: ScanResult{GTIN: "00012345678905", Expiry: "261231", LotNumber: "LOT-123"},
		},
		{
			name: "lot terminated by group separator",
			code: "01000123456789051001000007\x1d17261231",
			want: ScanResult{GTIN: "00012345678905", Expiry: "261231", LotNumber: "01000007"},
		},
		{
			name: "ean13",
			code: "4901234567894",
			want: ScanResult{GTIN: "04901234567894"},
		},
		{name: "empty", code: "   ", wantErr: true},
		{name: "unknown leading ai", code: "21000123456789051", wantErr: true},
		{name: "short numeric code", code: "0100012345", want: ScanResult{GTIN: "00000100012345"}},
		{name: "truncated element string", code: "010001234567890517", wantErr: true},
		{name: "no gtin in brackets", code: "(10)LOT-123", wantErr: true},
		{name: "unsupported element ai", code: "010001234567890521ABC", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.code)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseRoundTripsAssemble(t *testing.T) {
	p, err := Assemble("00012345678905", "01000007", "261231")
	require.NoError(t, err)

	for _, code := range []string{p.Encoded, p.HumanReadable, p.ElementString} {
		got, err := Parse(code)
		require.NoError(t, err, code)
		assert.Equal(t, p.GTIN, got.GTIN)
		assert.Equal(t, p.Expiry, got.Expiry)
		assert.Equal(t, p.LotNumber, got.LotNumber)
	}
}
