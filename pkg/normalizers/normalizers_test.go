package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		country  string
		expected string
		wantErr  error
	}{
		{
			name:     "international with spaces",
			raw:      "+44 7473 880264",
			country:  "GB",
			expected: "+447473880264",
		},
		{
			name:     "national with trunk zero",
			raw:      "07473880264",
			country:  "GB",
			expected: "+447473880264",
		},
		{
			name:     "double zero international prefix",
			raw:      "00447473880264",
			country:  "US",
			expected: "+447473880264",
		},
		{
			name:     "us national with punctuation",
			raw:      "(555) 867-5309",
			country:  "US",
			expected: "+15558675309",
		},
		{
			name:    "too few digits",
			raw:     "12345",
			country: "GB",
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "too many digits",
			raw:     "+12345678901234567890",
			country: "GB",
			wantErr: ErrInvalidPhone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, tt.country)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizePhoneIsConfluent(t *testing.T) {
	a, err := NormalizePhone("+44 7473 880264", "GB")
	require.NoError(t, err)
	b, err := NormalizePhone("07473880264", "GB")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		wantErr  error
	}{
		{
			name:     "uppercase with whitespace",
			raw:      "  George.Roberts@Example.COM ",
			expected: "george.roberts@example.com",
		},
		{
			name:    "missing at sign",
			raw:     "george.example.com",
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "two at signs",
			raw:     "george@roberts@example.com",
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "empty domain",
			raw:     "george@",
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "empty local part",
			raw:     "@example.com",
			wantErr: ErrInvalidEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEmail(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"case folds", "George Roberts", "george roberts"},
		{"collapses whitespace", "george   roberts", "george roberts"},
		{"strips punctuation", "O'Brien, George R.", "obrien george r"},
		{"empty string is valid", "", ""},
		{"only punctuation", "...!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.raw))
		})
	}
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "georger", NormalizeHandle("@GeorgeR"))
	assert.Equal(t, "georger", NormalizeHandle("  georger "))
}

func TestNormalizeDispatch(t *testing.T) {
	got, err := Normalize(models.IdentifierTypePhone, "07473880264", "GB")
	require.NoError(t, err)
	assert.Equal(t, "+447473880264", got)

	got, err = Normalize(models.IdentifierTypeEmail, "A@B.com", "GB")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got)

	got, err = Normalize(models.IdentifierTypeName, "George  R.", "GB")
	require.NoError(t, err)
	assert.Equal(t, "george r", got)

	got, err = Normalize(models.IdentifierTypeHandle, "@GeorgeR", "GB")
	require.NoError(t, err)
	assert.Equal(t, "georger", got)

	_, err = Normalize(models.IdentifierType("ssn"), "123", "GB")
	assert.ErrorIs(t, err, ErrUnknownIdentifierType)
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "georger", ApplyChain(" @GeorgeR ", "trim", "nhandle"))
}
