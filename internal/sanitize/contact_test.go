package sanitize

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testpulse/internal/types"
)

func TestValidateEmail(t *testing.T) {
	got, err := ValidateEmail("  Jane.Doe@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", got)

	for _, bad := range []string{"", "jane", "jane@", "@example.com", "jane doe@example.com"} {
		_, err := ValidateEmail(bad)
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr), "input %q", bad)
		assert.Equal(t, types.ErrCodeValidationInvalidEmail, appErr.Code)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"nine digits rejected", "555123456", "", true},
		{"ten digits accepted", "5551234567", "+5551234567", false},
		{"formatted US number", "+1 (555) 123-4567", "+15551234567", false},
		{"fifteen digits accepted", "123456789012345", "+123456789012345", false},
		{"sixteen digits rejected", "1234567890123456", "", true},
		{"letters rejected", "555-CALL-NOW", "", true},
		{"plus in the middle rejected", "555+1234567", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				var appErr *types.AppError
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, types.ErrCodeValidationInvalidPhone, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone_AllLengthsInRange(t *testing.T) {
	digits := "123456789012345"
	for n := 10; n <= 15; n++ {
		_, err := NormalizePhone(digits[:n])
		assert.NoError(t, err, "%d digits", n)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://hooks.example.com/testpulse", true},
		{"http://automation.example.org:8080/in", true},
		{"http://192.168.1.5/hook", false},
		{"http://10.0.0.1/hook", false},
		{"http://169.254.169.254/latest/meta-data", false},
		{"http://[::1]:8080/", false},
		{"http://localhost:3000/", false},
		{"http://build.internal/hook", false},
		{"ftp://files.example.com/", false},
		{"https://", false},
		{"://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, types.ErrCodeValidationInvalidWebhook, appErr.Code)
		})
	}
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", RedactEmail("jane@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("@example.com"))
	assert.Equal(t, "***", RedactEmail("no-at-sign"))
	assert.Equal(t, "", RedactEmail(""))

	masked := RedactEmail("élodie@example.fr")
	assert.Equal(t, "é***@example.fr", masked)
	assert.True(t, utf8.ValidString(masked))
	assert.Equal(t, "***@example.com", RedactEmail("\xffjane@example.com"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***4567", RedactPhone("+15551234567"))
	assert.Equal(t, "***", RedactPhone("123"))
}
