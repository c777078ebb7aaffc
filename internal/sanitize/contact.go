// Package sanitize validates user-supplied contact data and scrubs PII and
// credentials from text bound for logs or outgoing messages.
package sanitize

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"testpulse/internal/security"
	"testpulse/internal/types"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var validate = validator.New()

// ValidateEmail trims and lower-cases the address and checks its syntax.
func ValidateEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var(normalized, "required,email"); err != nil {
		return "", types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid email address", err)
	}
	return normalized, nil
}

// NormalizePhone strips formatting characters and returns the number in
// +<digits> form. Between 10 and 15 digits are accepted.
func NormalizePhone(phone string) (string, error) {
	trimmed := strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			return "", types.NewAppError(types.ErrCodeValidationInvalidPhone, "phone number contains invalid characters", nil)
		}
	}
	digits := b.String()
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPhone,
			"phone number must have between 10 and 15 digits", nil,
			map[string]any{"digits": len(digits)})
	}
	return "+" + digits, nil
}

// ValidateURL accepts http and https URLs whose host is not local or inside a
// private or reserved range. Hostnames are not resolved here; the delivery
// transport re-checks resolved addresses at dial time.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidWebhook, "URL does not parse", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return types.NewAppError(types.ErrCodeValidationInvalidWebhook, "URL must use http or https", nil)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return types.NewAppError(types.ErrCodeValidationInvalidWebhook, "URL has no host", nil)
	}
	if isLocalHostname(host) {
		return types.NewAppError(types.ErrCodeValidationInvalidWebhook, "URL points to a local host", nil)
	}
	if ip := net.ParseIP(host); ip != nil && security.IsBlockedIP(ip) {
		return types.NewAppError(types.ErrCodeValidationInvalidWebhook, "URL points to a private address", nil)
	}
	return nil
}

func isLocalHostname(host string) bool {
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal")
}

// RedactEmail masks the local part for logging: "jane@example.com" becomes
// "j***@example.com". Strings without "@" are masked entirely.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	first, size := utf8.DecodeRuneInString(local)
	if first == utf8.RuneError && size <= 1 {
		return "***@" + domain
	}
	return local[:size] + "***@" + domain
}

// RedactPhone keeps only the last four digits.
func RedactPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
