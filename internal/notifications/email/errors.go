// Package email delivers notifications over AWS SES. Requests arrive already
// rendered; this package composes the subject, plain-text and HTML parts and
// classifies provider failures.
package email

import (
	"errors"

	"testpulse/internal/retry"
	"testpulse/internal/types"
)

// ErrRecipientBlocked indicates the recipient is on a suppression list. It is
// never retried.
var ErrRecipientBlocked = errors.New("recipient blocked by provider")

// IsBlocklistError reports whether err means the provider refused the
// recipient, either via ErrRecipientBlocked or an ErrCodeEmailBlocked AppError.
func IsBlocklistError(err error) bool {
	if errors.Is(err, ErrRecipientBlocked) {
		return true
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == types.ErrCodeEmailBlocked
	}
	return false
}

// classify marks provider rejections as permanent so the retry layer stops.
func classify(err error) error {
	if IsBlocklistError(err) {
		return retry.Permanent(err)
	}
	return err
}
