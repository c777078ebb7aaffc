package sanitize

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter produces stable, non-reversible identifiers for contact data
// so a recipient can be correlated across log lines without logging the value.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a keyed fingerprinter. blake2b accepts keys of up
// to 64 bytes; longer keys are truncated.
func NewFingerprinter(key string) *Fingerprinter {
	k := []byte(key)
	if len(k) > blake2b.Size {
		k = k[:blake2b.Size]
	}
	return &Fingerprinter{key: k}
}

// Fingerprint returns 16 hex characters derived from the normalized value.
func (f *Fingerprinter) Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	h, err := blake2b.New(8, f.key)
	if err != nil {
		return ""
	}
	h.Write([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(h.Sum(nil))
}
