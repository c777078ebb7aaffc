package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (webhook API key, bearer token) and renders
// as a placeholder through fmt and encoding/json so config dumps and log
// lines never carry the raw value. Call Unmask at the point of use.
type SecretString string

// String returns the placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw value.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}

// BlockedCIDRs are the address ranges outbound webhooks and user-supplied URLs
// may never resolve to.
var BlockedCIDRs = []string{
	"127.0.0.0/8",    // loopback
	"10.0.0.0/8",     // private
	"172.16.0.0/12",  // private
	"192.168.0.0/16", // private
	"169.254.0.0/16", // link-local, instance metadata
	"0.0.0.0/8",
	"224.0.0.0/4",  // multicast
	"240.0.0.0/4",  // reserved
	"100.64.0.0/10", // CGN
	"198.18.0.0/15",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
}
