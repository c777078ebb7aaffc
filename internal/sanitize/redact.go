package sanitize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Rule is one redaction step. Replacement may reference capture groups ($1).
type Rule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// DefaultMessageRules strip credentials. They run on anything sent to users
// or third parties.
var DefaultMessageRules = []Rule{
	{Pattern: `AKIA[0-9A-Z]{16}`, Replacement: "[REDACTED_AWS_KEY]"},
	{Pattern: `eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`, Replacement: "[REDACTED_JWT]"},
	{Pattern: `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`, Replacement: "Bearer [REDACTED]"},
	{Pattern: `(?i)(password|passwd|secret|api[_-]?key|token)(["']?\s*[:=]\s*["']?)[^\s"',&]+`, Replacement: "${1}${2}[REDACTED]"},
}

// DefaultLogRules add contact PII on top of the credential rules.
var DefaultLogRules = append(append([]Rule{}, DefaultMessageRules...),
	Rule{Pattern: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, Replacement: "[REDACTED_EMAIL]"},
	Rule{Pattern: `\+\d{10,15}\b`, Replacement: "[REDACTED_PHONE]"},
)

// sensitiveKeys are map keys whose values are dropped wholesale by RedactMap.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"apikey":        {},
	"api_key":       {},
	"authorization": {},
	"bearertoken":   {},
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// Redactor applies an ordered rule list. It is safe for concurrent use.
type Redactor struct {
	rules []compiledRule
}

// NewRedactor compiles rules in order. An empty list yields a no-op redactor.
func NewRedactor(rules []Rule) (*Redactor, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction rule %d: %w", i, err)
		}
		compiled = append(compiled, compiledRule{re: re, replacement: r.Replacement})
	}
	return &Redactor{rules: compiled}, nil
}

// ParseRules decodes a JSON rule list. Empty input returns fallback.
func ParseRules(raw string, fallback []Rule) ([]Rule, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	var rules []Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("parsing redaction rules: %w", err)
	}
	return rules, nil
}

// NewRedactorFromJSON is ParseRules followed by NewRedactor.
func NewRedactorFromJSON(raw string, fallback []Rule) (*Redactor, error) {
	rules, err := ParseRules(raw, fallback)
	if err != nil {
		return nil, err
	}
	return NewRedactor(rules)
}

// RedactString runs every rule over s in order.
func (r *Redactor) RedactString(s string) string {
	if r == nil || s == "" {
		return s
	}
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.replacement)
	}
	return s
}

// RedactMap returns a deep copy of m with sensitive keys masked and every
// string value redacted. The input is not modified.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.RedactString(val)
	case map[string]any:
		return r.RedactMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = r.redactValue(item)
		}
		return cp
	case []string:
		cp := make([]string, len(val))
		for i, item := range val {
			cp[i] = r.RedactString(item)
		}
		return cp
	default:
		return v
	}
}
