package templates

import (
	"regexp"
	"strings"

	"testpulse/internal/types"
)

var (
	// tokenPattern captures everything between a pair of braces so that
	// malformed names are seen by validation instead of skipped.
	tokenPattern = regexp.MustCompile(`\{\{([^}]*)\}\}`)
	identPattern = regexp.MustCompile(`^\w+$`)
)

// Variables returns the distinct variable names referenced by body, in order
// of first appearance. Names are trimmed but otherwise not checked.
func Variables(body string) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for _, m := range tokenPattern.FindAllStringSubmatch(body, -1) {
		name := strings.TrimSpace(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ValidateTemplate checks a template for authoring errors: an empty body,
// unbalanced braces, variable names that are not identifiers, or a format the
// channel cannot carry. It returns a validation AppError describing the first
// problem found.
func ValidateTemplate(tmpl *types.NotificationTemplate) error {
	if tmpl == nil || strings.TrimSpace(tmpl.Body) == "" {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "template body must not be empty", nil)
	}

	opens := strings.Count(tmpl.Body, "{{")
	closes := strings.Count(tmpl.Body, "}}")
	if opens != closes {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidTemplate,
			"template has unbalanced braces", nil,
			map[string]any{"open": opens, "close": closes})
	}

	for _, name := range Variables(tmpl.Body) {
		if !identPattern.MatchString(name) {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidVariable,
				"template variable names may only contain letters, digits and underscores", nil,
				map[string]any{"variable": name})
		}
	}

	if !types.FormatCompatible(tmpl.Channel, tmpl.Format) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationIncompatible,
			"template format is not supported by the channel", nil,
			map[string]any{"channel": string(tmpl.Channel), "format": string(tmpl.Format)})
	}

	return nil
}

// IsValid is the boolean form of ValidateTemplate.
func IsValid(tmpl *types.NotificationTemplate) bool {
	return ValidateTemplate(tmpl) == nil
}
