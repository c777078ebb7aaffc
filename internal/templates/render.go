package templates

import (
	"encoding/json"
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"
	"time"

	"testpulse/internal/types"
)

var substitutionPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Renderer substitutes {{variable}} tokens. Rendering never fails: a missing
// variable becomes an empty string and is logged.
type Renderer struct {
	logger types.Logger
}

func NewRenderer(logger types.Logger) *Renderer {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Renderer{logger: logger}
}

// Render fills tmpl's body from vars. Values substituted into html templates
// are HTML-escaped.
func (r *Renderer) Render(tmpl *types.NotificationTemplate, vars map[string]any) string {
	if tmpl == nil {
		return ""
	}
	escape := tmpl.Format == types.FormatHTML
	return r.RenderString(tmpl.Body, vars, escape)
}

// RenderSubject fills the template subject. Subjects are plain text.
func (r *Renderer) RenderSubject(tmpl *types.NotificationTemplate, vars map[string]any) string {
	if tmpl == nil || tmpl.Subject == "" {
		return ""
	}
	return r.RenderString(tmpl.Subject, vars, false)
}

// RenderString substitutes tokens in an arbitrary body.
func (r *Renderer) RenderString(body string, vars map[string]any, escapeHTML bool) string {
	return substitutionPattern.ReplaceAllStringFunc(body, func(token string) string {
		name := substitutionPattern.FindStringSubmatch(token)[1]
		v, ok := vars[name]
		if !ok || isNil(v) {
			r.logger.Warn("template variable missing", "variable", name)
			return ""
		}
		s := FormatValue(v)
		if escapeHTML {
			s = html.EscapeString(s)
		}
		return s
	})
}

// FormatValue converts a context value to its rendered form: slices join
// with ", ", maps and structs become JSON, times use RFC 3339.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	case []byte:
		return string(t)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = FormatValue(rv.Index(i).Interface())
		}
		return strings.Join(parts, ", ")
	case reflect.Map, reflect.Struct:
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return fmt.Sprint(rv.Interface())
		}
		return string(b)
	default:
		return fmt.Sprint(rv.Interface())
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
