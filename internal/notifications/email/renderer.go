package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"testpulse/internal/templates"
	"testpulse/internal/types"
)

//go:embed layout/base.html
var layoutFS embed.FS

// DefaultSubject is used when a request carries no title.
const DefaultSubject = "TestPulse notification"

// RenderedEmail holds the composed parts ready for the provider.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

type detailRow struct {
	Key   string
	Value string
}

type layoutData struct {
	Title    string
	Message  string
	HTMLBody template.HTML
	Details  []detailRow
}

// Renderer wraps notification requests in the HTML layout. Details keys and
// values are escaped by html/template; a pre-rendered HTMLBody is inserted
// verbatim because templates escape their own variables.
type Renderer struct {
	layout *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(layoutFS, "layout/base.html")
	if err != nil {
		return nil, fmt.Errorf("email renderer: failed to parse layout: %w", err)
	}
	return &Renderer{layout: tmpl}, nil
}

func (r *Renderer) Render(req *types.NotificationRequest) (*RenderedEmail, error) {
	if req == nil {
		return nil, fmt.Errorf("email renderer: request is nil")
	}

	subject := strings.TrimSpace(req.Title)
	if subject == "" {
		subject = DefaultSubject
	}
	rows := detailRows(req.Data)

	var buf bytes.Buffer
	err := r.layout.Execute(&buf, layoutData{
		Title:    subject,
		Message:  req.Message,
		HTMLBody: template.HTML(req.HTMLBody),
		Details:  rows,
	})
	if err != nil {
		return nil, fmt.Errorf("email renderer: failed to render layout: %w", err)
	}

	return &RenderedEmail{
		Subject:  subject,
		BodyHTML: buf.String(),
		BodyText: plainText(req.Message, rows),
	}, nil
}

func detailRows(data map[string]any) []detailRow {
	if len(data) == 0 {
		return nil
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]detailRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, detailRow{Key: k, Value: templates.FormatValue(data[k])})
	}
	return rows
}

func plainText(message string, rows []detailRow) string {
	var b strings.Builder
	b.WriteString(message)
	if len(rows) > 0 {
		b.WriteString("\n\n")
		for _, row := range rows {
			fmt.Fprintf(&b, "%s: %s\n", row.Key, row.Value)
		}
	}
	return b.String()
}
