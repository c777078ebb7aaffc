package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testpulse/internal/types"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

func TestRenderer_DetailsTableIsEscaped(t *testing.T) {
	r := newRenderer(t)

	out, err := r.Render(&types.NotificationRequest{
		Title:   "Test failed",
		Message: "Login test failed",
		Data: map[string]any{
			"<key>":         "<script>alert(1)</script>",
			"affectedTests": []string{"tc1", "tc2"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Test failed", out.Subject)
	assert.Contains(t, out.BodyHTML, "&lt;key&gt;")
	assert.Contains(t, out.BodyHTML, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, out.BodyHTML, "<script>")
	assert.Contains(t, out.BodyHTML, "tc1, tc2")
	assert.Contains(t, out.BodyHTML, "Login test failed")
}

func TestRenderer_PrerenderedHTMLIsUsed(t *testing.T) {
	r := newRenderer(t)

	out, err := r.Render(&types.NotificationRequest{
		Title:    "Alert",
		Message:  "plain fallback",
		HTMLBody: "<p><strong>Suite failing</strong></p>",
	})
	require.NoError(t, err)

	assert.Contains(t, out.BodyHTML, "<p><strong>Suite failing</strong></p>")
	assert.NotContains(t, out.BodyHTML, "plain fallback")
	assert.Equal(t, "plain fallback", out.BodyText)
}

func TestRenderer_PlainTextListsDetailsInKeyOrder(t *testing.T) {
	r := newRenderer(t)

	out, err := r.Render(&types.NotificationRequest{
		Message: "Suite failing",
		Data:    map[string]any{"zeta": 1, "alpha": "a"},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultSubject, out.Subject)
	assert.Equal(t, "Suite failing\n\nalpha: a\nzeta: 1\n", out.BodyText)
	assert.Less(t, strings.Index(out.BodyHTML, "alpha"), strings.Index(out.BodyHTML, "zeta"))
}

func TestRenderer_NilRequest(t *testing.T) {
	_, err := newRenderer(t).Render(nil)
	assert.Error(t, err)
}
