package service

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts stored comment bodies to sanitized HTML. Bodies are
// stored as markdown source; HTML is a projection computed on read, and
// sanitization happens on output so stored source is never escaped twice.
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

func NewRenderer() *Renderer {
	return &Renderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// SanitizeInput normalizes a submitted body before moderation and storage.
func (r *Renderer) SanitizeInput(body string) string {
	body = strings.ReplaceAll(body, "\x00", "")
	return strings.TrimSpace(body)
}

// RenderHTML renders the stored body to sanitized HTML. Render failures
// return an empty string and the caller serves the plain body.
func (r *Renderer) RenderHTML(body string) string {
	if body == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(body), &buf); err != nil {
		return ""
	}
	return r.policy.Sanitize(buf.String())
}
