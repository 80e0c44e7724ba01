// Package markdown renders explanation markdown to HTML. Display math
// between $$ delimiters is passed through untouched for client-side
// rendering.
package markdown

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var mathSpan = regexp.MustCompile(`(?s)\$\$.+?\$\$`)

var renderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// ToHTML renders markdown. Raw HTML in the input is escaped by goldmark's
// default (unsafe disabled) renderer.
func ToHTML(md string) (string, error) {
	var spans []string
	protected := mathSpan.ReplaceAllStringFunc(md, func(s string) string {
		spans = append(spans, s)
		return placeholder(len(spans) - 1)
	})

	var buf bytes.Buffer
	if err := renderer.Convert([]byte(protected), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	out := buf.String()
	for i, s := range spans {
		out = strings.Replace(out, placeholder(i), html.EscapeString(s), 1)
	}
	return out, nil
}

func placeholder(i int) string {
	return fmt.Sprintf("MATHSPAN%dXEND", i)
}
