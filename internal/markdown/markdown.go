// Package markdown flattens the markdown that chat models like to emit into
// plain prose suitable for translation and JSON responses.
package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var (
	reTag        = regexp.MustCompile(`<[^>]*>`)
	reBlockClose = regexp.MustCompile(`(?i)</(?:p|h[1-6]|li|pre|blockquote|tr)>|<br\s*/?>`)
	reBlankRuns  = regexp.MustCompile(`\n{3,}`)
	reSpaceRuns  = regexp.MustCompile(`[ \t]+`)
)

// ToHTML renders md with the common extensions. Smartypants is off so
// apostrophes and quotes come back unchanged.
func ToHTML(md []byte) string {
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.FlagsNone})
	p := parser.NewWithExtensions(parser.CommonExtensions)
	return string(markdown.Render(p.Parse(md), renderer))
}

// ToPlainText drops markdown syntax (emphasis, headings, list markers, code
// fences) while keeping block boundaries as line breaks.
func ToPlainText(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	rendered := ToHTML([]byte(md))
	rendered = reBlockClose.ReplaceAllString(rendered, "$0\n")
	text := StripHTMLTags(rendered)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reSpaceRuns.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = reBlankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// StripHTMLTags removes tags and decodes entities such as &amp;.
func StripHTMLTags(htmlContent string) string {
	return html.UnescapeString(reTag.ReplaceAllString(htmlContent, ""))
}
