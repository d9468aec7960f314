// Package richtext converts note contents between the editor's HTML, Markdown and plain text.
package richtext

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"sync"

	mdconv "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithXHTML()),
	)

	ugcPolicy    = newUGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()

	// bluemonday policies are safe for concurrent use once built; the converter is not documented as such.
	converterMu sync.Mutex
	converter   = mdconv.NewConverter("", true, nil)

	blockEndRegex  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|ul|ol|table)>|<br\s*/?>`)
	blankLineRegex = regexp.MustCompile(`\n{3,}`)
	spaceRegex     = regexp.MustCompile(`[ \t]+`)
)

func newUGCPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// editor highlights and task lists
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[\w\- ]+$`)).OnElements("span", "code", "pre", "ul", "li")
	p.AllowAttrs("type", "checked", "disabled").OnElements("input")
	p.AllowElements("mark", "u", "s")
	return p
}

// MarkdownToHTML renders GitHub flavored markdown into sanitized HTML.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", errors.Wrap(err, "rendering markdown")
	}
	return Sanitize(buf.String()), nil
}

// Sanitize strips anything unsafe from user or model supplied HTML.
func Sanitize(s string) string {
	return ugcPolicy.Sanitize(s)
}

// HTMLToMarkdown converts note contents into Markdown.
func HTMLToMarkdown(s string) (string, error) {
	converterMu.Lock()
	defer converterMu.Unlock()
	out, err := converter.ConvertString(s)
	if err != nil {
		return "", errors.Wrap(err, "converting html to markdown")
	}
	return strings.TrimSpace(out), nil
}

// PlainText returns the text of an HTML fragment, one block per line.
func PlainText(s string) string {
	s = blockEndRegex.ReplaceAllStringFunc(s, func(m string) string { return m + "\n" })
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRegex.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLineRegex.ReplaceAllString(s, "\n\n"))
}

// Snippet returns up to n runes of plain text around the first match of query (case-insensitive).
func Snippet(s, query string, n int) string {
	text := []rune(strings.Join(strings.Fields(PlainText(s)), " "))
	if len(text) <= n {
		return string(text)
	}
	start := 0
	if query != "" {
		if idx := strings.Index(strings.ToLower(string(text)), strings.ToLower(query)); idx >= 0 {
			start = len([]rune(string(text)[:idx])) - n/4
		}
	}
	if start < 0 {
		start = 0
	}
	if start+n > len(text) {
		start = len(text) - n
	}
	out := string(text[start : start+n])
	if start > 0 {
		out = "…" + out
	}
	if start+n < len(text) {
		out += "…"
	}
	return out
}
