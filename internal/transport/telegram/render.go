package telegram

import (
	"html"
	"regexp"
	"strings"

	kit "classbot/internal/transport"
)

var mdLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)

// renderHTML renders a message in Telegram's HTML subset.
func renderHTML(m kit.Message) string {
	d := m.Document
	var b strings.Builder
	if m.Header != "" {
		b.WriteString("<b>" + html.EscapeString(m.Header) + "</b>\n\n")
	}
	if d.Author.Name != "" {
		b.WriteString("<i>" + link(d.Author.Name, d.Author.URL) + "</i>\n")
	}
	if d.Title != "" {
		b.WriteString("<b>" + link(d.Title, d.URL) + "</b>\n")
	}
	if d.Description != "" {
		b.WriteString(html.EscapeString(d.Description) + "\n")
	}
	for _, f := range d.Fields {
		b.WriteString("\n<b>" + html.EscapeString(f.Name) + "</b>\n")
		b.WriteString(markdownLinks(f.Value))
		if !strings.HasSuffix(f.Value, "\n") {
			b.WriteString("\n")
		}
	}
	footer := d.Footer.Text
	if !d.Timestamp.IsZero() {
		footer = strings.TrimSpace(footer + " " + d.Timestamp.UTC().Format("2006-01-02 15:04 UTC"))
	}
	if footer != "" {
		b.WriteString("\n<i>" + html.EscapeString(footer) + "</i>")
	}
	return strings.TrimRight(b.String(), "\n")
}

func link(text, url string) string {
	if url == "" {
		return html.EscapeString(text)
	}
	return `<a href="` + html.EscapeString(url) + `">` + html.EscapeString(text) + "</a>"
}

// markdownLinks turns "[title](url)" spans into anchors and escapes the rest.
func markdownLinks(s string) string {
	var b strings.Builder
	last := 0
	for _, m := range mdLink.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(html.EscapeString(s[last:m[0]]))
		b.WriteString(link(s[m[2]:m[3]], s[m[4]:m[5]]))
		last = m[1]
	}
	b.WriteString(html.EscapeString(s[last:]))
	return b.String()
}
