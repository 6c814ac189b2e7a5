// SPDX-License-Identifier: AGPL-3.0-only
package helpers

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// APITimeLayouts are the timestamp shapes the API has been seen to send.
var APITimeLayouts = []string{
	"2006-01-02T15:04:05.000000Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// StripHTMLToText flattens markup into single-spaced text. Script and style
// bodies are dropped.
func StripHTMLToText(input string) string {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return ""
	}

	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if b.Len() > 0 {
					b.WriteString(" ")
				}
				b.WriteString(text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return strings.Join(strings.Fields(b.String()), " ")
}

// Excerpt returns the plain text of content cut to at most max runes,
// ending in "..." when something was cut.
func Excerpt(content string, max int) string {
	text := StripHTMLToText(content)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 3 {
		return string([]rune(text)[:max])
	}

	cut := []rune(text)[:max-3]
	s := strings.TrimRight(string(cut), " ")
	if i := strings.LastIndex(s, " "); i > len(s)/2 {
		s = s[:i]
	}
	return s + "..."
}

func ParseAPITime(raw string) (time.Time, bool) {
	for _, layout := range APITimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatAPITime renders a server timestamp for the terminal in loc. Values
// that do not parse are returned unchanged.
func FormatAPITime(raw string, loc *time.Location) string {
	t, ok := ParseAPITime(raw)
	if !ok {
		return raw
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
