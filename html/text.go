package html

import (
	"strings"

	css "github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Elements whose content isn't meant for the reader
var hidden = css.MustCompile("head, script, style, template")

// Elements that start on a new line
var blocks = map[string]struct{}{
	"address": {}, "article": {}, "blockquote": {}, "div": {}, "dl": {},
	"dt": {}, "dd": {}, "footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {},
	"h5": {}, "h6": {}, "header": {}, "hr": {}, "li": {}, "ol": {}, "p": {},
	"pre": {}, "section": {}, "table": {}, "tr": {}, "ul": {},
}

// PlainText renders an HTML email body as readable text for the text/plain
// part of a message. Links keep their target in parentheses and list items
// get a leading dash. If body can't be parsed, it is returned unchanged.
func PlainText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}

	for _, n := range hidden.MatchAll(doc) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}

	var sb strings.Builder
	writeText(&sb, doc)
	return tidy(sb.String())
}

// writeText appends the readable text of n and its children to sb.
func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(strings.Join(strings.Fields(n.Data), " "))
		// Keep the space between adjacent inline runs
		if strings.TrimRight(n.Data, " \t\r\n") != n.Data {
			sb.WriteByte(' ')
		}
		return
	case html.ElementNode:
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(sb, c)
		}
		return
	default:
		return
	}

	if n.Data == "br" {
		sb.WriteByte('\n')
		return
	}

	_, block := blocks[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	if n.Data == "li" {
		sb.WriteString("- ")
	}

	if n.Data == "a" {
		var inner strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(&inner, c)
		}
		t := strings.TrimSpace(inner.String())
		sb.WriteString(t)
		if h := attr(n, "href"); h != "" && h != t {
			sb.WriteString(" (" + h + ")")
		}
		sb.WriteByte(' ')
	} else {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(sb, c)
		}
	}

	if block {
		sb.WriteByte('\n')
	}
}

// attr returns the value of n's attribute named key, if any.
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// tidy trims every line and squeezes runs of blank lines into one.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true // drop leading blank lines
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
