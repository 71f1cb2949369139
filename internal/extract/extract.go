package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Page is the text of one PDF page. Number starts at 1.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// FromText splits pdftotext plain output into pages on form feeds. A trailing
// form feed does not produce an empty last page.
func FromText(input []byte) []Page {
	s := string(input)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]Page, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages
}

// FromJSON reads [{"page": n, "text": "..."}]. Pages without a number are
// numbered by position; the result is ordered by page number.
func FromJSON(input []byte) ([]Page, error) {
	var pages []Page
	if err := json.Unmarshal(input, &pages); err != nil {
		return nil, fmt.Errorf("parse pages json: %w", err)
	}
	for i := range pages {
		if pages[i].Number <= 0 {
			pages[i].Number = i + 1
		}
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// FromHTML reads pdftotext -bbox or -bbox-layout XHTML, producing one Page
// per <page> element. Words are joined by spaces and lines by newlines; for
// plain -bbox output a new line starts when a word's yMin moves. Input with
// no <page> elements is treated as a single HTML page, preferring <main> or
// <article> and skipping boilerplate like <nav> and <footer>.
func FromHTML(input []byte) []Page {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return nil
	}
	pageNodes := findAll(node, "page")
	if len(pageNodes) == 0 {
		content := findFirst(node, "main")
		if content == nil {
			content = findFirst(node, "article")
		}
		if content == nil {
			content = findFirst(node, "body")
		}
		if content == nil {
			return nil
		}
		var b strings.Builder
		collectText(&b, content, false)
		text := normalizeWhitespace(b.String())
		if text == "" {
			return nil
		}
		return []Page{{Number: 1, Text: text}}
	}
	pages := make([]Page, 0, len(pageNodes))
	for i, p := range pageNodes {
		pages = append(pages, Page{Number: i + 1, Text: pageText(p)})
	}
	return pages
}

func pageText(page *html.Node) string {
	lines := findAll(page, "line")
	var out []string
	if len(lines) > 0 {
		for _, l := range lines {
			if s := joinWords(findAll(l, "word")); s != "" {
				out = append(out, s)
			}
		}
		return strings.Join(out, "\n")
	}
	// plain -bbox: words only, break on vertical movement
	var cur []*html.Node
	lastY := -1.0
	for _, w := range findAll(page, "word") {
		y := attrFloat(w, "ymin")
		if len(cur) > 0 && absDiff(y, lastY) > 2.0 {
			out = append(out, joinWords(cur))
			cur = cur[:0]
		}
		cur = append(cur, w)
		lastY = y
	}
	if len(cur) > 0 {
		out = append(out, joinWords(cur))
	}
	return strings.Join(out, "\n")
}

func joinWords(words []*html.Node) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if s := strings.TrimSpace(nodeText(w)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attrFloat(n *html.Node, key string) float64 {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			f, err := strconv.ParseFloat(strings.TrimSpace(a.Val), 64)
			if err == nil {
				return f
			}
		}
	}
	return 0
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func findAll(n *html.Node, tag string) []*html.Node {
	var res []*html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = append(res, cur)
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
		}
	}
	dfs(n)
	return res
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "nav", "footer", "aside", "iframe", "head":
			return
		case "pre":
			inPre = true
		case "br", "hr", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString(" ")
		}
	}
	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
		case "li", "tr", "pre":
			b.WriteString("\n")
		}
	}
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			// keep at most one consecutive blank
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, strings.Join(strings.Fields(trimmed), " "))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
