package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hyperifyio/gopii/internal/pii"
)

// Report formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// renderJSON encodes a single document as its bare Result and several
// documents as an array of {id, result}.
func renderJSON(results []pii.DocumentResult) ([]byte, error) {
	if len(results) == 1 {
		return json.MarshalIndent(results[0].Result, "", "  ")
	}
	if results == nil {
		results = []pii.DocumentResult{}
	}
	return json.MarshalIndent(results, "", "  ")
}

// renderMarkdown lays out one section per document with a table per kind.
func renderMarkdown(results []pii.DocumentResult) string {
	var b strings.Builder
	b.WriteString("# PII extraction report\n")
	for _, r := range results {
		b.WriteString("\n## ")
		b.WriteString(r.ID)
		b.WriteString("\n\n### Names\n\n")
		if len(r.Result.Names) == 0 {
			b.WriteString("_none_\n")
		} else {
			b.WriteString("| Name | Pages |\n|---|---|\n")
			for _, n := range r.Result.Names {
				b.WriteString("| " + n.Name + " | " + joinPages(n.Pages) + " |\n")
			}
		}
		b.WriteString("\n### Cédulas\n\n")
		if len(r.Result.Cedulas) == 0 {
			b.WriteString("_none_\n")
		} else {
			b.WriteString("| Number | Pages |\n|---|---|\n")
			for _, c := range r.Result.Cedulas {
				b.WriteString("| " + c.Number + " | " + joinPages(c.Pages) + " |\n")
			}
		}
	}
	return b.String()
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}
