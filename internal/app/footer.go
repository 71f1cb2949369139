package app

import (
	"strconv"
	"strings"
)

// appendReproFooter appends a minimal, deterministic footer that records
// the detection backend, the number of documents and whether the detection
// cache was active.
func appendReproFooter(markdown string, detector string, documents int, detectCache bool) string {
	if strings.TrimSpace(detector) == "" {
		detector = "none"
	}
	var b strings.Builder
	b.WriteString(markdown)
	b.WriteString("\n\n---\n")
	b.WriteString("Reproducibility: ")
	b.WriteString("detector=")
	b.WriteString(strings.TrimSpace(detector))
	b.WriteString("; documents=")
	b.WriteString(strconv.Itoa(documents))
	b.WriteString("; detect_cache=")
	b.WriteString(strconv.FormatBool(detectCache))
	b.WriteString("\n")
	return b.String()
}
