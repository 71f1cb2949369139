package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// manifestEntry is a compact record of a single input document.
type manifestEntry struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
	Pages  int    `json:"pages"`
}

// manifestMeta captures high-level run details that aid reproducibility.
type manifestMeta struct {
	Detector      string    `json:"detector"`
	Rules         string    `json:"rules"`
	DocumentCount int       `json:"document_count"`
	DetectCache   bool      `json:"detect_cache"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// computeSHA256Hex returns a lowercase hex-encoded SHA-256 of b.
func computeSHA256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// appendEmbeddedManifest appends a Markdown manifest section listing the
// inputs and the digest of their exact bytes.
func appendEmbeddedManifest(markdown string, meta manifestMeta, entries []manifestEntry) string {
	var b strings.Builder
	b.WriteString(markdown)
	b.WriteString("\n\n## Manifest\n\n")
	b.WriteString("- Detector: ")
	b.WriteString(orNone(meta.Detector))
	b.WriteString("\n- Rules: ")
	b.WriteString(orNone(meta.Rules))
	b.WriteString("\n- Documents: ")
	b.WriteString(strconv.Itoa(meta.DocumentCount))
	b.WriteString("\n- Detection cache: ")
	b.WriteString(strconv.FormatBool(meta.DetectCache))
	b.WriteString("\n- Generated: ")
	b.WriteString(meta.GeneratedAt.UTC().Format(time.RFC3339))
	b.WriteString("\n\n")

	for _, e := range entries {
		b.WriteString(strconv.Itoa(e.Index))
		b.WriteString(". ")
		b.WriteString(e.Path)
		b.WriteString(" (sha256=")
		b.WriteString(e.SHA256)
		b.WriteString("; bytes=")
		b.WriteString(strconv.Itoa(e.Bytes))
		b.WriteString("; pages=")
		b.WriteString(strconv.Itoa(e.Pages))
		b.WriteString(")\n")
	}
	return b.String()
}

// marshalManifestJSON encodes a machine-readable sidecar manifest.
func marshalManifestJSON(meta manifestMeta, entries []manifestEntry) ([]byte, error) {
	payload := struct {
		Meta   manifestMeta    `json:"meta"`
		Inputs []manifestEntry `json:"inputs"`
	}{Meta: meta, Inputs: entries}
	return json.MarshalIndent(payload, "", "  ")
}

// deriveManifestSidecarPath returns a sidecar JSON path next to the output.
func deriveManifestSidecarPath(outputPath string) string {
	return outputPath + ".manifest.json"
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return strings.TrimSpace(s)
}
