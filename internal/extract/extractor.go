package extract

import (
	"path/filepath"
	"strings"
)

// Loader turns the output of an upstream PDF-to-text tool into pages.
// Implementations should be deterministic and avoid side effects.
type Loader interface {
	Load(input []byte) ([]Page, error)
}

// TextLoader reads pdftotext plain output (pages split by form feed).
type TextLoader struct{}

func (TextLoader) Load(input []byte) ([]Page, error) { return FromText(input), nil }

// HTMLLoader reads pdftotext -bbox/-bbox-layout XHTML or plain HTML.
type HTMLLoader struct{}

func (HTMLLoader) Load(input []byte) ([]Page, error) { return FromHTML(input), nil }

// JSONLoader reads a JSON array of {"page", "text"} objects.
type JSONLoader struct{}

func (JSONLoader) Load(input []byte) ([]Page, error) { return FromJSON(input) }

// ForPath picks a loader by file extension, defaulting to plain text.
func ForPath(path string) Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSONLoader{}
	case ".html", ".htm", ".xhtml":
		return HTMLLoader{}
	default:
		return TextLoader{}
	}
}
