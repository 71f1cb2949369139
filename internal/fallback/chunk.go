package fallback

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkChars is the largest chunk sent to the detection service.
const DefaultChunkChars = 4500

// Piece is a chunk of text with its byte offset in the source.
type Piece struct {
	Text   string
	Offset int
}

// Chunk splits text into pieces of at most limit bytes. See Split.
func Chunk(text string, limit int) []string {
	pieces := Split(text, limit)
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Text
	}
	return out
}

// Split cuts text into pieces of at most limit bytes without breaking a UTF-8
// sequence. A cut prefers the last sentence end in the second half of the
// window, then the last whitespace, then the last rune boundary.
// Whitespace-only pieces are dropped. limit <= 0 means DefaultChunkChars.
func Split(text string, limit int) []Piece {
	if limit <= 0 {
		limit = DefaultChunkChars
	}
	var out []Piece
	offset := 0
	rest := text
	for len(rest) > 0 {
		cut := len(rest)
		if cut > limit {
			cut = bestCut(rest, limit)
		}
		if strings.TrimSpace(rest[:cut]) != "" {
			out = append(out, Piece{Text: rest[:cut], Offset: offset})
		}
		offset += cut
		rest = rest[cut:]
	}
	return out
}

func bestCut(s string, size int) int {
	limit := size
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	if limit == 0 {
		// a single rune longer than the limit; take it whole
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	window := s[:limit]
	// s, not window: a period on the window's last byte needs the byte after it
	for i := len(window) - 1; i >= limit/2; i-- {
		if isSentenceEnd(s, i) {
			return i + 1
		}
	}
	if i := strings.LastIndexFunc(window, unicode.IsSpace); i > 0 {
		_, size := utf8.DecodeRuneInString(window[i:])
		return i + size
	}
	return limit
}

// isSentenceEnd reports whether byte i closes a sentence: a newline, or
// terminal punctuation followed by whitespace. "Sr." and initials like "J."
// are not sentence ends.
func isSentenceEnd(s string, i int) bool {
	switch s[i] {
	case '\n':
		return true
	case '.', '!', '?':
	default:
		return false
	}
	if i+1 < len(s) && s[i+1] != ' ' && s[i+1] != '\n' {
		return false
	}
	if s[i] == '.' {
		start := i
		for start > 0 && isASCIILetter(s[start-1]) {
			start--
		}
		word := strings.ToLower(s[start:i])
		if len(word) == 1 || abbreviations[word] {
			return false
		}
	}
	return true
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

var abbreviations = map[string]bool{
	"sr": true, "sra": true, "srta": true, "dr": true, "dra": true, "no": true,
	"nro": true, "art": true, "num": true, "pag": true, "rad": true, "cc": true,
}
