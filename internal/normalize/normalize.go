// Package normalize cleans OCR page text and derives the folded forms used
// for matching and deduplication.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var glyphs = strings.NewReplacer(
	// ligatures
	"\ufb00", "ff",
	"\ufb01", "fi",
	"\ufb02", "fl",
	"\ufb03", "ffi",
	"\ufb04", "ffl",
	// invisible marks and noise glyphs
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u200e", "",
	"\u200f", "",
	"\u2060", "",
	"\ufeff", "",
	"\u00ad", "",
	"\u00ae", "",
	// quotes
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u00ab", `"`,
	"\u00bb", `"`,
	"\u2018", "'",
	"\u2019", "'",
	"\u201a", "'",
	"\u2032", "'",
	// spaces
	"\u00a0", " ",
	"\u2007", " ",
	"\u202f", " ",
	"\t", " ",
)

var (
	// "Sefior", "Senor", "SEFIOR", "Sefiora": common OCR misreadings of "señor".
	senorRe      = regexp.MustCompile(`(?i)(^|[^\p{L}])(s)(e)(?:fi|fl|n)(o)(r)(a|es|as)?([^\p{L}]|$)`)
	hyphenWrapRe = regexp.MustCompile(`(\p{L})-[ ]*\n[ ]*(\p{L})`)
	spacesRe     = regexp.MustCompile(` {2,}`)
	edgeSpaceRe  = regexp.MustCompile(` *\n *`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// Text normalizes raw OCR page text. It never fails; empty input yields "".
func Text(s string) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = glyphs.Replace(s)
	s = norm.NFC.String(s)
	s = fixSenor(s)
	s = hyphenWrapRe.ReplaceAllString(s, "$1$2")
	s = spacesRe.ReplaceAllString(s, " ")
	s = edgeSpaceRe.ReplaceAllString(s, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func fixSenor(s string) string {
	// The trailing boundary is consumed, so run twice to catch "Senor Senor".
	for i := 0; i < 2; i++ {
		s = senorRe.ReplaceAllStringFunc(s, func(m string) string {
			sub := senorRe.FindStringSubmatch(m)
			lead, tail, suffix := sub[1], sub[7], sub[6]
			word := "señor" + strings.ToLower(suffix)
			switch {
			case isUpper(sub[2]) && isUpper(sub[3]):
				word = strings.ToUpper(word)
			case isUpper(sub[2]):
				word = "Señor" + strings.ToLower(suffix)
			}
			return lead + word + tail
		})
	}
	return s
}

func isUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// Fold strips diacritics and lowercases: "PÉREZ Núñez" becomes "perez nunez".
func Fold(s string) string {
	// Transformers keep state, so each call builds its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Key is the canonical value of s: folded, with whitespace collapsed.
func Key(s string) string {
	return strings.Join(strings.Fields(Fold(s)), " ")
}

// Title title-cases every word except particles after the first word.
// isParticle receives the folded word.
func Title(s string, isParticle func(string) bool) string {
	words := strings.Fields(s)
	for i, w := range words {
		if i > 0 && isParticle != nil && isParticle(Fold(w)) {
			words[i] = strings.ToLower(w)
			continue
		}
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

// titleWord capitalizes each hyphen or apostrophe separated part.
func titleWord(w string) string {
	var b strings.Builder
	b.Grow(len(w))
	upperNext := true
	for _, r := range w {
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		upperNext = r == '-' || r == '\''
	}
	return b.String()
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Window returns s[from:to] clamped to the string and moved outward to rune
// boundaries, so the slice is always valid UTF-8.
func Window(s string, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(s) {
		to = len(s)
	}
	if from >= to {
		return ""
	}
	for from > 0 && !utf8.RuneStart(s[from]) {
		from--
	}
	for to < len(s) && !utf8.RuneStart(s[to]) {
		to++
	}
	return s[from:to]
}
