package cedula

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/extract"
	"github.com/hyperifyio/gopii/internal/normalize"
	"github.com/hyperifyio/gopii/internal/rules"
)

const (
	StrategyLabeled = "cedula/labeled"
	StrategyBare    = "cedula/bare"
)

var (
	// Grouped thousands ("12.345.678") or a bare digit run. All groups of one
	// number share a separator, a single punctuation mark or a plain space, so
	// numbers never join across lines or absorb a neighbouring count.
	numberRe = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+|\d{1,3}(?:,\d{3})+|\d{1,3}(?:-\d{3})+|\d{1,3}(?: \d{3})+|\d+`)
	groupSep = regexp.MustCompile(`[^\d]+`)
	// What may sit between a radicado label and its number: "No.", "Nro", ":".
	radicadoGap = regexp.MustCompile(`^[\s:.,#°º\-]*(?:(?:no|nro|num|numero|n)\.?[\s:.,#°º\-]*)?$`)
)

// Extractor finds Colombian ID numbers in normalized page text.
type Extractor struct {
	Rules *rules.Tables
}

// New returns an Extractor over t, or over the embedded tables when t is nil.
func New(t *rules.Tables) *Extractor {
	if t == nil {
		t = rules.Default()
	}
	return &Extractor{Rules: t}
}

type span struct{ start, end int }

// Bans holds the radicado numbers of one document. Candidates that overlap a
// radicado on the same page, or whose digits equal a radicado or one of its
// groups anywhere in the document, are discarded.
type Bans struct {
	spans  map[int][]span
	values map[string]struct{}
}

// Len reports how many distinct banned values were recorded.
func (b Bans) Len() int { return len(b.values) }

func (b Bans) blocks(page, start, end int, digits string) bool {
	for _, s := range b.spans[page] {
		if start < s.end && s.start < end {
			return true
		}
	}
	_, ok := b.values[digits]
	return ok
}

// CollectBans scans every page for radicado-labeled numbers. Page text must
// already be normalized.
func (e *Extractor) CollectBans(pages []extract.Page) Bans {
	b := Bans{spans: map[int][]span{}, values: map[string]struct{}{}}
	c := e.Rules.Cedula
	for _, p := range pages {
		for _, loc := range c.RadicadoToken.FindAllStringIndex(p.Text, -1) {
			if !e.labeledRadicado(p.Text, loc[0]) {
				continue
			}
			tok := p.Text[loc[0]:loc[1]]
			b.spans[p.Number] = append(b.spans[p.Number], span{loc[0], loc[1]})
			b.values[normalize.Digits(tok)] = struct{}{}
			for _, g := range groupSep.Split(tok, -1) {
				if len(g) >= c.MinDigits {
					b.values[g] = struct{}{}
				}
			}
			log.Debug().Int("page", p.Number).Int("digits", len(normalize.Digits(tok))).Msg("radicado banned")
		}
	}
	return b
}

// labeledRadicado reports whether a radicado label ends within RadicadoWindow
// bytes before start with nothing but a number marker in between.
func (e *Extractor) labeledRadicado(text string, start int) bool {
	c := e.Rules.Cedula
	pre := normalize.Fold(normalize.Window(text, start-c.RadicadoWindow, start))
	locs := c.RadicadoLabel.FindAllStringIndex(pre, -1)
	if len(locs) == 0 {
		return false
	}
	return radicadoGap.MatchString(pre[locs[len(locs)-1][1]:])
}

// Page returns the accepted candidates of one normalized page in text order.
func (e *Extractor) Page(text string, page int, bans Bans) []aggregate.Candidate {
	var out []aggregate.Candidate
	for _, loc := range numberRe.FindAllStringIndex(text, -1) {
		if c, ok := e.Check(text, page, loc[0], loc[1], bans); ok {
			out = append(out, c)
		}
	}
	return out
}

// Check applies the length, radicado and context rules to text[start:end].
// The returned candidate's Raw is the digits-only value.
func (e *Extractor) Check(text string, page, start, end int, bans Bans) (aggregate.Candidate, bool) {
	c := e.Rules.Cedula
	if start < 0 || end > len(text) || start >= end {
		return aggregate.Candidate{}, false
	}
	if isDigit(text, start-1) || isDigit(text, end) {
		return aggregate.Candidate{}, false
	}
	digits := normalize.Digits(text[start:end])
	if len(digits) < c.MinDigits || len(digits) > c.MaxDigits {
		return aggregate.Candidate{}, false
	}
	if bans.blocks(page, start, end, digits) {
		return aggregate.Candidate{}, false
	}

	pre := normalize.Fold(normalize.Window(text, start-c.ContextWindow, start))
	post := normalize.Fold(normalize.Window(text, end, end+c.AfterWindow))
	// the after-window never reaches into the next sentence or line
	if i := strings.IndexAny(post, ".;\n"); i >= 0 {
		post = post[:i+1]
	}
	primary := lastIndex(c.Primary, pre)

	if strings.HasPrefix(digits, "0") {
		if !c.Verification.MatchString(pre) && !c.Verification.MatchString(post) {
			return aggregate.Candidate{}, false
		}
	} else if field := lastIndex(c.VerificationWording, pre); field >= 0 && field > primary {
		return aggregate.Candidate{}, false
	}
	if field := lastIndex(c.FieldContext, pre); field >= 0 && field > primary {
		return aggregate.Candidate{}, false
	}
	if loc := c.FieldContext.FindStringIndex(post); loc != nil {
		// a field term after the number loses to a primary token that is nearer
		if primary < 0 || len(pre)-lastEnd(c.Primary, pre) > loc[0] {
			return aggregate.Candidate{}, false
		}
	}

	strategy := StrategyBare
	near := normalize.Fold(normalize.Window(text, start-c.PrimaryWindow, start))
	if c.Primary.MatchString(near) {
		strategy = StrategyLabeled
	}
	return aggregate.Candidate{Raw: digits, Start: start, End: end, Page: page, Strategy: strategy}, true
}

// FindWithPages extracts and deduplicates ID numbers across pages. Each
// entity's Display is the digits-only number.
func (e *Extractor) FindWithPages(pages []extract.Page) []aggregate.Entity {
	norm := make([]extract.Page, 0, len(pages))
	for _, p := range pages {
		norm = append(norm, extract.Page{Number: p.Number, Text: normalize.Text(p.Text)})
	}
	bans := e.CollectBans(norm)
	dedup := aggregate.NewExact()
	for _, p := range norm {
		for _, c := range e.Page(p.Text, p.Number, bans) {
			dedup.Push(c.Raw, p.Number)
		}
	}
	return dedup.Results()
}

// FindCedulas treats text as one page and returns the unique numbers joined
// by ", " in first-seen order, or "" when none are found.
func (e *Extractor) FindCedulas(text string) string {
	ents := e.FindWithPages([]extract.Page{{Number: 1, Text: text}})
	vals := make([]string, len(ents))
	for i, ent := range ents {
		vals[i] = ent.Display
	}
	return strings.Join(vals, ", ")
}

func isDigit(s string, i int) bool {
	return i >= 0 && i < len(s) && s[i] >= '0' && s[i] <= '9'
}

// lastIndex returns the start of the last match of re in s, or -1.
func lastIndex(re *regexp.Regexp, s string) int {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][0]
}

// lastEnd returns the end of the last match of re in s, or -1.
func lastEnd(re *regexp.Regexp, s string) int {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][1]
}
