package names

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/extract"
	"github.com/hyperifyio/gopii/internal/normalize"
	"github.com/hyperifyio/gopii/internal/plausible"
	"github.com/hyperifyio/gopii/internal/rules"
)

// Line is one line of page text with its byte offset in Context.Text.
type Line struct {
	Text  string
	Start int
}

// End is the offset just past the line's last byte.
func (l Line) End() int { return l.Start + len(l.Text) }

// Context is the per-page state handed to every strategy.
type Context struct {
	Text  string
	Page  int
	Lines []Line
	Rules *rules.Tables
}

// NewContext splits normalized page text into lines.
func NewContext(text string, page int, t *rules.Tables) *Context {
	ctx := &Context{Text: text, Page: page, Rules: t}
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			ctx.Lines = append(ctx.Lines, Line{Text: text[start:i], Start: start})
			start = i + 1
		}
	}
	return ctx
}

// Strategy produces raw name candidates from one page. Candidates must carry
// byte offsets into Context.Text; the engine fills Page and, when empty,
// Strategy.
type Strategy interface {
	Name() string
	Find(ctx *Context) []aggregate.Candidate
}

// Match is an accepted candidate with its display form.
type Match struct {
	aggregate.Candidate
	Display string
}

// Extractor runs its strategies in order over each page. A candidate that
// overlaps a span accepted earlier on the same page is dropped, so the order
// of Strategies is the precedence.
type Extractor struct {
	Rules      *rules.Tables
	Filter     *plausible.Filter
	Strategies []Strategy
}

// New returns an Extractor with the default strategy order:
// phrase, labeled, numbered, generic.
func New(t *rules.Tables) *Extractor {
	if t == nil {
		t = rules.Default()
	}
	p := newPatterns(t)
	return &Extractor{
		Rules:  t,
		Filter: plausible.New(t),
		Strategies: []Strategy{
			&PhraseStrategy{patterns: p},
			LabeledStrategy{},
			NumberedStrategy{},
			&GenericStrategy{patterns: p},
		},
	}
}

// Page returns the accepted names of one normalized page ordered by offset.
func (e *Extractor) Page(text string, page int) []Match {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ctx := NewContext(text, page, e.Rules)
	var accepted []Match
	for _, s := range e.Strategies {
		for _, c := range s.Find(ctx) {
			c.Page = page
			if c.Strategy == "" {
				c.Strategy = s.Name()
			}
			if overlapsAny(accepted, c) {
				continue
			}
			display, reason := e.Filter.Explain(c.Raw, text[:c.Start])
			if reason != plausible.Accepted {
				log.Debug().Int("page", page).Str("strategy", c.Strategy).Str("reason", string(reason)).Msg("name candidate rejected")
				continue
			}
			accepted = append(accepted, Match{Candidate: c, Display: display})
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// ExtractWithPages extracts and deduplicates names across pages in order.
func (e *Extractor) ExtractWithPages(pages []extract.Page) []aggregate.Entity {
	dedup := aggregate.NewNames()
	for _, p := range pages {
		for _, m := range e.Page(normalize.Text(p.Text), p.Number) {
			dedup.Push(m.Display, p.Number)
		}
	}
	return dedup.Results()
}

// ExtractAll treats text as one page and returns the unique names joined by
// ", " in first-seen order, or "" when none are found.
func (e *Extractor) ExtractAll(text string) string {
	ents := e.ExtractWithPages([]extract.Page{{Number: 1, Text: text}})
	vals := make([]string, len(ents))
	for i, ent := range ents {
		vals[i] = ent.Display
	}
	return strings.Join(vals, ", ")
}

func overlapsAny(accepted []Match, c aggregate.Candidate) bool {
	for _, m := range accepted {
		if m.Overlaps(c) {
			return true
		}
	}
	return false
}
