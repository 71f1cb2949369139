package names

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/normalize"
	"github.com/hyperifyio/gopii/internal/rules"
)

const (
	upperWord = `\p{Lu}{2,}(?:[-']\p{Lu}+)*`
	titleWord = `\p{Lu}\p{Ll}+(?:[-']\p{Lu}\p{Ll}+)*`
)

var tokenRe = regexp.MustCompile(`\S+`)

// phraseDef anchors a name on legal phraseology. before and after are
// matched case-insensitively around the name run; sep joins anchor and name.
type phraseDef struct {
	id     string
	before string
	sep    string
	after  string
}

var phraseDefs = []phraseDef{
	{id: "a_nombre_del", before: `a[ \t]+nombre[ \t]+del?[ \t]+(?:señora|señor|sra\.|sr\.)`, sep: `[ \t]+`},
	{id: "nombre_del", before: `nombre[ \t]+del?[ \t]+(?:señora|señor)`, sep: `[ \t]+`},
	{id: "herederos", before: `contra[ \t]+(?:los[ \t]+)?herederos(?:[ \t]+\S+){0,6}?[ \t]+del?`, sep: `[ \t]+`},
	{id: "tutela", before: `tutela[ \t]+promovida[ \t]+por`, sep: `[ \t]+`},
	{id: "contra", before: `contra`, sep: `[ \t]+`},
	{id: "parte", before: `(?:accionantes|accionante|accionados|accionado|accionada|demandantes|demandante|demandados|demandado|demandada|causante|peticionaria|peticionario|solicitante|tutelante|convocante|convocado|convocada)[ \t]*:`, sep: `[ \t]*`},
	{id: "slp", before: `correspondiente[ \t]+al[ \t]+slp\.`, sep: `[ \t]*`},
	{id: "siguientes", before: `de[ \t]+las[ \t]+siguientes[ \t]+personas[ \t]*:`, sep: `\s*`},
	{id: "senor", before: `(?:señoras|señores|señora|señor|sras\.|sres\.|sra\.|sr\.|doña|don)`, sep: `[ \t]+`},
	{id: "mayor_de_edad", sep: `[ \t]*`, after: `,[ \t]*mayor(?:es)?[ \t]+de[ \t]+edad`},
}

type phrasePattern struct {
	id   string
	re   *regexp.Regexp
	name int

	// anchoredAfter is set when the phrase follows the name.
	anchoredAfter bool
}

// patterns holds the expressions compiled from one rule set.
type patterns struct {
	rules   *rules.Tables
	run     *regexp.Regexp
	phrases []phrasePattern
}

func newPatterns(t *rules.Tables) *patterns {
	run := nameRun(t.Connectors())
	p := &patterns{rules: t, run: regexp.MustCompile(run)}
	for _, d := range phraseDefs {
		var b strings.Builder
		if d.before != "" {
			b.WriteString(`(?:^|[^\p{L}])(?i:` + d.before + `)` + d.sep)
		}
		b.WriteString(`(?P<name>` + run + `)`)
		if d.after != "" {
			b.WriteString(d.sep + `(?i:` + d.after + `)`)
		}
		re := regexp.MustCompile(b.String())
		p.phrases = append(p.phrases, phrasePattern{id: d.id, re: re, name: re.SubexpIndex("name"), anchoredAfter: d.before == "" && d.after != ""})
	}
	return p
}

// nameRun matches one or more ALL-CAPS words or one or more Title-case words,
// optionally linked by connectors. Words never span a line break.
func nameRun(connectors []string) string {
	lower := make([]string, 0, len(connectors))
	upper := make([]string, 0, len(connectors))
	for _, c := range connectors {
		lower = append(lower, regexp.QuoteMeta(c))
		upper = append(upper, regexp.QuoteMeta(strings.ToUpper(c)))
	}
	lc := strings.Join(lower, "|")
	uc := strings.Join(append(upper, lower...), "|")
	if lc == "" {
		lc, uc = `[^\x00-\x{10FFFF}]`, `[^\x00-\x{10FFFF}]`
	}
	caps := upperWord + `(?:[ \t]+(?:(?:` + uc + `)[ \t]+)*` + upperWord + `)*`
	title := titleWord + `(?:[ \t]+(?:(?:` + lc + `)[ \t]+)*` + titleWord + `)*`
	return `(?:` + caps + `|` + title + `)`
}

// bounded reports whether text[start:end] is not glued to a letter or digit.
func bounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// trimRun keeps the name tokens of a phrase-anchored run nearest to the
// anchor. Runs anchored before the name are cut at their first token that
// cannot be part of a name; runs anchored after it keep only the tokens
// following the last such token. Connectors left at the free edge are
// dropped. ok is false when nothing is left.
func (p *patterns) trimRun(text string, start, end int, anchoredAfter bool) (int, int, bool) {
	locs := tokenRe.FindAllStringIndex(text[start:end], -1)
	word := func(i int) string { return normalize.Fold(text[start+locs[i][0] : start+locs[i][1]]) }
	from, to := 0, len(locs)
	if anchoredAfter {
		for i := len(locs) - 1; i >= 0; i-- {
			w := word(i)
			if p.rules.Connector(w) {
				continue
			}
			if p.rules.Noise(w) || p.rules.Stopword(w) || p.rules.Header(w) {
				from = i + 1
				break
			}
		}
		for from < to && p.rules.Connector(word(from)) {
			from++
		}
	} else {
		for i := range locs {
			w := word(i)
			if p.rules.Connector(w) {
				continue
			}
			if p.rules.Noise(w) || p.rules.Stopword(w) || (i > 0 && p.rules.Header(w)) {
				to = i
				break
			}
		}
		for to > 0 && p.rules.Connector(word(to-1)) {
			to--
		}
	}
	if from >= to {
		return 0, 0, false
	}
	return start + locs[from][0], start + locs[to-1][1], true
}

// trimTrailingConnectors drops connectors a greedy run picked up at its end.
func (p *patterns) trimTrailingConnectors(text string, start, end int) (int, int) {
	for {
		run := text[start:end]
		i := strings.LastIndexAny(run, " \t")
		if i < 0 || !p.rules.Connector(normalize.Fold(run[i+1:])) {
			return start, end
		}
		end = start + len(strings.TrimRight(run[:i], " \t"))
	}
}

// PhraseStrategy finds names introduced or followed by legal phraseology.
type PhraseStrategy struct {
	patterns *patterns
}

func (*PhraseStrategy) Name() string { return "phrase" }

func (s *PhraseStrategy) Find(ctx *Context) []aggregate.Candidate {
	var out []aggregate.Candidate
	for _, ph := range s.patterns.phrases {
		for _, m := range ph.re.FindAllStringSubmatchIndex(ctx.Text, -1) {
			start, end := m[2*ph.name], m[2*ph.name+1]
			if start < 0 || !bounded(ctx.Text, start, end) {
				continue
			}
			start, end, ok := s.patterns.trimRun(ctx.Text, start, end, ph.anchoredAfter)
			if !ok {
				continue
			}
			out = append(out, aggregate.Candidate{
				Raw:      ctx.Text[start:end],
				Start:    start,
				End:      end,
				Strategy: "phrase/" + ph.id,
			})
		}
	}
	return out
}

// GenericStrategy sweeps the page for any capitalized run. It is the last
// resort and rejects runs containing gerunds or blacklisted tokens outright.
type GenericStrategy struct {
	patterns *patterns
}

func (*GenericStrategy) Name() string { return "generic" }

func (s *GenericStrategy) Find(ctx *Context) []aggregate.Candidate {
	t := s.patterns.rules
	var out []aggregate.Candidate
	for _, loc := range s.patterns.run.FindAllStringIndex(ctx.Text, -1) {
		start, end := loc[0], loc[1]
		if !bounded(ctx.Text, start, end) {
			continue
		}
		start, end = s.patterns.trimTrailingConnectors(ctx.Text, start, end)
		rejected := false
		for _, tok := range strings.Fields(ctx.Text[start:end]) {
			w := normalize.Fold(tok)
			if t.Noise(w) || (isGerund(w) && !t.GerundException(w)) {
				rejected = true
				break
			}
		}
		if rejected {
			continue
		}
		out = append(out, aggregate.Candidate{Raw: ctx.Text[start:end], Start: start, End: end})
	}
	return out
}

func isGerund(w string) bool {
	return len(w) > 5 && (strings.HasSuffix(w, "ando") || strings.HasSuffix(w, "endo"))
}
