package plausible

import (
	"strings"
	"unicode"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/normalize"
	"github.com/hyperifyio/gopii/internal/rules"
)

// Reason names the rule that rejected a candidate. It is only used for debug
// logging and tests.
type Reason string

const (
	Accepted         Reason = ""
	TooFewTokens     Reason = "too_few_tokens"
	TooManyTokens    Reason = "too_many_tokens"
	EdgeConnector    Reason = "edge_connector"
	NoiseToken       Reason = "noise_token"
	BlacklistPhrase  Reason = "blacklist_phrase"
	BlockedContext   Reason = "blocked_precontext"
	AuthorityContext Reason = "authority_context"
	HeaderToken      Reason = "header_token"
	Stopword         Reason = "stopword"
)

// Filter decides whether a candidate name is plausible and produces its
// display form. It holds no state besides the rule tables.
type Filter struct {
	Rules *rules.Tables
}

// New returns a Filter over t, or over the embedded tables when t is nil.
func New(t *rules.Tables) *Filter {
	if t == nil {
		t = rules.Default()
	}
	return &Filter{Rules: t}
}

// Check returns the smart-title-cased display value for c and true when every
// rule passes. preceding is the page text before the candidate; only its last
// PreContextWindow bytes are inspected.
func (f *Filter) Check(c aggregate.Candidate, preceding string) (string, bool) {
	display, reason := f.Explain(c.Raw, preceding)
	return display, reason == Accepted
}

// Explain is Check on a bare string that also reports the rejecting rule.
func (f *Filter) Explain(raw, preceding string) (string, Reason) {
	t := f.Rules
	tokens := Tokens(raw)
	if len(tokens) < t.NameMinTokens {
		return "", TooFewTokens
	}
	if len(tokens) > t.NameMaxTokens {
		return "", TooManyTokens
	}
	folded := make([]string, len(tokens))
	for i, tok := range tokens {
		folded[i] = normalize.Fold(tok)
	}
	if t.Connector(folded[0]) || t.Connector(folded[len(folded)-1]) {
		return "", EdgeConnector
	}
	if t.Header(folded[0]) {
		return "", HeaderToken
	}
	for _, w := range folded {
		if t.Connector(w) {
			continue
		}
		if t.Noise(w) {
			return "", NoiseToken
		}
		if t.Stopword(w) {
			return "", Stopword
		}
	}
	if t.BlacklistedPhrase(strings.Join(folded, " ")) {
		return "", BlacklistPhrase
	}
	if pre := f.tail(preceding); pre != "" {
		if t.BlockedPreContext(pre) {
			return "", BlockedContext
		}
		if t.AuthorityPreContext(pre) {
			return "", AuthorityContext
		}
	}
	return normalize.Title(strings.Join(tokens, " "), t.Particle), Accepted
}

func (f *Filter) tail(preceding string) string {
	if preceding == "" {
		return ""
	}
	from := len(preceding) - f.Rules.PreContextWindow
	return normalize.Fold(normalize.Window(preceding, from, len(preceding)))
}

// Tokens splits a name on whitespace and strips punctuation hugging each
// token, dropping tokens that end up empty. Inner hyphens and apostrophes
// survive ("Pérez-Gómez", "D'Arco").
func Tokens(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, w := range fields {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
