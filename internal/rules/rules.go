package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultYAML []byte

// Tables is the compiled, read-only rule set shared by every extractor.
// A Tables value is never modified after Build returns, so one value can be
// used by any number of documents concurrently.
type Tables struct {
	connectors map[string]struct{}
	particles  map[string]struct{}
	noise      map[string]struct{}
	headers    map[string]struct{}
	stopwords  map[string]struct{}
	phrases    map[string]struct{}
	phraseRes  []*regexp.Regexp
	gerunds    map[string]struct{}
	connList   []string

	blockedPre   *regexp.Regexp
	authorityPre *regexp.Regexp
	forbiddenPre *regexp.Regexp

	nameTypes   map[string]struct{}
	cedulaTypes map[string]struct{}

	// Name run bounds and how far back pre-context checks look, in bytes.
	NameMinTokens    int
	NameMaxTokens    int
	PreContextWindow int

	// Threshold is the minimum fallback-service score for an entity.
	Threshold float64

	Cedula CedulaRules
}

// CedulaRules holds the patterns used around candidate ID numbers. All
// patterns match folded text (see normalize.Fold).
type CedulaRules struct {
	Primary             *regexp.Regexp
	FieldContext        *regexp.Regexp
	VerificationWording *regexp.Regexp
	Verification        *regexp.Regexp
	RadicadoLabel       *regexp.Regexp
	RadicadoToken       *regexp.Regexp
	LongNumericLine     *regexp.Regexp

	// Windows are byte counts around the candidate.
	ContextWindow  int
	AfterWindow    int
	PrimaryWindow  int
	RadicadoWindow int

	MinDigits int
	MaxDigits int
}

// File is the on-disk schema of a rule file.
type File struct {
	Connectors          []string `yaml:"connectors"`
	Particles           []string `yaml:"particles"`
	BlacklistTokens     []string `yaml:"blacklist_tokens"`
	InstitutionNoise    []string `yaml:"institution_noise"`
	DisqualifyTerms     []string `yaml:"disqualify_terms"`
	NonNameCommon       []string `yaml:"non_name_common"`
	HeaderBlacklist     []string `yaml:"header_blacklist"`
	Stopwords           []string `yaml:"stopwords"`
	BlacklistPhrases    []string `yaml:"blacklist_phrases"`
	BlacklistRegex      []string `yaml:"blacklist_regex"`
	BlockedPreContext   []string `yaml:"blocked_precontext"`
	AuthorityContext    []string `yaml:"authority_context"`
	ForbiddenPreContext []string `yaml:"forbidden_precontext"`
	GerundExceptions    []string `yaml:"gerund_exceptions"`
	NameMinTokens       int      `yaml:"name_min_tokens"`
	NameMaxTokens       int      `yaml:"name_max_tokens"`
	PreContextWindow    int      `yaml:"precontext_window"`

	Cedula struct {
		Primary             []string `yaml:"primary"`
		FieldContext        []string `yaml:"field_context"`
		VerificationWording []string `yaml:"verification_wording"`
		Verification        []string `yaml:"verification"`
		RadicadoLabel       string   `yaml:"radicado_label"`
		RadicadoToken       string   `yaml:"radicado_token"`
		LongNumericLine     string   `yaml:"long_numeric_line"`
		ContextWindow       int      `yaml:"context_window"`
		AfterWindow         int      `yaml:"after_window"`
		PrimaryWindow       int      `yaml:"primary_window"`
		RadicadoWindow      int      `yaml:"radicado_window"`
		MinDigits           int      `yaml:"min_digits"`
		MaxDigits           int      `yaml:"max_digits"`
	} `yaml:"cedula"`

	Fallback struct {
		Threshold   float64  `yaml:"threshold"`
		NameTypes   []string `yaml:"name_types"`
		CedulaTypes []string `yaml:"cedula_types"`
	} `yaml:"fallback"`
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Default returns the tables compiled from the embedded rules.yaml. The
// value is built once per process.
func Default() *Tables {
	defaultOnce.Do(func() {
		var f File
		if err := yaml.Unmarshal(defaultYAML, &f); err != nil {
			defaultErr = fmt.Errorf("parse embedded rules: %w", err)
			return
		}
		defaultTables, defaultErr = Build(f)
	})
	if defaultErr != nil {
		// The embedded file ships with the binary; failing here is a build defect.
		panic(defaultErr)
	}
	return defaultTables
}

// Load reads a YAML rule file and overlays it on the embedded defaults:
// lists are appended, non-zero scalars and patterns replace the default.
func Load(path string) (*Tables, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Overlay(b)
}

// Overlay is Load for in-memory YAML.
func Overlay(data []byte) (*Tables, error) {
	var base, extra File
	if err := yaml.Unmarshal(defaultYAML, &base); err != nil {
		return nil, fmt.Errorf("parse embedded rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return Build(merge(base, extra))
}

func merge(base, extra File) File {
	out := base
	out.Connectors = append(append([]string{}, base.Connectors...), extra.Connectors...)
	out.Particles = append(append([]string{}, base.Particles...), extra.Particles...)
	out.BlacklistTokens = append(append([]string{}, base.BlacklistTokens...), extra.BlacklistTokens...)
	out.InstitutionNoise = append(append([]string{}, base.InstitutionNoise...), extra.InstitutionNoise...)
	out.DisqualifyTerms = append(append([]string{}, base.DisqualifyTerms...), extra.DisqualifyTerms...)
	out.NonNameCommon = append(append([]string{}, base.NonNameCommon...), extra.NonNameCommon...)
	out.HeaderBlacklist = append(append([]string{}, base.HeaderBlacklist...), extra.HeaderBlacklist...)
	out.Stopwords = append(append([]string{}, base.Stopwords...), extra.Stopwords...)
	out.BlacklistPhrases = append(append([]string{}, base.BlacklistPhrases...), extra.BlacklistPhrases...)
	out.BlacklistRegex = append(append([]string{}, base.BlacklistRegex...), extra.BlacklistRegex...)
	out.BlockedPreContext = append(append([]string{}, base.BlockedPreContext...), extra.BlockedPreContext...)
	out.AuthorityContext = append(append([]string{}, base.AuthorityContext...), extra.AuthorityContext...)
	out.ForbiddenPreContext = append(append([]string{}, base.ForbiddenPreContext...), extra.ForbiddenPreContext...)
	out.GerundExceptions = append(append([]string{}, base.GerundExceptions...), extra.GerundExceptions...)
	if extra.NameMinTokens > 0 {
		out.NameMinTokens = extra.NameMinTokens
	}
	if extra.NameMaxTokens > 0 {
		out.NameMaxTokens = extra.NameMaxTokens
	}
	if extra.PreContextWindow > 0 {
		out.PreContextWindow = extra.PreContextWindow
	}

	c, e := &out.Cedula, extra.Cedula
	c.Primary = append(append([]string{}, base.Cedula.Primary...), e.Primary...)
	c.FieldContext = append(append([]string{}, base.Cedula.FieldContext...), e.FieldContext...)
	c.VerificationWording = append(append([]string{}, base.Cedula.VerificationWording...), e.VerificationWording...)
	c.Verification = append(append([]string{}, base.Cedula.Verification...), e.Verification...)
	if e.RadicadoLabel != "" {
		c.RadicadoLabel = e.RadicadoLabel
	}
	if e.RadicadoToken != "" {
		c.RadicadoToken = e.RadicadoToken
	}
	if e.LongNumericLine != "" {
		c.LongNumericLine = e.LongNumericLine
	}
	if e.ContextWindow > 0 {
		c.ContextWindow = e.ContextWindow
	}
	if e.AfterWindow > 0 {
		c.AfterWindow = e.AfterWindow
	}
	if e.PrimaryWindow > 0 {
		c.PrimaryWindow = e.PrimaryWindow
	}
	if e.RadicadoWindow > 0 {
		c.RadicadoWindow = e.RadicadoWindow
	}
	if e.MinDigits > 0 {
		c.MinDigits = e.MinDigits
	}
	if e.MaxDigits > 0 {
		c.MaxDigits = e.MaxDigits
	}

	if extra.Fallback.Threshold > 0 {
		out.Fallback.Threshold = extra.Fallback.Threshold
	}
	out.Fallback.NameTypes = append(append([]string{}, base.Fallback.NameTypes...), extra.Fallback.NameTypes...)
	out.Fallback.CedulaTypes = append(append([]string{}, base.Fallback.CedulaTypes...), extra.Fallback.CedulaTypes...)
	return out
}

// Build compiles a rule file into Tables.
func Build(f File) (*Tables, error) {
	t := &Tables{
		connectors:       toSet(f.Connectors),
		particles:        toSet(f.Particles),
		noise:            toSet(f.BlacklistTokens, f.InstitutionNoise, f.DisqualifyTerms, f.NonNameCommon),
		headers:          toSet(f.HeaderBlacklist),
		stopwords:        toSet(f.Stopwords),
		phrases:          toSet(f.BlacklistPhrases),
		gerunds:          toSet(f.GerundExceptions),
		nameTypes:        toUpperSet(f.Fallback.NameTypes),
		cedulaTypes:      toUpperSet(f.Fallback.CedulaTypes),
		NameMinTokens:    orDefault(f.NameMinTokens, 2),
		NameMaxTokens:    orDefault(f.NameMaxTokens, 7),
		PreContextWindow: orDefault(f.PreContextWindow, 60),
		Threshold:        f.Fallback.Threshold,
	}
	if t.Threshold <= 0 {
		t.Threshold = 0.85
	}
	for _, expr := range f.BlacklistRegex {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("blacklist regex %q: %w", expr, err)
		}
		t.phraseRes = append(t.phraseRes, re)
	}
	for w := range t.connectors {
		t.connList = append(t.connList, w)
	}
	// longest first so alternations prefer "del" over "de"
	sort.Slice(t.connList, func(i, j int) bool {
		if len(t.connList[i]) != len(t.connList[j]) {
			return len(t.connList[i]) > len(t.connList[j])
		}
		return t.connList[i] < t.connList[j]
	})
	var err error
	if t.blockedPre, err = compileTail(f.BlockedPreContext); err != nil {
		return nil, fmt.Errorf("blocked_precontext: %w", err)
	}
	if t.authorityPre, err = compileTail(f.AuthorityContext); err != nil {
		return nil, fmt.Errorf("authority_context: %w", err)
	}
	if t.forbiddenPre, err = compileTail(f.ForbiddenPreContext); err != nil {
		return nil, fmt.Errorf("forbidden_precontext: %w", err)
	}

	c := &t.Cedula
	if c.Primary, err = compileWords(f.Cedula.Primary); err != nil {
		return nil, fmt.Errorf("cedula.primary: %w", err)
	}
	if c.FieldContext, err = compileWords(f.Cedula.FieldContext); err != nil {
		return nil, fmt.Errorf("cedula.field_context: %w", err)
	}
	if c.VerificationWording, err = compileWords(f.Cedula.VerificationWording); err != nil {
		return nil, fmt.Errorf("cedula.verification_wording: %w", err)
	}
	if c.Verification, err = compileWords(f.Cedula.Verification); err != nil {
		return nil, fmt.Errorf("cedula.verification: %w", err)
	}
	if c.RadicadoLabel, err = regexp.Compile(f.Cedula.RadicadoLabel); err != nil {
		return nil, fmt.Errorf("cedula.radicado_label: %w", err)
	}
	if c.RadicadoToken, err = regexp.Compile(f.Cedula.RadicadoToken); err != nil {
		return nil, fmt.Errorf("cedula.radicado_token: %w", err)
	}
	if c.LongNumericLine, err = regexp.Compile(f.Cedula.LongNumericLine); err != nil {
		return nil, fmt.Errorf("cedula.long_numeric_line: %w", err)
	}
	c.ContextWindow = orDefault(f.Cedula.ContextWindow, 40)
	c.AfterWindow = orDefault(f.Cedula.AfterWindow, 15)
	c.PrimaryWindow = orDefault(f.Cedula.PrimaryWindow, 40)
	c.RadicadoWindow = orDefault(f.Cedula.RadicadoWindow, 60)
	c.MinDigits = orDefault(f.Cedula.MinDigits, 6)
	c.MaxDigits = orDefault(f.Cedula.MaxDigits, 10)
	return t, nil
}

// Connector reports whether a folded word links name parts ("de", "del").
func (t *Tables) Connector(w string) bool { return has(t.connectors, w) }

// Connectors lists the connector words, longest first.
func (t *Tables) Connectors() []string { return append([]string(nil), t.connList...) }

// GerundException reports whether a folded word ending in -ando/-endo is a
// known given name.
func (t *Tables) GerundException(w string) bool { return has(t.gerunds, w) }

// Particle reports whether a folded word stays lowercase inside a title-cased name.
func (t *Tables) Particle(w string) bool { return has(t.particles, w) }

// Noise reports whether a folded word belongs to any of the token blacklists.
func (t *Tables) Noise(w string) bool { return has(t.noise, w) }

func (t *Tables) Header(w string) bool { return has(t.headers, w) }

func (t *Tables) Stopword(w string) bool { return has(t.stopwords, w) }

// BlacklistedPhrase reports whether a folded, space-separated phrase is a
// known non-name phrase or matches one of the blacklist expressions.
func (t *Tables) BlacklistedPhrase(key string) bool {
	if has(t.phrases, key) {
		return true
	}
	for _, re := range t.phraseRes {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// BlockedPreContext reports whether folded text ends with a role or place word.
func (t *Tables) BlockedPreContext(pre string) bool { return matchTail(t.blockedPre, pre) }

// AuthorityPreContext reports whether folded text ends with an official's title.
func (t *Tables) AuthorityPreContext(pre string) bool { return matchTail(t.authorityPre, pre) }

// ForbiddenPreContext is the check applied to fallback-service entities: it
// includes the blocked and authority contexts plus the forbidden phrases.
func (t *Tables) ForbiddenPreContext(pre string) bool {
	return matchTail(t.forbiddenPre, pre) || t.BlockedPreContext(pre) || t.AuthorityPreContext(pre)
}

// NameType reports whether a fallback entity type denotes a person.
func (t *Tables) NameType(typ string) bool {
	return has(t.nameTypes, strings.ToUpper(strings.TrimSpace(typ)))
}

// CedulaType reports whether a fallback entity type may hold an ID number.
func (t *Tables) CedulaType(typ string) bool {
	return has(t.cedulaTypes, strings.ToUpper(strings.TrimSpace(typ)))
}

func has(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}

func toSet(lists ...[]string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, l := range lists {
		for _, w := range l {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				out[w] = struct{}{}
			}
		}
	}
	return out
}

func toUpperSet(l []string) map[string]struct{} {
	out := make(map[string]struct{}, len(l))
	for _, w := range l {
		if w = strings.ToUpper(strings.TrimSpace(w)); w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// compileTail builds an expression matching any of the phrases at the very end
// of a text, allowing trailing punctuation and spaces.
func compileTail(phrases []string) (*regexp.Regexp, error) {
	alts := quoteAll(phrases)
	if len(alts) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?:^|[^a-z0-9])(?:` + strings.Join(alts, "|") + `)[\s:,.;\-]*$`)
}

// compileWords builds an alternation of patterns that must not be glued to
// other letters on either side.
func compileWords(patterns []string) (*regexp.Regexp, error) {
	alts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			alts = append(alts, p)
		}
	}
	if len(alts) == 0 {
		return regexp.Compile(`[^\x00-\x{10FFFF}]`)
	}
	return regexp.Compile(`(?:^|[^a-z])(?:` + strings.Join(alts, "|") + `)(?:[^a-z]|$)`)
}

func quoteAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if p == "" {
			continue
		}
		out = append(out, strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`))
	}
	return out
}

func matchTail(re *regexp.Regexp, pre string) bool {
	return re != nil && re.MatchString(pre)
}
