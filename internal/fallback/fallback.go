package fallback

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/cedula"
	"github.com/hyperifyio/gopii/internal/extract"
	"github.com/hyperifyio/gopii/internal/normalize"
	"github.com/hyperifyio/gopii/internal/plausible"
	"github.com/hyperifyio/gopii/internal/rules"
)

// Extractor runs a Detector over pages that local rules found nothing in.
// Every detector failure is logged and treated as an empty chunk.
type Extractor struct {
	Detector Detector
	Rules    *rules.Tables
	Filter   *plausible.Filter
	Local    *cedula.Extractor
	// ChunkChars bounds each request; 0 means DefaultChunkChars.
	ChunkChars int
	// MaxChunks bounds requests per call; 0 means unlimited.
	MaxChunks int
	// Language is sent with every request; empty means "es".
	Language string
}

// New returns an Extractor over d with the filters built from t (or the
// embedded tables when t is nil).
func New(d Detector, t *rules.Tables) *Extractor {
	if t == nil {
		t = rules.Default()
	}
	return &Extractor{
		Detector: d,
		Rules:    t,
		Filter:   plausible.New(t),
		Local:    cedula.New(t),
	}
}

// located is a detected entity resolved to byte offsets in its page.
// start is -1 when the entity text could not be found.
type located struct {
	DetectedEntity
	page       extract.Page
	start, end int
}

// Names pushes person entities found in pages (normalized text) into dedup
// and returns how many were pushed.
func (x *Extractor) Names(ctx context.Context, pages []extract.Page, dedup *aggregate.Deduplicator) int {
	pushed := 0
	x.scan(ctx, pages, "names", func(e located) {
		if !x.Rules.NameType(e.Type) || e.Score < x.Rules.Threshold {
			return
		}
		pre := ""
		if e.start >= 0 {
			pre = e.page.Text[:e.start]
		}
		tail := normalize.Fold(normalize.Window(pre, len(pre)-x.Rules.PreContextWindow, len(pre)))
		if x.Rules.ForbiddenPreContext(tail) {
			log.Debug().Int("page", e.page.Number).Msg("fallback name in forbidden context")
			return
		}
		display, ok := x.Filter.Check(aggregate.Candidate{Raw: e.Text, Start: e.start, End: e.end, Page: e.page.Number, Strategy: "fallback"}, pre)
		if !ok {
			return
		}
		dedup.Push(display, e.page.Number)
		pushed++
	})
	return pushed
}

// Cedulas pushes ID-number entities found in pages (normalized text) into
// dedup and returns how many were pushed. Located numbers go through the
// same context checks as local candidates.
func (x *Extractor) Cedulas(ctx context.Context, pages []extract.Page, dedup *aggregate.Deduplicator) int {
	bans := x.Local.CollectBans(pages)
	minDigits, maxDigits := x.Rules.Cedula.MinDigits, x.Rules.Cedula.MaxDigits
	pushed := 0
	x.scan(ctx, pages, "cedulas", func(e located) {
		if !x.Rules.CedulaType(e.Type) || e.Score < x.Rules.Threshold {
			return
		}
		value := normalize.Digits(e.Text)
		if e.start >= 0 {
			c, ok := x.Local.Check(e.page.Text, e.page.Number, e.start, e.end, bans)
			if !ok {
				return
			}
			value = c.Raw
		} else if len(value) < minDigits || len(value) > maxDigits {
			return
		}
		dedup.Push(value, e.page.Number)
		pushed++
	})
	return pushed
}

func (x *Extractor) scan(ctx context.Context, pages []extract.Page, kind string, accept func(located)) {
	if x.Detector == nil {
		return
	}
	lang := x.Language
	if lang == "" {
		lang = "es"
	}
	sent := 0
	for _, p := range pages {
		for i, piece := range Split(p.Text, x.ChunkChars) {
			if x.MaxChunks > 0 && sent >= x.MaxChunks {
				log.Debug().Str("kind", kind).Int("max_chunks", x.MaxChunks).Msg("fallback chunk budget reached")
				return
			}
			if ctx.Err() != nil {
				return
			}
			sent++
			ents, err := x.Detector.DetectEntities(ctx, DetectRequest{Text: piece.Text, Language: lang})
			if err != nil {
				log.Warn().Err(err).Str("kind", kind).Int("page", p.Number).Int("chunk", i).Msg("entity detection failed; skipping chunk")
				continue
			}
			for _, e := range ents {
				accept(locate(p, piece, e))
			}
		}
	}
}

// locate resolves an entity to page byte offsets, trusting its rune offsets
// only when they select the reported text.
func locate(p extract.Page, piece Piece, e DetectedEntity) located {
	l := located{DetectedEntity: e, page: p, start: -1, end: -1}
	if from, to, ok := runeSpan(piece.Text, e.BeginOffset, e.EndOffset); ok && strings.TrimSpace(piece.Text[from:to]) == e.Text {
		lead := len(piece.Text[from:to]) - len(strings.TrimLeft(piece.Text[from:to], " \t\n"))
		l.start = piece.Offset + from + lead
		l.end = l.start + len(e.Text)
		return l
	}
	if i := strings.Index(piece.Text, e.Text); i >= 0 {
		l.start = piece.Offset + i
		l.end = l.start + len(e.Text)
	}
	return l
}
