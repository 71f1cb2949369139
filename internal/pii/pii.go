package pii

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/cedula"
	"github.com/hyperifyio/gopii/internal/extract"
	"github.com/hyperifyio/gopii/internal/fallback"
	"github.com/hyperifyio/gopii/internal/names"
	"github.com/hyperifyio/gopii/internal/normalize"
	"github.com/hyperifyio/gopii/internal/rules"
)

// NameRecord is one person name and the pages it appears on.
type NameRecord struct {
	Name  string `json:"name"`
	Pages []int  `json:"pagPdf"`
}

// CedulaRecord is one ID number and the pages it appears on.
type CedulaRecord struct {
	Number string `json:"number"`
	Pages  []int  `json:"pagPdf"`
}

// Result is the extraction output of one document. Both slices are non-nil
// so they encode as [] when empty.
type Result struct {
	Names   []NameRecord   `json:"names"`
	Cedulas []CedulaRecord `json:"cedulas"`
}

// Orchestrator extracts names and ID numbers from a document's pages. It
// holds no per-document state and is safe for concurrent use.
type Orchestrator struct {
	Rules   *rules.Tables
	Names   *names.Extractor
	Cedulas *cedula.Extractor
	// Fallback runs when local rules find no names or no numbers. Nil
	// disables it.
	Fallback *fallback.Extractor
}

// New wires extractors over t (or the embedded tables when t is nil).
func New(t *rules.Tables, fb *fallback.Extractor) *Orchestrator {
	if t == nil {
		t = rules.Default()
	}
	return &Orchestrator{Rules: t, Names: names.New(t), Cedulas: cedula.New(t), Fallback: fb}
}

// Extract processes pages in order and always returns a Result. A panic while
// handling one page is logged and that page is skipped.
func (o *Orchestrator) Extract(ctx context.Context, pages []extract.Page) Result {
	norm := make([]extract.Page, 0, len(pages))
	for _, p := range pages {
		norm = append(norm, extract.Page{Number: p.Number, Text: normalize.Text(p.Text)})
	}
	nameDedup := aggregate.NewNames()
	cedulaDedup := aggregate.NewExact()
	bans := o.Cedulas.CollectBans(norm)

	for _, p := range norm {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("page", p.Number).Msg("extraction cancelled")
			break
		}
		o.page(p, bans, nameDedup, cedulaDedup)
	}

	if o.Fallback != nil && ctx.Err() == nil {
		if nameDedup.Len() == 0 {
			n := o.Fallback.Names(ctx, norm, nameDedup)
			log.Debug().Int("pushed", n).Msg("fallback names")
		}
		if cedulaDedup.Len() == 0 {
			n := o.Fallback.Cedulas(ctx, norm, cedulaDedup)
			log.Debug().Int("pushed", n).Msg("fallback cedulas")
		}
	}
	return buildResult(nameDedup, cedulaDedup)
}

func (o *Orchestrator) page(p extract.Page, bans cedula.Bans, nameDedup, cedulaDedup *aggregate.Deduplicator) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("page", p.Number).Str("panic", fmt.Sprint(r)).Msg("page extraction failed; skipping")
		}
	}()
	cands := o.Cedulas.Page(p.Text, p.Number, bans)
	found := o.Names.Page(p.Text, p.Number)
	for _, c := range cands {
		cedulaDedup.Push(c.Raw, p.Number)
	}
	for _, m := range found {
		nameDedup.Push(m.Display, p.Number)
	}
	log.Debug().Int("page", p.Number).Int("cedulas", len(cands)).Int("names", len(found)).Msg("page extracted")
}

func buildResult(nameDedup, cedulaDedup *aggregate.Deduplicator) Result {
	res := Result{Names: []NameRecord{}, Cedulas: []CedulaRecord{}}
	for _, e := range nameDedup.Results() {
		res.Names = append(res.Names, NameRecord{Name: e.Display, Pages: e.Pages})
	}
	for _, e := range cedulaDedup.Results() {
		res.Cedulas = append(res.Cedulas, CedulaRecord{Number: e.Display, Pages: e.Pages})
	}
	return res
}

// NamesString extracts names from a single document string and joins the
// unique values with ", " in first-seen order.
func (o *Orchestrator) NamesString(ctx context.Context, text string) string {
	res := o.Extract(ctx, []extract.Page{{Number: 1, Text: text}})
	vals := make([]string, len(res.Names))
	for i, r := range res.Names {
		vals[i] = r.Name
	}
	return strings.Join(vals, ", ")
}

// CedulasString is NamesString for ID numbers.
func (o *Orchestrator) CedulasString(ctx context.Context, text string) string {
	res := o.Extract(ctx, []extract.Page{{Number: 1, Text: text}})
	vals := make([]string, len(res.Cedulas))
	for i, r := range res.Cedulas {
		vals[i] = r.Number
	}
	return strings.Join(vals, ", ")
}

// Document is one input of ExtractBatch.
type Document struct {
	ID    string
	Pages []extract.Page
}

// DocumentResult pairs a document ID with its Result.
type DocumentResult struct {
	ID     string `json:"id"`
	Result Result `json:"result"`
}

// ExtractBatch processes documents concurrently with at most workers running
// at once. Each document is still processed page by page. Results keep the
// input order.
func (o *Orchestrator) ExtractBatch(ctx context.Context, docs []Document, workers int) []DocumentResult {
	if workers <= 0 {
		workers = 1
	}
	out := make([]DocumentResult, len(docs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, d := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d Document) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = DocumentResult{ID: d.ID, Result: o.Extract(ctx, d.Pages)}
		}(i, d)
	}
	wg.Wait()
	return out
}
