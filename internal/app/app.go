package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gopii/internal/cache"
	"github.com/hyperifyio/gopii/internal/extract"
	"github.com/hyperifyio/gopii/internal/fallback"
	"github.com/hyperifyio/gopii/internal/llm"
	"github.com/hyperifyio/gopii/internal/pii"
	"github.com/hyperifyio/gopii/internal/rules"
)

const userAgent = "gopii/1.0 (+https://github.com/hyperifyio/gopii)"

// ErrNoPages is returned when none of the inputs contain a page. The CLI maps
// it to a non-zero exit code.
var ErrNoPages = errors.New("no pages in input")

type App struct {
	cfg      Config
	orch     *pii.Orchestrator
	detector string
	cached   bool
	// out receives reports when no output path is configured.
	out io.Writer
}

func New(ctx context.Context, cfg Config) (*App, error) {
	t := rules.Default()
	if strings.TrimSpace(cfg.RulesPath) != "" {
		loaded, err := rules.Load(cfg.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		t = loaded
		log.Info().Str("rules", cfg.RulesPath).Msg("rules overlay loaded")
	}

	a := &App{cfg: cfg, out: os.Stdout}
	var fb *fallback.Extractor
	if !cfg.DisableFallback {
		if d := a.buildDetector(ctx); d != nil {
			fb = fallback.New(d, t)
			fb.MaxChunks = cfg.FallbackMaxChunks
			fb.ChunkChars = cfg.FallbackChunkChars
			fb.Language = cfg.Language
		}
	}
	a.orch = pii.New(t, fb)
	return a, nil
}

// buildDetector picks the detection backend: a dedicated service when
// DetectURL is set, otherwise a chat model when LLMModel is set. It returns
// nil when neither is configured.
func (a *App) buildDetector(ctx context.Context) fallback.Detector {
	var d fallback.Detector
	switch {
	case a.cfg.DetectURL != "":
		hd := &fallback.HTTPDetector{
			URL:           a.cfg.DetectURL,
			APIKey:        a.cfg.DetectKey,
			HTTPClient:    newServiceHTTPClient(0),
			UserAgent:     userAgent,
			MaxAttempts:   3,
			MaxConcurrent: 8,
		}
		d, a.detector = hd, hd.Name()
	case a.cfg.LLMModel != "":
		p := llm.NewOpenAI(a.cfg.LLMBaseURL, a.cfg.LLMAPIKey, newServiceHTTPClient(0))
		preflightModels(ctx, p)
		cd := &fallback.ChatDetector{Client: p, Model: a.cfg.LLMModel}
		d, a.detector = cd, cd.Name()
	default:
		log.Debug().Msg("no detection backend configured; fallback disabled")
		return nil
	}

	if a.cfg.CacheDir != "" {
		dir := filepath.Join(a.cfg.CacheDir, "detect")
		// Apply cache invalidation controls; errors never fail startup
		if a.cfg.CacheClear {
			_ = cache.ClearDir(dir)
		}
		if n, err := cache.PurgeByAge(dir, a.cfg.CacheMaxAge); err == nil && n > 0 {
			log.Info().Int("removed", n).Msg("purged aged detection cache entries")
		}
		if n, err := cache.EnforceLimits(dir, a.cfg.CacheMaxBytes, a.cfg.CacheMaxCount); err == nil && n > 0 {
			log.Info().Int("removed", n).Msg("evicted detection cache entries")
		}
		d = &fallback.CachingDetector{Inner: d, Cache: &cache.DetectCache{Dir: dir, StrictPerms: a.cfg.CacheStrictPerms}, Name: a.detector}
		a.cached = true
	}
	log.Info().Str("detector", a.detector).Bool("cache", a.cached).Msg("fallback detection enabled")
	return d
}

// preflightModels lists models as a best-effort connectivity check.
func preflightModels(ctx context.Context, p llm.ModelLister) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := p.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) > 0 {
		log.Info().Int("count", len(models.Models)).Msg("LLM models available")
	} else {
		log.Warn().Msg("LLM returned zero models")
	}
}

func (a *App) Close() {
	// nothing yet
}

// Run loads every input, extracts names and ID numbers, and writes the
// report.
func (a *App) Run(ctx context.Context) error {
	docs := make([]pii.Document, 0, len(a.cfg.Inputs))
	entries := make([]manifestEntry, 0, len(a.cfg.Inputs))
	total := 0
	for i, in := range a.cfg.Inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		pages, err := extract.ForPath(in).Load(b)
		if err != nil {
			return fmt.Errorf("load %s: %w", in, err)
		}
		log.Debug().Str("input", in).Int("pages", len(pages)).Msg("input loaded")
		total += len(pages)
		docs = append(docs, pii.Document{ID: in, Pages: pages})
		entries = append(entries, manifestEntry{Index: i + 1, Path: in, SHA256: computeSHA256Hex(b), Bytes: len(b), Pages: len(pages)})
	}
	if total == 0 {
		log.Warn().Int("inputs", len(docs)).Msg("inputs contain no pages")
		return ErrNoPages
	}

	start := time.Now()
	results := a.orch.ExtractBatch(ctx, docs, a.cfg.Workers)
	names, cedulas := 0, 0
	for _, r := range results {
		names += len(r.Result.Names)
		cedulas += len(r.Result.Cedulas)
	}
	log.Info().Int("documents", len(results)).Int("pages", total).Int("names", names).Int("cedulas", cedulas).Dur("took", time.Since(start)).Msg("extraction finished")

	meta := manifestMeta{
		Detector:      a.detector,
		Rules:         a.cfg.RulesPath,
		DocumentCount: len(docs),
		DetectCache:   a.cached,
		GeneratedAt:   time.Now().UTC(),
	}
	if err := a.writeReport(results, meta, entries); err != nil {
		return err
	}
	if a.cfg.OutputPDFPath != "" {
		md := renderMarkdown(results)
		md = appendReproFooter(md, a.detector, len(docs), a.cached)
		if err := writeSimplePDF(md, a.cfg.OutputPDFPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("out", a.cfg.OutputPDFPath).Msg("wrote PDF report")
	}
	return nil
}

func (a *App) writeReport(results []pii.DocumentResult, meta manifestMeta, entries []manifestEntry) error {
	var data []byte
	switch a.cfg.Format {
	case FormatMarkdown:
		md := renderMarkdown(results)
		md = appendReproFooter(md, a.detector, len(results), a.cached)
		md = appendEmbeddedManifest(md, meta, entries)
		data = []byte(md)
	default:
		b, err := renderJSON(results)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		data = append(b, '\n')
	}

	out := strings.TrimSpace(a.cfg.OutputPath)
	if out == "" || out == "-" {
		if _, err := a.out.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if b, err := marshalManifestJSON(meta, entries); err == nil {
		_ = os.WriteFile(deriveManifestSidecarPath(out), b, 0o644)
	}
	log.Info().Str("out", out).Msg("wrote output")
	return nil
}
