package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// Inputs are pdftotext outputs (.txt, .html, .json). More than one input
	// produces a batch report.
	Inputs        []string
	OutputPath    string
	OutputPDFPath string
	// Format is "json" (default) or "markdown".
	Format string

	// Rules overlay merged over the embedded tables
	RulesPath string

	// Fallback detection
	DetectURL          string
	DetectKey          string
	LLMBaseURL         string
	LLMModel           string
	LLMAPIKey          string
	Language           string
	DisableFallback    bool
	FallbackMaxChunks  int
	FallbackChunkChars int

	// Behavior
	Workers          int
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheMaxBytes    int64
	CacheMaxCount    int
	CacheClear       bool
	CacheStrictPerms bool
	Verbose          bool
}
