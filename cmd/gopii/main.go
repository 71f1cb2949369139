package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hyperifyio/gopii/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		outputPath    string
		outputPDFPath string
		format        string
		configPath    string
		envFiles      string
		rulesPath     string
		detectURL     string
		detectKey     string
		llmBaseURL    string
		llmModel      string
		llmKey        string
		language      string
		noFallback    bool
		maxChunks     int
		chunkChars    int
		workers       int
		cacheDir      string
		cacheMaxAge   time.Duration
		cacheMaxBytes int64
		cacheMaxCount int
		cacheClear    bool
		cacheStrict   bool
		verbose       bool
		logFile       string
		showVersion   bool
	)

	flag.StringVar(&outputPath, "output", "", "Path to write the report (default stdout)")
	flag.StringVar(&outputPDFPath, "output.pdf", "", "Optional path to also write a PDF report")
	flag.StringVar(&format, "format", "", "Report format: json or markdown (default json)")
	flag.StringVar(&configPath, "config", os.Getenv("GOPII_CONFIG"), "Config file (.yaml, .json or .toml)")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files loaded before reading env")
	flag.StringVar(&rulesPath, "rules", "", "YAML rules overlay merged over the embedded tables")
	flag.StringVar(&detectURL, "detect.url", "", "Entity-detection service URL")
	flag.StringVar(&detectKey, "detect.key", "", "Entity-detection service API key")
	flag.StringVar(&llmBaseURL, "llm.base", "", "OpenAI-compatible base URL used when no detection service is set")
	flag.StringVar(&llmModel, "llm.model", "", "Chat model name for fallback detection")
	flag.StringVar(&llmKey, "llm.key", "", "API key for the OpenAI-compatible server")
	flag.StringVar(&language, "lang", "", "Language sent to the detector (default es)")
	flag.BoolVar(&noFallback, "no-fallback", false, "Never call the detection backend")
	flag.IntVar(&maxChunks, "fallback.maxChunks", 0, "Maximum chunks sent per document and kind (0 = unlimited)")
	flag.IntVar(&chunkChars, "fallback.chunkChars", 0, "Maximum bytes per detection request (default 4500)")
	flag.IntVar(&workers, "workers", 0, "Documents processed concurrently (default 1)")
	flag.StringVar(&cacheDir, "cache.dir", "", "Detection cache directory (empty disables caching)")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Max age for cache entries before purge (e.g. 72h); 0 disables")
	flag.Int64Var(&cacheMaxBytes, "cache.maxBytes", 0, "Evict least recently used entries above this size; 0 disables")
	flag.IntVar(&cacheMaxCount, "cache.maxCount", 0, "Evict least recently used entries above this count; 0 disables")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear the detection cache before run")
	flag.BoolVar(&cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.StringVar(&logFile, "log.file", "", "Also write JSON logs to this rotating file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] input...\n\nInputs are pdftotext outputs: .txt (pages split by form feed), .html (-bbox) or .json.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("gopii %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return
	}

	cfg := app.Config{
		Inputs:             flag.Args(),
		OutputPath:         outputPath,
		OutputPDFPath:      outputPDFPath,
		Format:             format,
		RulesPath:          rulesPath,
		DetectURL:          detectURL,
		DetectKey:          detectKey,
		LLMBaseURL:         llmBaseURL,
		LLMModel:           llmModel,
		LLMAPIKey:          llmKey,
		Language:           language,
		DisableFallback:    noFallback,
		FallbackMaxChunks:  maxChunks,
		FallbackChunkChars: chunkChars,
		Workers:            workers,
		CacheDir:           cacheDir,
		CacheMaxAge:        cacheMaxAge,
		CacheMaxBytes:      cacheMaxBytes,
		CacheMaxCount:      cacheMaxCount,
		CacheClear:         cacheClear,
		CacheStrictPerms:   cacheStrict,
		Verbose:            verbose,
	}

	if err := loadConfig(&cfg, configPath, splitList(envFiles)); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if logFile != "" {
		closer := setupFileLog(logFile)
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		// Exit code policy: inputs without pages map to 2, anything else to 1.
		if errors.Is(err, app.ErrNoPages) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig layers dotenv files, the config file and the environment under
// the values already set from flags: flags > env > file.
func loadConfig(cfg *app.Config, configPath string, envFiles []string) error {
	if err := app.LoadEnvFiles(envFiles...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		// env beats file, so apply env onto the file values before flags
		var fileCfg app.Config
		app.ApplyFileConfig(&fileCfg, fc)
		app.ApplyEnvOverrides(&fileCfg)
		app.ApplyFileConfig(cfg, toFileConfig(fileCfg))
	}
	app.ApplyEnvToConfig(cfg)
	return app.ValidateConfig(*cfg)
}

// toFileConfig maps a resolved Config back onto the file schema so it can be
// overlaid with ApplyFileConfig.
func toFileConfig(c app.Config) app.FileConfig {
	var fc app.FileConfig
	fc.Inputs = c.Inputs
	fc.Output = c.OutputPath
	fc.OutputPDF = c.OutputPDFPath
	fc.Format = c.Format
	fc.Rules = c.RulesPath
	fc.Language = c.Language
	fc.Workers = c.Workers
	fc.Verbose = c.Verbose
	fc.Detect.URL = c.DetectURL
	fc.Detect.Key = c.DetectKey
	fc.LLM.BaseURL = c.LLMBaseURL
	fc.LLM.Model = c.LLMModel
	fc.LLM.APIKey = c.LLMAPIKey
	fc.Fallback.Disable = c.DisableFallback
	fc.Fallback.MaxChunks = c.FallbackMaxChunks
	fc.Fallback.ChunkChars = c.FallbackChunkChars
	fc.Cache.Dir = c.CacheDir
	if c.CacheMaxAge > 0 {
		fc.Cache.MaxAge = c.CacheMaxAge.String()
	}
	fc.Cache.MaxBytes = c.CacheMaxBytes
	fc.Cache.MaxCount = c.CacheMaxCount
	fc.Cache.Clear = c.CacheClear
	fc.Cache.StrictPerms = c.CacheStrictPerms
	return fc
}

// setupFileLog adds a rotating JSON log file next to the console output.
func setupFileLog(path string) io.Closer {
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, rot)).With().Timestamp().Logger()
	return rot
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
