package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema. Durations are
// strings like "24h" so all three formats read them the same way.
type FileConfig struct {
	Inputs    []string `yaml:"inputs" json:"inputs" toml:"inputs"`
	Output    string   `yaml:"output" json:"output" toml:"output"`
	OutputPDF string   `yaml:"outputPDF" json:"outputPDF" toml:"outputPDF"`
	Format    string   `yaml:"format" json:"format" toml:"format"`
	Rules     string   `yaml:"rules" json:"rules" toml:"rules"`
	Language  string   `yaml:"language" json:"language" toml:"language"`
	Workers   int      `yaml:"workers" json:"workers" toml:"workers"`
	Verbose   bool     `yaml:"verbose" json:"verbose" toml:"verbose"`

	Detect struct {
		URL string `yaml:"url" json:"url" toml:"url"`
		Key string `yaml:"key" json:"key" toml:"key"`
	} `yaml:"detect" json:"detect" toml:"detect"`

	LLM struct {
		BaseURL string `yaml:"base" json:"base" toml:"base"`
		Model   string `yaml:"model" json:"model" toml:"model"`
		APIKey  string `yaml:"key" json:"key" toml:"key"`
	} `yaml:"llm" json:"llm" toml:"llm"`

	Fallback struct {
		Disable    bool `yaml:"disable" json:"disable" toml:"disable"`
		MaxChunks  int  `yaml:"maxChunks" json:"maxChunks" toml:"maxChunks"`
		ChunkChars int  `yaml:"chunkChars" json:"chunkChars" toml:"chunkChars"`
	} `yaml:"fallback" json:"fallback" toml:"fallback"`

	Cache struct {
		Dir         string `yaml:"dir" json:"dir" toml:"dir"`
		MaxAge      string `yaml:"maxAge" json:"maxAge" toml:"maxAge"`
		MaxBytes    int64  `yaml:"maxBytes" json:"maxBytes" toml:"maxBytes"`
		MaxCount    int    `yaml:"maxCount" json:"maxCount" toml:"maxCount"`
		Clear       bool   `yaml:"clear" json:"clear" toml:"clear"`
		StrictPerms bool   `yaml:"strictPerms" json:"strictPerms" toml:"strictPerms"`
	} `yaml:"cache" json:"cache" toml:"cache"`
}

// LoadConfigFile reads YAML, JSON or TOML into FileConfig, chosen by
// extension.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse toml: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	if fc.Cache.MaxAge != "" {
		if _, err := time.ParseDuration(fc.Cache.MaxAge); err != nil {
			return fc, fmt.Errorf("cache.maxAge: %w", err)
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset/zero in cfg. Flags should already have been parsed; this
// function lets file config supply defaults while preserving explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if len(cfg.Inputs) == 0 && len(fc.Inputs) > 0 {
		cfg.Inputs = append([]string{}, fc.Inputs...)
	}
	if cfg.OutputPath == "" && fc.Output != "" {
		cfg.OutputPath = fc.Output
	}
	if cfg.OutputPDFPath == "" && fc.OutputPDF != "" {
		cfg.OutputPDFPath = fc.OutputPDF
	}
	if cfg.Format == "" && fc.Format != "" {
		cfg.Format = fc.Format
	}
	if cfg.RulesPath == "" && fc.Rules != "" {
		cfg.RulesPath = fc.Rules
	}
	if cfg.Language == "" && fc.Language != "" {
		cfg.Language = fc.Language
	}
	if cfg.Workers == 0 && fc.Workers > 0 {
		cfg.Workers = fc.Workers
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}

	if cfg.DetectURL == "" && fc.Detect.URL != "" {
		cfg.DetectURL = fc.Detect.URL
	}
	if cfg.DetectKey == "" && fc.Detect.Key != "" {
		cfg.DetectKey = fc.Detect.Key
	}
	if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}

	if !cfg.DisableFallback && fc.Fallback.Disable {
		cfg.DisableFallback = true
	}
	if cfg.FallbackMaxChunks == 0 && fc.Fallback.MaxChunks > 0 {
		cfg.FallbackMaxChunks = fc.Fallback.MaxChunks
	}
	if cfg.FallbackChunkChars == 0 && fc.Fallback.ChunkChars > 0 {
		cfg.FallbackChunkChars = fc.Fallback.ChunkChars
	}

	if cfg.CacheDir == "" && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge != "" {
		if d, err := time.ParseDuration(fc.Cache.MaxAge); err == nil {
			cfg.CacheMaxAge = d
		}
	}
	if cfg.CacheMaxBytes == 0 && fc.Cache.MaxBytes > 0 {
		cfg.CacheMaxBytes = fc.Cache.MaxBytes
	}
	if cfg.CacheMaxCount == 0 && fc.Cache.MaxCount > 0 {
		cfg.CacheMaxCount = fc.Cache.MaxCount
	}
	if !cfg.CacheClear && fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: at least one input is required")
	}
	for _, in := range cfg.Inputs {
		if strings.TrimSpace(in) == "" {
			return errors.New("config: empty input path")
		}
	}
	switch cfg.Format {
	case "", FormatJSON, FormatMarkdown:
	default:
		return fmt.Errorf("config: unknown format %q (want %s or %s)", cfg.Format, FormatJSON, FormatMarkdown)
	}
	if cfg.Workers < 0 || cfg.FallbackMaxChunks < 0 || cfg.FallbackChunkChars < 0 || cfg.CacheMaxBytes < 0 || cfg.CacheMaxCount < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
