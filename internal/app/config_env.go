package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, envKey string) {
		if *dst == "" {
			*dst = os.Getenv(envKey)
		}
	}
	setString(&cfg.RulesPath, "GOPII_RULES")
	setString(&cfg.DetectURL, "DETECT_URL")
	setString(&cfg.DetectKey, "DETECT_KEY")
	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.LLMAPIKey, "LLM_API_KEY")
	setString(&cfg.CacheDir, "CACHE_DIR")
	setString(&cfg.Language, "LANGUAGE")

	setInt := func(dst *int, envKey string) {
		if *dst != 0 {
			return
		}
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(envKey))); err == nil && n > 0 {
			*dst = n
		}
	}
	setInt(&cfg.FallbackMaxChunks, "FALLBACK_MAX_CHUNKS")
	setInt(&cfg.FallbackChunkChars, "FALLBACK_CHUNK_CHARS")
	setInt(&cfg.Workers, "WORKERS")

	if cfg.CacheMaxAge == 0 {
		if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				cfg.CacheMaxAge = d
			}
		}
	}

	setBool := func(dst *bool, envKey string) {
		if *dst {
			return
		}
		if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
			if s == "1" || s == "true" || s == "yes" || s == "on" {
				*dst = true
			}
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.DisableFallback, "NO_FALLBACK")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This lets env take precedence over
// values coming from a config file while flags remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	for key, dst := range map[string]*string{
		"GOPII_RULES":  &cfg.RulesPath,
		"DETECT_URL":   &cfg.DetectURL,
		"DETECT_KEY":   &cfg.DetectKey,
		"LLM_BASE_URL": &cfg.LLMBaseURL,
		"LLM_MODEL":    &cfg.LLMModel,
		"LLM_API_KEY":  &cfg.LLMAPIKey,
		"CACHE_DIR":    &cfg.CacheDir,
		"LANGUAGE":     &cfg.Language,
	} {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	for key, dst := range map[string]*int{
		"FALLBACK_MAX_CHUNKS":  &cfg.FallbackMaxChunks,
		"FALLBACK_CHUNK_CHARS": &cfg.FallbackChunkChars,
		"WORKERS":              &cfg.Workers,
	} {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
			*dst = n
		}
	}
	if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.CacheMaxAge = d
		}
	}

	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, envKey string) {
		if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
			switch s {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.DisableFallback, "NO_FALLBACK")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
}
