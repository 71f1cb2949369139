package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	t.Setenv("FOO", "")
	t.Setenv("BAR", "")
	t.Setenv("BAZ", "")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nexport BAR='beta # kept'\nBAZ=gamma # dropped\nmalformed\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	for key, want := range map[string]string{"FOO": "alpha", "BAR": "beta # kept", "BAZ": "gamma"} {
		if got := os.Getenv(key); got != want {
			t.Fatalf("%s=%q, want %q", key, got, want)
		}
	}
}

// Later files override earlier ones when loading multiple dotenv files.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	t.Setenv("K", "")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := LoadEnvFiles(a, b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
}

func TestApplyEnvToConfig_FromEnv(t *testing.T) {
	t.Setenv("DETECT_URL", "http://detect.example")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("CACHE_DIR", "/tmp/gopii-cache")
	t.Setenv("CACHE_MAX_AGE", "48h")
	t.Setenv("FALLBACK_MAX_CHUNKS", "7")
	t.Setenv("NO_FALLBACK", "yes")

	cfg := Config{LLMModel: "flag-model"}
	ApplyEnvToConfig(&cfg)
	if cfg.DetectURL != "http://detect.example" || cfg.CacheDir != "/tmp/gopii-cache" {
		t.Fatalf("unexpected %+v", cfg)
	}
	if cfg.LLMModel != "flag-model" {
		t.Fatalf("explicit value must win, got %q", cfg.LLMModel)
	}
	if cfg.CacheMaxAge != 48*time.Hour || cfg.FallbackMaxChunks != 7 || !cfg.DisableFallback {
		t.Fatalf("unexpected parsed values %+v", cfg)
	}
}

func TestApplyEnvOverrides_ReplacesFileValues(t *testing.T) {
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("NO_FALLBACK", "false")
	t.Setenv("WORKERS", "3")
	cfg := Config{LLMModel: "file-model", DisableFallback: true, Workers: 8}
	ApplyEnvOverrides(&cfg)
	if cfg.LLMModel != "env-model" || cfg.DisableFallback || cfg.Workers != 3 {
		t.Fatalf("env must override, got %+v", cfg)
	}
}
