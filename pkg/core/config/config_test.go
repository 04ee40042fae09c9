package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg.Upstream.BaseURL != "https://www.bundesanzeiger.de" {
		t.Errorf("base url = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.RetryAttempts != 3 {
		t.Errorf("retry attempts = %d", cfg.Upstream.RetryAttempts)
	}
	if cfg.Challenge.MaxAttempts != 3 {
		t.Errorf("challenge attempts = %d", cfg.Challenge.MaxAttempts)
	}
	if cfg.Match.MinSimilarity != 65 {
		t.Errorf("min similarity = %d", cfg.Match.MinSimilarity)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.yaml")
	content := `
upstream:
  base_url: "http://localhost:9999"
  request_timeout: 5s
extraction:
  provider: gemini
  model: gemini-2.0-flash
cache:
  ttl: 24h
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Upstream.BaseURL != "http://localhost:9999" {
		t.Errorf("base url = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.RequestTimeout.Std() != 5*time.Second {
		t.Errorf("request timeout = %v", cfg.Upstream.RequestTimeout.Std())
	}
	if cfg.Extraction.Provider != "gemini" {
		t.Errorf("provider = %q", cfg.Extraction.Provider)
	}
	if cfg.Cache.TTL.Std() != 24*time.Hour {
		t.Errorf("ttl = %v", cfg.Cache.TTL.Std())
	}
	// Keys not present in the file keep their defaults.
	if cfg.Upstream.RetryAttempts != 3 {
		t.Errorf("retry attempts = %d, want default", cfg.Upstream.RetryAttempts)
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := Default()
	cfg.Cache.DatabaseURLEnv = "TEST_CACHE_DB_URL"
	t.Setenv("TEST_CACHE_DB_URL", "postgres://localhost/reports")
	if got := cfg.DatabaseURL(); got != "postgres://localhost/reports" {
		t.Errorf("database url = %q", got)
	}
}
