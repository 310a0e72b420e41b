package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Site.BaseURL != "https://session.melle.info/bi" {
		t.Errorf("unexpected base url %q", cfg.Site.BaseURL)
	}
	if cfg.Summarization.Provider != "template" {
		t.Errorf("expected provider 'template', got %q", cfg.Summarization.Provider)
	}
	if cfg.Extraction.MaxTextChars != 4000 {
		t.Errorf("expected max_text_chars 4000, got %d", cfg.Extraction.MaxTextChars)
	}
	if cfg.Schedule != "0 6 * * *" {
		t.Errorf("unexpected schedule %q", cfg.Schedule)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
summarization:
  provider: openai
crawl:
  max_retries: 5
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Summarization.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Summarization.Provider)
	}
	if cfg.Server.Port != 9000 || cfg.Crawl.MaxRetries != 5 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Summarization.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Summarization.OllamaURL)
	}
	if cfg.Crawl.RetryBackoff != 2.0 || cfg.Crawl.MonthsBack != 1 {
		t.Errorf("expected crawl defaults, got %+v", cfg.Crawl)
	}
}

func TestParseRejectsInvalidCrawlSettings(t *testing.T) {
	for _, data := range []string{"crawl:\n  max_retries: 0\n", "crawl:\n  months_back: -1\n", "crawl: [1, 2]\n"} {
		if _, err := parse([]byte(data)); err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Crawl.UserAgent == "" {
		t.Error("expected user agent to be populated from file")
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
	path := filepath.Join(t.TempDir(), "c.yaml")
	os.WriteFile(path, []byte("{}"), 0o644)
	got, err := ResolveConfigPath(path)
	if err != nil || got != path {
		t.Errorf("ResolveConfigPath = %q, %v", got, err)
	}
}

func TestStoragePaths(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Storage.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.RawDir() != filepath.Join("/custom/path", "raw", "sessionnet") {
		t.Errorf("raw dir = %q", cfg.RawDir())
	}
	if cfg.DBPath() != filepath.Join("/custom/path", "index.sqlite") {
		t.Errorf("db path = %q", cfg.DBPath())
	}
	cfg.Storage.DBPath = "/tmp/x.sqlite"
	if cfg.DBPath() != "/tmp/x.sqlite" {
		t.Errorf("db path override = %q", cfg.DBPath())
	}
}

func TestFetchOptions(t *testing.T) {
	cfg, _ := parse([]byte("crawl:\n  min_request_interval_seconds: 0.25\n  timeout_seconds: 5\n"))
	opts := cfg.FetchOptions()
	if opts.MinRequestInterval != 250*time.Millisecond || opts.Timeout != 5*time.Second || opts.MaxRetries != 3 {
		t.Errorf("options = %+v", opts)
	}
}
