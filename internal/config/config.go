package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/ratsinfo/internal/fetch"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Site          Site          `yaml:"site"`
	Crawl         Crawl         `yaml:"crawl"`
	Storage       Storage       `yaml:"storage"`
	Extraction    Extraction    `yaml:"extraction"`
	Summarization Summarization `yaml:"summarization"`
	Server        Server        `yaml:"server"`
	Schedule      string        `yaml:"schedule"`
	Logging       Logging       `yaml:"logging"`
}

type Site struct {
	BaseURL string `yaml:"base_url"`
}

type Crawl struct {
	TimeoutSeconds            int     `yaml:"timeout_seconds"`
	UserAgent                 string  `yaml:"user_agent"`
	MinRequestIntervalSeconds float64 `yaml:"min_request_interval_seconds"`
	MaxRetries                int     `yaml:"max_retries"`
	RetryBackoff              float64 `yaml:"retry_backoff"`
	MonthsBack                int     `yaml:"months_back"`
	MonthsAhead               int     `yaml:"months_ahead"`
	Refresh                   bool    `yaml:"refresh"`
}

type Storage struct {
	DataDir string `yaml:"data_dir"`
	RawDir  string `yaml:"raw_dir"`
	DBPath  string `yaml:"db_path"`
}

type Extraction struct {
	MaxTextChars int `yaml:"max_text_chars"`
}

type Summarization struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for ratsinfo.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "ratsinfo")
}

// DataDir returns the XDG data directory for ratsinfo.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "ratsinfo")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/ratsinfo/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'ratsinfo init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Site: Site{BaseURL: "https://session.melle.info/bi"},
		Crawl: Crawl{
			TimeoutSeconds:            30,
			UserAgent:                 fetch.DefaultOptions().UserAgent,
			MinRequestIntervalSeconds: 1.0,
			MaxRetries:                3,
			RetryBackoff:              2.0,
			MonthsBack:                1,
			MonthsAhead:               1,
		},
		Extraction: Extraction{MaxTextChars: 4000},
		Summarization: Summarization{
			Provider:    "template",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
		},
		Server:   Server{Port: 8000},
		Schedule: "0 6 * * *",
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Crawl.MaxRetries < 1 {
		return nil, fmt.Errorf("crawl.max_retries must be at least 1, got %d", cfg.Crawl.MaxRetries)
	}
	if cfg.Crawl.MonthsBack < 0 || cfg.Crawl.MonthsAhead < 0 {
		return nil, fmt.Errorf("crawl.months_back and crawl.months_ahead must not be negative")
	}
	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

// RawDir is where portal pages and documents are mirrored.
func (c *Config) RawDir() string {
	if c.Storage.RawDir != "" {
		return c.Storage.RawDir
	}
	return filepath.Join(c.GetDataDir(), "raw", "sessionnet")
}

// DBPath is the SQLite index.
func (c *Config) DBPath() string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return filepath.Join(c.GetDataDir(), "index.sqlite")
}

// FetchOptions converts the crawl settings for the HTTP client.
func (c *Config) FetchOptions() fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Timeout = time.Duration(c.Crawl.TimeoutSeconds) * time.Second
	if c.Crawl.UserAgent != "" {
		opts.UserAgent = c.Crawl.UserAgent
	}
	opts.MinRequestInterval = time.Duration(c.Crawl.MinRequestIntervalSeconds * float64(time.Second))
	opts.MaxRetries = c.Crawl.MaxRetries
	opts.RetryBackoff = c.Crawl.RetryBackoff
	return opts
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
