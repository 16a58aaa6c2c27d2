package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
)

const validSources = `{
  "sources": [
    {
      "name": "alpha",
      "mirrors": ["https://alpha.example.org", "https://alpha-mirror.example.org"],
      "requires_browser": true,
      "search_templates": [{"path": "/search/{query}", "separator": "-"}]
    }
  ],
  "indexers": [
    {"name": "api", "kind": "json", "base_url": "https://api.example.org", "search_path": "/list.json?query_term={query}"},
    {"name": "table", "kind": "table", "base_url": "https://table.example.org", "search_path": "/s/{query}",
     "row_selector": "table tr", "title_column": 1, "seeds_column": 2, "size_column": 4}
  ]
}`

func writeSources(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	return path
}

func setRequired(t *testing.T, sources string) {
	t.Helper()
	t.Setenv("OUTPUT_DIR", t.TempDir())
	t.Setenv("SOURCES_FILE", writeSources(t, sources))
}

func TestNewConfigDefaults(t *testing.T) {
	setRequired(t, validSources)

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.GetDownloadSettings().MaxConcurrentDownloads != DefaultMaxConcurrentDownloads {
		t.Errorf("MaxConcurrentDownloads = %d, want %d", cfg.DownloadSettings.MaxConcurrentDownloads, DefaultMaxConcurrentDownloads)
	}
	if cfg.GetFetchSettings().MinFileSize != DefaultMinFileSize {
		t.Errorf("MinFileSize = %d, want %d", cfg.FetchSettings.MinFileSize, DefaultMinFileSize)
	}
	if cfg.GetFetchSettings().InsecureTLS {
		t.Error("InsecureTLS should default to false")
	}
	if !cfg.GetExtractSettings().ReachAcceptBotWall {
		t.Error("ReachAcceptBotWall should default to true")
	}
	if cfg.TaskDBPath != filepath.Join(cfg.OutputDir, "tasks.db") {
		t.Errorf("TaskDBPath = %q", cfg.TaskDBPath)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "alpha" || len(cfg.Sources[0].Mirrors) != 2 {
		t.Errorf("Sources = %+v", cfg.Sources)
	}
	if len(cfg.Indexers) != 2 || cfg.Indexers[1].SeedsColumn != 2 {
		t.Errorf("Indexers = %+v", cfg.Indexers)
	}
}

func TestNewConfigOverrides(t *testing.T) {
	setRequired(t, validSources)
	t.Setenv("MAX_CONCURRENT_DOWNLOADS", "2")
	t.Setenv("REACH_TIMEOUT", "30s")
	t.Setenv("FETCH_RETRIES", "5")
	t.Setenv("FETCH_INSECURE_TLS", "true")
	t.Setenv("SELECT_COUNT", "4")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.DownloadSettings.MaxConcurrentDownloads != 2 {
		t.Errorf("MaxConcurrentDownloads = %d, want 2", cfg.DownloadSettings.MaxConcurrentDownloads)
	}
	if cfg.ExtractSettings.ReachTimeout != MaxReachTimeout {
		t.Errorf("ReachTimeout = %s, want clamp to %s", cfg.ExtractSettings.ReachTimeout, MaxReachTimeout)
	}
	if cfg.FetchSettings.Retries != 5 || !cfg.FetchSettings.InsecureTLS {
		t.Errorf("FetchSettings = %+v", cfg.FetchSettings)
	}
	if cfg.SelectionSettings.Count != 4 {
		t.Errorf("Count = %d, want 4", cfg.SelectionSettings.Count)
	}
	if cfg.ExtractSettings.ChallengeWaitWindow != 8*time.Second {
		t.Errorf("ChallengeWaitWindow = %s", cfg.ExtractSettings.ChallengeWaitWindow)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		sources       string
		env           map[string]string
		errorContains string
	}{
		{
			name:          "Retries out of range",
			sources:       validSources,
			env:           map[string]string{"FETCH_RETRIES": "9"},
			errorContains: "FETCH_RETRIES",
		},
		{
			name:          "Height above 1080",
			sources:       validSources,
			env:           map[string]string{"FETCH_MAX_HEIGHT": "2160"},
			errorContains: "FETCH_MAX_HEIGHT",
		},
		{
			name:          "Zero concurrency",
			sources:       validSources,
			env:           map[string]string{"MAX_CONCURRENT_DOWNLOADS": "0"},
			errorContains: "max concurrent downloads",
		},
		{
			name:          "Unknown store",
			sources:       validSources,
			env:           map[string]string{"TASK_STORE": "redis"},
			errorContains: "TASK_STORE",
		},
		{
			name:          "Empty sources file",
			sources:       `{}`,
			errorContains: "no sources",
		},
		{
			name:          "Template without placeholder",
			sources:       `{"sources":[{"name":"a","mirrors":["https://a.example.org"],"search_templates":[{"path":"/search"}]}]}`,
			errorContains: "without {query}",
		},
		{
			name:          "Bad separator",
			sources:       `{"sources":[{"name":"a","mirrors":["https://a.example.org"],"search_templates":[{"path":"/s/{query}","separator":"_"}]}]}`,
			errorContains: "unknown separator",
		},
		{
			name:          "Source without mirrors",
			sources:       `{"sources":[{"name":"a","search_templates":[{"path":"/s/{query}"}]}]}`,
			errorContains: "mirror",
		},
		{
			name:          "Unknown indexer kind",
			sources:       `{"indexers":[{"name":"x","kind":"rss","base_url":"https://x.example.org","search_path":"/{query}"}]}`,
			errorContains: "unknown indexer kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t, tt.sources)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewConfig()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, utils.ErrConfigurationError) {
				t.Errorf("error %v does not wrap ErrConfigurationError", err)
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errorContains)
			}
		})
	}
}

func TestNewConfigMissingRequired(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "")
	os.Unsetenv("OUTPUT_DIR")
	t.Setenv("SOURCES_FILE", "")
	os.Unsetenv("SOURCES_FILE")

	_, err := NewConfig()
	if err == nil || !strings.Contains(err.Error(), "missing required") {
		t.Fatalf("NewConfig() error = %v, want missing required", err)
	}
}

func TestLoadSourcesErrors(t *testing.T) {
	if _, err := LoadSources(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadSources(writeSources(t, "{not json")); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestShippedExampleSourcesAreValid(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())
	t.Setenv("SOURCES_FILE", filepath.Join("..", "..", "config", "sources.example.json"))

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() with example sources error = %v", err)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Name != "primary-stream" {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	if len(cfg.Indexers) != 2 || cfg.Indexers[1].Kind != IndexerKindTable {
		t.Errorf("indexers = %+v", cfg.Indexers)
	}
}

func TestNewConfigLoadsEnvFile(t *testing.T) {
	setRequired(t, validSources)
	os.Unsetenv("LOG_FILE")
	t.Cleanup(func() { os.Unsetenv("LOG_FILE") })
	t.Setenv("LOG_LEVEL", "warn")

	envFile := filepath.Join(t.TempDir(), "fetcher.env")
	body := "LOG_FILE=/var/log/fetcher.log\nLOG_LEVEL=debug\n"
	if err := os.WriteFile(envFile, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envFile)

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.LogFile != "/var/log/fetcher.log" {
		t.Errorf("LogFile = %q, want value from env file", cfg.LogFile)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, process environment should win over env file", cfg.LogLevel)
	}
}

func TestNewConfigMissingEnvFile(t *testing.T) {
	setRequired(t, validSources)
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	if _, err := NewConfig(); err == nil {
		t.Fatal("NewConfig() should fail when ENV_FILE does not exist")
	}
}
