package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("unexpected default port %q", cfg.APIPort)
	}
	if cfg.QdrantCollection != "research_chunks" {
		t.Fatalf("unexpected default collection %q", cfg.QdrantCollection)
	}
	if cfg.RerankMode != "auto" {
		t.Fatalf("unexpected default rerank mode %q", cfg.RerankMode)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("KNOWN_COLLECTIONS", "papers, notes ,archive")

	cfg := Load()
	if cfg.APIPort != "9999" {
		t.Fatalf("env port not applied, got %q", cfg.APIPort)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("env rps not applied, got %v", cfg.APIRateLimitRPS)
	}

	settings, err := cfg.PipelineSettings()
	if err != nil {
		t.Fatalf("pipeline settings: %v", err)
	}
	want := []string{"papers", "notes", "archive"}
	if len(settings.KnownCollections) != len(want) {
		t.Fatalf("collections = %v, want %v", settings.KnownCollections, want)
	}
	for i, name := range want {
		if settings.KnownCollections[i] != name {
			t.Fatalf("collections = %v, want %v", settings.KnownCollections, want)
		}
	}
}

func TestPipelineSettingsDefaultsWithoutOverlay(t *testing.T) {
	settings, err := Load().PipelineSettings()
	if err != nil {
		t.Fatalf("pipeline settings: %v", err)
	}
	if settings.MaxSources != 5 || settings.RRFK != 60 {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if !settings.ExpansionEnabled || !settings.DecompositionEnabled {
		t.Fatalf("retry strategies should default on")
	}
	if settings.WebFallbackEnabled {
		t.Fatalf("web fallback should be off without a search URL")
	}
}

func TestPipelineSettingsAppliesOverlay(t *testing.T) {
	overlay := `
max_sources: 8
confidence_threshold: 0.6
run_timeout_seconds: 45
expansion:
  enabled: false
web_fallback:
  enabled: true
  result_limit: 3
strict_verification: true
known_collections: [papers, theses]
`
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	t.Setenv("PIPELINE_SETTINGS_PATH", path)
	t.Setenv("SEARXNG_URL", "http://localhost:8888")

	settings, err := Load().PipelineSettings()
	if err != nil {
		t.Fatalf("pipeline settings: %v", err)
	}

	if settings.MaxSources != 8 {
		t.Fatalf("max_sources overlay lost, got %d", settings.MaxSources)
	}
	if settings.ConfidenceThreshold != 0.6 {
		t.Fatalf("threshold overlay lost, got %v", settings.ConfidenceThreshold)
	}
	if settings.RunTimeout != 45*time.Second {
		t.Fatalf("timeout overlay lost, got %v", settings.RunTimeout)
	}
	if settings.ExpansionEnabled {
		t.Fatalf("expansion should be disabled by overlay")
	}
	if !settings.DecompositionEnabled {
		t.Fatalf("unset decomposition should keep its default")
	}
	if !settings.StrictVerification {
		t.Fatalf("strict_verification overlay lost")
	}
	if settings.WebResultLimit != 3 {
		t.Fatalf("web result limit overlay lost, got %d", settings.WebResultLimit)
	}
	if len(settings.KnownCollections) != 2 || settings.KnownCollections[1] != "theses" {
		t.Fatalf("collections overlay lost: %v", settings.KnownCollections)
	}
}

func TestPipelineSettingsRejectsBadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("max_sources: [not, an, int]"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	t.Setenv("PIPELINE_SETTINGS_PATH", path)
	if _, err := Load().PipelineSettings(); err == nil {
		t.Fatalf("expected parse error for malformed overlay")
	}
}

func TestPipelineSettingsMissingOverlayFile(t *testing.T) {
	t.Setenv("PIPELINE_SETTINGS_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load().PipelineSettings(); err == nil {
		t.Fatalf("expected error for missing overlay file")
	}
}
