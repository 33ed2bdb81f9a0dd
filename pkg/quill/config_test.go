package quill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/redferne/quill/pkg/errorsx"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "vendors:\n  llm:\n    provider: mock\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Environment != "development" {
		t.Fatalf("environment = %q", cfg.Environment)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Fatalf("logging defaults = %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Observability.SampleRate != 1.0 {
		t.Fatalf("sample rate = %v", cfg.Observability.SampleRate)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatal("redact_pii should default to true")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("QUILL_TEST_API_KEY", "sk-local-test")
	path := writeConfig(t, `
vendors:
  llm:
    provider: openai
    settings:
      api_key: ${QUILL_TEST_API_KEY}
      model: gpt-4o-mini
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Vendors.LLM.Settings["api_key"]; got != "sk-local-test" {
		t.Fatalf("api_key = %v", got)
	}
}

func TestLoadConfigMissingProvider(t *testing.T) {
	path := writeConfig(t, "environment: production\n")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("reason = %v", errorsx.Reason(err))
	}
}

func TestLoadConfigRejectsBadSampleRate(t *testing.T) {
	path := writeConfig(t, `
vendors:
  llm:
    provider: mock
observability:
  sample_rate: 1.5
`)
	_, err := LoadConfig(path)
	if err == nil || !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !errorsx.HasReason(err, errorsx.ReasonConfigLoad) {
		t.Fatalf("expected config_load, got %v", err)
	}
}
