package observers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redferne/quill/pkg/metrics"
	"github.com/redferne/quill/pkg/redact"
)

func TestTranscriptObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTranscriptObserver(dir)

	ev := metrics.MetricsEvent{
		Name: "llm_output_text",
		Time: time.Now(),
		Tags: map[string]string{
			"conversation_id": "conv-1",
			"trace_id":        "trace-1",
		},
		Fields: map[string]any{"text": "To be, or not to be."},
	}
	obs.RecordEvent(ev)
	_ = obs.Close()

	path := filepath.Join(dir, "conv-1.jsonl")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(b), "llm_output_text") {
		t.Fatalf("expected llm_output_text event in file")
	}
	if !strings.Contains(string(b), "To be, or not to be.") {
		t.Fatalf("expected assistant text in file")
	}
}

func TestTranscriptObserverRedactsFields(t *testing.T) {
	redact.SetEnabled(true)
	defer redact.SetEnabled(false)

	dir := t.TempDir()
	obs := NewTranscriptObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   "chat_input",
		Time:   time.Now(),
		Tags:   map[string]string{"conversation_id": "conv-2"},
		Fields: map[string]any{"text": "reach me at rosalind@arden.example"},
	})
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "conv-2.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(b), "rosalind@arden.example") {
		t.Fatalf("expected email redacted from transcript")
	}
	if !strings.Contains(string(b), "[REDACTED_EMAIL]") {
		t.Fatalf("expected redaction marker in transcript")
	}
}

func TestUsageObserverAccumulates(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)

	for i := 0; i < 2; i++ {
		obs.RecordEvent(metrics.MetricsEvent{
			Name: "llm_usage",
			Time: time.Now(),
			Tags: map[string]string{"conversation_id": "conv-3", "provider": "mock"},
			Fields: map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		})
	}
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "conv-3.usage.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"requests": 2`) {
		t.Fatalf("expected 2 requests, got %s", out)
	}
	if !strings.Contains(out, `"total_tokens": 30`) {
		t.Fatalf("expected 30 total tokens, got %s", out)
	}
}

func TestPurgeArtifactsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "stale.jsonl")
	if err := os.WriteFile(old, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	fresh := filepath.Join(dir, "fresh.jsonl")
	if err := os.WriteFile(fresh, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := PurgeArtifacts(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh file kept: %v", err)
	}
}
