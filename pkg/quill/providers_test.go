package quill

import (
	"context"
	"strings"
	"testing"

	"github.com/redferne/quill/pkg/llm"
	"github.com/redferne/quill/pkg/providers/openai"
)

func llmConfig(provider string, settings map[string]any) Config {
	return Config{
		Vendors: VendorsConfig{LLM: VendorConfig{
			Provider: provider,
			Settings: settings,
		}},
	}
}

func TestDefaultRegistryBuildsMock(t *testing.T) {
	cfg := llmConfig("mock", map[string]any{
		"response_text": "working on it",
		"tool_calls": []any{
			map[string]any{"name": "multiply", "arguments": `{"a": 121, "b": 2}`},
		},
		"final_text": "The answer is 242.",
	})
	adapter, err := DefaultRegistry().BuildLLM("mock", cfg)
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	first, err := adapter.Generate(context.Background(), llm.Context{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Name != "multiply" {
		t.Fatalf("tool calls = %+v", first.ToolCalls)
	}
	if first.ToolCalls[0].ID != "mock-call-1" {
		t.Fatalf("call id = %q", first.ToolCalls[0].ID)
	}
	final, err := adapter.Generate(context.Background(), llm.Context{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if final.Text != "The answer is 242." {
		t.Fatalf("final text = %q", final.Text)
	}
}

func TestDefaultRegistryUnknownProvider(t *testing.T) {
	_, err := DefaultRegistry().BuildLLM("petals", Config{})
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected not registered error, got %v", err)
	}
}

func TestDefaultRegistryOpenAIRequiresCredentials(t *testing.T) {
	_, err := DefaultRegistry().BuildLLM("openai", llmConfig("openai", map[string]any{
		"model": "gpt-4o-mini",
	}))
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected missing api_key error, got %v", err)
	}
}

func TestDefaultRegistryRejectsUnknownSettings(t *testing.T) {
	_, err := DefaultRegistry().BuildLLM("openai", llmConfig("openai", map[string]any{
		"api_key": "sk-test",
		"model":   "gpt-4o-mini",
		"voice":   "alloy",
	}))
	if err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestDefaultRegistryOpenAIAppliesSettings(t *testing.T) {
	adapter, err := DefaultRegistry().BuildLLM("openai", llmConfig("openai", map[string]any{
		"api_key":             "sk-test",
		"model":               "gpt-4o-mini",
		"base_url":            "http://127.0.0.1:9999/v1",
		"temperature":         0.7,
		"max_tokens":          256,
		"max_retries":         2,
		"use_circuit_breaker": false,
	}))
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	oa, ok := adapter.(*openai.Adapter)
	if !ok {
		t.Fatalf("expected *openai.Adapter, got %T", adapter)
	}
	if oa.BaseURL != "http://127.0.0.1:9999/v1" {
		t.Fatalf("base url = %q", oa.BaseURL)
	}
	if oa.Temperature != 0.7 || oa.MaxTokens != 256 {
		t.Fatalf("temperature = %v, max tokens = %d", oa.Temperature, oa.MaxTokens)
	}
	if oa.Retry.MaxAttempts != 3 {
		t.Fatalf("retry attempts = %d", oa.Retry.MaxAttempts)
	}
}

func TestDefaultRegistryWrapsCircuitBreakerByDefault(t *testing.T) {
	adapter, err := DefaultRegistry().BuildLLM("openai", llmConfig("openai", map[string]any{
		"api_key": "sk-test",
		"model":   "gpt-4o-mini",
	}))
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	if _, ok := adapter.(*llm.CircuitBreakerAdapter); !ok {
		t.Fatalf("expected circuit breaker wrapper, got %T", adapter)
	}
}
