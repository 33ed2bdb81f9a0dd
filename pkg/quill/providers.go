package quill

import (
	"fmt"
	"strings"
	"time"

	"github.com/redferne/quill/pkg/configutil"
	"github.com/redferne/quill/pkg/llm"
	"github.com/redferne/quill/pkg/providers/anthropic"
	"github.com/redferne/quill/pkg/providers/mock"
	"github.com/redferne/quill/pkg/providers/openai"
	"github.com/redferne/quill/pkg/resilience"
)

type LLMFactory func(cfg Config) (llm.LLMAdapter, error)

// ProviderRegistry maps vendors.llm.provider names to adapter factories.
type ProviderRegistry struct {
	llm map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{llm: make(map[string]LLMFactory)}
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.LLMAdapter, error) {
	fn := r.llm[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}

type openAISettings struct {
	APIKey            string   `mapstructure:"api_key"`
	Model             string   `mapstructure:"model"`
	BaseURL           string   `mapstructure:"base_url"`
	Temperature       *float64 `mapstructure:"temperature"`
	MaxTokens         *int     `mapstructure:"max_tokens"`
	MaxRetries        *int     `mapstructure:"max_retries"`
	UseCircuitBreaker *bool    `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int      `mapstructure:"circuit_threshold"`
	CircuitCooldownMs int      `mapstructure:"circuit_cooldown_ms"`
}

type anthropicSettings struct {
	APIKey            string   `mapstructure:"api_key"`
	Model             string   `mapstructure:"model"`
	Temperature       *float64 `mapstructure:"temperature"`
	MaxTokens         *int     `mapstructure:"max_tokens"`
	MaxRetries        *int     `mapstructure:"max_retries"`
	RetryBackoffMs    int      `mapstructure:"retry_backoff_ms"`
	UseCircuitBreaker *bool    `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int      `mapstructure:"circuit_threshold"`
	CircuitCooldownMs int      `mapstructure:"circuit_cooldown_ms"`
}

type mockToolCallSettings struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	Arguments string `mapstructure:"arguments"`
}

type mockLLMSettings struct {
	ResponseText string                 `mapstructure:"response_text"`
	ToolCalls    []mockToolCallSettings `mapstructure:"tool_calls"`
	FinalText    string                 `mapstructure:"final_text"`
	StreamChunks []string               `mapstructure:"stream_chunks"`
}

// DefaultRegistry wires the built-in providers. The mock provider needs no
// credentials and keeps demos and tests runnable offline.
func DefaultRegistry() *ProviderRegistry {
	reg := NewProviderRegistry()

	reg.RegisterLLM("openai", func(cfg Config) (llm.LLMAdapter, error) {
		if err := validateSettings("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Required: []string{"api_key", "model"},
			Optional: []string{"base_url", "temperature", "max_tokens", "max_retries", "use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms"},
		}); err != nil {
			return nil, err
		}
		var settings openAISettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Model, "vendors.llm.settings.model"); err != nil {
			return nil, err
		}
		adapter := openai.NewAdapter(settings.APIKey, settings.Model)
		if settings.BaseURL != "" {
			adapter.BaseURL = settings.BaseURL
		}
		adapter.Temperature = configutil.FloatValue(settings.Temperature, adapter.Temperature)
		adapter.MaxTokens = configutil.IntValue(settings.MaxTokens, adapter.MaxTokens)
		if retries := configutil.IntValue(settings.MaxRetries, 0); retries > 0 {
			adapter.Retry.MaxAttempts = retries + 1
		}
		return wrapBreaker(adapter, settings.UseCircuitBreaker, settings.CircuitThreshold, settings.CircuitCooldownMs), nil
	})

	reg.RegisterLLM("anthropic", func(cfg Config) (llm.LLMAdapter, error) {
		if err := validateSettings("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Required: []string{"api_key", "model"},
			Optional: []string{"temperature", "max_tokens", "max_retries", "retry_backoff_ms", "use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms"},
		}); err != nil {
			return nil, err
		}
		var settings anthropicSettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Model, "vendors.llm.settings.model"); err != nil {
			return nil, err
		}
		adapter := anthropic.NewAdapter(settings.APIKey, settings.Model)
		adapter.Temperature = configutil.FloatValue(settings.Temperature, adapter.Temperature)
		adapter.MaxTokens = configutil.IntValue(settings.MaxTokens, adapter.MaxTokens)
		if retries := configutil.IntValue(settings.MaxRetries, 0); retries > 0 {
			backoff := time.Duration(settings.RetryBackoffMs) * time.Millisecond
			adapter.Retry = resilience.NewRetryPolicy(retries, backoff)
		}
		return wrapBreaker(adapter, settings.UseCircuitBreaker, settings.CircuitThreshold, settings.CircuitCooldownMs), nil
	})

	reg.RegisterLLM("mock", func(cfg Config) (llm.LLMAdapter, error) {
		if err := validateSettings("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Optional: []string{"response_text", "tool_calls", "final_text", "stream_chunks"},
		}); err != nil {
			return nil, err
		}
		var settings mockLLMSettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		first := llm.Response{Text: settings.ResponseText}
		for i, tc := range settings.ToolCalls {
			id := strings.TrimSpace(tc.ID)
			if id == "" {
				id = fmt.Sprintf("mock-call-%d", i+1)
			}
			first.ToolCalls = append(first.ToolCalls, llm.ToolCall{
				ID:        id,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		responses := []llm.Response{first}
		if settings.FinalText != "" {
			responses = append(responses, llm.Response{Text: settings.FinalText})
		}
		chunks := settings.StreamChunks
		if len(chunks) == 0 && settings.FinalText != "" {
			chunks = []string{settings.FinalText}
		}
		return mock.NewLLMAdapter(mock.LLMConfig{
			Responses:    responses,
			StreamChunks: chunks,
		}), nil
	})

	return reg
}

func validateSettings(path string, input map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func wrapBreaker(adapter llm.LLMAdapter, use *bool, threshold, cooldownMs int) llm.LLMAdapter {
	if !configutil.BoolValue(use, true) {
		return adapter
	}
	if threshold <= 0 {
		threshold = 3
	}
	if cooldownMs <= 0 {
		cooldownMs = 30000
	}
	breaker := resilience.NewCircuitBreaker(threshold, time.Duration(cooldownMs)*time.Millisecond)
	return llm.NewCircuitBreakerAdapter(adapter, breaker)
}
