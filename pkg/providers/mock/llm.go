package mock

import (
	"context"
	"sync"

	"github.com/redferne/quill/pkg/llm"
)

// LLMAdapter is a scripted in-memory adapter for tests and offline runs.
// Responses are consumed in order; the last one repeats once the script is
// exhausted. Every request is captured for inspection.
type LLMAdapter struct {
	cfg  LLMConfig
	mu   sync.Mutex
	next int

	GenerateRequests []llm.Context
	StreamRequests   []llm.Context
}

type LLMConfig struct {
	Responses    []llm.Response
	StreamChunks []string
	GenerateErr  error
	StreamErr    error
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if len(cfg.Responses) == 0 {
		cfg.Responses = []llm.Response{{Text: "mock response"}}
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GenerateRequests = append(a.GenerateRequests, input)
	if a.cfg.GenerateErr != nil {
		return llm.Response{}, a.cfg.GenerateErr
	}
	resp := a.cfg.Responses[a.next]
	if a.next < len(a.cfg.Responses)-1 {
		a.next++
	}
	return resp, nil
}

func (a *LLMAdapter) Stream(ctx context.Context, input llm.Context) (<-chan string, error) {
	a.mu.Lock()
	a.StreamRequests = append(a.StreamRequests, input)
	err := a.cfg.StreamErr
	chunks := a.cfg.StreamChunks
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make(chan string, len(chunks)+1)
	if len(chunks) > 0 {
		for _, chunk := range chunks {
			out <- chunk
		}
	} else {
		out <- a.cfg.Responses[len(a.cfg.Responses)-1].Text
	}
	close(out)
	return out, nil
}
