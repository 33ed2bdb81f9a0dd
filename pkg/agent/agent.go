package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redferne/quill/pkg/errorsx"
	"github.com/redferne/quill/pkg/llm"
	"github.com/redferne/quill/pkg/metrics"
	"github.com/redferne/quill/pkg/redact"
	"github.com/redferne/quill/pkg/resilience"
	"github.com/redferne/quill/pkg/tools"
)

// Agent drives a tool-augmented conversation against one model adapter.
//
// Each chat turn appends the user message, resolves at most one round of
// tool calls, and finishes with a request that carries no tool schemas, so
// a second round of tool calls is recorded in history but never executed.
// A mutex serializes turns; the conversation itself is single-threaded.
type Agent struct {
	adapter  llm.LLMAdapter
	registry *tools.Registry
	system   string
	convID   string
	obs      metrics.Observer
	log      *slog.Logger

	mu       sync.Mutex
	messages []llm.Message
}

type Option func(*Agent)

// WithSystemPrompt seeds the conversation with a system message. Reset
// restores it.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.system = prompt }
}

// WithObserver attaches a metrics observer for turn events.
func WithObserver(obs metrics.Observer) Option {
	return func(a *Agent) { a.obs = obs }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// WithConversationID pins the conversation id instead of generating one.
func WithConversationID(id string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(id) != "" {
			a.convID = id
		}
	}
}

func New(adapter llm.LLMAdapter, registry *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		adapter:  adapter,
		registry: registry,
		convID:   uuid.NewString(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.messages = a.seedMessages()
	return a
}

// ConversationID returns the id used to tag events for this conversation.
func (a *Agent) ConversationID() string { return a.convID }

// Chat appends message to the conversation, resolves at most one round of
// tool calls, and returns the assistant's final text.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	traceID := uuid.NewString()
	a.messages = append(a.messages, llm.UserMessage(message))
	a.recordWithFields("chat_input", traceID, map[string]any{"text": redact.Text(message)})

	first, err := a.generate(ctx, traceID, a.requestContextLocked(true))
	if err != nil {
		return "", err
	}

	if len(first.ToolCalls) == 0 {
		a.messages = append(a.messages, llm.AssistantMessage(first.Text, nil))
		a.finishTurn(traceID, first.Text)
		return first.Text, nil
	}

	a.messages = append(a.messages, llm.AssistantMessage(first.Text, first.ToolCalls))
	a.recordWithFields("tool_calls", traceID, map[string]any{"count": len(first.ToolCalls)})
	if err := a.resolveToolCallsLocked(ctx, traceID, first.ToolCalls); err != nil {
		return "", err
	}

	final, err := a.generate(ctx, traceID, a.requestContextLocked(false))
	if err != nil {
		return "", err
	}
	a.messages = append(a.messages, llm.AssistantMessage(final.Text, final.ToolCalls))
	a.finishTurn(traceID, final.Text)
	return final.Text, nil
}

// ChatStream behaves like Chat but streams the final assistant text. The
// returned channel closes when the turn completes; the assistant message
// joins the history at that point. When tools are registered and the model
// answers without calling any, the full text arrives as a single fragment.
func (a *Agent) ChatStream(ctx context.Context, message string) (<-chan string, error) {
	a.mu.Lock()

	traceID := uuid.NewString()
	a.messages = append(a.messages, llm.UserMessage(message))
	a.recordWithFields("chat_input", traceID, map[string]any{"text": redact.Text(message)})

	if a.toolsRegistered() {
		first, err := a.generate(ctx, traceID, a.requestContextLocked(true))
		if err != nil {
			a.mu.Unlock()
			return nil, err
		}
		if len(first.ToolCalls) == 0 {
			a.messages = append(a.messages, llm.AssistantMessage(first.Text, nil))
			a.finishTurn(traceID, first.Text)
			a.mu.Unlock()
			out := make(chan string, 1)
			if first.Text != "" {
				out <- first.Text
			}
			close(out)
			return out, nil
		}
		a.messages = append(a.messages, llm.AssistantMessage(first.Text, first.ToolCalls))
		a.recordWithFields("tool_calls", traceID, map[string]any{"count": len(first.ToolCalls)})
		if err := a.resolveToolCallsLocked(ctx, traceID, first.ToolCalls); err != nil {
			a.mu.Unlock()
			return nil, err
		}
	}

	ch, err := a.adapter.Stream(ctx, a.requestContextLocked(false))
	if err != nil {
		reason := errorsx.ReasonLLMStream
		if resilience.IsRateLimit(err) {
			reason = errorsx.ReasonLLMRateLimit
		}
		err = errorsx.Wrap(err, reason)
		a.log.Error("llm_stream_error",
			"conversation_id", a.convID,
			"trace_id", traceID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err,
		)
		a.record("llm_stream_error", traceID)
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Unlock()

	out := make(chan string)
	go a.forwardStream(traceID, ch, out)
	return out, nil
}

// Reset clears the conversation, keeping only the system prompt.
func (a *Agent) Reset() {
	a.mu.Lock()
	a.messages = a.seedMessages()
	a.mu.Unlock()
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *Agent) seedMessages() []llm.Message {
	if strings.TrimSpace(a.system) == "" {
		return nil
	}
	return []llm.Message{llm.SystemMessage(a.system)}
}

func (a *Agent) toolsRegistered() bool {
	return a.registry != nil && a.registry.Len() > 0
}

// requestContextLocked snapshots the history. Tool schemas ride along only
// on the first request of a turn.
func (a *Agent) requestContextLocked(withTools bool) llm.Context {
	msgs := make([]llm.Message, len(a.messages))
	copy(msgs, a.messages)
	input := llm.Context{Messages: msgs}
	if withTools && a.toolsRegistered() {
		input.Tools = a.registry.Specs()
	}
	return input
}

func (a *Agent) generate(ctx context.Context, traceID string, input llm.Context) (llm.Response, error) {
	resp, err := a.adapter.Generate(ctx, input)
	if err != nil {
		reason := errorsx.ReasonLLMGenerate
		if resilience.IsRateLimit(err) {
			reason = errorsx.ReasonLLMRateLimit
		}
		err = errorsx.Wrap(err, reason)
		a.log.Error("llm_generate_error",
			"conversation_id", a.convID,
			"trace_id", traceID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err,
		)
		a.record("llm_generate_error", traceID)
		return llm.Response{}, err
	}
	if resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens > 0 {
		a.recordWithFields("llm_usage", traceID, map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		})
	}
	return resp, nil
}

// resolveToolCallsLocked answers each call in order. A handler failure
// becomes an error-text tool message and the turn continues; an unknown
// tool or undecodable arguments abort the turn, leaving the user and
// assistant messages in place.
func (a *Agent) resolveToolCallsLocked(ctx context.Context, traceID string, calls []llm.ToolCall) error {
	for _, call := range calls {
		var tool tools.Tool
		ok := false
		if a.registry != nil {
			tool, ok = a.registry.Get(call.Name)
		}
		if !ok {
			err := errorsx.Wrap(UnknownToolError{Name: call.Name}, errorsx.ReasonToolUnknown)
			a.log.Error("tool_unknown",
				"conversation_id", a.convID,
				"trace_id", traceID,
				"tool", call.Name,
			)
			a.recordToolResult(traceID, call.Name, "unknown", "tool not registered")
			return err
		}

		args := map[string]any{}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			wrapped := errorsx.Wrap(ArgumentDecodeError{Tool: call.Name, Err: err}, errorsx.ReasonToolArguments)
			a.log.Error("tool_arguments_error",
				"conversation_id", a.convID,
				"trace_id", traceID,
				"tool", call.Name,
				"error", err,
			)
			a.recordToolResult(traceID, call.Name, "bad_arguments", err.Error())
			return wrapped
		}

		result, err := tool.Invoke(ctx, args)
		if err != nil {
			result = "ERROR: " + err.Error()
			a.recordToolResult(traceID, call.Name, "error", err.Error())
		} else {
			a.recordToolResult(traceID, call.Name, "ok", "")
		}
		a.messages = append(a.messages, llm.ToolMessage(call.ID, call.Name, result))
	}
	return nil
}

func (a *Agent) forwardStream(traceID string, in <-chan string, out chan<- string) {
	defer close(out)
	var full strings.Builder
	firstToken := true
	for tok := range in {
		if firstToken {
			a.record("llm_first_token", traceID)
			firstToken = false
		}
		full.WriteString(tok)
		out <- tok
	}
	text := full.String()
	a.mu.Lock()
	a.messages = append(a.messages, llm.AssistantMessage(text, nil))
	a.mu.Unlock()
	a.finishTurn(traceID, text)
}

func (a *Agent) finishTurn(traceID, text string) {
	a.recordWithFields("llm_output_text", traceID, map[string]any{"text": redact.Text(text)})
	a.record("llm_done", traceID)
}

func (a *Agent) recordToolResult(traceID, toolName, status, errMsg string) {
	fields := map[string]any{
		"tool":   toolName,
		"status": status,
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	a.recordWithFields("tool_result", traceID, fields)
}

func (a *Agent) record(name, traceID string) {
	a.recordWithFields(name, traceID, nil)
}

func (a *Agent) recordWithFields(name, traceID string, fields map[string]any) {
	if a.obs == nil {
		return
	}
	tags := map[string]string{
		"conversation_id": a.convID,
		"component":       "agent",
	}
	if traceID != "" {
		tags["trace_id"] = traceID
	}
	if a.adapter != nil {
		tags["provider"] = a.adapter.Name()
	}
	a.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Tags:   tags,
		Fields: fields,
	})
}
