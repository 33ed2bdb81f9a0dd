package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/redferne/quill/pkg/llm"
	"github.com/redferne/quill/pkg/resilience"
)

const defaultMaxTokens = 4096

// Adapter talks to the Anthropic Messages API through the official SDK.
//
// The Messages API has no tool role: tool results travel as user messages
// carrying tool_result blocks, and assistant tool calls become tool_use
// blocks. System messages move into the dedicated system parameter.
type Adapter struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Retry       resilience.RetryPolicy
	client      *sdk.Client
}

func NewAdapter(apiKey, model string) *Adapter {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Adapter{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		client:    &client,
	}
}

func (a *Adapter) Name() string { return "anthropic" }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	params := a.buildParams(input)
	var out llm.Response
	err := a.Retry.Do(ctx, func() error {
		resp, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return mapError(err)
		}
		out = parseMessage(resp)
		return nil
	})
	if err != nil {
		return llm.Response{}, err
	}
	return out, nil
}

func (a *Adapter) Stream(ctx context.Context, input llm.Context) (<-chan string, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.buildParams(input))
	if err := stream.Err(); err != nil {
		return nil, mapError(err)
	}
	out := make(chan string, 128)
	go func() {
		defer close(out)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			switch eventVariant := event.AsAny().(type) {
			case sdk.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case sdk.TextDelta:
					if deltaVariant.Text == "" {
						continue
					}
					select {
					case <-ctx.Done():
						return
					case out <- deltaVariant.Text:
					}
				}
			}
		}
	}()
	return out, nil
}

func (a *Adapter) buildParams(input llm.Context) sdk.MessageNewParams {
	system, rest := splitSystem(input.Messages)
	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.Model),
		Messages:  toMessages(rest),
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(input.Tools) > 0 {
		params.Tools = toTools(input.Tools)
	}
	if a.Temperature > 0 {
		params.Temperature = sdk.Float(a.Temperature)
	}
	return params
}

// splitSystem pulls system messages out of the history and joins them into
// the system parameter.
func splitSystem(messages []llm.Message) (string, []llm.Message) {
	var system []string
	rest := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func toTools(tools []llm.Tool) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		props, _ := t.Schema["properties"].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}
		var required []string
		switch req := t.Schema["required"].(type) {
		case []string:
			required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		out[i] = sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		}
	}
	return out
}

func toMessages(messages []llm.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		case llm.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				input := json.RawMessage("{}")
				if call.Arguments != "" {
					input = json.RawMessage(call.Arguments)
				}
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: input,
					},
				})
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func parseMessage(resp *sdk.Message) llm.Response {
	out := llm.Response{
		FinishReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: string(tu.Input),
			})
		}
	}
	return out
}

func mapError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "anthropic", Message: apierr.Error()}
	}
	return err
}
