package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation history.
type Message struct {
	Role       Role
	Content    string
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a provider request to invoke a named tool. Arguments carries
// the raw JSON object exactly as the provider produced it; decoding happens
// at the call site so malformed payloads surface there.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool describes a callable tool in provider-neutral form. Schema is a JSON
// Schema object for the tool's argument payload.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Context is the full input for one model request.
type Context struct {
	Messages []Message
	Tools    []Tool
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Stream(ctx context.Context, input Context) (<-chan string, error)
	Name() string
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message carrying any tool calls
// the model issued.
func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds a tool-role message answering the tool call with the
// given id.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: callID}
}
