package tools

import "context"

// Tool is a callable the model may invoke during a chat turn.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// InvokeFunc is the signature of a tool handler. Arguments arrive as a
// decoded JSON object.
type InvokeFunc func(ctx context.Context, args map[string]any) (string, error)

type funcTool struct {
	name        string
	description string
	schema      map[string]any
	fn          InvokeFunc
}

// NewFunc adapts a plain function into a Tool.
func NewFunc(name, description string, schema map[string]any, fn InvokeFunc) Tool {
	return funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t funcTool) Name() string           { return t.name }
func (t funcTool) Description() string    { return t.description }
func (t funcTool) Schema() map[string]any { return t.schema }

func (t funcTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}
