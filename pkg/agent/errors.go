package agent

import "fmt"

// UnknownToolError reports a model request for a tool that is not registered.
type UnknownToolError struct {
	Name string
}

func (e UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ArgumentDecodeError reports tool call arguments that are not a valid JSON
// object. It is returned before the tool handler runs.
type ArgumentDecodeError struct {
	Tool string
	Err  error
}

func (e ArgumentDecodeError) Error() string {
	return fmt.Sprintf("decode arguments for tool %s: %v", e.Tool, e.Err)
}

func (e ArgumentDecodeError) Unwrap() error { return e.Err }
