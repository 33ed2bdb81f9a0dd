package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonLLMGenerate    ReasonCode = "llm_generate"
	ReasonLLMStream      ReasonCode = "llm_stream"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen ReasonCode = "llm_circuit_open"

	ReasonToolUnknown   ReasonCode = "tool_unknown"
	ReasonToolArguments ReasonCode = "tool_arguments"
	ReasonToolInvoke    ReasonCode = "tool_invoke"

	ReasonConfigLoad    ReasonCode = "config_load"
	ReasonConfigInvalid ReasonCode = "config_invalid"
)
