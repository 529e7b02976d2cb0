package types

// GenerationRequest is the inference request payload carried in the
// "input" field of a /run envelope. Numeric fields use pointers so the
// server can distinguish "absent, apply configured default" from an
// explicit (and range-checked) caller value.
type GenerationRequest struct {
	// Required prompt text to generate a completion for.
	// example: What is artificial intelligence?
	Prompt string `json:"prompt" example:"What is artificial intelligence?"`
	// Maximum number of new tokens to generate, [1, 8192].
	// example: 512
	MaxNewTokens *int `json:"max_new_tokens,omitempty" example:"512"`
	// Sampling temperature, (0.0, 2.0].
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability, [0.0, 1.0].
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens, >= 0.
	// example: 50
	TopK *int `json:"top_k,omitempty" example:"50"`
	// Repetition penalty factor, [1.0, 2.0].
	// example: 1.1
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty" example:"1.1"`
	// Whether to sample; false means greedy decoding.
	// example: true
	DoSample *bool `json:"do_sample,omitempty" example:"true"`
}

// RunEnvelope is the serverless-style request body for POST /run.
type RunEnvelope struct {
	Input *GenerationRequest `json:"input"`
}

// GenerationOutput is the successful result of one generation call.
type GenerationOutput struct {
	// Generated completion text (prompt echo stripped).
	GeneratedText string `json:"generated_text"`
	// Number of new tokens produced.
	// example: 187
	TokensGenerated int `json:"tokens_generated" example:"187"`
	// Number of prompt tokens consumed.
	// example: 9
	InputTokens int `json:"input_tokens" example:"9"`
	// InputTokens + TokensGenerated.
	// example: 196
	TotalTokens int `json:"total_tokens" example:"196"`
	// Effective max_new_tokens after clamping against the total-token budget.
	// example: 512
	MaxNewTokens int `json:"max_new_tokens" example:"512"`
	// Time spent in the model's generate call.
	GenerationTimeMs int64 `json:"generation_time_ms"`
	// End-to-end pipeline time for this request.
	TotalTimeMs int64 `json:"total_time_ms"`
	// Time spent tokenizing the prompt.
	TokenizationTimeMs int64 `json:"tokenization_time_ms"`
	// Time spent decoding generated ids back to text.
	DecodingTimeMs int64 `json:"decoding_time_ms"`
	// TokensGenerated / generation seconds; 0 when generation time rounds to 0.
	TokensPerSecond float64 `json:"tokens_per_second"`
}

// RunResponse wraps a successful generation for the caller.
type RunResponse struct {
	Output    GenerationOutput `json:"output"`
	RequestID string           `json:"request_id"`
}

// ErrorDetail carries a classified failure with a stable type string.
type ErrorDetail struct {
	// One of: ValidationError, NotReadyError, TooBusyError, ResourceError,
	// TimeoutError, ModelLoadError, InternalError.
	// example: ValidationError
	Type string `json:"type" example:"ValidationError"`
	// Human-readable message; never contains credentials.
	Message string `json:"message"`
	// RFC 3339 UTC timestamp of classification.
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the consistent JSON error payload for every endpoint.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}
