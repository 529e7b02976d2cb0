// Package backend abstracts the model runtime used by the inference engine.
// Concrete implementations (go-llama.cpp behind the 'llama' build tag, fakes
// in tests) satisfy Runtime and Model.
package backend

import "context"

// Quantization selects a reduced-precision weight representation.
type Quantization string

const (
	QuantNone Quantization = ""
	QuantInt8 Quantization = "int8"
	QuantInt4 Quantization = "int4"
)

// LoadOptions carries everything a runtime needs to bring the tokenizer and
// weights onto the target device.
type LoadOptions struct {
	ModelID      string
	ModelPath    string
	AuthToken    string
	CacheDir     string
	DeviceMap    string
	DType        string
	Quantization Quantization
	ContextSize  int
	Threads      int
}

// SamplingParams captures the resolved generation parameters for one call.
type SamplingParams struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	DoSample          bool
}

// Encoding is the tokenized form of a prompt.
type Encoding struct {
	// Prompt is the original text; runtimes that generate from text rather
	// than ids read it back in Generate.
	Prompt string
	// Tokens is the prompt token count.
	Tokens int
	// IDs are the token ids when the runtime exposes them.
	IDs []int32
}

// Generation is the raw output of one generate call, before decoding.
type Generation struct {
	// Tokens is the number of new tokens produced.
	Tokens int
	// IDs are the new token ids when the runtime exposes them.
	IDs []int32
	// Text is the already-decoded completion for runtimes that stream text.
	Text string
}

// Runtime constructs a Model. Load blocks until the weights are resident on
// the device or an error occurs; it is invoked at most once per process by
// the loader.
type Runtime interface {
	Load(ctx context.Context, opts LoadOptions) (Model, error)
}

// Model is the loaded weights/tokenizer pair. After a successful Load the
// handle is shared-read by all requests and never mutated; Generate calls
// are serialized by the engine's admission queue.
type Model interface {
	// Encode tokenizes the prompt.
	Encode(prompt string) (Encoding, error)
	// Generate produces new tokens for the encoded prompt. Implementations
	// must return promptly when ctx is canceled.
	Generate(ctx context.Context, enc Encoding, params SamplingParams) (Generation, error)
	// Decode converts a generation back to text, excluding the prompt echo.
	Decode(gen Generation) (string, error)
	// Device identifies the accelerator the weights live on.
	Device() string
	// Close releases device memory. Called only at process teardown.
	Close() error
}
