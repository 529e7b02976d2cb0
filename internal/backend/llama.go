//go:build llama

package backend

// cgo link directives for the in-process llama runtime.
// - rpath of $ORIGIN so the runtime loader finds libllama.so and
//   libggml*.so next to the built Go binary (./bin).
// - -L${SRCDIR}/../../bin so the linker finds libllama.so at link time
//   when building the 'llama' variant.

/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaRuntime loads GGUF weights through go-llama.cpp.
type llamaRuntime struct{}

// NewRuntime returns the real llama.cpp-backed runtime.
func NewRuntime() Runtime { return &llamaRuntime{} }

type llamaModel struct {
	// Predict mutates per-call state inside llama.cpp, so calls are guarded
	// here as well as by the engine's admission queue.
	mu      sync.Mutex
	model   *llama.LLama
	threads int
	device  string
}

func (r *llamaRuntime) Load(ctx context.Context, opts LoadOptions) (Model, error) {
	path := strings.TrimSpace(opts.ModelPath)
	if path == "" {
		return nil, errors.New("model_path is required for the llama runtime")
	}
	// GGUF files carry their own quantization; the bitsandbytes-style
	// toggles cannot be applied after the fact.
	if opts.Quantization != QuantNone {
		return nil, NewUnsupportedQuantizationError(fmt.Sprintf(
			"quantization %q not supported by the llama runtime (quantization is baked into the GGUF file)", opts.Quantization))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{
		llama.SetContext(opts.ContextSize),
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		if IsOutOfMemory(err) {
			return nil, NewOOMError(err.Error())
		}
		return nil, err
	}
	device := opts.DeviceMap
	if device == "" || device == "auto" {
		device = "llama.cpp"
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = 4
	}
	return &llamaModel{model: m, threads: threads, device: device}, nil
}

func (m *llamaModel) Encode(prompt string) (Encoding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ids, err := m.model.TokenizeString(prompt)
	if err != nil {
		return Encoding{}, err
	}
	return Encoding{Prompt: prompt, Tokens: int(n), IDs: ids}, nil
}

func (m *llamaModel) Generate(ctx context.Context, enc Encoding, params SamplingParams) (Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := 0
	m.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		tokens++
		return true
	})

	po := []llama.PredictOption{
		llama.SetTokens(params.MaxNewTokens),
		llama.SetThreads(m.threads),
		llama.SetTemperature(float32(params.Temperature)),
		llama.SetTopP(float32(params.TopP)),
		llama.SetTopK(params.TopK),
		llama.SetPenalty(float32(params.RepetitionPenalty)),
	}
	text, err := m.model.Predict(enc.Prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return Generation{}, ctx.Err()
		}
		if IsOutOfMemory(err) {
			return Generation{}, NewOOMError(err.Error())
		}
		return Generation{}, err
	}
	if ctx.Err() != nil {
		return Generation{}, ctx.Err()
	}
	return Generation{Tokens: tokens, Text: text}, nil
}

func (m *llamaModel) Decode(gen Generation) (string, error) {
	// Predict already returns decoded text without the prompt echo.
	return gen.Text, nil
}

func (m *llamaModel) Device() string { return m.device }

func (m *llamaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}
