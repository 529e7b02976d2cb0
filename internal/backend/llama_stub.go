//go:build !llama

package backend

import "context"

// This file provides a no-CGO stub compiled when the 'llama' build tag is
// NOT set, keeping default builds and CI CGO-free. The real runtime lives in
// llama.go (tagged 'llama'). The stub refuses to load rather than mock.

type llamaRuntime struct{}

// NewRuntime returns a runtime that fails fast without the 'llama' tag.
func NewRuntime() Runtime { return &llamaRuntime{} }

func (r *llamaRuntime) Load(ctx context.Context, opts LoadOptions) (Model, error) {
	return nil, ErrUnavailable
}
