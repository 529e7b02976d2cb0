package engine

import (
	"strings"

	"inferd/internal/backend"
	"inferd/internal/config"
	"inferd/pkg/types"
)

// resolvedRequest is a fully-validated request: every numeric field is
// either caller-supplied and in-range, or the configured default.
type resolvedRequest struct {
	Prompt string
	Params backend.SamplingParams
}

// resolveRequest validates req against the declared bounds and fills
// defaults from cfg. Rejection happens here, before any device work.
func resolveRequest(cfg *config.Config, req types.GenerationRequest) (resolvedRequest, error) {
	// Null bytes are stripped before any length or emptiness check.
	prompt := strings.ReplaceAll(req.Prompt, "\x00", "")
	if strings.TrimSpace(prompt) == "" {
		return resolvedRequest{}, ErrValidation("prompt cannot be empty")
	}
	maxChars := cfg.MaxInputTokens * config.CharsPerTokenEstimate
	if len(prompt) > maxChars {
		return resolvedRequest{}, ErrValidation("prompt exceeds maximum length of %d characters", maxChars)
	}

	p := backend.SamplingParams{
		MaxNewTokens:      cfg.MaxNewTokens,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		TopK:              cfg.TopK,
		RepetitionPenalty: cfg.RepetitionPenalty,
		DoSample:          cfg.DoSample,
	}
	if req.MaxNewTokens != nil {
		v := *req.MaxNewTokens
		if v < 1 || v > 8192 {
			return resolvedRequest{}, ErrValidation("max_new_tokens must be between 1 and 8192, got %d", v)
		}
		p.MaxNewTokens = v
	}
	if req.Temperature != nil {
		v := *req.Temperature
		if v <= 0.0 || v > 2.0 {
			return resolvedRequest{}, ErrValidation("temperature must be greater than 0.0 and at most 2.0, got %g", v)
		}
		p.Temperature = v
	}
	if req.TopP != nil {
		v := *req.TopP
		if v < 0.0 || v > 1.0 {
			return resolvedRequest{}, ErrValidation("top_p must be between 0.0 and 1.0, got %g", v)
		}
		p.TopP = v
	}
	if req.TopK != nil {
		v := *req.TopK
		if v < 0 {
			return resolvedRequest{}, ErrValidation("top_k must be non-negative, got %d", v)
		}
		p.TopK = v
	}
	if req.RepetitionPenalty != nil {
		v := *req.RepetitionPenalty
		if v < 1.0 || v > 2.0 {
			return resolvedRequest{}, ErrValidation("repetition_penalty must be between 1.0 and 2.0, got %g", v)
		}
		p.RepetitionPenalty = v
	}
	if req.DoSample != nil {
		p.DoSample = *req.DoSample
	}
	return resolvedRequest{Prompt: prompt, Params: p}, nil
}
