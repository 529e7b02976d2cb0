package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/config"
	"inferd/internal/metrics"
	"inferd/pkg/types"
)

// Pipeline executes one generation request against the shared model handle:
// validate, tokenize, generate, decode, each phase timed. Generation is
// serialized through the admission queue; everything else runs concurrently.
type Pipeline struct {
	cfg    *config.Config
	loader *Loader
	acc    *metrics.Accumulator
	adm    *admission
	log    zerolog.Logger
}

// NewPipeline wires the pipeline to a loader and a metrics accumulator.
func NewPipeline(cfg *config.Config, loader *Loader, acc *metrics.Accumulator, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		loader: loader,
		acc:    acc,
		adm:    newAdmission(cfg.MaxQueueDepth, cfg.MaxQueueWait),
		log:    log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one request end to end and records the outcome in the
// accumulator and Prometheus collectors. Request-scoped failures are
// returned classified; they never alter model state.
func (p *Pipeline) Run(ctx context.Context, req types.GenerationRequest) (types.GenerationOutput, error) {
	start := time.Now()
	out, err := p.run(ctx, req, start)
	dur := time.Since(start)
	if err != nil {
		typ, _ := Classify(err)
		p.acc.Record(metrics.Outcome{Duration: dur, ErrType: typ})
		metrics.ObserveRequest(typ, dur)
		return types.GenerationOutput{}, err
	}
	p.acc.Record(metrics.Outcome{Duration: dur, TokensGenerated: out.TokensGenerated})
	metrics.ObserveRequest("", dur)
	metrics.AddTokensGenerated(out.TokensGenerated)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, req types.GenerationRequest, start time.Time) (types.GenerationOutput, error) {
	resolved, err := resolveRequest(p.cfg, req)
	if err != nil {
		return types.GenerationOutput{}, err
	}

	// Pre-readiness policy: a serverless worker rejects with NotReady by
	// default; queue_before_ready holds the request through the load window.
	if p.cfg.QueueBeforeReady {
		if err := p.loader.WaitReady(ctx); err != nil {
			return types.GenerationOutput{}, err
		}
	}
	model, err := p.loader.Handle()
	if err != nil {
		return types.GenerationOutput{}, err
	}

	release, err := p.adm.acquire(ctx)
	if err != nil {
		return types.GenerationOutput{}, err
	}
	defer release()

	// Tokenization
	tokStart := time.Now()
	enc, err := model.Encode(resolved.Prompt)
	if err != nil {
		return types.GenerationOutput{}, err
	}
	tokTime := time.Since(tokStart)
	if enc.Tokens > p.cfg.MaxInputTokens {
		return types.GenerationOutput{}, ErrValidation(
			"input length %d tokens exceeds maximum of %d", enc.Tokens, p.cfg.MaxInputTokens)
	}

	// Clamp max_new_tokens against the total-token budget; the effective
	// value is reported in the result, never applied silently.
	params := resolved.Params
	budget := p.cfg.MaxTotalTokens - enc.Tokens
	if budget <= 0 {
		return types.GenerationOutput{}, ErrValidation(
			"input of %d tokens leaves no room for generation within the total budget of %d",
			enc.Tokens, p.cfg.MaxTotalTokens)
	}
	if params.MaxNewTokens > budget {
		p.log.Debug().Int("requested", params.MaxNewTokens).Int("clamped", budget).Msg("clamping max_new_tokens to total budget")
		params.MaxNewTokens = budget
	}

	// Generation, bounded by the configured execution timeout.
	genCtx := ctx
	cancel := context.CancelFunc(func() {})
	if p.cfg.InferenceTimeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, p.cfg.InferenceTimeout)
	}
	genStart := time.Now()
	gen, err := model.Generate(genCtx, enc, params)
	genTime := time.Since(genStart)
	cancel()
	if err != nil {
		return types.GenerationOutput{}, p.classifyGeneration(err, genCtx, ctx)
	}

	// Decoding
	decStart := time.Now()
	text, err := model.Decode(gen)
	if err != nil {
		return types.GenerationOutput{}, err
	}
	decTime := time.Since(decStart)

	genMs := genTime.Milliseconds()
	tps := 0.0
	if genMs > 0 {
		tps = float64(gen.Tokens) / genTime.Seconds()
	}
	return types.GenerationOutput{
		GeneratedText:      text,
		TokensGenerated:    gen.Tokens,
		InputTokens:        enc.Tokens,
		TotalTokens:        enc.Tokens + gen.Tokens,
		MaxNewTokens:       params.MaxNewTokens,
		GenerationTimeMs:   genMs,
		TotalTimeMs:        time.Since(start).Milliseconds(),
		TokenizationTimeMs: tokTime.Milliseconds(),
		DecodingTimeMs:     decTime.Milliseconds(),
		TokensPerSecond:    tps,
	}, nil
}

// classifyGeneration sorts a generate failure into the taxonomy. OOM is a
// per-request resource error and leaves the handle usable; an unrecoverable
// device fault poisons the process and marks the model failed.
func (p *Pipeline) classifyGeneration(err error, genCtx, reqCtx context.Context) error {
	switch {
	case backend.IsFatal(err):
		p.loader.MarkFailed(err)
		return ErrLoad("device unrecoverable: %v", err)
	case backend.IsOutOfMemory(err):
		return ErrResource("device out of memory, try reducing max_new_tokens or input length")
	case errors.Is(err, context.DeadlineExceeded) && reqCtx.Err() == nil:
		return ErrTimeout("generation exceeded the %s execution timeout", p.cfg.InferenceTimeout)
	case errors.Is(genCtx.Err(), context.DeadlineExceeded) && reqCtx.Err() == nil:
		return ErrTimeout("generation exceeded the %s execution timeout", p.cfg.InferenceTimeout)
	default:
		return err
	}
}

// QueueLen reports current queue occupancy for status reporting.
func (p *Pipeline) QueueLen() int { return p.adm.queueLen() }

// Inflight reports whether a generation holds the device slot.
func (p *Pipeline) Inflight() int { return p.adm.inflight() }
