package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/config"
	"inferd/internal/metrics"
)

// Loader brings the tokenizer and model weights onto the target device at
// most once per process. The first Load caller performs the work; concurrent
// callers block on loadMu and then take the fast path, receiving the same
// handle without a second load.
type Loader struct {
	cfg     *config.Config
	runtime backend.Runtime
	log     zerolog.Logger

	loadMu sync.Mutex // serializes load attempts

	mu      sync.RWMutex // guards state and handle
	state   ModelState
	handle  backend.Model
	reloads int

	readyOnce sync.Once
	readyCh   chan struct{}
}

// NewLoader constructs a loader in the uninitialized phase.
func NewLoader(cfg *config.Config, rt backend.Runtime, log zerolog.Logger) *Loader {
	return &Loader{
		cfg:     cfg,
		runtime: rt,
		log:     log.With().Str("component", "loader").Logger(),
		state:   ModelState{Phase: PhaseUninitialized},
		readyCh: make(chan struct{}),
	}
}

// Load is idempotent: it performs the one-time weight load, or returns the
// existing handle if a previous call already completed. After a failure it
// returns ModelLoadError unless a bounded reload attempt is still allowed.
func (l *Loader) Load(ctx context.Context) (backend.Model, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	l.mu.RLock()
	phase, lastErr := l.state.Phase, l.state.LastError
	handle := l.handle
	l.mu.RUnlock()

	switch phase {
	case PhaseReady:
		return handle, nil
	case PhaseFailed:
		if l.reloads >= l.cfg.MaxReloadAttempts {
			return nil, ErrLoad("model loading failed: %s", lastErr)
		}
		l.reloads++
		l.log.Warn().Int("attempt", l.reloads).Int("max", l.cfg.MaxReloadAttempts).Msg("retrying model load after failure")
	}

	l.setState(func(s *ModelState) {
		s.Phase = PhaseLoading
		s.LoadStartedAt = time.Now()
		s.LastError = ""
	})

	opts := backend.LoadOptions{
		ModelID:      l.cfg.ModelID,
		ModelPath:    l.cfg.ModelPath,
		AuthToken:    l.cfg.HFToken,
		CacheDir:     l.cfg.CacheDir,
		DeviceMap:    l.cfg.DeviceMap,
		DType:        l.cfg.DType,
		Quantization: resolveQuantization(l.cfg),
		ContextSize:  l.cfg.ContextSize,
		Threads:      l.cfg.Threads,
	}
	l.log.Info().
		Str("model_id", l.cfg.ModelID).
		Str("device_map", l.cfg.DeviceMap).
		Str("dtype", l.cfg.DType).
		Str("quantization", string(opts.Quantization)).
		Msg("loading model, this may take several minutes")

	start := time.Now()
	model, err := l.runtime.Load(ctx, opts)
	if err != nil && opts.Quantization != backend.QuantNone && backend.IsUnsupportedQuantization(err) {
		// Quantization is a memory optimization, not a correctness
		// requirement; fall back to full precision rather than refusing to
		// serve.
		l.log.Warn().Str("quantization", string(opts.Quantization)).Err(err).
			Msg("quantization unsupported, retrying at full precision")
		opts.Quantization = backend.QuantNone
		model, err = l.runtime.Load(ctx, opts)
	}
	if err != nil {
		msg := l.sanitize(err.Error())
		l.setState(func(s *ModelState) {
			s.Phase = PhaseFailed
			s.LoadCompletedAt = time.Now()
			s.LastError = msg
		})
		l.log.Error().Str("error", msg).Msg("model loading failed")
		return nil, ErrLoad("model loading failed: %s", msg)
	}

	if l.cfg.Warmup {
		l.warmup(ctx, model)
	}

	dur := time.Since(start)
	// Handle and phase are published atomically: a reader that observes
	// ready must also observe the handle.
	l.mu.Lock()
	l.state.Phase = PhaseReady
	l.state.Device = model.Device()
	l.state.LoadCompletedAt = time.Now()
	l.state.LoadDuration = dur
	l.handle = model
	l.mu.Unlock()
	metrics.SetModelLoadSeconds(dur)
	l.readyOnce.Do(func() { close(l.readyCh) })
	l.log.Info().Dur("load_time", dur).Str("device", model.Device()).Msg("model loaded")
	return model, nil
}

// warmup runs one throwaway generation to force lazy kernel compilation.
// Failure is logged but never fails the load.
func (l *Loader) warmup(ctx context.Context, model backend.Model) {
	start := time.Now()
	enc, err := model.Encode(l.cfg.WarmupPrompt)
	if err == nil {
		_, err = model.Generate(ctx, enc, backend.SamplingParams{
			MaxNewTokens:      10,
			Temperature:       l.cfg.Temperature,
			TopP:              l.cfg.TopP,
			TopK:              l.cfg.TopK,
			RepetitionPenalty: l.cfg.RepetitionPenalty,
			DoSample:          l.cfg.DoSample,
		})
	}
	if err != nil {
		l.log.Warn().Err(err).Msg("warmup generation failed")
		return
	}
	l.log.Info().Dur("warmup_time", time.Since(start)).Msg("warmup complete")
}

// Handle returns the loaded model only when the phase is ready. Loading
// yields NotReadyError, a failed load yields ModelLoadError, so callers can
// tell "still warming up" from "will never be ready".
func (l *Loader) Handle() (backend.Model, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch l.state.Phase {
	case PhaseReady:
		return l.handle, nil
	case PhaseFailed:
		return nil, ErrLoad("model loading failed: %s", l.state.LastError)
	default:
		return nil, ErrNotReady(l.state.Phase)
	}
}

// State returns a copy of the current model state.
func (l *Loader) State() ModelState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Ready reports whether the model is loaded and serving.
func (l *Loader) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Phase == PhaseReady
}

// WaitReady blocks until the model is ready, the load fails, or ctx is done.
func (l *Loader) WaitReady(ctx context.Context) error {
	for {
		l.mu.RLock()
		phase, lastErr := l.state.Phase, l.state.LastError
		l.mu.RUnlock()
		switch phase {
		case PhaseReady:
			return nil
		case PhaseFailed:
			return ErrLoad("model loading failed: %s", lastErr)
		}
		select {
		case <-l.readyCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
			// re-check for a failed load, which never closes readyCh
		}
	}
}

// MarkFailed transitions to the failed phase after an unrecoverable device
// fault discovered mid-generation. The process is expected to be restarted
// by its supervisor.
func (l *Loader) MarkFailed(err error) {
	msg := l.sanitize(err.Error())
	l.setState(func(s *ModelState) {
		s.Phase = PhaseFailed
		s.LastError = msg
	})
	l.log.Error().Str("error", msg).Msg("device unrecoverable, marking model failed")
}

func (l *Loader) setState(mutate func(*ModelState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mutate(&l.state)
}

// sanitize strips the configured auth token from error text so credentials
// never reach logs or responses.
func (l *Loader) sanitize(msg string) string {
	if l.cfg.HFToken != "" {
		msg = strings.ReplaceAll(msg, l.cfg.HFToken, "[redacted]")
	}
	return msg
}

func resolveQuantization(cfg *config.Config) backend.Quantization {
	switch {
	case cfg.LoadIn4Bit:
		return backend.QuantInt4
	case cfg.LoadIn8Bit:
		return backend.QuantInt8
	default:
		return backend.QuantNone
	}
}
