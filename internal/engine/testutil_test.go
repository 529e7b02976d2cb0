package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/config"
	"inferd/internal/metrics"
)

// fakeModel is a deterministic in-memory backend.Model: one token per
// whitespace-separated word, generation produces up to genTokens tokens.
type fakeModel struct {
	device    string
	genDelay  time.Duration
	genTokens int

	mu      sync.Mutex
	nextErr error // returned by the next Generate call, then cleared

	encodeCalls atomic.Int32
	genCalls    atomic.Int32
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeModel() *fakeModel {
	return &fakeModel{device: "fake-gpu0", genTokens: 8}
}

func (m *fakeModel) setNextErr(err error) {
	m.mu.Lock()
	m.nextErr = err
	m.mu.Unlock()
}

func (m *fakeModel) Encode(prompt string) (backend.Encoding, error) {
	m.encodeCalls.Add(1)
	return backend.Encoding{Prompt: prompt, Tokens: len(strings.Fields(prompt))}, nil
}

func (m *fakeModel) Generate(ctx context.Context, enc backend.Encoding, p backend.SamplingParams) (backend.Generation, error) {
	m.genCalls.Add(1)
	cur := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		prev := m.maxInflight.Load()
		if cur <= prev || m.maxInflight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if m.genDelay > 0 {
		select {
		case <-time.After(m.genDelay):
		case <-ctx.Done():
			return backend.Generation{}, ctx.Err()
		}
	}
	m.mu.Lock()
	err := m.nextErr
	m.nextErr = nil
	m.mu.Unlock()
	if err != nil {
		return backend.Generation{}, err
	}
	n := p.MaxNewTokens
	if m.genTokens < n {
		n = m.genTokens
	}
	ids := make([]int32, n)
	return backend.Generation{Tokens: n, IDs: ids}, nil
}

func (m *fakeModel) Decode(gen backend.Generation) (string, error) {
	return strings.TrimSpace(strings.Repeat("tok ", gen.Tokens)), nil
}

func (m *fakeModel) Device() string { return m.device }
func (m *fakeModel) Close() error   { return nil }

// fakeRuntime counts load executions so tests can assert at-most-once
// loading under concurrency.
type fakeRuntime struct {
	model     *fakeModel
	loadDelay time.Duration

	mu        sync.Mutex
	loadErrs  []error // consumed in order; nil entries mean success
	lastOpts  backend.LoadOptions
	loadCalls atomic.Int32
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{model: newFakeModel()}
}

func (r *fakeRuntime) failNextLoad(err error) {
	r.mu.Lock()
	r.loadErrs = append(r.loadErrs, err)
	r.mu.Unlock()
}

func (r *fakeRuntime) Load(ctx context.Context, opts backend.LoadOptions) (backend.Model, error) {
	r.loadCalls.Add(1)
	if r.loadDelay > 0 {
		select {
		case <-time.After(r.loadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.lastOpts = opts
	var err error
	if len(r.loadErrs) > 0 {
		err = r.loadErrs[0]
		r.loadErrs = r.loadErrs[1:]
	}
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.model, nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Warmup = false
	cfg.MaxQueueWait = 2 * time.Second
	return cfg
}

// newTestEngine builds a loader+pipeline pair over a fake runtime.
func newTestEngine(cfg config.Config) (*Pipeline, *Loader, *fakeRuntime, *metrics.Accumulator) {
	rt := newFakeRuntime()
	log := zerolog.Nop()
	loader := NewLoader(&cfg, rt, log)
	acc := metrics.NewAccumulator(16)
	return NewPipeline(&cfg, loader, acc, log), loader, rt, acc
}
