package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/pkg/types"
)

type mockService struct {
	out types.GenerationOutput
	err error

	lastReq types.GenerationRequest
}

func (m *mockService) Run(ctx context.Context, req types.GenerationRequest) (types.GenerationOutput, error) {
	m.lastReq = req
	if m.err != nil {
		return types.GenerationOutput{}, m.err
	}
	return m.out, nil
}

type mockChecker struct {
	health   types.HealthResponse
	ready    types.ReadinessResponse
	notAlive bool
}

func (m *mockChecker) Health(context.Context) types.HealthResponse { return m.health }
func (m *mockChecker) Readiness() types.ReadinessResponse          { return m.ready }
func (m *mockChecker) Liveness() types.LivenessResponse {
	return types.LivenessResponse{Alive: !m.notAlive, Message: "worker process is running"}
}
func (m *mockChecker) Metrics(context.Context) types.MetricsResponse {
	return types.MetricsResponse{RequestsTotal: 7, FailuresTotal: 2}
}

func newTestMux(svc Service, hc HealthChecker) http.Handler {
	cfg := config.Default()
	return NewMux(svc, hc, &cfg, zerolog.Nop())
}

func postRun(t *testing.T, mux http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestRunSuccess(t *testing.T) {
	svc := &mockService{out: types.GenerationOutput{
		GeneratedText:   "AI is the simulation of human intelligence.",
		TokensGenerated: 9,
		InputTokens:     5,
		TotalTokens:     14,
		MaxNewTokens:    200,
	}}
	mux := newTestMux(svc, &mockChecker{})

	rr := postRun(t, mux, `{"input":{"prompt":"What is artificial intelligence?","max_new_tokens":200}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp types.RunResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Output.GeneratedText == "" || resp.Output.TotalTokens != 14 {
		t.Fatalf("output: %+v", resp.Output)
	}
	if !strings.HasPrefix(resp.RequestID, "req_") || len(resp.RequestID) != len("req_")+32 {
		t.Fatalf("request_id=%q", resp.RequestID)
	}
	if svc.lastReq.MaxNewTokens == nil || *svc.lastReq.MaxNewTokens != 200 {
		t.Fatalf("input not forwarded: %+v", svc.lastReq)
	}
}

func TestRunMissingInput(t *testing.T) {
	mux := newTestMux(&mockService{}, &mockChecker{})
	rr := postRun(t, mux, `{"prompt":"no envelope"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Type != "ValidationError" || resp.Error.Timestamp == "" {
		t.Fatalf("error: %+v", resp.Error)
	}
	if !strings.HasPrefix(resp.RequestID, "req_") {
		t.Fatalf("request_id=%q", resp.RequestID)
	}
}

func TestRunInvalidJSON(t *testing.T) {
	mux := newTestMux(&mockService{}, &mockChecker{})
	if rr := postRun(t, mux, `{"input":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRunRequiresJSONContentType(t *testing.T) {
	mux := newTestMux(&mockService{}, &mockChecker{})
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"input":{"prompt":"hi"}}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", engine.ErrValidation("prompt cannot be empty"), http.StatusBadRequest, "ValidationError"},
		{"not ready", engine.ErrNotReady(engine.PhaseLoading), http.StatusServiceUnavailable, "NotReadyError"},
		{"too busy", engine.ErrTooBusy(), http.StatusTooManyRequests, "TooBusyError"},
		{"resource", engine.ErrResource("device out of memory"), http.StatusServiceUnavailable, "ResourceError"},
		{"timeout", engine.ErrTimeout("generation exceeded the timeout"), http.StatusGatewayTimeout, "TimeoutError"},
		{"load", engine.ErrLoad("model loading failed"), http.StatusInternalServerError, "ModelLoadError"},
		{"unknown", errors.New("kv cache corrupted at offset 42"), http.StatusInternalServerError, "InternalError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestMux(&mockService{err: tc.err}, &mockChecker{})
			rr := postRun(t, mux, `{"input":{"prompt":"hello"}}`)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d", rr.Code, tc.wantStatus)
			}
			var resp types.ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Type != tc.wantType {
				t.Fatalf("type=%s, want %s", resp.Error.Type, tc.wantType)
			}
		})
	}
}

func TestRunInternalErrorIsGeneric(t *testing.T) {
	mux := newTestMux(&mockService{err: errors.New("kv cache corrupted at offset 42")}, &mockChecker{})
	rr := postRun(t, mux, `{"input":{"prompt":"hello"}}`)
	var resp types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(resp.Error.Message, "kv cache") {
		t.Fatalf("internal detail leaked: %q", resp.Error.Message)
	}
}

func TestHealthEndpoint(t *testing.T) {
	hc := &mockChecker{health: types.HealthResponse{Status: "ready", ModelLoaded: true, ModelReady: true}}
	mux := newTestMux(&mockService{}, hc)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var h types.HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ready" || !h.ModelLoaded {
		t.Fatalf("health: %+v", h)
	}
}

func TestHealthStatusCodes(t *testing.T) {
	cases := []struct {
		status     string
		wantStatus int
	}{
		{"loading", http.StatusServiceUnavailable},
		{"ready", http.StatusOK},
		{"degraded", http.StatusOK},
		{"failed", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		hc := &mockChecker{health: types.HealthResponse{Status: tc.status}}
		mux := newTestMux(&mockService{}, hc)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != tc.wantStatus {
			t.Errorf("%s: status=%d, want %d", tc.status, rr.Code, tc.wantStatus)
		}
	}
}

func TestReadyEndpoint(t *testing.T) {
	cases := []struct {
		ready      bool
		wantStatus int
	}{
		{true, http.StatusOK},
		{false, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		hc := &mockChecker{ready: types.ReadinessResponse{Ready: tc.ready}}
		mux := newTestMux(&mockService{}, hc)
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != tc.wantStatus {
			t.Fatalf("ready=%v: status=%d, want %d", tc.ready, rr.Code, tc.wantStatus)
		}
	}
}

func TestLivenessEndpoint(t *testing.T) {
	mux := newTestMux(&mockService{}, &mockChecker{})
	req := httptest.NewRequest(http.MethodGet, "/liveness", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var l types.LivenessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &l); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !l.Alive {
		t.Fatalf("liveness: %+v", l)
	}
}

func TestLivenessFailedWorkerIs503(t *testing.T) {
	mux := newTestMux(&mockService{}, &mockChecker{notAlive: true})
	req := httptest.NewRequest(http.MethodGet, "/liveness", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestMetricsEndpointJSON(t *testing.T) {
	mux := newTestMux(&mockService{}, &mockChecker{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var m types.MetricsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.RequestsTotal != 7 || m.FailuresTotal != 2 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	mux := newTestMux(&mockService{}, &mockChecker{})
	req := httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "inferd_") {
		t.Fatalf("exposition missing inferd collectors")
	}
}
