package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/pkg/types"
)

// Service is the inference surface required by the HTTP layer.
type Service interface {
	Run(ctx context.Context, req types.GenerationRequest) (types.GenerationOutput, error)
}

// HealthChecker answers the pull-based health queries.
type HealthChecker interface {
	Health(ctx context.Context) types.HealthResponse
	Readiness() types.ReadinessResponse
	Liveness() types.LivenessResponse
	Metrics(ctx context.Context) types.MetricsResponse
}

// maxBodyBytes caps /run request bodies. Prompts are bounded well below
// this; anything larger is not a legitimate request.
const maxBodyBytes int64 = 1 << 20

// NewMux builds the router: the /run generation endpoint, the health
// family, the JSON counters and the Prometheus exposition.
func NewMux(svc Service, hc HealthChecker, cfg *config.Config, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if cfg.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Log-Level"},
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	if cfg.LogRequests {
		r.Use(requestLogger(log))
	}

	r.Post("/run", func(w http.ResponseWriter, r *http.Request) {
		reqID := newRequestID()
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "ValidationError",
				"Content-Type must be application/json", reqID)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var env types.RunEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeJSONError(w, http.StatusBadRequest, "ValidationError", "invalid JSON body", reqID)
			return
		}
		if env.Input == nil {
			writeJSONError(w, http.StatusBadRequest, "ValidationError",
				"request body must contain an input object", reqID)
			return
		}

		out, err := svc.Run(r.Context(), *env.Input)
		if err != nil {
			// Client gone; nothing useful to write.
			if r.Context().Err() != nil {
				return
			}
			// Unclassified failures get full context in the log and a
			// generic message on the wire.
			if typ, _ := engine.Classify(err); typ == "InternalError" {
				log.Error().Err(err).Str("request_id", reqID).Msg("unclassified request failure")
			}
			writeError(w, err, reqID)
			return
		}
		writeJSON(w, http.StatusOK, types.RunResponse{Output: out, RequestID: reqID})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h := hc.Health(r.Context())
		// A degraded worker still answers 200; only loading and failed
		// report unavailable.
		status := http.StatusServiceUnavailable
		if h.Status == "ready" || h.Status == "degraded" {
			status = http.StatusOK
		}
		writeJSON(w, status, h)
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		rd := hc.Readiness()
		status := http.StatusOK
		if !rd.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, rd)
	})

	r.Get("/liveness", func(w http.ResponseWriter, r *http.Request) {
		l := hc.Liveness()
		status := http.StatusOK
		if !l.Alive {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, l)
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hc.Metrics(r.Context()))
	})

	// Prometheus exposition, separate from the JSON counters.
	r.Get("/metrics/prometheus", promhttp.Handler().ServeHTTP)

	return r
}

// newRequestID mints the serverless-style correlation id echoed in every
// /run response.
func newRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err and writes the consistent error envelope.
// Unclassified errors are reported generically so internal detail never
// leaks to callers.
func writeError(w http.ResponseWriter, err error, requestID string) {
	typ, status := engine.Classify(err)
	msg := err.Error()
	if typ == "InternalError" {
		msg = "an unexpected error occurred"
	}
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeJSONError(w, status, typ, msg, requestID)
}
