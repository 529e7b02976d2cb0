package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// requestLogger emits one structured line per request. Per-request verbosity
// can be raised with an X-Log-Level header or ?log= query parameter without
// restarting the worker.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr := &statusRecorder{ResponseWriter: w, status: 200}
			start := time.Now()
			next.ServeHTTP(sr, r)

			lvl := requestLogLevel(r)
			if lvl == levelOff {
				return
			}
			ev := log.Info()
			if lvl == levelDebug {
				ev = log.Debug().Str("remote", r.RemoteAddr).Str("user_agent", r.UserAgent())
			}
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				ev = ev.Str("request_id", rid)
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sr.status).
				Dur("dur", time.Since(start)).
				Msg("http request")
		})
	}
}

type logLevel int

const (
	levelOff logLevel = iota
	levelInfo
	levelDebug
)

func parseLevel(s string) logLevel {
	switch s {
	case "off":
		return levelOff
	case "debug", "1":
		return levelDebug
	default:
		return levelInfo
	}
}

func requestLogLevel(r *http.Request) logLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return levelInfo
}
