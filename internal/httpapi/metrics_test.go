package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 503: "503"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Errorf("itoa(%d)=%q, want %q", n, got, want)
		}
	}
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	rr := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rr, status: 200}
	sr.WriteHeader(http.StatusTeapot)
	if sr.status != http.StatusTeapot || rr.Code != http.StatusTeapot {
		t.Fatalf("recorded=%d underlying=%d", sr.status, rr.Code)
	}
}

func TestRoutePatternOrPathFallsBack(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/somewhere", nil)
	if got := routePatternOrPath(req); got != "/somewhere" {
		t.Fatalf("got %q", got)
	}
}

func TestRoutePatternPreferred(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.Get("/run", func(w http.ResponseWriter, r *http.Request) {
		got = routePatternOrPath(r)
	})
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got != "/run" {
		t.Fatalf("got %q", got)
	}
}
