package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/provider"
	"github.com/unillm/unillm/pkg/registry"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mk("a"), mk("b"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if strings.Join(order, ",") != "a,b,handler" {
		t.Errorf("order = %v", order)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Error("no request id generated")
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("echoed id %q != context id %q", got, seen)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "incoming-id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "incoming-id" {
		t.Errorf("incoming id not honored, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached on preflight")
	}))

	req := httptest.NewRequest("OPTIONS", "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-Stainless-Lang") {
		t.Errorf("allow-headers missing stainless set: %q", got)
	}
}

func TestCORSPassthrough(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/tags", nil)
	req.Header.Set("Origin", "http://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	// Without an Origin header nothing is added.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/tags", nil))
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin set without origin: %q", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{api.NewInvalidRequestError("model", "missing"), http.StatusBadRequest},
		{registry.ErrUnknownModel, http.StatusNotFound},
		{registry.ErrUnknownKeyPool, http.StatusBadRequest},
		{registry.ErrProxyNotConfigured, http.StatusBadRequest},
		{&provider.UpstreamError{StatusCode: 429, Body: "slow down"}, http.StatusBadGateway},
		{provider.ErrEmptyChoices, http.StatusBadGateway},
		{errors.New("disk exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		apiErr := APIErrorFrom(tt.err)
		if got := HTTPStatusFromError(apiErr); got != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, got, tt.want)
		}
	}
}
