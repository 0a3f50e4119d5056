package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":                           "root",
		"/":                          "root",
		"/checkout":                  "checkout",
		"/payments/authorize":        "payments",
		"/payments/authorizations/x": "payments",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizePath(in), "path %q", in)
	}
}

func TestMiddleware_CountsRequests(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodGet, "brew", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew/coffee", nil))
	after := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodGet, "brew", "418"))

	require.Equal(t, before+1, after)
}

func TestMiddleware_SkipsMetricsEndpoint(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	before := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodGet, "metrics", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	after := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodGet, "metrics", "200"))

	require.Equal(t, before, after)
}
