package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("fixgsm", nil)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/tickets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	for _, id := range []string{"FX-1", "FX-2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tickets/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/tickets/{id}", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "fixgsm_http_requests_total")
}

func TestTrackAI(t *testing.T) {
	m := New("fixgsm", nil)

	m.TrackAI("chat")(nil)
	m.TrackAI("chat")(errors.New("timeout"))
	m.TrackAI("chat")(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AIRequestsTotal.WithLabelValues("chat", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AIRequestsTotal.WithLabelValues("chat", "error")))
}
