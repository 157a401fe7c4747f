package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

func TestLoggingMiddleware(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	var seenID string
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(m))
	r.HandleFunc("/wallet/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = r.Context().Value(utils.RequestIDKey).(string)
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/wallet/transactions/abc", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rr.Header().Get(RequestIDHeader))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/wallet/transactions/{id}", "404")))

	// a caller supplied id is kept
	req = httptest.NewRequest(http.MethodGet, "/wallet/transactions/def", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "req-42", seenID)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/wallet/transactions/{id}", "404")))
}
