package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware tags every request with an id, logs its outcome and
// records it in m. Routes are labelled by their template so path
// parameters do not explode metric cardinality.
func LoggingMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			w.Header().Add("Content-Type", "application/json")
			r = r.WithContext(context.WithValue(r.Context(), utils.RequestIDKey, requestID))

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			route := routeTemplate(r)
			m.Request(r.Method, route, rw.status, duration)

			fields := logger.Fields{
				logger.RequestIDKey: requestID,
				"method":            r.Method,
				"path":              r.URL.Path,
				"route":             route,
				"status":            rw.status,
				"duration":          duration.String(),
				"remote":            r.RemoteAddr,
			}
			if rw.status >= http.StatusInternalServerError {
				logger.Error("Request failed", fields)
				return
			}
			logger.Info("Request completed", fields)
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
