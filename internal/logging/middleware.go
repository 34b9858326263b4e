package logging

import (
	"net/http"
	"time"
)

// HTTPMiddleware adds correlation ID and request logging to HTTP handlers
func HTTPMiddleware(log Sink, next http.Handler) http.Handler {
	log = OrNop(log)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Generate or extract correlation ID
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = NewCorrelationID()
		}

		ctx := WithCorrelationID(r.Context(), correlationID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Correlation-ID", correlationID)

		start := time.Now()
		log.Debug(ctx, ComponentHTTP, ActionRequest, "HTTP request started", Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"query":     r.URL.RawQuery,
			"remote_ip": r.RemoteAddr,
		})

		// Wrap response writer to capture status code
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		fields := Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status_code": wrapper.statusCode,
			"bytes_sent":  wrapper.bytesWritten,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		switch {
		case wrapper.statusCode >= 500:
			log.Error(ctx, ComponentHTTP, ActionResponse, "HTTP request failed", nil, fields)
		case wrapper.statusCode >= 400:
			log.Warn(ctx, ComponentHTTP, ActionResponse, "HTTP request rejected", fields)
		default:
			log.Info(ctx, ComponentHTTP, ActionResponse, "HTTP request completed", fields)
		}
	})
}

// responseWrapper wraps http.ResponseWriter to capture status code and bytes written
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}
