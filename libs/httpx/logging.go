package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type ctxKeyAnnotations struct{}

type annotations struct {
	mu    sync.Mutex
	attrs []any
}

// Annotate attaches key/value pairs to the access log line of the current
// request. It is a no-op outside WithAccessLog.
func Annotate(ctx context.Context, kv ...any) {
	a, ok := ctx.Value(ctxKeyAnnotations{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	a.attrs = append(a.attrs, kv...)
	a.mu.Unlock()
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusCapturingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusCapturingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// WithAccessLog logs one line per request. Server errors log at error level,
// client errors at warn.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingResponseWriter{ResponseWriter: w}
			ann := &annotations{}

			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), ctxKeyAnnotations{}, ann)))

			attrs := []any{
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			ann.mu.Lock()
			attrs = append(attrs, ann.attrs...)
			ann.mu.Unlock()

			switch {
			case sw.status >= 500:
				logger.Error("http request", attrs...)
			case sw.status >= 400:
				logger.Warn("http request", attrs...)
			default:
				logger.Info("http request", attrs...)
			}
		})
	}
}
