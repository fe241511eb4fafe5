package serve

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"kotoba/internal/metrics"
)

const slowRequest = 500 * time.Millisecond

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Flush keeps SSE working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// accessLog records every request: debug normally, warn when slow, error
// for 5xx. It also feeds the request metrics and turns panics into 500s.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			if v := recover(); v != nil {
				s.log.Error("panic", "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
				if rec.status == 0 {
					writeErrorMsg(rec, http.StatusInternalServerError, "internal server error")
				}
			}
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			d := s.now().Sub(start)
			metrics.RecordRequest(r.Pattern, r.Method, rec.status, d)

			level := slog.LevelDebug
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case d > slowRequest:
				level = slog.LevelWarn
			}
			s.log.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", r.Pattern,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration", d,
				"ip", clientIP(r),
			)
		}()

		next.ServeHTTP(rec, r)
	})
}
