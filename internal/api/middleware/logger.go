package middleware

import (
	"log"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			status:         http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		// Streamed archive deliveries can legitimately take minutes; the
		// duration here is the full transfer time, not time-to-first-byte.
		log.Printf(
			"%s %s %d %s %s",
			r.Method,
			r.URL.Path,
			rec.status,
			time.Since(start),
			r.RemoteAddr,
		)
	})
}
