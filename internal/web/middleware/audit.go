package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-registry/internal/audit"
)

// Audit records every request once its response status is known.
// The write happens in the background and never delays the response.
func Audit(recorder *audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				recorder.Record(r.Context(), audit.Entry{
					Method:    r.Method,
					Endpoint:  r.URL.Path,
					Status:    status,
					IP:        audit.ClientIP(r),
					UserAgent: r.UserAgent(),
					Timestamp: start,
				})
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
