package middleware

import (
	"net/http"
	"strconv"

	"github.com/centrifugal/wsgate/internal/metrics"
)

// HTTPServerInstrumentation counts requests per endpoint family. Paths of
// emulated sessions contain session IDs so route is passed explicitly to keep
// label cardinality bounded. Durations are not collected: downstream and
// WebSocket requests are long-lived.
func HTTPServerInstrumentation(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusResponseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)
			metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.Status())).Inc()
		})
	}
}
