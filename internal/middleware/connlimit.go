package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// ConnLimit rejects new client connections once limit is reached. Count
// reports the current number of connections served by wrapped handler.
type ConnLimit struct {
	limit int
	count func() int
}

func NewConnLimit(limit int, count func() int) *ConnLimit {
	return &ConnLimit{limit: limit, count: count}
}

func (l *ConnLimit) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit > 0 && l.count() >= l.limit {
			log.Warn().Int("limit", l.limit).Msg("connection limit reached")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		h.ServeHTTP(w, r)
	})
}
