// Package health serves gateway health check endpoint.
package health

import (
	"net/http"
	"sync/atomic"
)

// Handler responds 200 until Drain is called, then 503 so that load
// balancers stop routing new sessions to a node shutting down.
type Handler struct {
	draining atomic.Bool
}

// NewHandler creates new Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Drain switches Handler to unhealthy state.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"draining"}`))
		return
	}
	_, _ = w.Write([]byte(`{}`))
}
