package middleware

import (
	"net/http"
)

// Get checks that handler called via GET HTTP method.
func Get(h http.Handler) http.Handler {
	return Method(http.MethodGet, h)
}

func Method(method string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}
