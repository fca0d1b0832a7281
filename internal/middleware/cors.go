package middleware

import (
	"net/http"
	"strings"
)

type OriginCheck func(r *http.Request) bool

// CORS middleware. Preflight requests of allowed origins are answered here.
type CORS struct {
	originCheck   OriginCheck
	exposeHeaders string
}

func NewCORS(originCheck OriginCheck, exposeHeaders ...string) *CORS {
	return &CORS{originCheck: originCheck, exposeHeaders: strings.Join(exposeHeaders, ", ")}
}

func (c *CORS) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !c.originCheck(r) {
			h.ServeHTTP(w, r)
			return
		}
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Add("Vary", "Origin")
		if c.exposeHeaders != "" {
			header.Set("Access-Control-Expose-Headers", c.exposeHeaders)
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if allowHeaders := r.Header.Get("Access-Control-Request-Headers"); allowHeaders != "" && allowHeaders != "null" {
				header.Set("Access-Control-Allow-Headers", allowHeaders)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
