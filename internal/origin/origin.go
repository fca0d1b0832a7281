package origin

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// PatternChecker authorizes request Origin. Same-origin requests and requests
// without Origin header are always allowed.
type PatternChecker struct {
	allowedOrigins []glob.Glob
}

func NewPatternChecker(allowedOrigins []string) (*PatternChecker, error) {
	var globs []glob.Glob
	for _, pattern := range allowedOrigins {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("malformed origin pattern: %w", err)
		}
		globs = append(globs, g)
	}
	return &PatternChecker{
		allowedOrigins: globs,
	}, nil
}

// Match reports whether origin matches one of configured patterns.
func (a *PatternChecker) Match(origin string) bool {
	origin = strings.ToLower(origin)
	for _, pattern := range a.allowedOrigins {
		if pattern.Match(origin) {
			return true
		}
	}
	return false
}

func (a *PatternChecker) Check(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("failed to parse Origin header %q: %w", origin, err)
	}
	if strings.EqualFold(r.Host, u.Host) {
		return nil
	}

	if a.Match(origin) || a.Match(u.Host) {
		return nil
	}

	return fmt.Errorf("request Origin %s is not authorized", origin)
}
