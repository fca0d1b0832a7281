package app

import (
	"net/http"
	"sync"

	"github.com/centrifugal/wsgate/internal/config"
	"github.com/centrifugal/wsgate/internal/origin"

	"github.com/rs/zerolog/log"
)

var warnAllowedOriginsOnce sync.Once

func getCheckOrigin(cfg config.Config) (func(r *http.Request) bool, error) {
	allowedOrigins := cfg.Client.AllowedOrigins
	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		warnAllowedOriginsOnce.Do(func() {
			log.Warn().Msg("usage of allowed_origins * is discouraged for security reasons, consider setting exact list of origins")
		})
		return func(r *http.Request) bool {
			return true
		}, nil
	}
	originChecker, err := origin.NewPatternChecker(allowedOrigins)
	if err != nil {
		return nil, err
	}
	return func(r *http.Request) bool {
		if err := originChecker.Check(r); err != nil {
			log.Info().Err(err).Str("origin", r.Header.Get("Origin")).Strs("allowed_origins", allowedOrigins).Msg("request Origin is not authorized")
			return false
		}
		return true
	}, nil
}
