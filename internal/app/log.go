package app

import (
	"strings"

	"github.com/centrifugal/wsgate/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logStartWarnings(cfg config.Config, cfgMeta config.Meta) {
	if cfg.Debug.Enabled {
		log.Warn().Msg("DEBUG mode enabled, see on " + cfg.Debug.HandlerPrefix)
	}
	if cfg.Emulation.Enabled && cfg.Emulation.ClientIdleTimeout == 0 {
		log.Warn().Msg("emulation.client_idle_timeout is 0, sessions without downstream request are never closed")
	}
	for _, key := range cfgMeta.UnknownKeys {
		log.Warn().Str("key", key).Msg("unknown key in configuration file")
	}
	for _, key := range cfgMeta.UnknownEnvs {
		log.Warn().Str("var", key).Msg("unknown var in environment")
	}
}

type httpErrorLogWriter struct {
	zerolog.Logger
}

func (w *httpErrorLogWriter) Write(data []byte) (int, error) {
	w.Logger.Warn().Msg(strings.TrimSpace(string(data)))
	return len(data), nil
}
