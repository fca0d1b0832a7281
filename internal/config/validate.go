package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/centrifugal/wsgate/internal/logging"
	"github.com/centrifugal/wsgate/internal/origin"
	"github.com/centrifugal/wsgate/internal/wsframe"
)

// Validate validates config and returns error if problems found
func (c Config) Validate() error {
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("unknown log level: %q", c.Log.Level)
	}
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("invalid http_server.port: %d", c.HTTP.Port)
	}
	if c.HTTP.TLS.Enabled && (c.HTTP.TLS.CertPem == "" || c.HTTP.TLS.KeyPem == "") {
		return errors.New("http_server.tls requires both cert_pem and key_pem")
	}
	if c.HTTP.TLSAutocert.Enabled && c.HTTP.TLSAutocert.HTTP && c.HTTP.TLSAutocert.HTTPAddr == "" {
		return errors.New("http_server.tls_autocert.http_addr required for http_01 challenge")
	}
	if _, err := origin.NewPatternChecker(c.Client.AllowedOrigins); err != nil {
		return fmt.Errorf("error in client.allowed_origins: %w", err)
	}
	if err := validateEmulation(c); err != nil {
		return fmt.Errorf("error in emulation: %w", err)
	}
	if !c.WebSocket.Disabled {
		if c.WebSocket.MessageSizeLimit < 0 {
			return errors.New("websocket.message_size_limit can not be negative")
		}
		if c.WebSocket.WriteTimeout < 0 || c.WebSocket.PingInterval < 0 {
			return errors.New("websocket durations can not be negative")
		}
	}
	if c.Client.ConnectionLimit < 0 {
		return errors.New("client.connection_limit can not be negative")
	}
	if c.Graphite.Enabled {
		if c.Graphite.Port <= 0 {
			return fmt.Errorf("invalid graphite.port: %d", c.Graphite.Port)
		}
		if c.Graphite.Interval <= 0 {
			return errors.New("graphite.interval must be positive")
		}
	}
	if c.Shutdown.Timeout < 0 {
		return errors.New("shutdown.timeout can not be negative")
	}

	var prefixes []string
	for _, p := range []struct {
		enabled bool
		prefix  string
	}{
		{c.Emulation.Enabled, c.Emulation.HandlerPrefix},
		{!c.WebSocket.Disabled, c.WebSocket.HandlerPrefix},
		{c.Prometheus.Enabled, c.Prometheus.HandlerPrefix},
		{c.Health.Enabled, c.Health.HandlerPrefix},
		{c.Debug.Enabled, c.Debug.HandlerPrefix},
	} {
		if !p.enabled {
			continue
		}
		if !strings.HasPrefix(p.prefix, "/") {
			return fmt.Errorf("handler prefix must start with /: %q", p.prefix)
		}
		for _, existing := range prefixes {
			if existing == p.prefix {
				return fmt.Errorf("duplicate handler prefix: %q", p.prefix)
			}
		}
		prefixes = append(prefixes, p.prefix)
	}
	return nil
}

func validateEmulation(c Config) error {
	e := c.Emulation
	if !e.Enabled {
		return nil
	}
	if _, err := wsframe.ParseEscapeType(e.Escape); err != nil {
		return err
	}
	if e.ClientIdleTimeout < 0 || e.InactivityTimeout < 0 || e.LongPollTimeout < 0 {
		return errors.New("timeouts can not be negative")
	}
	if e.MaxRequestBodySize <= 0 {
		return errors.New("max_request_body_size must be positive")
	}
	if e.MaxFrameSize <= 0 {
		return errors.New("max_frame_size must be positive")
	}
	if e.IOWorkers < 0 {
		return errors.New("io_workers can not be negative")
	}
	if e.CreateRateLimit < 0 {
		return errors.New("create_rate_limit can not be negative")
	}
	if e.CreateRateLimit > 0 && e.CreateRateBurst <= 0 {
		return errors.New("create_rate_burst must be positive when create_rate_limit set")
	}
	return nil
}
