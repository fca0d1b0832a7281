package config

import (
	"testing"
	"time"

	"github.com/centrifugal/wsgate/internal/configtypes"

	"github.com/stretchr/testify/require"
)

func getConfig(t *testing.T, configFile string) (Config, Meta) {
	t.Helper()
	conf, meta, err := GetConfig(nil, configFile)
	require.NoError(t, err)
	return conf, meta
}

func checkConfig(t *testing.T, conf Config) {
	t.Helper()
	require.Equal(t, 9000, conf.HTTP.Port)
	require.Equal(t, "debug", conf.Log.Level)
	require.Equal(t, []string{"http://localhost:3000"}, conf.Client.AllowedOrigins)
	require.Equal(t, "/wseb", conf.Emulation.HandlerPrefix)
	require.Equal(t, 10*time.Second, conf.Emulation.ClientIdleTimeout.ToDuration())
	require.Equal(t, 20*time.Second, conf.Emulation.InactivityTimeout.ToDuration())
	require.Equal(t, "zero", conf.Emulation.Escape)
	require.Equal(t, 2*time.Second, conf.WebSocket.WriteTimeout.ToDuration())
	require.True(t, conf.Prometheus.Enabled)
	// Not set in files.
	require.True(t, conf.Emulation.Enabled)
	require.Equal(t, 25*time.Second, conf.Emulation.LongPollTimeout.ToDuration())
	require.NoError(t, conf.Validate())
}

func TestConfigJSON(t *testing.T) {
	conf, meta := getConfig(t, "testdata/config.json")
	checkConfig(t, conf)
	require.False(t, meta.FileNotFound)
	require.Empty(t, meta.UnknownKeys)
	require.Empty(t, meta.UnknownEnvs)
}

func TestConfigYAML(t *testing.T) {
	conf, _ := getConfig(t, "testdata/config.yaml")
	checkConfig(t, conf)
}

func TestConfigTOML(t *testing.T) {
	conf, _ := getConfig(t, "testdata/config.toml")
	checkConfig(t, conf)
}

func TestConfigFileNotFound(t *testing.T) {
	conf, meta := getConfig(t, "testdata/missing.json")
	require.True(t, meta.FileNotFound)
	require.Equal(t, 8000, conf.HTTP.Port)
}

func TestConfigUnknownKeys(t *testing.T) {
	_, meta := getConfig(t, "testdata/unknown.json")
	require.ElementsMatch(t, []string{"log.colors", "brokers"}, meta.UnknownKeys)
}

func TestConfigEnvVars(t *testing.T) {
	t.Setenv("WSGATE_CLIENT_ALLOWED_ORIGINS", "*,http://localhost:4000")
	t.Setenv("WSGATE_EMULATION_CLIENT_IDLE_TIMEOUT", "5s")
	t.Setenv("WSGATE_HTTP_SERVER_PORT", "9100")
	t.Setenv("WSGATE_UNKNOWN_ENV", "1")
	t.Setenv("WSGATE_SERVICE_PORT", "80")

	conf, meta := getConfig(t, "testdata/config.json")
	require.Equal(t, []string{"*", "http://localhost:4000"}, conf.Client.AllowedOrigins)
	require.Equal(t, 5*time.Second, conf.Emulation.ClientIdleTimeout.ToDuration())
	require.Equal(t, 9100, conf.HTTP.Port)
	require.Equal(t, []string{"WSGATE_UNKNOWN_ENV"}, meta.UnknownEnvs)
	require.Equal(t, "emulation.client_idle_timeout", meta.KnownEnvVars["WSGATE_EMULATION_CLIENT_IDLE_TIMEOUT"])
}

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()
	require.Equal(t, 8000, conf.HTTP.Port)
	require.Equal(t, "info", conf.Log.Level)
	require.True(t, conf.Emulation.Enabled)
	require.Equal(t, "/emulation", conf.Emulation.HandlerPrefix)
	require.Equal(t, 25*time.Second, conf.Emulation.ClientIdleTimeout.ToDuration())
	require.Equal(t, 30*time.Second, conf.Emulation.InactivityTimeout.ToDuration())
	require.Equal(t, 65536, conf.Emulation.MaxFrameSize)
	require.Equal(t, 100, conf.Emulation.CreateRateBurst)
	require.False(t, conf.WebSocket.Disabled)
	require.Equal(t, "/connection/websocket", conf.WebSocket.HandlerPrefix)
	require.Equal(t, time.Second, conf.WebSocket.WriteTimeout.ToDuration())
	require.Equal(t, 30*time.Second, conf.Shutdown.Timeout.ToDuration())
	require.Equal(t, 2003, conf.Graphite.Port)
	require.Equal(t, 10*time.Second, conf.Graphite.Interval.ToDuration())
	require.NoError(t, conf.Validate())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"port", func(c *Config) { c.HTTP.Port = 0 }},
		{"tls without key", func(c *Config) { c.HTTP.TLS.Enabled = true }},
		{"autocert challenge address", func(c *Config) {
			c.HTTP.TLSAutocert.Enabled = true
			c.HTTP.TLSAutocert.HTTP = true
			c.HTTP.TLSAutocert.HTTPAddr = ""
		}},
		{"origin pattern", func(c *Config) { c.Client.AllowedOrigins = []string{"[unclosed"} }},
		{"escape", func(c *Config) { c.Emulation.Escape = "base64" }},
		{"negative timeout", func(c *Config) { c.Emulation.ClientIdleTimeout = configtypes.Duration(-time.Second) }},
		{"frame size", func(c *Config) { c.Emulation.MaxFrameSize = 0 }},
		{"rate burst", func(c *Config) {
			c.Emulation.CreateRateLimit = 10
			c.Emulation.CreateRateBurst = 0
		}},
		{"connection limit", func(c *Config) { c.Client.ConnectionLimit = -1 }},
		{"graphite interval", func(c *Config) {
			c.Graphite.Enabled = true
			c.Graphite.Interval = 0
		}},
		{"websocket message size", func(c *Config) { c.WebSocket.MessageSizeLimit = -1 }},
		{"prefix without slash", func(c *Config) { c.Emulation.HandlerPrefix = "emulation" }},
		{"duplicate prefix", func(c *Config) {
			c.Prometheus.Enabled = true
			c.Prometheus.HandlerPrefix = c.Emulation.HandlerPrefix
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := DefaultConfig()
			tc.modify(&conf)
			require.Error(t, conf.Validate())
		})
	}

	conf := DefaultConfig()
	conf.Emulation.Enabled = false
	conf.Emulation.Escape = "base64"
	require.NoError(t, conf.Validate())
}
