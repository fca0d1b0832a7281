package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/centrifugal/wsgate/internal/config"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteDefaultConfigLoadsBack(t *testing.T) {
	for _, ext := range []string{"json", "toml", "yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config."+ext)
			require.NoError(t, writeDefaultConfig(path))
			require.Error(t, writeDefaultConfig(path))

			cfg, meta, err := config.GetConfig(nil, path)
			require.NoError(t, err)
			require.Empty(t, meta.UnknownKeys)
			require.Equal(t, config.DefaultConfig().Emulation, cfg.Emulation)
			require.NoError(t, checkConfig(path, true))
		})
	}
}

func TestMarshalDefaultConfig(t *testing.T) {
	data, err := marshalDefaultConfig(".json")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	require.Contains(t, m, "emulation")

	data, err = marshalDefaultConfig(".toml")
	require.NoError(t, err)
	require.NoError(t, toml.Unmarshal(data, &m))

	data, err = marshalDefaultConfig(".yml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &m))

	_, err = marshalDefaultConfig(".ini")
	require.Error(t, err)
}

func TestCheckConfig(t *testing.T) {
	require.Error(t, checkConfig(filepath.Join(t.TempDir(), "missing.json"), false))

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"emulation": {"escape": "base64"}}`), 0644))
	require.Error(t, checkConfig(path, false))

	require.NoError(t, os.WriteFile(path, []byte(`{"brokers": []}`), 0644))
	require.NoError(t, checkConfig(path, false))
	require.Error(t, checkConfig(path, true))
}

func TestDefaultEnv(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, defaultEnv(&buf, ""))
	out := buf.String()
	require.Contains(t, out, "WSGATE_HTTP_SERVER_PORT=8000\n")
	require.Contains(t, out, "WSGATE_EMULATION_ESCAPE=\"none\"\n")
	require.Contains(t, out, "WSGATE_EMULATION_CLIENT_IDLE_TIMEOUT=\"25s\"\n")
	require.Contains(t, out, "WSGATE_CLIENT_ALLOWED_ORIGINS=\"\"\n")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.True(t, sort.StringsAreSorted(lines))
}
