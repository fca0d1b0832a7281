package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/centrifugal/wsgate/internal/configtypes"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in    string
		level zerolog.Level
		ok    bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{"INFO", zerolog.InfoLevel, true},
		{"none", zerolog.Disabled, true},
		{"verbose", zerolog.NoLevel, false},
	}
	for _, tc := range testCases {
		level, ok := ParseLevel(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if ok {
			require.Equal(t, tc.level, level, tc.in)
		}
	}
}

func TestSetupLogFile(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "wsgate.log")
	release, err := Setup(configtypes.Log{Level: "warn", File: path})
	require.NoError(t, err)
	require.NotNil(t, release)

	require.False(t, Enabled(DebugLevel))
	require.True(t, Enabled(ErrorLevel))

	log.Info().Msg("skipped")
	log.Warn().Msg("written")
	release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "written")
	require.NotContains(t, string(data), "skipped")
}

func TestSetupUnknownLevel(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	release, err := Setup(configtypes.Log{Level: "verbose"})
	require.NoError(t, err)
	require.Nil(t, release)
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetupBadFile(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	_, err := Setup(configtypes.Log{Level: "info", File: filepath.Join(t.TempDir(), "missing", "wsgate.log")})
	require.Error(t, err)
}
