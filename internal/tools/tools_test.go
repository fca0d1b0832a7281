package tools

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsgate.pid")
	require.NoError(t, WritePidFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	RemovePidFile(path)
	exists, err := PathExists(path)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, WritePidFile(""))
}

func TestPathExists(t *testing.T) {
	exists, err := PathExists(t.TempDir())
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = PathExists(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.False(t, exists)
}
