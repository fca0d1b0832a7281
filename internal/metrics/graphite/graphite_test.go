package graphite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreparePathComponent(t *testing.T) {
	testCases := []struct {
		in, out string
	}{
		{in: "wsgate", out: "wsgate"},
		{in: "gate.local", out: "gate_local"},
		{in: "gate.prod.", out: "gate_prod_"},
		{in: "приvет", out: "___v__"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.out, PreparePathComponent(tc.in))
	}
}

func TestMakeTags(t *testing.T) {
	require.Equal(t, "", makeTags(nil))
	require.Equal(t, ";mode=graceful", makeTags([]string{"mode", "graceful"}))
	require.Equal(t, ";path=create;status=201", makeTags([]string{"path", "create", "status", "201"}))
}
