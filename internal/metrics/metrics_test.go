package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Init(Config{
		Namespace:   "test",
		ConstLabels: map[string]string{"node": "a"},
		Registerer:  reg,
	}))
	t.Cleanup(func() { _ = Init(Config{Registerer: prometheus.NewRegistry()}) })

	SessionOpened()
	SessionOpened()
	SessionClosed(false)
	SessionClosed(true)
	IncWriterAttach(AttachResultPending)

	require.Equal(t, float64(0), testutil.ToFloat64(SessionsActive))
	require.Equal(t, float64(2), testutil.ToFloat64(SessionsOpenedTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(SessionsClosedTotal.WithLabelValues("graceful")))
	require.Equal(t, float64(1), testutil.ToFloat64(SessionsClosedTotal.WithLabelValues("immediate")))
	require.Equal(t, float64(1), testutil.ToFloat64(WriterAttachTotal.WithLabelValues(AttachResultPending)))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "test_emulation_sessions_opened_total" {
			found = true
			require.Equal(t, "node", f.GetMetric()[0].GetLabel()[0].GetName())
		}
	}
	require.True(t, found)
}

func TestInitTwiceSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Init(Config{Registerer: reg}))
	require.NoError(t, Init(Config{Registerer: reg}))
	t.Cleanup(func() { _ = Init(Config{Registerer: prometheus.NewRegistry()}) })
}
