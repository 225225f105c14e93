package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistry_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.RoundsCommitted.Inc()
	m.RoundsBeaconed.Inc()
	m.RoundsFinalized.Inc()
	m.RoundErrors.WithLabelValues("BadSeed").Inc()
	m.VDFSquarings.Observe(0.25)
	m.SelectionLeaves.Observe(4)
	m.ArtifactVerified.WithLabelValues("ok").Inc()

	require.Equal(t, float64(1), counterValue(t, m.RoundsCommitted))
	require.Equal(t, float64(1), counterValue(t, m.RoundsBeaconed))
	require.Equal(t, float64(1), counterValue(t, m.RoundsFinalized))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewRegistry_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)

	require.Panics(t, func() {
		NewRegistry(reg)
	})
}
