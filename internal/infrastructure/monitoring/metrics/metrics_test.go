package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCounters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsInFlight))

	m.RunFinished("completed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))
}

func TestCompoundCounters(t *testing.T) {
	m := MustNew()

	m.IncCompoundExcluded("CLU_001")
	m.IncCompoundExcluded("CLU_001")
	m.AddCompoundsRanked(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.compoundsExcluded.WithLabelValues("CLU_001")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.compoundsRanked))
}

func TestStageDurationCollects(t *testing.T) {
	m := MustNew()
	m.ObserveStageDuration("partition", 50*time.Millisecond, true)
	m.ObserveStageDuration("score", time.Second, false)

	n := testutil.CollectAndCount(m.stageDuration)
	assert.Equal(t, 2, n)
}
