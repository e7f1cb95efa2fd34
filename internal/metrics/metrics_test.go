package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAllocation(t *testing.T) {
	before := testutil.ToFloat64(allocationsTotal.WithLabelValues(OpBook, "no_availability"))

	RecordAllocation(OpBook, "no_availability", 3*time.Millisecond)
	RecordAllocation(OpBook, "no_availability", time.Millisecond)

	after := testutil.ToFloat64(allocationsTotal.WithLabelValues(OpBook, "no_availability"))
	assert.Equal(t, before+2, after)
}

func TestRegister_Once(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() {
		Register(reg)
		Register(reg)
	})

	RecordPublishFailure("booking.confirmed")
	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fitness_booking_event_publish_failures_total"])
}
