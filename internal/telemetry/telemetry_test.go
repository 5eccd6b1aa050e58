package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathewBravo/realtime-db/pkg/listener"
	"github.com/MathewBravo/realtime-db/pkg/poller"
)

var _ poller.Metrics = (*Telemetry)(nil)

func counter(v CounterVec, labels ...string) prometheus.Collector {
	return v.(*prometheusCounterVec).vec.WithLabelValues(labels...)
}

func TestTelemetry_Records(t *testing.T) {
	tel := New(prometheus.NewRegistry())

	tel.TickCompleted("users", 3, 20*time.Millisecond)
	tel.TickCompleted("users", 4, 10*time.Millisecond)
	tel.FetchFailed("users")
	tel.ChangeDetected("users", 2)
	tel.ListenerCalled("users", listener.NewValues, false)
	tel.ListenerCalled("users", listener.NewValues, true)
	tel.SubscriptionsActive(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(counter(tel.ticks, "users")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter(tel.fetchErrors, "users")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter(tel.changes, "users")))
	assert.Equal(t, 2.0, testutil.ToFloat64(counter(tel.newRows, "users")))
	assert.Equal(t, 2.0, testutil.ToFloat64(counter(tel.listenerCalls, "users", "new_values")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter(tel.listenerPanics, "users", "new_values")))
	assert.Equal(t, 4.0, testutil.ToFloat64(tel.snapshotRows.(*prometheusGaugeVec).vec.WithLabelValues("users")))
	assert.Equal(t, 5.0, testutil.ToFloat64(tel.subscriptions.(prometheus.Gauge)))
}

func TestTelemetry_TableStoppedDropsSnapshotGauge(t *testing.T) {
	tel := New(prometheus.NewRegistry())
	vec := tel.snapshotRows.(*prometheusGaugeVec).vec

	tel.TickCompleted("users", 3, time.Millisecond)
	tel.TickCompleted("orders", 9, time.Millisecond)
	require.Equal(t, 2, testutil.CollectAndCount(vec))

	tel.TableStopped("users")

	assert.Equal(t, 1, testutil.CollectAndCount(vec))
	assert.Equal(t, 9.0, testutil.ToFloat64(vec.WithLabelValues("orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter(tel.ticks, "users")))
}

func TestTelemetry_Handler(t *testing.T) {
	tel := New(NewRegistry())
	tel.TickCompleted("orders", 1, time.Millisecond)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `realtime_ticks_total{table="orders"} 1`)
	assert.Contains(t, body, "realtime_tick_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}

func TestTelemetry_Disabled(t *testing.T) {
	tel := New(nil)

	assert.NotPanics(t, func() {
		tel.TickCompleted("users", 1, time.Millisecond)
		tel.FetchFailed("users")
		tel.ChangeDetected("users", 1)
		tel.ListenerCalled("users", listener.AllValues, true)
		tel.SubscriptionsActive(1)
		tel.TableStopped("users")
	})

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
