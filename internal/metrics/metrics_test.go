package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExposesIncrementedCounters(t *testing.T) {
	r := New()
	r.SignalsAccepted.WithLabelValues("router").Inc()
	r.SignalsRejected.WithLabelValues("governor", "cooldown").Inc()
	r.SignalsDropped.Inc()
	r.OrdersPlaced.WithLabelValues("ENTRY").Inc()
	r.Incidents.WithLabelValues("CRITICAL").Inc()
	r.OpenPositions.Set(3)
	r.KillSwitchActive.Set(1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tradeguard_signals_accepted_total")
	assert.Contains(t, body, "tradeguard_signals_dropped_total 1")
	assert.Contains(t, body, "tradeguard_open_positions 3")
	assert.Contains(t, body, "tradeguard_kill_switch_active 1")
	assert.Contains(t, body, `tradeguard_incidents_total{level="CRITICAL"} 1`)
}
