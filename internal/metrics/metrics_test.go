package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boilerctl/internal/models"
)

type fakeSource struct {
	status   models.BoilerStatus
	counters models.RuntimeCounters
}

func (f *fakeSource) Status() models.BoilerStatus      { return f.status }
func (f *fakeSource) Counters() models.RuntimeCounters { return f.counters }

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

// TestMetrics_BoilerGauges verifies the scrape reports the live status
// values and the lifetime counters.
func TestMetrics_BoilerGauges(t *testing.T) {
	src := &fakeSource{
		status: models.BoilerStatus{
			Enabled:       true,
			State:         models.StateRunningLow.String(),
			FailsafeLevel: models.LevelWarning.String(),
			BoilerTempC:   64.2,
			TankTempC:     51.5,
			PressureBar:   1.5,
			PressureValid: true,
			Modulation:    56,
		},
		counters: models.RuntimeCounters{
			TotalRuntime:      90 * time.Minute,
			HeatingCycles:     3,
			HeatingPumpStarts: 5,
			LockoutCount:      1,
		},
	}
	body := scrape(t, New(src))

	assert.Contains(t, body, "boilerctl_boiler_supply_celsius 64.2")
	assert.Contains(t, body, "boilerctl_tank_celsius 51.5")
	assert.Contains(t, body, "boilerctl_pressure_bar 1.5")
	assert.Contains(t, body, "boilerctl_pressure_valid 1")
	assert.Contains(t, body, "boilerctl_enabled 1")
	assert.Contains(t, body, "boilerctl_burner_state_code 3")
	assert.Contains(t, body, "boilerctl_failsafe_level 1")
	assert.Contains(t, body, "boilerctl_modulation_percent 56")
	assert.Contains(t, body, "boilerctl_runtime_seconds_total 5400")
	assert.Contains(t, body, "boilerctl_heating_cycles_total 3")
	assert.Contains(t, body, "boilerctl_heating_pump_starts_total 5")
	assert.Contains(t, body, "boilerctl_lockouts_total 1")
}

// TestMetrics_EventInstruments verifies the request, websocket and
// telemetry instruments owned by the other layers.
func TestMetrics_EventInstruments(t *testing.T) {
	m := New(&fakeSource{})

	m.ObserveHTTP("GET", "/api/v1/boiler/status", 200, 30*time.Millisecond)
	m.ObserveHTTP("GET", "/api/v1/boiler/status", 200, 10*time.Millisecond)
	m.ObserveHTTP("POST", "", 404, time.Millisecond)
	m.WSConnected()
	m.WSConnected()
	m.WSDisconnected()
	m.IncTelemetry(ResultSuccess)
	m.IncTelemetry("")

	body := scrape(t, m)
	assert.Contains(t, body,
		`boilerctl_http_requests_total{method="GET",route="/api/v1/boiler/status",status="200"} 2`)
	assert.Contains(t, body,
		`boilerctl_http_requests_total{method="POST",route="unmatched",status="404"} 1`)
	assert.Contains(t, body, "boilerctl_websocket_clients 1")
	assert.Contains(t, body, `boilerctl_telemetry_publishes_total{result="success"} 2`)
}

// TestMetrics_UnknownEnumCodes verifies unknown enum strings render as
// the -1 sentinel instead of aliasing a real code.
func TestMetrics_UnknownEnumCodes(t *testing.T) {
	src := &fakeSource{status: models.BoilerStatus{State: "bogus", FailsafeLevel: "bogus"}}
	body := scrape(t, New(src))

	assert.Contains(t, body, "boilerctl_burner_state_code -1")
	assert.Contains(t, body, "boilerctl_failsafe_level -1")
}

// TestMetrics_IndependentInstances verifies two instances register
// without colliding, so tests and embedded uses stay isolated.
func TestMetrics_IndependentInstances(t *testing.T) {
	src := &fakeSource{}
	a := New(src)
	b := New(src)
	a.WSConnected()

	assert.Contains(t, scrape(t, a), "boilerctl_websocket_clients 1")
	assert.Contains(t, scrape(t, b), "boilerctl_websocket_clients 0")
}
