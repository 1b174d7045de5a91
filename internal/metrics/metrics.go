package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boilerctl/internal/models"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// StatusSource supplies the live readings the gauges report. The
// monitoring service implements it.
type StatusSource interface {
	Status() models.BoilerStatus
	Counters() models.RuntimeCounters
}

// Metrics owns the prometheus registry for the daemon. Live boiler
// values are collected from the status source at scrape time; the
// event-driven instruments are incremented by their owning layers.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	wsClients    prometheus.Gauge
	telemetry    *prometheus.CounterVec
}

// New builds and registers every instrument. The registry is private to
// the instance, so tests can build as many as they need.
func New(src StatusSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boilerctl_http_requests_total",
				Help: "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boilerctl_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boilerctl_websocket_clients",
			Help: "Connected websocket status subscribers",
		}),
		telemetry: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boilerctl_telemetry_publishes_total",
				Help: "Total MQTT telemetry publishes by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpLatency,
		m.wsClients,
		m.telemetry,
	)
	m.registerBoilerGauges(src)
	return m
}

func (m *Metrics) registerBoilerGauges(src StatusSource) {
	gauge := func(name, help string, fn func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help}, fn))
	}
	counter := func(name, help string, fn func() float64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help}, fn))
	}

	gauge("boilerctl_boiler_supply_celsius", "Boiler supply temperature", func() float64 {
		return src.Status().BoilerTempC
	})
	gauge("boilerctl_boiler_return_celsius", "Boiler return temperature", func() float64 {
		return src.Status().ReturnTempC
	})
	gauge("boilerctl_tank_celsius", "Hot water tank temperature", func() float64 {
		return src.Status().TankTempC
	})
	gauge("boilerctl_target_celsius", "Active regulation target", func() float64 {
		return src.Status().TargetTempC
	})
	gauge("boilerctl_pressure_bar", "System pressure", func() float64 {
		return src.Status().PressureBar
	})
	gauge("boilerctl_pressure_valid", "1 while the pressure reading is usable", func() float64 {
		return boolGauge(src.Status().PressureValid)
	})
	gauge("boilerctl_enabled", "1 while the operator enable is on", func() float64 {
		return boolGauge(src.Status().Enabled)
	})
	gauge("boilerctl_burner_state_code", "Burner state code, IDLE=0 through ERROR=8", func() float64 {
		return stateCode(src.Status().State)
	})
	gauge("boilerctl_locked_out", "1 while the burner is in ignition lockout", func() float64 {
		return boolGauge(src.Status().LockedOut)
	})
	gauge("boilerctl_failsafe_level", "Failsafe level, NORMAL=0 through SHUTDOWN=5", func() float64 {
		return levelCode(src.Status().FailsafeLevel)
	})
	gauge("boilerctl_modulation_percent", "Burner modulation", func() float64 {
		return float64(src.Status().Modulation)
	})

	counter("boilerctl_runtime_seconds_total", "Powered-on time", func() float64 {
		return src.Counters().TotalRuntime.Seconds()
	})
	counter("boilerctl_burner_seconds_total", "Burner-on time", func() float64 {
		return src.Counters().BurnerRuntime.Seconds()
	})
	counter("boilerctl_heating_cycles_total", "Heating burn cycles", func() float64 {
		return float64(src.Counters().HeatingCycles)
	})
	counter("boilerctl_water_cycles_total", "Hot water burn cycles", func() float64 {
		return float64(src.Counters().WaterCycles)
	})
	counter("boilerctl_heating_pump_starts_total", "Heating pump starts", func() float64 {
		return float64(src.Counters().HeatingPumpStarts)
	})
	counter("boilerctl_water_pump_starts_total", "Water pump starts", func() float64 {
		return float64(src.Counters().WaterPumpStarts)
	})
	counter("boilerctl_ignitions_total", "Ignition attempts", func() float64 {
		return float64(src.Counters().IgnitionCount)
	})
	counter("boilerctl_lockouts_total", "Ignition lockouts", func() float64 {
		return float64(src.Counters().LockoutCount)
	})
	counter("boilerctl_emergency_stops_total", "Emergency shutdowns", func() float64 {
		return float64(src.Counters().EmergencyStops)
	})
}

// Handler serves the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// WSConnected records a websocket subscriber attaching.
func (m *Metrics) WSConnected() { m.wsClients.Inc() }

// WSDisconnected records a websocket subscriber leaving.
func (m *Metrics) WSDisconnected() { m.wsClients.Dec() }

// IncTelemetry counts one MQTT status publish.
func (m *Metrics) IncTelemetry(result string) {
	if result == "" {
		result = ResultSuccess
	}
	m.telemetry.WithLabelValues(result).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func stateCode(state string) float64 {
	for code := models.StateIdle; code <= models.StateError; code++ {
		if code.String() == state {
			return float64(code)
		}
	}
	return -1
}

func levelCode(level string) float64 {
	for code := models.LevelNormal; code <= models.LevelShutdown; code++ {
		if code.String() == level {
			return float64(code)
		}
	}
	return -1
}
