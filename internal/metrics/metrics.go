// Package metrics exports detector telemetry to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"clueless/internal/activity"
	"clueless/internal/monitor"
	"clueless/internal/overlay"
	"clueless/internal/threat"
)

const namespace = "clueless"

// Metrics holds every clueless collector. It implements monitor.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Counters
	EventsTotal       *prometheus.CounterVec
	TicksTotal        *prometheus.CounterVec
	TicksSkippedTotal *prometheus.CounterVec
	ScanErrorsTotal   *prometheus.CounterVec
	SessionsTotal     prometheus.Counter

	// Gauges
	Monitoring  prometheus.Gauge
	RiskScore   prometheus.Gauge
	ThreatLevel prometheus.Gauge
	Alerts      prometheus.Gauge
}

var startTime = time.Now()

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the daemon started.",
	}, func() float64 { return time.Since(startTime).Seconds() })

	return &Metrics{
		registry: reg,

		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Suspicious activity events recorded.",
		}, []string{"type", "severity"}),
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Detection ticks run.",
		}, []string{"kind"}),
		TicksSkippedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Detection ticks skipped because the previous tick was still running.",
		}, []string{"kind"}),
		ScanErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Detection ticks that produced no data because a scan failed.",
		}, []string{"kind"}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Monitoring sessions started.",
		}),

		Monitoring: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring",
			Help:      "1 while monitoring, 0 while idle.",
		}),
		RiskScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Risk score from the last dashboard poll, 0 to 100.",
		}),
		ThreatLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threat_level",
			Help:      "Threat level from the last dashboard poll: 0 LOW, 1 MEDIUM, 2 HIGH, 3 CRITICAL.",
		}),
		Alerts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts",
			Help:      "Alerts raised since the history was last cleared.",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StateChanged(s monitor.State) {
	if s == monitor.StateMonitoring {
		m.SessionsTotal.Inc()
		m.Monitoring.Set(1)
		return
	}
	m.Monitoring.Set(0)
}

func (m *Metrics) TickRun(k monitor.Kind) {
	m.TicksTotal.WithLabelValues(string(k)).Inc()
}

func (m *Metrics) TickSkipped(k monitor.Kind) {
	m.TicksSkippedTotal.WithLabelValues(string(k)).Inc()
}

func (m *Metrics) ScanFailed(k monitor.Kind) {
	m.ScanErrorsTotal.WithLabelValues(string(k)).Inc()
}

func (m *Metrics) EventRecorded(ev activity.Event) {
	m.EventsTotal.WithLabelValues(string(ev.Type), string(ev.Severity)).Inc()
}

// ObserveStatus records the dashboard status gauges.
func (m *Metrics) ObserveStatus(s overlay.Status) {
	m.RiskScore.Set(float64(s.RiskScore))
	m.ThreatLevel.Set(float64(s.ThreatLevel - threat.LevelLow))
	m.Alerts.Set(float64(s.TotalAlerts))
}

var _ monitor.Observer = (*Metrics)(nil)
