package etl

import (
	"github.com/BartekS5/taprun/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters of a single run on a private registry. All
// methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	messages       *prometheus.CounterVec
	linesForwarded prometheus.Counter
	decodeWarnings prometheus.Counter
	stderrLines    prometheus.Counter
	commits        prometheus.Counter
	duration       prometheus.Gauge
	lastSuccess    prometheus.Gauge
	exitCode       prometheus.Gauge
}

func NewMetrics(tap string) *Metrics {
	labels := prometheus.Labels{"tap": tap}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "taprun_messages_total",
			Help:        "Protocol messages read from tap stdout, by type.",
			ConstLabels: labels,
		}, []string{"type"}),
		linesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "taprun_lines_forwarded_total",
			Help:        "Lines forwarded to the downstream sink.",
			ConstLabels: labels,
		}),
		decodeWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "taprun_decode_warnings_total",
			Help:        "Stdout lines that were not valid JSON.",
			ConstLabels: labels,
		}),
		stderrLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "taprun_stderr_lines_total",
			Help:        "Diagnostic lines read from tap stderr.",
			ConstLabels: labels,
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "taprun_checkpoint_commits_total",
			Help:        "Checkpoints committed after a successful run.",
			ConstLabels: labels,
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taprun_run_duration_seconds",
			Help:        "Wall time of the last run.",
			ConstLabels: labels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taprun_last_run_success",
			Help:        "1 if the last run succeeded, 0 otherwise.",
			ConstLabels: labels,
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taprun_child_exit_code",
			Help:        "Exit code of the tap process in the last run.",
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(
		m.messages,
		m.linesForwarded,
		m.decodeWarnings,
		m.stderrLines,
		m.commits,
		m.duration,
		m.lastSuccess,
		m.exitCode,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests or a push gateway.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) message(t models.MessageType) {
	if m != nil {
		m.messages.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) lineForwarded() {
	if m != nil {
		m.linesForwarded.Inc()
	}
}

func (m *Metrics) decodeWarning() {
	if m != nil {
		m.decodeWarnings.Inc()
	}
}

func (m *Metrics) stderrLine() {
	if m != nil {
		m.stderrLines.Inc()
	}
}

func (m *Metrics) committed() {
	if m != nil {
		m.commits.Inc()
	}
}

func (m *Metrics) finish(seconds float64, exitCode int, success bool) {
	if m == nil {
		return
	}
	m.duration.Set(seconds)
	m.exitCode.Set(float64(exitCode))
	if success {
		m.lastSuccess.Set(1)
	} else {
		m.lastSuccess.Set(0)
	}
}
